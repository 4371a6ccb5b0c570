package audit

import "context"

// RequestInfo carries the caller-facing metadata the HTTP layer knows and the
// service layer needs when emitting events.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

type ctxKey struct{}

// WithRequestInfo attaches request metadata for downstream emission.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// RequestInfoFromContext returns the attached metadata, or a zero value when
// the operation runs outside an HTTP request (tests, maintenance tasks).
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, ok := ctx.Value(ctxKey{}).(RequestInfo)
	if !ok {
		return RequestInfo{IPAddress: "unknown", UserAgent: "unknown"}
	}
	return info
}
