package http

import (
	"net/http"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/pkg/httpx"
)

// statusRecorder captures the response status so rejected requests can be
// surfaced on the audit stream.
type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// unauthorizedAuditMiddleware emits an unauthorized_access audit event for
// every 401/403 response, whichever layer produced it: missing or bad bearer
// tokens, deactivated accounts, failed credential checks.
func unauthorizedAuditMiddleware(emitter *audit.Emitter) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			if sr.status != http.StatusUnauthorized && sr.status != http.StatusForbidden {
				return
			}

			info := audit.RequestInfoFromContext(r.Context())
			emitter.Emit(audit.Event{
				Action:       audit.ActionUnauthorized,
				Resource:     r.URL.Path,
				StatusCode:   sr.status,
				Success:      false,
				ErrorMessage: "unauthorized access attempt",
				IPAddress:    info.IPAddress,
				UserAgent:    info.UserAgent,
			})
		})
	}
}
