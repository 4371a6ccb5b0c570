package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/service"
	"github.com/siloamhealth/siloam-auth/internal/auth/store/drivers/sqlite"
	"github.com/siloamhealth/siloam-auth/pkg/jwtx"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Write(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) byAction(action string) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func newTestRouter(t *testing.T) (*Router, *recordingSink) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "siloam-auth-test")
	require.NoError(t, err)

	sink := &recordingSink{}
	emitter := audit.NewEmitter(slog.Default(), 64, sink)
	t.Cleanup(emitter.Close)

	router := NewRouter(tokens, "test", st, slog.Default())
	router.AuthService = &service.AuthService{Store: st, Tokens: tokens, Audit: emitter}
	router.MFAService = &service.MFAService{Store: st, Tokens: tokens, Verifier: tokens, Audit: emitter}
	router.Audit = emitter
	router.ApplyRoutes()

	return router, sink
}

func TestUnauthorizedRequestsAreAudited(t *testing.T) {
	t.Parallel()
	router, sink := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("User-Agent", "siloam-test-client/1.0")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var events []audit.Event
	require.Eventually(t, func() bool {
		events = sink.byAction(audit.ActionUnauthorized)
		return len(events) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	e := events[0]
	require.Equal(t, http.StatusUnauthorized, e.StatusCode)
	require.Equal(t, "/v1/auth/me", e.Resource)
	require.Equal(t, "203.0.113.9", e.IPAddress)
	require.False(t, e.Success)
	require.True(t, e.SecuritySensitive())
}

func TestRejectedBearerTokensAreAudited(t *testing.T) {
	t.Parallel()
	router, sink := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/mfa/setup", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Eventually(t, func() bool {
		return len(sink.byAction(audit.ActionUnauthorized)) >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSuccessfulRequestsAreNotAudited(t *testing.T) {
	t.Parallel()
	router, sink := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Give the emitter a moment to dispatch anything queued.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, sink.byAction(audit.ActionUnauthorized))
}
