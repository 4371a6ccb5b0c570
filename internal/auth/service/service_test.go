package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
	"github.com/siloamhealth/siloam-auth/internal/auth/policy"
	"github.com/siloamhealth/siloam-auth/internal/auth/store/drivers/sqlite"
	"github.com/siloamhealth/siloam-auth/pkg/cryptox"
	"github.com/siloamhealth/siloam-auth/pkg/jwtx"

	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "siloam-auth-test"
	testPassword = "Valid-Passw0rd@16"
	testKeyHex   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "siloam-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSink captures audit events for assertions.
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

func (s *recordingSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
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

type fixture struct {
	auth    *AuthService
	mfa     *MFAService
	tokens  *jwtx.HS256
	clock   *fakeClock
	sink    *recordingSink
	emitter *audit.Emitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), testIssuer)
	require.NoError(t, err)

	envelope, err := cryptox.NewEnvelope(testKeyHex, nil)
	require.NoError(t, err)

	clock := newFakeClock()
	sink := &recordingSink{}
	emitter := audit.NewEmitter(slog.Default(), 256, sink)
	emitter.Now = clock.Now
	t.Cleanup(emitter.Close)

	f := &fixture{
		auth: &AuthService{
			Store:      st,
			Tokens:     tokens,
			Policy:     policy.NewEngine(),
			Audit:      emitter,
			Issuer:     testIssuer,
			SessionTTL: jwtx.DefaultSessionTTL,
			Now:        clock.Now,
		},
		mfa: &MFAService{
			Store:      st,
			Envelope:   envelope,
			Tokens:     tokens,
			Verifier:   tokens,
			Audit:      emitter,
			Issuer:     testIssuer,
			SessionTTL: jwtx.DefaultSessionTTL,
			Now:        clock.Now,
		},
		tokens:  tokens,
		clock:   clock,
		sink:    sink,
		emitter: emitter,
	}
	return f
}

func (f *fixture) register(t *testing.T, email string) {
	t.Helper()
	_, err := f.auth.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: "Maya",
		LastName:  "Tan",
	})
	require.NoError(t, err)
}

// enableMFA walks an account through setup and verification, returning the
// plaintext seed and recovery codes.
func (f *fixture) enableMFA(t *testing.T, email string) (seed string, recoveryCodes []string) {
	t.Helper()
	ctx := context.Background()

	acct, err := f.auth.Store.Accounts().GetByEmail(ctx, email)
	require.NoError(t, err)

	setup, err := f.mfa.Setup(ctx, acct.ID)
	require.NoError(t, err)

	code := f.totpCode(t, setup.ManualKey)
	codes, err := f.mfa.Verify(ctx, acct.ID, code)
	require.NoError(t, err)

	return setup.ManualKey, codes
}

// waitForAudit blocks until at least n events with the given action have been
// dispatched; events cross a background goroutine so delivery is asynchronous.
func (f *fixture) waitForAudit(t *testing.T, action string, n int) []audit.Event {
	t.Helper()
	var out []audit.Event
	require.Eventually(t, func() bool {
		out = f.sink.byAction(action)
		return len(out) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return out
}

func (f *fixture) totpCode(t *testing.T, seed string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(seed, f.clock.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
