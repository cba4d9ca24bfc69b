package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	authhttp "github.com/aussiebroadwan/vouch/internal/auth/http"
	"github.com/aussiebroadwan/vouch/internal/auth/service"
	"github.com/aussiebroadwan/vouch/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/httpx"
	"github.com/aussiebroadwan/vouch/pkg/jwtx"
	"github.com/aussiebroadwan/vouch/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "vouch-http-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// testServer runs the full router over an in-memory store.
type testServer struct {
	*httptest.Server
	client   *authsdk.SDKClient
	mail     *delivery.Recorder
	sessions *service.SessionService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "vouch-test", NumKeys: 2})
	require.NoError(t, err)
	sealer, err := cryptox.NewSealer(make([]byte, 32))
	require.NoError(t, err)

	logger := slogx.Discard()
	mail := &delivery.Recorder{}
	router := delivery.NewRouter()
	router.Register(delivery.ChannelEmail, mail)

	challenges := &service.ChallengeService{Store: st}
	backupCodes := &service.BackupCodeService{Store: st}
	passwords := &service.PasswordAuthenticator{Store: st}
	sessions := &service.SessionService{Store: st, Keys: keys, Issuer: "vouch-test", Logger: logger}
	t.Cleanup(sessions.Wait)
	totp := &service.TOTPService{
		Store:       st,
		Challenges:  challenges,
		BackupCodes: backupCodes,
		Sealer:      sealer,
		Issuer:      "vouch-test",
	}

	r := authhttp.NewRouter(keys, "test", st, logger)
	r.Sessions = sessions
	r.Passwords = passwords
	r.OTP = &service.OTPService{Challenges: challenges, Delivery: router, Logger: logger}
	r.EmailVerification = &service.EmailVerificationService{
		Store:      st,
		Challenges: challenges,
		Delivery:   router,
		LinkBase:   "https://app.example.com/verify-email",
	}
	r.PasswordReset = &service.PasswordResetService{
		Store:      st,
		Challenges: challenges,
		Sessions:   sessions,
		Delivery:   router,
		Logger:     logger,
		LinkBase:   "https://app.example.com/reset",
	}
	r.TOTP = totp
	r.BackupCodes = backupCodes
	r.StepUps = &service.StepUpService{Store: st, Passwords: passwords, TOTP: totp, BackupCodes: backupCodes}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		client:   authsdk.NewSDKClient(srv.URL),
		mail:     mail,
		sessions: sessions,
	}
}

// withLimits swaps the rate limit profiles for the duration of a test.
// Routers must be built after calling it.
func withLimits(t *testing.T, strict, moderate httpx.RateLimitConfig) {
	t.Helper()
	prevStrict, prevModerate := httpx.StrictLimit, httpx.ModerateLimit
	httpx.StrictLimit, httpx.ModerateLimit = strict, moderate
	t.Cleanup(func() {
		httpx.StrictLimit, httpx.ModerateLimit = prevStrict, prevModerate
	})
}

// signup registers an account and logs it in.
func (s *testServer) signup(t *testing.T, email string) *authsdk.Session {
	t.Helper()
	ctx := context.Background()

	_, err := s.client.Register(ctx, email, testPassword)
	require.NoError(t, err)
	sess, err := s.client.Login(ctx, email, testPassword)
	require.NoError(t, err)
	return sess
}

// lastLink returns the challenge and token of the last mailed link.
func (s *testServer) lastLink(t *testing.T) (string, string) {
	t.Helper()
	msg, ok := s.mail.Last()
	require.True(t, ok, "no link delivered")

	u, err := url.Parse(msg.URL)
	require.NoError(t, err)
	return u.Query().Get("challenge"), u.Query().Get("token")
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func jsonRaw(s string) io.Reader {
	return strings.NewReader(s)
}
