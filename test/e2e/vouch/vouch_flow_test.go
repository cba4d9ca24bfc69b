package vouch_test

import (
	"net/url"
	"testing"

	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestSessionLifecycle registers, logs in twice and signs out.
func TestSessionLifecycle(t *testing.T) {
	c := startVouch(t, nil)
	ctx := t.Context()

	first := c.signup(t, "alice@example.com")
	second, err := c.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	list, err := first.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, second.Logout(ctx))
	_, err = second.ListSessions(ctx)
	require.ErrorIs(t, err, authsdk.ErrSessionRevoked)

	list, err = first.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

// TestOTPThroughLogSender reads the code from the container log.
func TestOTPThroughLogSender(t *testing.T) {
	c := startVouch(t, nil)
	ctx := t.Context()

	challenge, err := c.client.RequestOTP(ctx, authsdk.OTPRequest{Identifier: "bob@example.com"})
	require.NoError(t, err)

	d := c.nthDelivery(t, 1)
	require.Equal(t, "bob@example.com", d["destination"])
	code, _ := d["code"].(string)
	require.Len(t, code, 6)

	verified, err := c.client.VerifyOTP(ctx, challenge.ChallengeID, code)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", verified.Identifier)
}

// TestPasswordResetThroughLogSender resets a password with the logged link.
func TestPasswordResetThroughLogSender(t *testing.T) {
	c := startVouch(t, nil)
	ctx := t.Context()

	old := c.signup(t, "carol@example.com")
	require.NoError(t, c.client.ForgotPassword(ctx, "carol@example.com"))

	link, _ := c.nthDelivery(t, 1)["url"].(string)
	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/reset-password", u.Path)

	err = c.client.ResetPassword(ctx, u.Query().Get("challenge"), u.Query().Get("token"), "another long password")
	require.NoError(t, err)

	_, err = old.ListSessions(ctx)
	require.ErrorIs(t, err, authsdk.ErrSessionRevoked)
	_, err = c.client.Login(ctx, "carol@example.com", "another long password")
	require.NoError(t, err)
}
