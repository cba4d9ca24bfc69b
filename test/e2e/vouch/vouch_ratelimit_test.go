package vouch_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/vouch/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitLogin verifies the strict limit on POST /v1/sessions with the
// default 5 requests per minute.
func TestRateLimitLogin(t *testing.T) {
	c := startVouch(t, map[string]string{"RATELIMIT_STRICT": "5"})
	ctx := t.Context()

	for i := range 5 {
		_, err := c.client.Login(ctx, "dave@example.com", "wrong password")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials, "request %d", i+1)
	}

	_, err := c.client.Login(ctx, "dave@example.com", "wrong password")
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

// TestRateLimitOTPVerify verifies the strict limit on code guessing.
func TestRateLimitOTPVerify(t *testing.T) {
	c := startVouch(t, map[string]string{"RATELIMIT_STRICT": "3"})
	ctx := t.Context()

	for range 3 {
		_, err := c.client.VerifyOTP(ctx, "missing", "000000")
		require.ErrorIs(t, err, authsdk.ErrChallengeNotFound)
	}

	_, err := c.client.VerifyOTP(ctx, "missing", "000000")
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, authsdk.ErrorCodeRateLimitExceeded, apiErr.Code)
}
