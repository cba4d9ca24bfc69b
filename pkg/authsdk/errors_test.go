package authsdk

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	t.Run("api error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ErrChallengeExpired.WriteError(rec)

		err := parseErrorResponse(rec.Result(), rec.Body.Bytes())
		require.ErrorIs(t, err, ErrChallengeExpired)
		require.NotErrorIs(t, err, ErrChallengeNotFound)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusGone, apiErr.StatusCode)
	})

	t.Run("step-up required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		(&StepUpRequiredError{Methods: []string{"password", "totp"}, MaxAge: 300}).WriteError(rec)
		require.Equal(t, http.StatusForbidden, rec.Code)

		err := parseErrorResponse(rec.Result(), rec.Body.Bytes())
		var stepUp *StepUpRequiredError
		require.True(t, errors.As(err, &stepUp))
		require.Equal(t, []string{"password", "totp"}, stepUp.Methods)
		require.Equal(t, 300, stepUp.MaxAge)
	})

	t.Run("non json body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusBadGateway}
		err := parseErrorResponse(resp, []byte("<html>bad gateway</html>"))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, ErrorCodeServerError, apiErr.Code)
		require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, parseErrorResponse(&http.Response{StatusCode: http.StatusOK}, nil))
	})
}

func TestWithDescription(t *testing.T) {
	t.Parallel()

	custom := ErrInvalidRequest.WithDescription("email is required")
	require.Equal(t, "email is required", custom.Description)
	require.Equal(t, "the request is malformed or missing required parameters", ErrInvalidRequest.Description)
	require.ErrorIs(t, custom, ErrInvalidRequest)
}
