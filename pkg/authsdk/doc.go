/*
Package authsdk is the client SDK for the vouch authentication service, and
holds the request, response and error types the server writes.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (register, login, one-time codes,
    email links, password reset, health)
  - Session: operations on behalf of a logged-in account

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, "alice@example.com", password)
	if err != nil {
		return err
	}

	sessions, err := session.ListSessions(ctx)

# Step-up

Sensitive operations (enrolling or disabling an authenticator, regenerating
backup codes, signing out other sessions) need a recent step-up on the
current session. Without one they fail with *StepUpRequiredError, which lists
the methods the account can use:

	_, err := session.EnrollTOTP(ctx, authsdk.TOTPEnrollRequest{})
	var stepUp *authsdk.StepUpRequiredError
	if errors.As(err, &stepUp) {
		if _, err := session.StepUp(ctx, "password", password); err != nil {
			return err
		}
		enrollment, err = session.EnrollTOTP(ctx, authsdk.TOTPEnrollRequest{})
	}

# Errors

Every other failure is an *APIError. Compare with the predefined values:

	if errors.Is(err, authsdk.ErrChallengeExpired) {
		// ask for a new code
	}
*/
package authsdk
