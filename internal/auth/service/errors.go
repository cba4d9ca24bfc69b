package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrAttemptsExceeded  = errors.New("challenge attempts exceeded")
	ErrInvalidSecret     = errors.New("invalid secret")
	ErrAlreadyVerified   = errors.New("already verified")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrStepUpRequired    = errors.New("step-up required")
	ErrConfiguration     = errors.New("configuration error")
	ErrInvalidSession    = errors.New("invalid session")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrSessionNotFound   = errors.New("session not found")
	ErrFactorNotFound    = errors.New("factor not found")
	ErrInvalidPassword   = errors.New("password does not meet policy")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidTOTPOption = errors.New("invalid totp option")

	// ErrTimeout is transient: the caller's deadline ran out, nothing about
	// the credential itself was decided.
	ErrTimeout = errors.New("operation timed out")
)

// StepUpRequiredError carries what the caller can do to satisfy the
// requirement. It matches ErrStepUpRequired with errors.Is.
type StepUpRequiredError struct {
	Methods []domain.StepUpMethod
	MaxAge  time.Duration
}

func (e *StepUpRequiredError) Error() string {
	methods := make([]string, len(e.Methods))
	for i, m := range e.Methods {
		methods[i] = string(m)
	}
	return fmt.Sprintf("step-up required (methods: %s)", strings.Join(methods, ","))
}

func (e *StepUpRequiredError) Is(target error) bool { return target == ErrStepUpRequired }

// storeErr wraps a store failure, tagging deadline and cancellation as
// ErrTimeout.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// now returns the injected clock (or the wall clock) at the millisecond
// precision the store persists.
func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return clock().UTC().Truncate(time.Millisecond)
}

func randReader(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
