package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
)

const (
	DefaultOTPTTL         = 5 * time.Minute
	DefaultOTPMaxAttempts = 5
	otpDigits             = 6
)

// OTPRequest asks for a one-time code to be sent to Identifier over Method.
// Zero TTL and MaxAttempts take the defaults.
type OTPRequest struct {
	Identifier  string
	Method      delivery.Channel
	SubjectID   string
	TTL         time.Duration
	MaxAttempts int
}

// OTPChallenge is what the caller gets back; the code itself only travels
// through the delivery channel.
type OTPChallenge struct {
	ChallengeID string
	ExpiresAt   time.Time
	MaxAttempts int
}

// OTPService sends and checks 6-digit one-time codes.
type OTPService struct {
	Challenges *ChallengeService
	Delivery   *delivery.Router
	Logger     *slog.Logger
}

// RequestOTP creates an otp_verification challenge and delivers its code.
// Pending codes for the identifier are invalidated first, so at most one
// code is live. If delivery fails the challenge is expired straight away.
func (s *OTPService) RequestOTP(ctx context.Context, req OTPRequest) (OTPChallenge, error) {
	if s.Delivery == nil {
		return OTPChallenge{}, fmt.Errorf("%w: no delivery router", ErrConfiguration)
	}
	sender, err := s.Delivery.Sender(req.Method)
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultOTPMaxAttempts
	}

	code, err := cryptox.RandomDigits(randReader(s.Challenges.Rand), otpDigits)
	if err != nil {
		return OTPChallenge{}, err
	}

	n, err := s.Challenges.Invalidate(ctx, req.Identifier, domain.ChallengeOTPVerification)
	if err != nil {
		return OTPChallenge{}, err
	}
	if n > 0 {
		s.logger().DebugContext(ctx, "invalidated pending otp challenges", "count", n)
	}

	c, _, err := s.Challenges.Create(ctx, CreateChallengeParams{
		Type:        domain.ChallengeOTPVerification,
		Identifier:  req.Identifier,
		SubjectID:   req.SubjectID,
		TTL:         ttl,
		MaxAttempts: maxAttempts,
		Secret:      code,
	})
	if err != nil {
		return OTPChallenge{}, err
	}

	if err := sender.SendCode(ctx, req.Identifier, code, ttl); err != nil {
		if expErr := s.Challenges.Expire(ctx, c.ID); expErr != nil {
			s.logger().ErrorContext(ctx, "failed to expire undelivered otp challenge",
				"challenge_id", c.ID, "error", expErr)
		}
		return OTPChallenge{}, fmt.Errorf("failed to deliver otp: %w", err)
	}

	return OTPChallenge{ChallengeID: c.ID, ExpiresAt: c.ExpiresAt, MaxAttempts: c.MaxAttempts}, nil
}

// ResendOTP sends a new code for the identifier. Older codes stop working
// even if they have not expired.
func (s *OTPService) ResendOTP(ctx context.Context, req OTPRequest) (OTPChallenge, error) {
	return s.RequestOTP(ctx, req)
}

// VerifyOTP checks code against the challenge.
func (s *OTPService) VerifyOTP(ctx context.Context, challengeID, code string) (domain.Challenge, error) {
	return s.Challenges.Verify(ctx, challengeID, domain.ChallengeOTPVerification, code)
}

func (s *OTPService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
