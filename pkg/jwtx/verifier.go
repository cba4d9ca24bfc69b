package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a session token and gives back its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
	VerifyAt(token string, now time.Time) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// EdDSAVerifier validates tokens signed by any key in its KeySet.
type EdDSAVerifier struct {
	keys   *KeySet
	issuer string
	leeway time.Duration
}

// NewVerifierEdDSA creates a verifier. An empty issuer skips the iss check.
func NewVerifierEdDSA(keys *KeySet, issuer string, leeway time.Duration) *EdDSAVerifier {
	return &EdDSAVerifier{keys: keys, issuer: issuer, leeway: leeway}
}

func (v *EdDSAVerifier) Verify(token string) (Claims, error) {
	return v.VerifyAt(token, time.Now())
}

// VerifyAt checks signature, issuer and expiry as of now.
func (v *EdDSAVerifier) VerifyAt(tokenStr string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		// Time checks happen below against the caller's clock.
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKID):
			return Claims{}, ErrUnknownKID
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryAt(now, v.leeway); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" || claims.SID == "" {
		return Claims{}, ErrInvalidClaim
	}

	return claims, nil
}
