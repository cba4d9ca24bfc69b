package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aussiebroadwan/vouch/pkg/cryptox"
)

// KeyManager owns the in-memory signing keys for an instance. Keys are never
// persisted, so a restart invalidates every outstanding session token.
type KeyManager struct {
	keys     *KeySet
	verifier *EdDSAVerifier

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Issuer is stamped into (and required on) every token.
	Issuer string

	// NumKeys is how many signing keys to generate. Defaults to 3, capped at 10.
	NumKeys int

	// Leeway tolerates clock skew when checking exp/nbf.
	Leeway time.Duration
}

// NewEphemeralKeyManager generates opts.NumKeys Ed25519 signers.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 3
	}
	numKeys = min(numKeys, 10)

	km := &KeyManager{keys: NewKeySet()}
	km.verifier = NewVerifierEdDSA(km.keys, opts.Issuer, opts.Leeway)

	for i := range numKeys {
		signer, err := newRandomSigner()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	return km, nil
}

func newRandomSigner() (Signer, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key ID: %w", err)
	}
	return GenerateSignerEdDSA("vouch-" + token)
}

// Verifier returns the verifier backed by every key this manager knows.
func (km *KeyManager) Verifier() Verifier { return km.verifier }

// IsReady returns true if the KeyManager has signing keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.NumSigners() > 0 && km.keys.IsReady()
}

// GetSigner returns a randomly selected active signer.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner makes signer available for signing and verification.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("signer cannot be nil")
	}
	if err := km.keys.AddSigner(signer); err != nil {
		return fmt.Errorf("failed to add signer to keyset: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.signers = append(km.signers, signer)
	return nil
}

// RetireSignerByKid stops signing with kid. The public key stays in the
// KeySet so tokens it already minted keep verifying.
func (km *KeyManager) RetireSignerByKid(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return fmt.Errorf("cannot retire the last signing key")
	}

	kept := make([]Signer, 0, len(km.signers)-1)
	for _, s := range km.signers {
		if s.KID() != kid {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(km.signers) {
		return fmt.Errorf("signer with kid %q not found", kid)
	}

	km.signers = kept
	return nil
}

// Rotate adds a fresh signer and retires the oldest active one.
func (km *KeyManager) Rotate() (string, error) {
	signer, err := newRandomSigner()
	if err != nil {
		return "", err
	}
	if err := km.AddSigner(signer); err != nil {
		return "", err
	}

	km.mu.RLock()
	oldest := km.signers[0].KID()
	km.mu.RUnlock()

	if err := km.RetireSignerByKid(oldest); err != nil {
		return "", err
	}
	return signer.KID(), nil
}
