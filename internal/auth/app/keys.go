package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/jwtx"
)

// InitSessionKeys generates the Ed25519 keys session tokens are signed with.
//
// Keys live in memory only: every session issued before a restart fails
// signature checks afterwards and the client has to log in again.
func InitSessionKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing session signing keys", "num_keys", cfg.NumKeys)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session keys: %w", err)
	}

	logger.Info("generated session signing keys", "num_keys", km.NumSigners(), "issuer", cfg.Issuer)
	logger.Warn("sessions issued before this start are no longer valid")
	return km, nil
}

// InitSealer loads the master key TOTP secrets are sealed with.
func InitSealer(cfg Config, logger *slog.Logger) (*cryptox.Sealer, error) {
	key, ephemeral, err := cryptox.LoadMasterKey(cfg.MasterKeyPath)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		if cfg.Env == "prod" {
			return nil, fmt.Errorf("MASTER_KEY_PATH or %s must be set in prod", cryptox.MasterKeyEnv)
		}
		logger.Warn("using an ephemeral master key, enrolled authenticators stop working on restart")
	}

	return cryptox.NewSealer(key)
}
