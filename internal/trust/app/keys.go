package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
	"github.com/aussiebroadwan/trustcore/pkg/jwtx"
)

// InitKeys builds the access-token key manager and the at-rest cipher.
//
// Signing keys are ephemeral: generated at startup and held in memory, so a
// restart invalidates outstanding access tokens. Refresh tokens and API keys
// live in the database encrypted under the master key, which must therefore
// be stable outside development.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, *cryptox.Cipher, error) {
	logger.Info("initializing ephemeral key manager",
		"algorithm", cfg.Algorithm,
		"num_keys", cfg.NumKeys,
	)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		NumKeys:   cfg.NumKeys,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	logger.Info("signing keys generated",
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)

	material, generated, err := cryptox.LoadMasterKey(cfg.MasterKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load master key: %w", err)
	}
	if generated {
		if cfg.Env != "dev" {
			return nil, nil, fmt.Errorf("no master key configured: set TRUST_MASTER_KEY or TRUST_MASTER_KEY_PATH")
		}
		logger.Warn("no master key configured; using a random one, stored secrets will not survive a restart")
	}

	cipher, err := cryptox.NewCipher(material)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return keyManager, cipher, nil
}
