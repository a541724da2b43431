package statestore

import (
	"go.uber.org/zap"
)

// Config selects and configures the store backend.
type Config struct {
	Remote RemoteConfig `koanf:"remote"`
}

// New creates a Store based on the configuration.
//
// Backend selection happens exactly once, here: when remote credentials are
// configured the networked store is used, otherwise the in-memory backend.
// Components never toggle behavior per call; they hold whichever Store the
// process wired at startup.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Remote.URL == "" || cfg.Remote.Token == "" {
		logger.Info("state store credentials not configured, using in-memory backend")
		return NewMemoryStore(), nil
	}

	remote, err := NewRemoteStore(cfg.Remote, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using remote state store", zap.String("url", cfg.Remote.URL))
	return remote, nil
}
