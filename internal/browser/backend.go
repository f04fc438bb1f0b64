package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"courtsync/internal/portal"
)

// Backend is a portal.Driver with a browser lifecycle.
type Backend interface {
	portal.Driver
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// New returns the driver selected by cfg.Backend. It does not start it.
func New(cfg Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", BackendRod:
		return NewSessionManager(cfg, logger), nil
	case BackendChromedp:
		return NewCDPDriver(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown browser backend %q (want %s or %s)", cfg.Backend, BackendRod, BackendChromedp)
}
