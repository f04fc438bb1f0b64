// Package tribunal maps tribunal names to their portal adapters.
package tribunal

import (
	"fmt"

	"go.uber.org/zap"

	"courtsync/internal/portal"
	"courtsync/internal/tribunal/stf"
	"courtsync/internal/tribunal/stj"
)

// New returns the adapter for t.
func New(t portal.Tribunal, settings portal.Settings, logger *zap.Logger) (portal.Adapter, error) {
	switch t {
	case portal.TribunalSTF:
		return stf.New(settings, logger), nil
	case portal.TribunalSTJ:
		return stj.New(settings, logger), nil
	}
	return nil, fmt.Errorf("no adapter for tribunal %q", t)
}
