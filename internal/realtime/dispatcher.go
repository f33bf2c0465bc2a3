package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Dispatcher routes events to every live session of a user. Delivery is fire
// and forget: a session that cannot take the payload is logged and skipped,
// and never affects the other recipients or the triggering operation.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher constructs a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if registry == nil {
		panic("realtime: registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Notify delivers the event to each of the user's sessions independently.
// A user with no live sessions is a silent no-op.
func (d *Dispatcher) Notify(ctx context.Context, userID string, event any) {
	sessions := d.registry.Lookup(userID)
	if len(sessions) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("marshal event", "user_id", userID, "error", err)
		return
	}

	for _, session := range sessions {
		if err := session.TrySend(payload); err != nil {
			// The session cleans itself up through its own close path.
			d.logger.Warn("drop event for session", "user_id", userID, "error", err)
		}
	}
}
