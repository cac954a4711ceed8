package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SyncAdapter re-announces local membership every interval until ctx is done,
// so this node's entries in the shared store do not expire.
func (t *Tracker) SyncAdapter(ctx context.Context, every time.Duration) {
	if t.adapter == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.adapter.Refresh(ctx, t.Snapshot()); err != nil {
				log.Error().Err(err).Str("module", "app.presence").Msg("membership refresh")
			}
		}
	}
}

// HasAdapter reports whether counts include other processes.
func (t *Tracker) HasAdapter() bool { return t.adapter != nil }
