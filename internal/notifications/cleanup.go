// internal/notifications/cleanup.go

package notifications

import (
	"context"
	"log"
	"time"
)

// Cleaner prunes old notifications on a fixed interval
type Cleaner struct {
	service   Service
	retention time.Duration
	interval  time.Duration
}

// NewCleaner creates a retention job. Notifications older than retention are
// deleted each run.
func NewCleaner(service Service, retention time.Duration) *Cleaner {
	return &Cleaner{
		service:   service,
		retention: retention,
		interval:  time.Hour,
	}
}

// Run blocks until ctx is cancelled, pruning once at startup and then on
// every interval tick
func (c *Cleaner) Run(ctx context.Context) {
	c.prune(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.prune(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cleaner) prune(ctx context.Context) {
	deleted, err := c.service.Prune(ctx, c.retention)
	if err != nil {
		log.Printf("notifications: cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("notifications: pruned %d expired notifications", deleted)
	}
}
