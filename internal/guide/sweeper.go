package guide

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/skill-worlds/internal/shared"
)

// DefaultSweepInterval is how often idle flows are looked for.
const DefaultSweepInterval = 5 * time.Minute

// TokenCleaner purges revocations whose tokens have expired anyway.
type TokenCleaner interface {
	CleanupRevokedTokens(ctx context.Context, now time.Time) (int64, error)
}

// SweeperConfig controls StartSweeper.
type SweeperConfig struct {
	TTL      time.Duration
	Interval time.Duration
	Tokens   TokenCleaner
	Retry    shared.RetryPolicy
	// OnEvict is called for every flow dropped for inactivity.
	OnEvict func(userID, sessionID string)
}

// StartSweeper runs a background goroutine that periodically drops flows
// idle for longer than the TTL and purges expired token revocations.
func StartSweeper(ctx context.Context, reg *Registry, cfg SweeperConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Flow sweeper started", "interval", interval, "ttl", cfg.TTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, reg, cfg, reg.deps.Now())
			case <-ctx.Done():
				slog.Info("Flow sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, reg *Registry, cfg SweeperConfig, now time.Time) {
	if cfg.TTL > 0 {
		evicted := reg.evictIdle(now.Add(-cfg.TTL))
		for _, sess := range evicted {
			slog.Info("Flow sweeper evicted idle flow", "user_id", sess.UserID, "session_id", sess.SessionID)
			if cfg.OnEvict != nil {
				cfg.OnEvict(sess.UserID, sess.SessionID)
			}
		}
		if len(evicted) > 0 {
			slog.Info("Flow sweeper cleanup completed", "cleaned", len(evicted))
		}
	}

	if cfg.Tokens == nil {
		return
	}
	var deleted int64
	err := shared.RetryOnConflict(ctx, cfg.Retry, "cleanup revoked tokens", func(ctx context.Context) error {
		var err error
		deleted, err = cfg.Tokens.CleanupRevokedTokens(ctx, now)
		return err
	})
	if err != nil {
		slog.Error("Flow sweeper failed to clean up revoked tokens", "error", err)
	} else if deleted > 0 {
		slog.Info("Flow sweeper cleaned up revoked tokens", "count", deleted)
	}
}
