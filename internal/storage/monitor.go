package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthChecker is implemented by stores that can probe their backend
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// StartHealthMonitor probes checker once immediately and then every interval,
// recording each outcome on tracker, until ctx is done.
func StartHealthMonitor(ctx context.Context, name string, checker HealthChecker, tracker *HealthTracker, interval time.Duration, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	go func() {
		updateHealth := func() {
			err := checker.CheckHealth(ctx)
			if ctx.Err() != nil {
				return
			}
			tracker.Update("health check", err)
			if err != nil {
				logger.Warnf("%s health check failed: %v", name, err)
			} else {
				logger.Debugf("%s health check passed", name)
			}
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", name)
				return
			}
		}
	}()
}
