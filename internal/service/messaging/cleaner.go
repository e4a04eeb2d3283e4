package messaging

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultNotificationRetention     = 7 * 24 * time.Hour
	DefaultNotificationCleanInterval = time.Hour
)

// CleanupTask is extra housekeeping run on every cleaner tick.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// StartNotificationCleaner periodically drops read notifications older than
// retention, then runs the extra tasks.
func (s *Service) StartNotificationCleaner(ctx context.Context, interval, retention time.Duration, extra ...CleanupTask) {
	if interval <= 0 {
		interval = DefaultNotificationCleanInterval
	}
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	tasks := append([]CleanupTask{{
		Name: "notifications",
		Run: func(ctx context.Context) (int64, error) {
			return s.CleanupReadNotifications(ctx, time.Now().Add(-retention))
		},
	}}, extra...)
	go s.cleanupLoop(ctx, interval, tasks)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration, tasks []CleanupTask) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCleanup(ctx, tasks)
		}
	}
}

func runCleanup(ctx context.Context, tasks []CleanupTask) {
	for _, task := range tasks {
		n, err := task.Run(ctx)
		if err != nil {
			slog.WarnContext(ctx, "cleanup failed", slog.String("task", task.Name), slog.Any("err", err))
			continue
		}
		if n > 0 {
			slog.InfoContext(ctx, "cleanup removed rows", slog.String("task", task.Name), slog.Int64("rows", n))
		}
	}
}
