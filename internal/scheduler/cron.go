package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Minute

type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

type NotificationCleaner interface {
	CleanupExpiredNotifications(ctx context.Context) error
}

// StartMaintenanceJobs schedules comment count reconciliation on schedule and
// expired notification cleanup every hour. Stop the returned cron on shutdown.
func StartMaintenanceJobs(reconciler Reconciler, cleaner NotificationCleaner, schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	// Comment count reconciliation
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := reconciler.Run(ctx); err != nil {
			logrus.WithError(err).Error("CommentCountReconciler failed")
		}
	}); err != nil {
		return nil, err
	}

	// Expired notifications
	if _, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := cleaner.CleanupExpiredNotifications(ctx); err != nil {
			logrus.WithError(err).Error("CleanupExpiredNotifications failed")
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	logrus.WithField("reconcileSchedule", schedule).Info("Maintenance cron jobs started")
	return c, nil
}
