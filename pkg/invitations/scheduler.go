package invitations

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultCleanupSchedule runs the expired invitation sweep hourly
const DefaultCleanupSchedule = "0 * * * *"

// cleanupTimeout bounds a single sweep
const cleanupTimeout = time.Minute

// ScheduleCleanup registers CleanupExpired on c using a standard five field
// cron expression. The caller starts and stops c.
func ScheduleCleanup(c *cron.Cron, svc *Service, schedule string, log *logrus.Logger) (cron.EntryID, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if log == nil {
		log = logrus.New()
	}
	return c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if _, err := svc.CleanupExpired(ctx); err != nil {
			log.WithError(err).Error("expired invitation cleanup failed")
		}
	})
}
