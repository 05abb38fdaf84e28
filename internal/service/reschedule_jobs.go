package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/pkg/jobs"
)

// NewRescheduleJobHandler processes post-commit jobs: room and booking caches
// are dropped so availability reads see the new placements.
func NewRescheduleJobHandler(cache *CacheService, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		if job.Type != JobTypeRescheduleCommitted {
			return fmt.Errorf("unsupported job type %q", job.Type)
		}
		payload, ok := job.Payload.(RescheduleCommitted)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		for _, prefix := range []string{cacheKeyRooms, cacheKeyBookings} {
			if err := cache.Invalidate(ctx, prefix+"*"); err != nil {
				return fmt.Errorf("invalidate %s: %w", prefix, err)
			}
		}
		logger.Info("reschedule audit",
			zap.String("job_id", job.ID),
			zap.String("class_id", payload.ClassID),
			zap.String("actor", payload.Actor),
			zap.Strings("lesson_ids", payload.LessonIDs),
			zap.Strings("room_ids", payload.RoomIDs),
			zap.Int("attempt", job.Attempt),
		)
		return nil
	}
}

// DeadLetterToMetrics reports exhausted jobs to metrics.
func DeadLetterToMetrics(metrics *MetricsService, logger *zap.Logger) jobs.DeadLetterFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job jobs.Job, err error) {
		metrics.RecordDeadLetter(job.Type)
		logger.Error("post-commit job dropped", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
	}
}
