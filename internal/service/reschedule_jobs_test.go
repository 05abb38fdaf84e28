package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/pkg/jobs"
)

func TestRescheduleJobHandlerInvalidatesCaches(t *testing.T) {
	repo := &cacheRepoStub{}
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	handler := NewRescheduleJobHandler(cache, zap.NewNop())

	err := handler(context.Background(), jobs.Job{ID: "j1", Type: JobTypeRescheduleCommitted, Payload: RescheduleCommitted{ClassID: "c1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rooms:*", "bookings:*"}, repo.patterns)
}

func TestRescheduleJobHandlerFailures(t *testing.T) {
	repo := &cacheRepoStub{err: errors.New("redis down")}
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	handler := NewRescheduleJobHandler(cache, nil)

	err := handler(context.Background(), jobs.Job{ID: "j1", Type: JobTypeRescheduleCommitted, Payload: RescheduleCommitted{}})
	require.Error(t, err)

	err = handler(context.Background(), jobs.Job{ID: "j2", Type: "other"})
	require.Error(t, err)

	err = handler(context.Background(), jobs.Job{ID: "j3", Type: JobTypeRescheduleCommitted, Payload: "oops"})
	require.Error(t, err)
}

func TestDeadLetterToMetrics(t *testing.T) {
	metrics := NewMetricsService()
	dead := DeadLetterToMetrics(metrics, nil)
	dead(jobs.Job{ID: "j1", Type: JobTypeRescheduleCommitted}, errors.New("boom"))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != "jobs_dead_letter_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, total)
}
