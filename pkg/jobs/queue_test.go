package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "1"})
	assert.ErrorIs(t, err, ErrQueueNotRunning)
}

func TestQueueProcessesJobs(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	q := NewQueue("test", func(context.Context, Job) error {
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.NoError(t, q.Enqueue(Job{ID: "2"}))
	waitTimeout(t, &wg)

	assert.Eventually(t, func() bool { return q.Stats().Processed == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesThenDeadLetters(t *testing.T) {
	dead := make(chan Job, 1)
	q := NewQueue("test", func(context.Context, Job) error {
		return errors.New("always")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		DeadLetter: func(j Job, _ error) { dead <- j },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "x"}))

	select {
	case j := <-dead:
		assert.Equal(t, "x", j.ID)
		assert.Equal(t, 3, j.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job never reached dead letter")
	}
	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(1), stats.DeadLetter)
}

func TestQueueStopWaitsForPendingRetry(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failed := make(chan struct{}, 1)
	q := NewQueue("test", func(context.Context, Job) error {
		failed <- struct{}{}
		return errors.New("once")
	}, QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Hour,
		Logger:     zap.New(core),
	})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "r", Type: "reschedule.committed"}))
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	q.Stop()

	dropped := logs.FilterMessage("queue stopped, retry dropped").All()
	require.Len(t, dropped, 1, "Stop returns only after the retry goroutine exits")
	assert.Equal(t, "r", dropped[0].ContextMap()["job_id"])
	assert.Equal(t, int64(1), q.Stats().Retried)
	assert.Zero(t, q.Stats().Processed)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}
