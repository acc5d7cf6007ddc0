package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/md-hub/internal/markdown"
)

type countingWarmer struct {
	calls atomic.Int64
	limit atomic.Int64
	err   error
}

func (w *countingWarmer) Warm(_ context.Context, limit int) (markdown.WarmReport, error) {
	w.calls.Add(1)
	w.limit.Store(int64(limit))
	return markdown.WarmReport{Scanned: limit, Generated: limit}, w.err
}

func TestNewWarmJobValidates(t *testing.T) {
	w := &countingWarmer{}
	_, err := NewWarmJob("", 10, w, nil)
	assert.Error(t, err)
	_, err = NewWarmJob("not a cron", 10, w, nil)
	assert.Error(t, err)
	_, err = NewWarmJob("@hourly", 0, w, nil)
	assert.Error(t, err)
	_, err = NewWarmJob("@hourly", 10, nil, nil)
	assert.Error(t, err)

	job, err := NewWarmJob("*/5 * * * *", 10, w, nil)
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestRunOncePassesLimit(t *testing.T) {
	w := &countingWarmer{}
	job, err := NewWarmJob("@hourly", 7, w, nil)
	require.NoError(t, err)

	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, report.Generated)
	assert.EqualValues(t, 7, w.limit.Load())

	w.err = errors.New("store offline")
	_, err = job.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestScheduledRun(t *testing.T) {
	w := &countingWarmer{}
	job, err := NewWarmJob("@every 1s", 3, w, nil)
	require.NoError(t, err)

	job.Start(context.Background())
	assert.Eventually(t, func() bool { return w.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, job.Stop(ctx))
}
