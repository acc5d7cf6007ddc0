package markdown

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/md-hub/internal/content"
)

func TestPregeneratorRunsQueuedJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int64
	)
	p := NewPregenerator(func(_ context.Context, id int64) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		return nil
	}, 2, 8, nil)

	p.Start(context.Background())
	assert.True(t, p.Enqueue(1))
	assert.True(t, p.Enqueue(2))
	p.Stop()

	assert.ElementsMatch(t, []int64{1, 2}, seen)
	assert.False(t, p.Enqueue(3), "stopped queue rejects work")
}

func TestPregeneratorRejectsWhenFull(t *testing.T) {
	p := NewPregenerator(func(context.Context, int64) error { return nil }, 1, 1, nil)
	assert.True(t, p.Enqueue(1))
	assert.True(t, p.Enqueue(1), "duplicate of a pending job is absorbed")
	assert.False(t, p.Enqueue(2))
	p.Start(context.Background())
	p.Stop()
}

func TestManagerUsesQueueForPreGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	queue := NewPregenerator(f.mgr.PreGenerate, 1, 4, nil)
	f.mgr.UseQueue(queue)
	f.svc.Subscribe(f.mgr.HandleChange)
	queue.Start(ctx)

	doc := f.create(t, content.Document{Path: "/queued", Title: "Queued"})
	queue.Stop()

	res, err := f.mgr.GetOrRender(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.EqualValues(t, 1, f.mgr.Stats(ctx).PreGenerated)
}
