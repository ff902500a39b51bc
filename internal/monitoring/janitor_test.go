package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

type fakePurger struct {
	purged int64
	err    error
	calls  int
}

func (f *fakePurger) PurgeExpiredContext(context.Context) (int64, error) {
	f.calls++
	return f.purged, f.err
}

type fakeQueue struct {
	entries []*storage.EscalationEntry
	err     error
}

func (f *fakeQueue) ListEscalations(_ context.Context, status storage.EscalationStatus) ([]*storage.EscalationEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*storage.EscalationEntry
	for _, e := range f.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

var janitorNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func pendingEntry(id string, age time.Duration) *storage.EscalationEntry {
	return &storage.EscalationEntry{
		ID:             id,
		ConversationID: "conv-" + id,
		Priority:       storage.PriorityMedium,
		Status:         storage.EscalationPending,
		CreatedAt:      janitorNow.Add(-age),
	}
}

func TestJanitor_Sweep_FlagsStaleOnce(t *testing.T) {
	ctx := context.Background()
	rec, repos := newTestRecorder(t, nil)

	purger := &fakePurger{purged: 3}
	queue := &fakeQueue{entries: []*storage.EscalationEntry{
		pendingEntry("old", 40*time.Minute),
		pendingEntry("fresh", 2*time.Minute),
	}}

	j := NewJanitor(observability.NopLogger(), purger, queue, rec, JanitorConfig{StaleAfter: 15 * time.Minute}).
		WithClock(func() time.Time { return janitorNow })

	result, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Purged)
	assert.Equal(t, 2, result.Pending)
	assert.Equal(t, 40*time.Minute, result.OldestWait)
	require.Len(t, result.NewlyStale, 1)
	assert.Equal(t, "old", result.NewlyStale[0].ID)

	result, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.NewlyStale)
	assert.Equal(t, 2, purger.calls)

	n, err := repos.Analytics.CountEvents(ctx, EventEscalationStale)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJanitor_Sweep_ForgetsEntriesThatLeftTheQueue(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{entries: []*storage.EscalationEntry{pendingEntry("esc-1", time.Hour)}}
	j := NewJanitor(observability.NopLogger(), &fakePurger{}, queue, nil, JanitorConfig{}).
		WithClock(func() time.Time { return janitorNow })

	result, err := j.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, result.NewlyStale, 1)

	queue.entries[0].Status = storage.EscalationAssigned
	result, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Pending)

	queue.entries[0].Status = storage.EscalationPending
	result, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, result.NewlyStale, 1)
}

func TestJanitor_Sweep_PurgeFailureStillChecksQueue(t *testing.T) {
	purgeErr := errors.New("database is locked")
	queue := &fakeQueue{entries: []*storage.EscalationEntry{pendingEntry("esc-1", time.Hour)}}
	j := NewJanitor(observability.NopLogger(), &fakePurger{err: purgeErr}, queue, nil, JanitorConfig{}).
		WithClock(func() time.Time { return janitorNow })

	result, err := j.Sweep(context.Background())
	require.ErrorIs(t, err, purgeErr)
	assert.Equal(t, 1, result.Pending)
	assert.Len(t, result.NewlyStale, 1)
}

func TestJanitor_Run_StopsOnCancel(t *testing.T) {
	purger := &fakePurger{}
	j := NewJanitor(observability.NopLogger(), purger, &fakeQueue{err: errors.New("offline")}, nil, JanitorConfig{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
