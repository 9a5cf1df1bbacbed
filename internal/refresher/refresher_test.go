package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu      sync.Mutex
	entries []models.QueueEntry
	err     error
	calls   int
}

func (f *fakeLister) ListActive(ctx context.Context, serviceType string) ([]models.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeLister) set(entries []models.QueueEntry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
	f.err = err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func entry(id, serviceType string, checkIn time.Time) models.QueueEntry {
	return models.QueueEntry{
		EntryID:     id,
		ServiceType: serviceType,
		Status:      models.StatusEsperando,
		CheckInTime: checkIn,
	}
}

func TestRefreshGroupsEntriesIntoLanes(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	lister.set([]models.QueueEntry{
		entry("a", models.ServicePediatrics, base),
		entry("b", models.ServiceFamilyMedicine, base.Add(time.Minute)),
		entry("c", models.ServicePediatrics, base.Add(2*time.Minute)),
	}, nil)

	r := New(lister, time.Minute, Options{Logger: zerolog.Nop()})

	_, loaded := r.View()
	assert.False(t, loaded, "view must not report loaded before the first read")

	require.NoError(t, r.Refresh(context.Background()))

	view, loaded := r.View()
	require.True(t, loaded)
	assert.False(t, view.Stale)
	require.Len(t, view.Lanes, 2)

	// Lanes sort by name; within a lane the store order (oldest first) holds.
	assert.Equal(t, models.ServiceFamilyMedicine, view.Lanes[0].ServiceType)
	assert.Equal(t, models.ServicePediatrics, view.Lanes[1].ServiceType)
	require.Len(t, view.Lanes[1].Entries, 2)
	assert.Equal(t, "a", view.Lanes[1].Entries[0].EntryID)
	assert.Equal(t, "c", view.Lanes[1].Entries[1].EntryID)
}

func TestFailedRefreshKeepsLastKnownView(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	lister.set([]models.QueueEntry{entry("a", models.ServiceNursing, base)}, nil)

	r := New(lister, time.Minute, Options{Logger: zerolog.Nop()})
	require.NoError(t, r.Refresh(context.Background()))

	lister.set(nil, errors.New("connection refused"))
	require.Error(t, r.Refresh(context.Background()))

	view, loaded := r.View()
	require.True(t, loaded, "an outage must not drop the last known view")
	assert.True(t, view.Stale, "a view that failed to refresh must be flagged stale")
	require.Len(t, view.Lanes, 1)
	assert.Equal(t, "a", view.Lanes[0].Entries[0].EntryID)

	// Recovery clears the flag.
	lister.set([]models.QueueEntry{entry("a", models.ServiceNursing, base)}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	view, _ = r.View()
	assert.False(t, view.Stale)
}

func TestForcedRefreshShowsOwnWrite(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	waiting := entry("a", models.ServiceFamilyMedicine, base)
	lister.set([]models.QueueEntry{waiting}, nil)

	r := New(lister, time.Hour, Options{Logger: zerolog.Nop()})
	require.NoError(t, r.Refresh(context.Background()))

	// The entry moves to consultation; the actor forces a refresh instead
	// of waiting an hour for the next tick.
	attended := waiting
	attended.Status = models.StatusEnConsulta
	lister.set([]models.QueueEntry{attended}, nil)
	require.NoError(t, r.Refresh(context.Background()))

	view, _ := r.View()
	require.Len(t, view.Lanes, 1)
	assert.Equal(t, models.StatusEnConsulta, view.Lanes[0].Entries[0].Status)
}

func TestRunPollsOnInterval(t *testing.T) {
	lister := &fakeLister{}
	r := New(lister, 10*time.Millisecond, Options{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, lister.callCount(), 3, "expected the initial read plus ticks")
}
