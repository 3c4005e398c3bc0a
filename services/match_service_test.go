package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/persistence"
)

type countingObserver struct {
	recorded atomic.Int32
	dropped  atomic.Int32
}

func (o *countingObserver) IncMatchesRecorded() { o.recorded.Add(1) }
func (o *countingObserver) IncMatchesDropped()  { o.dropped.Add(1) }

// blockingDB holds every save until release is closed.
type blockingDB struct {
	*persistence.Memory
	release chan struct{}
	once    sync.Once
}

func (b *blockingDB) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	<-b.release
	return b.Memory.SaveMatchRecord(ctx, record)
}

func (b *blockingDB) unblock() {
	b.once.Do(func() { close(b.release) })
}

type failingDB struct {
	*persistence.Memory
}

func (failingDB) SaveMatchRecord(context.Context, *models.MatchRecord) error {
	return errors.New("connection refused")
}

func record(room, reason string) models.MatchRecord {
	now := time.Now()
	return models.MatchRecord{
		RoomID:    room,
		Players:   []string{"alice"},
		Owners:    map[string]string{"t1": "alice"},
		Reason:    reason,
		StartedAt: now.Add(-time.Second),
		EndedAt:   now,
	}
}

func TestMatchService_PersistsInOrder(t *testing.T) {
	db := persistence.NewMemory()
	obs := &countingObserver{}
	svc := NewMatchService(db, 8, obs)

	svc.RecordMatch(record("r1", models.MatchReset))
	svc.RecordMatch(record("r1", models.MatchAbandoned))
	svc.Close()

	records, err := svc.Recent(context.Background(), "r1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, models.MatchAbandoned, records[0].Reason)
	require.EqualValues(t, 2, obs.recorded.Load())
}

func TestMatchService_DropsWhenFull(t *testing.T) {
	db := &blockingDB{Memory: persistence.NewMemory(), release: make(chan struct{})}
	defer db.unblock()
	obs := &countingObserver{}
	svc := NewMatchService(db, 1, obs)

	// the worker takes the first record and blocks; the second fills the queue
	svc.RecordMatch(record("r1", models.MatchReset))
	require.Eventually(t, func() bool { return len(svc.queue) == 0 }, time.Second, 5*time.Millisecond)
	svc.RecordMatch(record("r1", models.MatchReset))
	svc.RecordMatch(record("r1", models.MatchReset))

	require.EqualValues(t, 1, obs.dropped.Load())

	db.unblock()
	svc.Close()
	require.EqualValues(t, 2, obs.recorded.Load())
}

func TestMatchService_StorageErrorIsCounted(t *testing.T) {
	obs := &countingObserver{}
	svc := NewMatchService(failingDB{persistence.NewMemory()}, 4, obs)

	svc.RecordMatch(record("r1", models.MatchAbandoned))
	svc.Close()

	require.EqualValues(t, 1, obs.dropped.Load())
	require.EqualValues(t, 0, obs.recorded.Load())
}

func TestMatchService_RecordAfterClose(t *testing.T) {
	obs := &countingObserver{}
	svc := NewMatchService(persistence.NewMemory(), 4, obs)
	svc.Close()
	svc.Close()

	require.NotPanics(t, func() { svc.RecordMatch(record("r1", models.MatchReset)) })
	require.EqualValues(t, 1, obs.dropped.Load())
}
