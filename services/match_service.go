package services

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/persistence"
)

// MatchObserver counts what happens to queued records.
type MatchObserver interface {
	IncMatchesRecorded()
	IncMatchesDropped()
}

type nopMatchObserver struct{}

func (nopMatchObserver) IncMatchesRecorded() {}
func (nopMatchObserver) IncMatchesDropped()  {}

const saveTimeout = 5 * time.Second

// MatchService persists match records off the room loop. RecordMatch never
// blocks; when the queue is full the record is dropped and counted.
type MatchService struct {
	db       persistence.Database
	queue    chan models.MatchRecord
	observer MatchObserver
	closed   bool
	mutex    sync.RWMutex
	wg       sync.WaitGroup
}

func NewMatchService(db persistence.Database, queueSize int, observer MatchObserver) *MatchService {
	if observer == nil {
		observer = nopMatchObserver{}
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	s := &MatchService{
		db:       db,
		queue:    make(chan models.MatchRecord, queueSize),
		observer: observer,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// RecordMatch implements room.MatchRecorder.
func (s *MatchService) RecordMatch(record models.MatchRecord) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		logger.Log.Warnf("Match record for room %s arrived after shutdown", record.RoomID)
		s.observer.IncMatchesDropped()
		return
	}

	select {
	case s.queue <- record:
	default:
		logger.Log.Warnf("Match queue full, dropping %s record for room %s", record.Reason, record.RoomID)
		s.observer.IncMatchesDropped()
	}
}

// Recent lists the newest records for a room, or for all rooms when roomID is empty.
func (s *MatchService) Recent(ctx context.Context, roomID string, limit int) ([]models.MatchRecord, error) {
	return s.db.ListMatchRecords(ctx, roomID, limit)
}

// Close stops accepting records and waits for the queue to drain.
func (s *MatchService) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mutex.Unlock()

	s.wg.Wait()
}

func (s *MatchService) run() {
	defer s.wg.Done()
	for record := range s.queue {
		s.save(record)
	}
}

func (s *MatchService) save(record models.MatchRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.db.SaveMatchRecord(ctx, &record); err != nil {
		logger.Log.Errorf("Failed to save match record for room %s: %v", record.RoomID, err)
		s.observer.IncMatchesDropped()
		return
	}
	s.observer.IncMatchesRecorded()
	logger.Log.Infof("Saved %s match for room %s (%d players, %d territories, %v)",
		record.Reason, record.RoomID, len(record.Players), len(record.Owners), record.Duration())
}
