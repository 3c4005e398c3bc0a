package persistence

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"github.com/wfunc/territory/models"
)

// memoryRetention bounds the whole in-process history; each room additionally
// keeps at most MaxListLimit records, the most a listing can return.
const memoryRetention = 50 * MaxListLimit

// Memory keeps match history in process. It is the default driver. Oldest
// records are dropped first.
type Memory struct {
	records []models.MatchRecord
	mutex   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveMatchRecord(_ context.Context, record *models.MatchRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.records = append(m.records, *record)

	if lo.CountBy(m.records, func(r models.MatchRecord) bool { return r.RoomID == record.RoomID }) > MaxListLimit {
		_, oldest, _ := lo.FindIndexOf(m.records, func(r models.MatchRecord) bool { return r.RoomID == record.RoomID })
		m.records = append(m.records[:oldest], m.records[oldest+1:]...)
	}
	if len(m.records) > memoryRetention {
		m.records = lo.Drop(m.records, len(m.records)-memoryRetention)
	}
	return nil
}

func (m *Memory) ListMatchRecords(_ context.Context, roomID string, limit int) ([]models.MatchRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	matching := lo.Filter(m.records, func(r models.MatchRecord, _ int) bool {
		return roomID == "" || r.RoomID == roomID
	})
	matching = lo.Reverse(matching)
	return lo.Subset(matching, 0, uint(normalizeLimit(limit))), nil
}

func (m *Memory) Close() error {
	return nil
}
