package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/territory/models"
)

// Database stores finished rounds.
type Database interface {
	SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error
	// ListMatchRecords returns the newest records first. An empty roomID
	// matches every room.
	ListMatchRecords(ctx context.Context, roomID string, limit int) ([]models.MatchRecord, error)
	Close() error
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

var ErrNilRecord = errors.New("nil match record")

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
