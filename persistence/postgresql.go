package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/wfunc/territory/models"
)

const queryTimeout = 5 * time.Second

// PostgreSQL keeps match history with plain SQL over lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            reason VARCHAR(32) NOT NULL,
            players TEXT[] NOT NULL,
            owners JSONB NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_match_records_room_id ON match_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_match_records_ended_at ON match_records(ended_at);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	owners, err := json.Marshal(record.Owners)
	if err != nil {
		return fmt.Errorf("encode owners: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO match_records (room_id, reason, players, owners, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, record.RoomID, record.Reason, pq.Array(record.Players), owners, record.StartedAt, record.EndedAt)
	return err
}

func (p *PostgreSQL) ListMatchRecords(ctx context.Context, roomID string, limit int) ([]models.MatchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT room_id, reason, players, owners, started_at, ended_at
        FROM match_records
        WHERE $1::text = '' OR room_id = $1
        ORDER BY ended_at DESC
        LIMIT $2
    `, roomID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		var (
			record models.MatchRecord
			owners []byte
		)
		if err := rows.Scan(&record.RoomID, &record.Reason, pq.Array(&record.Players), &owners,
			&record.StartedAt, &record.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(owners, &record.Owners); err != nil {
			return nil, fmt.Errorf("decode owners: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
