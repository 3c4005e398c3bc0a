package persistence

import (
	"context"
	"time"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormPostgreSQL keeps match history through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

// MatchRecordModel is the match_records row. Slices and maps are stored as JSON.
type MatchRecordModel struct {
	ID        uint              `gorm:"primaryKey"`
	RoomID    string            `gorm:"index;not null"`
	Reason    string            `gorm:"size:32;not null"`
	Players   []string          `gorm:"serializer:json"`
	Owners    map[string]string `gorm:"serializer:json"`
	StartedAt time.Time
	EndedAt   time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (MatchRecordModel) TableName() string {
	return "match_records"
}

// gormWriter sends GORM's own log lines to the process logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logger.Log.Debugf(format, args...)
}

func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	return newGorm(postgres.Open(dsn))
}

func newGorm(dialector gorm.Dialector) (*GormPostgreSQL, error) {
	gormLog := gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&MatchRecordModel{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func toModel(record *models.MatchRecord) MatchRecordModel {
	return MatchRecordModel{
		RoomID:    record.RoomID,
		Reason:    record.Reason,
		Players:   record.Players,
		Owners:    record.Owners,
		StartedAt: record.StartedAt,
		EndedAt:   record.EndedAt,
	}
}

func (m MatchRecordModel) toRecord() models.MatchRecord {
	return models.MatchRecord{
		RoomID:    m.RoomID,
		Players:   m.Players,
		Owners:    m.Owners,
		Reason:    m.Reason,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
}

func (p *GormPostgreSQL) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	row := toModel(record)
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *GormPostgreSQL) ListMatchRecords(ctx context.Context, roomID string, limit int) ([]models.MatchRecord, error) {
	query := p.db.WithContext(ctx).Order("ended_at DESC").Limit(normalizeLimit(limit))
	if roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}

	var rows []MatchRecordModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]models.MatchRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
