package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type identityRecord struct {
	TableKey  string `gorm:"column:table_key;primaryKey"`
	Identity  int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (identityRecord) TableName() string { return "liarstable_identities" }

type diagnosticRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TableKey  string    `gorm:"column:table_key;index"`
	ClientID  string
	Event     string
	Reason    string
	CreatedAt time.Time
}

func (diagnosticRecord) TableName() string { return "liarstable_diagnostics" }

func toRecord(d Diagnostic) diagnosticRecord {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	return diagnosticRecord{
		ID:        d.ID,
		TableKey:  d.Table,
		ClientID:  d.ClientID,
		Event:     d.Event,
		Reason:    d.Reason,
		CreatedAt: d.At,
	}
}

// Gorm persists to Postgres through gorm.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// OpenPostgres connects and migrates the two tables the client uses.
func OpenPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&identityRecord{}, &diagnosticRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewGorm(db), nil
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) LoadIdentity(ctx context.Context, table string) (int, bool, error) {
	var rec identityRecord
	err := g.db.WithContext(ctx).First(&rec, "table_key = ?", table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.Identity, true, nil
}

func (g *Gorm) SaveIdentity(ctx context.Context, table string, identity int) error {
	rec := identityRecord{TableKey: table, Identity: identity, UpdatedAt: time.Now().UTC()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"identity", "updated_at"}),
	}).Create(&rec).Error
}

func (g *Gorm) RecordDiagnostic(ctx context.Context, d Diagnostic) error {
	rec := toRecord(d)
	return g.db.WithContext(ctx).Create(&rec).Error
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
