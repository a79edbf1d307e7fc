// Package store persists function records in postgres through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Registry is a functions.Registry backed by the "functions" table.
type Registry struct {
	db *gorm.DB
	lg zerolog.Logger
}

// New connects to dsn and migrates the schema.
func New(dsn string, lg zerolog.Logger) (*Registry, error) {
	lg = lg.With().Str("adapter", "store").Logger()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: newLogger(lg)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&functions.FunctionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	lg.Info().Msg("function registry ready")
	return &Registry{db: db, lg: lg}, nil
}

// Upsert writes rec, replacing any record with the same name.
func (r *Registry) Upsert(ctx context.Context, rec *functions.FunctionRecord) error {
	return r.upsert(r.db.WithContext(ctx), rec).Error
}

func (r *Registry) upsert(db *gorm.DB, rec *functions.FunctionRecord) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(rec)
}

func (r *Registry) Get(ctx context.Context, name string) (*functions.FunctionRecord, error) {
	var rec functions.FunctionRecord
	if err := r.db.WithContext(ctx).First(&rec, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", functions.ErrNotFound, name)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Registry) List(ctx context.Context) ([]functions.FunctionRecord, error) {
	var recs []functions.FunctionRecord
	if err := r.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *Registry) Delete(ctx context.Context, name string) error {
	res := r.db.WithContext(ctx).Delete(&functions.FunctionRecord{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", functions.ErrNotFound, name)
	}
	return nil
}

func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zerologWriter routes gorm's logger through zerolog.
type zerologWriter struct {
	lg zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.lg.Debug().Msgf(format, args...)
}

func newLogger(lg zerolog.Logger) logger.Interface {
	return logger.New(zerologWriter{lg: lg}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
