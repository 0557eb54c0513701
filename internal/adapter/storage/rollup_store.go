package storage

import (
	"context"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"

	"gorm.io/gorm"
)

type RollupStore struct {
	db *gorm.DB
}

var _ port.RollupStore = (*RollupStore)(nil)

// NewRollupStore migrates the days table if needed.
func NewRollupStore(db *gorm.DB) (*RollupStore, error) {
	if err := db.AutoMigrate(&DayRow{}); err != nil {
		return nil, &StorageError{Op: "migrate days", Err: err}
	}
	return &RollupStore{db: db}, nil
}

func (s *RollupStore) ReplaceDay(ctx context.Context, start int64, end int64, rollups []domain.DayRollup) error {
	rows := make([]DayRow, 0, len(rollups))
	for _, r := range rollups {
		rows = append(rows, newDayRow(r))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("timestamp >= ? AND timestamp < ?", start, end).Delete(&DayRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return &StorageError{Op: "replace day", Err: err}
	}
	return nil
}

func (s *RollupStore) RollupsBetween(ctx context.Context, start int64, end int64) ([]domain.DayRollup, error) {
	var rows []DayRow
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC, inverter_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &StorageError{Op: "read days", Err: err}
	}
	rollups := make([]domain.DayRollup, len(rows))
	for i, row := range rows {
		rollups[i] = row.toDomain()
	}
	return rollups, nil
}

func (s *RollupStore) Ping(ctx context.Context) error {
	return Ping(ctx, s.db)
}
