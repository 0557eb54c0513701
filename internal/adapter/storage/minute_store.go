package storage

import (
	"context"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"gorm.io/gorm"
)

type MinuteStore struct {
	db *gorm.DB
}

var _ port.MinuteStore = (*MinuteStore)(nil)

// NewMinuteStore migrates the minutes table if needed.
func NewMinuteStore(db *gorm.DB) (*MinuteStore, error) {
	if err := db.AutoMigrate(&MinuteRow{}); err != nil {
		return nil, &StorageError{Op: "migrate minutes", Err: err}
	}
	return &MinuteStore{db: db}, nil
}

// Append stores every reading of a cycle under the same timestamp in a single insert.
func (s *MinuteStore) Append(ctx context.Context, timestamp int64, readings []rs485_inverter.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]MinuteRow, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, newMinuteRow(timestamp, r))
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return &StorageError{Op: "append minutes", Err: err}
	}
	return nil
}

func (s *MinuteStore) RecordsBetween(ctx context.Context, start int64, end int64, addrs ...uint8) ([]domain.MinuteRecord, error) {
	var rows []MinuteRow
	query := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC, inverter_id ASC")
	if len(addrs) > 0 {
		// []uint8 would bind as a single blob
		ids := make([]int, len(addrs))
		for i, addr := range addrs {
			ids[i] = int(addr)
		}
		query = query.Where("inverter_id IN ?", ids)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, &StorageError{Op: "read minutes", Err: err}
	}
	records := make([]domain.MinuteRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toDomain()
	}
	return records, nil
}

func (s *MinuteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MinuteRow{}).Count(&count).Error; err != nil {
		return 0, &StorageError{Op: "count minutes", Err: err}
	}
	return count, nil
}

func (s *MinuteStore) Ping(ctx context.Context) error {
	return Ping(ctx, s.db)
}
