package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"
)

type memMinuteStore struct {
	mu        sync.Mutex
	records   []domain.MinuteRecord
	appendErr error
	readErr   error
	appends   int
}

func (s *memMinuteStore) Append(ctx context.Context, timestamp int64, readings []rs485_inverter.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, r := range readings {
		s.records = append(s.records, domain.MinuteRecord{Timestamp: timestamp, Reading: r})
	}
	return nil
}

func (s *memMinuteStore) RecordsBetween(ctx context.Context, start int64, end int64, addrs ...uint8) ([]domain.MinuteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []domain.MinuteRecord
	for _, r := range s.records {
		if r.Timestamp >= start && r.Timestamp < end && (len(addrs) == 0 || slices.Contains(addrs, r.Address)) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.MinuteRecord) int {
		if a.Timestamp != b.Timestamp {
			return int(a.Timestamp - b.Timestamp)
		}
		return int(a.Address) - int(b.Address)
	})
	return out, nil
}

type memRollupStore struct {
	mu         sync.Mutex
	rollups    []domain.DayRollup
	replaceErr error
	replaces   int
}

func (s *memRollupStore) ReplaceDay(ctx context.Context, start int64, end int64, rollups []domain.DayRollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	if s.replaceErr != nil {
		return s.replaceErr
	}
	kept := s.rollups[:0:0]
	for _, r := range s.rollups {
		if r.Timestamp < start || r.Timestamp >= end {
			kept = append(kept, r)
		}
	}
	s.rollups = append(kept, rollups...)
	return nil
}

func (s *memRollupStore) RollupsBetween(ctx context.Context, start int64, end int64) ([]domain.DayRollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DayRollup
	for _, r := range s.rollups {
		if r.Timestamp >= start && r.Timestamp < end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRollupStore) all() []domain.DayRollup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rollups)
}

type recordingObserver struct {
	reports []domain.CycleReport
}

func (o *recordingObserver) CycleCompleted(report domain.CycleReport) {
	o.reports = append(o.reports, report)
}

var errStorage = errors.New("disk I/O error")
