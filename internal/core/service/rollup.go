package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"

	"go.uber.org/zap"
)

var ErrNoMinuteRecords = errors.New("no minute records for the day")

// ComputeRollups folds one day of minute records into one rollup per inverter, by ascending address.
// Power values are maxima; the yield is the one of the latest record.
func ComputeRollups(dayStart int64, records []domain.MinuteRecord) []domain.DayRollup {
	type accumulator struct {
		rollup domain.DayRollup
		latest int64
	}
	byAddr := map[uint8]*accumulator{}
	for _, r := range records {
		acc, ok := byAddr[r.Address]
		if !ok {
			byAddr[r.Address] = &accumulator{
				rollup: domain.DayRollup{
					Timestamp:  dayStart,
					Address:    r.Address,
					PowerDCMax: r.PowerDC,
					PowerACMax: r.PowerAC,
					YieldDay:   r.YieldDay,
				},
				latest: r.Timestamp,
			}
			continue
		}
		acc.rollup.PowerDCMax = max(acc.rollup.PowerDCMax, r.PowerDC)
		acc.rollup.PowerACMax = max(acc.rollup.PowerACMax, r.PowerAC)
		if r.Timestamp > acc.latest {
			acc.latest = r.Timestamp
			acc.rollup.YieldDay = r.YieldDay
		}
	}

	rollups := make([]domain.DayRollup, 0, len(byAddr))
	for _, acc := range byAddr {
		rollups = append(rollups, acc.rollup)
	}
	slices.SortFunc(rollups, func(a, b domain.DayRollup) int {
		return int(a.Address) - int(b.Address)
	})
	return rollups
}

type DefaultRollupAggregator struct {
	minutes  port.MinuteStore
	rollups  port.RollupStore
	location *time.Location
	clock    func() time.Time
	logger   *zap.Logger
}

func NewRollupAggregator(minutes port.MinuteStore, rollups port.RollupStore, location *time.Location,
	logger *zap.Logger) *DefaultRollupAggregator {
	return &DefaultRollupAggregator{
		minutes:  minutes,
		rollups:  rollups,
		location: location,
		clock:    time.Now,
		logger:   logger.With(zap.String("component", "rollup")),
	}
}

func (a *DefaultRollupAggregator) WithClock(clock func() time.Time) *DefaultRollupAggregator {
	a.clock = clock
	return a
}

func (a *DefaultRollupAggregator) RecomputeToday(ctx context.Context) ([]domain.DayRollup, error) {
	return a.RecomputeDay(ctx, a.clock())
}

// RecomputeDay replaces the day's rollups with ones derived from the minute records stored right now.
// On any error the previously committed rollups stay as they were.
func (a *DefaultRollupAggregator) RecomputeDay(ctx context.Context, at time.Time) ([]domain.DayRollup, error) {
	start, end := DayBounds(at, a.location)
	records, err := a.minutes.RecordsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read minute records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: day starting at %d", ErrNoMinuteRecords, start)
	}

	rollups := ComputeRollups(start, records)
	if err := a.rollups.ReplaceDay(ctx, start, end, rollups); err != nil {
		return nil, fmt.Errorf("replace day rollups: %w", err)
	}
	a.logger.Debug("rollup@recompute: day replaced", zap.Int64("day", start),
		zap.Int("records", len(records)), zap.Int("rollups", len(rollups)))
	return rollups, nil
}

// ensure interface compliance
var _ port.RollupAggregator = (*DefaultRollupAggregator)(nil)
