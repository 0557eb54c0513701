package port

import (
	"context"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"
)

type InverterQuerier interface {
	Query(ctx context.Context, addr uint8) (*rs485_inverter.Reading, error)
}

type FleetPoller interface {
	Addresses() []uint8
	Poll(ctx context.Context) ([]rs485_inverter.Reading, error)
}

type MinuteStore interface {
	Append(ctx context.Context, timestamp int64, readings []rs485_inverter.Reading) error
	// RecordsBetween returns the records in [start, end) ordered by timestamp then inverter.
	// An empty addrs selects every inverter.
	RecordsBetween(ctx context.Context, start int64, end int64, addrs ...uint8) ([]domain.MinuteRecord, error)
}

type RollupStore interface {
	// ReplaceDay deletes every rollup in [start, end) and inserts rollups, all or nothing.
	ReplaceDay(ctx context.Context, start int64, end int64, rollups []domain.DayRollup) error
	RollupsBetween(ctx context.Context, start int64, end int64) ([]domain.DayRollup, error)
}

type RollupAggregator interface {
	RecomputeToday(ctx context.Context) ([]domain.DayRollup, error)
	// RecomputeDay rebuilds the rollups of the local day containing at.
	RecomputeDay(ctx context.Context, at time.Time) ([]domain.DayRollup, error)
}

// CycleObserver is told about every completed cycle. Implementations must not block.
type CycleObserver interface {
	CycleCompleted(report domain.CycleReport)
}
