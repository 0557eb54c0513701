package service

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/pvlogger/internal/core/port"
)

type PowerCurvePoint struct {
	Timestamp int64         `json:"timestamp"`
	PowerAll  int           `json:"power_all"`
	YieldAll  int           `json:"yield_all"`
	Power     map[uint8]int `json:"power"`
}

type DayYield struct {
	Day   string `json:"date"`
	Yield int    `json:"yield"`
}

// Reports answers the read-only queries of the dashboard.
type Reports struct {
	minutes  port.MinuteStore
	rollups  port.RollupStore
	location *time.Location
}

func NewReports(minutes port.MinuteStore, rollups port.RollupStore, location *time.Location) *Reports {
	return &Reports{
		minutes:  minutes,
		rollups:  rollups,
		location: location,
	}
}

func (r *Reports) Location() *time.Location {
	return r.location
}

// PowerCurveDay sums AC power and day yield over all inverters for every cycle of the local day.
func (r *Reports) PowerCurveDay(ctx context.Context, day time.Time) ([]PowerCurvePoint, error) {
	start, end := DayBounds(day, r.location)
	records, err := r.minutes.RecordsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read minute records: %w", err)
	}

	var points []PowerCurvePoint
	for _, rec := range records {
		if len(points) == 0 || points[len(points)-1].Timestamp != rec.Timestamp {
			points = append(points, PowerCurvePoint{
				Timestamp: rec.Timestamp,
				Power:     map[uint8]int{},
			})
		}
		p := &points[len(points)-1]
		p.Power[rec.Address] = rec.PowerAC
		p.PowerAll += rec.PowerAC
		p.YieldAll += rec.YieldDay
	}
	return points, nil
}

// YieldPerDay totals the final day yield of every inverter for each local day in [from, to).
// Days without rollups report zero.
func (r *Reports) YieldPerDay(ctx context.Context, from time.Time, to time.Time) ([]DayYield, error) {
	start, _ := DayBounds(from, r.location)
	end, _ := DayBounds(to, r.location)
	if end <= start {
		return nil, nil
	}
	rollups, err := r.rollups.RollupsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read day rollups: %w", err)
	}
	totals := map[int64]int{}
	for _, rollup := range rollups {
		totals[rollup.Timestamp] += rollup.YieldDay
	}

	var days []DayYield
	for day := time.Unix(start, 0).In(r.location); day.Unix() < end; day = day.AddDate(0, 0, 1) {
		days = append(days, DayYield{
			Day:   day.Format(time.DateOnly),
			Yield: totals[day.Unix()],
		})
	}
	return days, nil
}
