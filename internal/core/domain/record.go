package domain

import (
	"time"

	"github.com/berfenger/pvlogger/pkg/rs485_inverter"
)

// MinuteRecord is a reading stamped with the acquisition time of its cycle (UTC seconds).
type MinuteRecord struct {
	Timestamp int64 `json:"timestamp"`
	rs485_inverter.Reading
}

// DayRollup summarizes one inverter over one local day. Timestamp is the day start in UTC seconds.
type DayRollup struct {
	Timestamp  int64 `json:"timestamp"`
	Address    uint8 `json:"inverter_id"`
	PowerDCMax int   `json:"power_dc_max"`
	PowerACMax int   `json:"power_ac_max"`
	YieldDay   int   `json:"yield_day"`
}

// CycleReport describes one poll, persist and aggregate iteration.
type CycleReport struct {
	Timestamp int64
	Started   time.Time
	Duration  time.Duration
	Readings  []rs485_inverter.Reading
	Absent    []uint8
	PollErr   error
	AppendErr error
	RollupErr error
	Rollups   []DayRollup
}

func (r CycleReport) Persisted() bool {
	return r.PollErr == nil && r.AppendErr == nil
}

func (r CycleReport) Healthy() bool {
	return r.PollErr == nil && r.AppendErr == nil && r.RollupErr == nil
}
