package storage

import (
	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"
)

// MinuteRow is one row of the minutes table.
type MinuteRow struct {
	Timestamp   int64   `gorm:"column:timestamp;primaryKey;autoIncrement:false"`
	InverterID  uint8   `gorm:"column:inverter_id;primaryKey;autoIncrement:false"`
	Status      int     `gorm:"column:status;not null"`
	VoltageDC   float64 `gorm:"column:voltage_dc;not null"`
	CurrentDC   float64 `gorm:"column:current_dc;not null"`
	PowerDC     int     `gorm:"column:power_dc;not null"`
	VoltageAC   float64 `gorm:"column:voltage_ac;not null"`
	CurrentAC   float64 `gorm:"column:current_ac;not null"`
	PowerAC     int     `gorm:"column:power_ac;not null"`
	Temperature int     `gorm:"column:temperature;not null"`
	YieldDay    int     `gorm:"column:yield_day;not null"`
}

func (MinuteRow) TableName() string {
	return "minutes"
}

func newMinuteRow(timestamp int64, r rs485_inverter.Reading) MinuteRow {
	return MinuteRow{
		Timestamp:   timestamp,
		InverterID:  r.Address,
		Status:      r.Status,
		VoltageDC:   r.VoltageDC,
		CurrentDC:   r.CurrentDC,
		PowerDC:     r.PowerDC,
		VoltageAC:   r.VoltageAC,
		CurrentAC:   r.CurrentAC,
		PowerAC:     r.PowerAC,
		Temperature: r.Temperature,
		YieldDay:    r.YieldDay,
	}
}

func (r MinuteRow) toDomain() domain.MinuteRecord {
	return domain.MinuteRecord{
		Timestamp: r.Timestamp,
		Reading: rs485_inverter.Reading{
			Address:     r.InverterID,
			Status:      r.Status,
			VoltageDC:   r.VoltageDC,
			CurrentDC:   r.CurrentDC,
			PowerDC:     r.PowerDC,
			VoltageAC:   r.VoltageAC,
			CurrentAC:   r.CurrentAC,
			PowerAC:     r.PowerAC,
			Temperature: r.Temperature,
			YieldDay:    r.YieldDay,
		},
	}
}

// DayRow is one row of the days table.
type DayRow struct {
	Timestamp  int64 `gorm:"column:timestamp;primaryKey;autoIncrement:false"`
	InverterID uint8 `gorm:"column:inverter_id;primaryKey;autoIncrement:false"`
	PowerDCMax int   `gorm:"column:power_dc_max;not null"`
	PowerACMax int   `gorm:"column:power_ac_max;not null"`
	YieldDay   int   `gorm:"column:yield_day;not null"`
}

func (DayRow) TableName() string {
	return "days"
}

func newDayRow(r domain.DayRollup) DayRow {
	return DayRow{
		Timestamp:  r.Timestamp,
		InverterID: r.Address,
		PowerDCMax: r.PowerDCMax,
		PowerACMax: r.PowerACMax,
		YieldDay:   r.YieldDay,
	}
}

func (r DayRow) toDomain() domain.DayRollup {
	return domain.DayRollup{
		Timestamp:  r.Timestamp,
		Address:    r.InverterID,
		PowerDCMax: r.PowerDCMax,
		PowerACMax: r.PowerACMax,
		YieldDay:   r.YieldDay,
	}
}
