package service

import (
	"context"
	"testing"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerCurveDay(t *testing.T) {

	require := require.New(t)
	loc := zurich(t)
	ctx := context.Background()

	day, err := ParseDay("2024-06-15", loc)
	require.NoError(err)
	start, end := DayBounds(day, loc)

	minutes := &memMinuteStore{}
	require.NoError(minutes.Append(ctx, start+60, []rs485_inverter.Reading{reading(1, 140, 10), reading(2, 240, 20)}))
	require.NoError(minutes.Append(ctx, start+120, []rs485_inverter.Reading{reading(1, 160, 12)}))
	require.NoError(minutes.Append(ctx, end, []rs485_inverter.Reading{reading(1, 999, 999)}))

	points, err := NewReports(minutes, &memRollupStore{}, loc).PowerCurveDay(ctx, day)
	require.NoError(err)
	require.Len(points, 2, "next day excluded")

	require.Equal(start+60, points[0].Timestamp)
	require.Equal(100+200, points[0].PowerAll)
	require.Equal(30, points[0].YieldAll)
	require.Equal(map[uint8]int{1: 100, 2: 200}, points[0].Power)

	require.Equal(120, points[1].PowerAll)
	require.Equal(12, points[1].YieldAll)
}

func TestYieldPerDay(t *testing.T) {

	assert := assert.New(t)
	loc := zurich(t)
	ctx := context.Background()

	from, _ := ParseDay("2024-06-14", loc)
	to, _ := ParseDay("2024-06-17", loc)
	d14, _ := DayBounds(from, loc)
	d16, _ := DayBounds(from.AddDate(0, 0, 2), loc)
	d17, _ := DayBounds(to, loc)

	rollups := &memRollupStore{rollups: []domain.DayRollup{
		{Timestamp: d14, Address: 1, YieldDay: 1000},
		{Timestamp: d14, Address: 2, YieldDay: 1500},
		{Timestamp: d16, Address: 1, YieldDay: 700},
		{Timestamp: d17, Address: 1, YieldDay: 9999},
	}}

	days, err := NewReports(&memMinuteStore{}, rollups, loc).YieldPerDay(ctx, from, to)
	assert.NoError(err)
	assert.Equal([]DayYield{
		{Day: "2024-06-14", Yield: 2500},
		{Day: "2024-06-15", Yield: 0},
		{Day: "2024-06-16", Yield: 700},
	}, days)

	days, err = NewReports(&memMinuteStore{}, rollups, loc).YieldPerDay(ctx, to, from)
	assert.NoError(err)
	assert.Empty(days)
}
