package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type immediateTrigger struct{}

func (immediateTrigger) NextFireTime(prev int64) (int64, error) { return prev, nil }
func (immediateTrigger) Description() string                   { return "immediate" }

type cancelAfter struct {
	n      int
	seen   int
	cancel context.CancelFunc
}

func (o *cancelAfter) CycleCompleted(report domain.CycleReport) {
	o.seen++
	if o.seen >= o.n {
		o.cancel()
	}
}

type reportRecorder struct {
	reports []domain.CycleReport
}

func (o *reportRecorder) CycleCompleted(report domain.CycleReport) {
	o.reports = append(o.reports, report)
}

func TestNextWait(t *testing.T) {

	assert := assert.New(t)
	s := NewScheduler(nil, nil, nil, nil, zap.NewNop())

	wait, err := s.NextWait(time.Date(2024, 6, 15, 12, 30, 47, 0, time.UTC))
	assert.NoError(err)
	assert.Equal(13*time.Second, wait, "second 47 waits 13 seconds")

	wait, _ = s.NextWait(time.Date(2024, 6, 15, 12, 30, 47, 250*int(time.Millisecond), time.UTC))
	assert.Equal(12750*time.Millisecond, wait)

	wait, _ = s.NextWait(time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC))
	assert.Equal(time.Minute, wait, "on the boundary the next minute is awaited")
}

func TestNextWaitCron(t *testing.T) {

	require := require.New(t)

	trigger, err := NewTrigger("0 */5 * * * *", time.UTC)
	require.NoError(err)
	s := NewScheduler(nil, nil, nil, trigger, zap.NewNop())

	wait, err := s.NextWait(time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC))
	require.NoError(err)
	require.Equal(4*time.Minute, wait)
}

func TestNewTriggerDefault(t *testing.T) {

	assert := assert.New(t)

	trigger, err := NewTrigger("", time.UTC)
	assert.NoError(err)
	assert.IsType(&MinuteTrigger{}, trigger)

	_, err = NewTrigger("not a cron", time.UTC)
	assert.Error(err)
}

func newTestScheduler(t *testing.T, transport rs485_inverter.Transport, minutes *memMinuteStore, rollups *memRollupStore,
	now time.Time, observers ...port.CycleObserver) *Scheduler {
	poller := newPoller(transport, []uint8{1, 2, 3, 4, 5})
	agg := NewRollupAggregator(minutes, rollups, time.UTC, zap.NewNop())
	return NewScheduler(poller, minutes, agg, nil, zap.NewNop(), observers...).
		WithClock(func() time.Time { return now })
}

func TestRunCycle(t *testing.T) {

	require := require.New(t)
	now := time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC)

	minutes := &memMinuteStore{}
	rollups := &memRollupStore{}
	observer := &recordingObserver{}
	s := newTestScheduler(t, fleetTransport(2), minutes, rollups, now, observer)

	report, err := s.RunCycle(context.Background())
	require.NoError(err)
	require.True(report.Healthy())
	require.Equal(now.Unix(), report.Timestamp)
	require.Len(report.Readings, 4)
	require.Equal([]uint8{2}, report.Absent)
	require.Len(report.Rollups, 4)

	require.Len(minutes.records, 4)
	for _, r := range minutes.records {
		require.Equal(now.Unix(), r.Timestamp, "one timestamp for the whole batch")
	}
	require.Len(rollups.all(), 4)
	require.Len(observer.reports, 1)
}

func TestRunCycleAppendFailure(t *testing.T) {

	require := require.New(t)
	now := time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC)

	minutes := &memMinuteStore{appendErr: errStorage}
	rollups := &memRollupStore{}
	observer := &recordingObserver{}
	s := newTestScheduler(t, fleetTransport(), minutes, rollups, now, observer)

	report, err := s.RunCycle(context.Background())
	require.NoError(err, "storage failure is not fatal to the loop")
	require.False(report.Persisted())
	require.True(errors.Is(report.AppendErr, errStorage))
	require.Equal(0, rollups.replaces, "no rollup without persisted readings")
	require.Len(observer.reports, 1)
}

func TestRunCycleRollupFailure(t *testing.T) {

	require := require.New(t)
	now := time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC)

	minutes := &memMinuteStore{}
	rollups := &memRollupStore{replaceErr: errStorage}
	s := newTestScheduler(t, fleetTransport(), minutes, rollups, now)

	report, err := s.RunCycle(context.Background())
	require.NoError(err)
	require.True(report.Persisted())
	require.True(errors.Is(report.RollupErr, errStorage))
	require.False(report.Healthy())
}

func TestRunCycleAllInvertersAbsent(t *testing.T) {

	require := require.New(t)
	now := time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC)

	minutes := &memMinuteStore{}
	s := newTestScheduler(t, fleetTransport(1, 2, 3, 4, 5), minutes, &memRollupStore{}, now)

	report, err := s.RunCycle(context.Background())
	require.NoError(err)
	require.Empty(report.Readings)
	require.Empty(minutes.records)
	require.Nil(report.AppendErr, "empty batch is legal")
	require.True(errors.Is(report.RollupErr, ErrNoMinuteRecords))
}

func TestRunCycleTransportUnavailable(t *testing.T) {

	require := require.New(t)

	transport := fleetTransport()
	transport.OpenErr = errors.New("device unplugged")
	observer := &reportRecorder{}
	minutes := &memMinuteStore{}
	s := newTestScheduler(t, transport, minutes, &memRollupStore{}, time.Now(), observer)

	report, err := s.RunCycle(context.Background())
	require.NoError(err)
	require.True(errors.Is(report.PollErr, rs485_inverter.ErrTransportUnavailable))
	require.Empty(report.Readings)
	require.Equal([]uint8{1, 2, 3, 4, 5}, report.Absent)
	require.False(report.Persisted())
	require.False(report.Healthy())
	require.Equal(0, minutes.appends, "nothing stored without a bus")
	require.Len(observer.reports, 1, "failed cycle still reported")
}

func TestRunSurvivesTransientTransportLoss(t *testing.T) {

	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder := &reportRecorder{}
	stopper := &cancelAfter{n: 2, cancel: cancel}

	transport := fleetTransport()
	transport.FailOpens = 1
	minutes := &memMinuteStore{}
	s := newTestScheduler(t, transport, minutes, &memRollupStore{}, time.Now(), recorder, stopper)
	s.trigger = immediateTrigger{}

	err := s.Run(ctx)
	assert.True(errors.Is(err, context.Canceled), "loop ends only on cancellation")
	if assert.GreaterOrEqual(len(recorder.reports), 2) {
		assert.True(errors.Is(recorder.reports[0].PollErr, rs485_inverter.ErrTransportUnavailable))
		assert.NoError(recorder.reports[1].PollErr)
		assert.Len(recorder.reports[1].Readings, 5, "bus is back")
	}
	assert.GreaterOrEqual(minutes.appends, 1)
}

func TestRunLoopsUntilCancelled(t *testing.T) {

	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	observer := &cancelAfter{n: 2, cancel: cancel}

	minutes := &memMinuteStore{}
	s := newTestScheduler(t, fleetTransport(), minutes, &memRollupStore{}, time.Now(), observer)
	s.trigger = immediateTrigger{}

	err := s.Run(ctx)
	assert.True(errors.Is(err, context.Canceled))
	assert.GreaterOrEqual(observer.seen, 2)
	assert.GreaterOrEqual(minutes.appends, 2)
}

func TestRunWaitsForTrigger(t *testing.T) {

	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	minutes := &memMinuteStore{}
	s := newTestScheduler(t, fleetTransport(), minutes, &memRollupStore{},
		time.Date(2024, 6, 15, 12, 31, 0, 0, time.UTC))

	err := s.Run(ctx)
	assert.True(errors.Is(err, context.DeadlineExceeded))
	assert.Equal(0, minutes.appends, "no cycle before the minute boundary")
}
