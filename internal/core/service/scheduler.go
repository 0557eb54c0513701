package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Scheduler runs one poll, persist and aggregate cycle per trigger fire, never two at once.
type Scheduler struct {
	poller     port.FleetPoller
	minutes    port.MinuteStore
	aggregator port.RollupAggregator
	trigger    quartz.Trigger
	clock      func() time.Time
	observers  []port.CycleObserver
	logger     *zap.Logger
}

func NewScheduler(poller port.FleetPoller, minutes port.MinuteStore, aggregator port.RollupAggregator,
	trigger quartz.Trigger, logger *zap.Logger, observers ...port.CycleObserver) *Scheduler {
	if trigger == nil {
		trigger = NewMinuteTrigger()
	}
	return &Scheduler{
		poller:     poller,
		minutes:    minutes,
		aggregator: aggregator,
		trigger:    trigger,
		clock:      time.Now,
		observers:  observers,
		logger:     logger.With(zap.String("component", "scheduler")),
	}
}

func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// NextWait is the time left from now until the next fire time. It is derived from the
// wall clock on every call so processing latency never accumulates.
func (s *Scheduler) NextWait(now time.Time) (time.Duration, error) {
	next, err := s.trigger.NextFireTime(now.UnixNano())
	if err != nil {
		return 0, err
	}
	return max(time.Unix(0, next).Sub(now), 0), nil
}

// Run loops until ctx is done. A cycle that could not open the transport is reported
// as failed and the next one is scheduled as usual.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler@run: started", zap.String("trigger", s.trigger.Description()))
	for {
		wait, err := s.NextWait(s.clock())
		if err != nil {
			return fmt.Errorf("schedule next cycle: %w", err)
		}
		s.logger.Debug("scheduler@run: waiting", zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler@run: stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.RunCycle(ctx); err != nil {
			return err
		}
	}
}

// RunCycle polls the fleet, appends the batch under one timestamp and recomputes the day.
// Transport and storage failures are reported in the returned CycleReport; only a
// cancelled ctx is returned as error.
func (s *Scheduler) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	started := s.clock()
	report := domain.CycleReport{
		Timestamp: started.Unix(),
		Started:   started,
	}

	readings, err := s.poller.Poll(ctx)
	if err != nil && !errors.Is(err, rs485_inverter.ErrTransportUnavailable) {
		return report, fmt.Errorf("poll inverters: %w", err)
	}
	report.Readings = readings
	report.Absent = Absent(s.poller.Addresses(), readings)

	if err != nil {
		report.PollErr = err
		s.logger.Error("scheduler@cycle: transport unavailable", zap.Int64("timestamp", report.Timestamp), zap.Error(err))
	} else if err := s.minutes.Append(ctx, report.Timestamp, readings); err != nil {
		report.AppendErr = err
		s.logger.Error("scheduler@cycle: readings lost", zap.Int64("timestamp", report.Timestamp),
			zap.Int("readings", len(readings)), zap.Error(err))
	} else if rollups, err := s.aggregator.RecomputeDay(ctx, started); err != nil {
		report.RollupErr = err
		s.logger.Error("scheduler@cycle: rollup failed", zap.Int64("timestamp", report.Timestamp), zap.Error(err))
	} else {
		report.Rollups = rollups
	}

	report.Duration = s.clock().Sub(started)
	s.logger.Info("scheduler@cycle: done", zap.Int64("timestamp", report.Timestamp),
		zap.Int("readings", len(readings)), zap.Any("absent", report.Absent), zap.Duration("duration", report.Duration))

	for _, o := range s.observers {
		o.CycleCompleted(report)
	}
	return report, nil
}
