package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	DEFAULT_STALE_AFTER = 3 * time.Minute
	DB_PING_TIMEOUT     = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorActor keeps the cycle history and answers health and status requests.
type MonitorActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	pinger     Pinger
	staleAfter time.Duration
	clock      func() time.Time

	startedAt     time.Time
	cycles        uint64
	failedCycles  uint64
	lastCycle     *domain.CycleReport
	lastPersisted int64
	healthReplyTo *actor.PID

	logger *zap.Logger
}

type dbPingResult struct {
	Err error
}

func NewMonitorActor(pinger Pinger, staleAfter time.Duration, logger *zap.Logger) *MonitorActor {
	if staleAfter <= 0 {
		staleAfter = DEFAULT_STALE_AFTER
	}
	act := &MonitorActor{
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		pinger:     pinger,
		staleAfter: staleAfter,
		clock:      time.Now,
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_MONITOR, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MonitorActor) WithClock(clock func() time.Time) *MonitorActor {
	state.clock = clock
	return state
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@default started")
		if state.startedAt.IsZero() {
			state.startedAt = state.clock()
		}
	case domain.CycleCompletedEvent:
		state.record(msg.Report)
	case domain.GetCycleStatusRequest:
		ctx.Respond(state.status())
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default ActorHealthRequest")
		state.healthReplyTo = ctx.Sender()
		state.behavior.BecomeStacked(state.HealthCheckReceive)
		ctx.SetReceiveTimeout(DB_PING_TIMEOUT + time.Second)
		state.pingDatabase(ctx)
	default:
		state.logger.Debug("monitor@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MonitorActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case dbPingResult:
		state.respondHealth(ctx, msg.Err)
	case *actor.ReceiveTimeout:
		state.respondHealth(ctx, fmt.Errorf("database ping did not answer within %s", DB_PING_TIMEOUT))
	default:
		state.logger.Debug("monitor@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) pingDatabase(ctx actor.Context) {
	if state.pinger == nil {
		ctx.Send(ctx.Self(), dbPingResult{})
		return
	}
	actorutil.NewBackgroundTask(ctx, func() (*dbPingResult, error) {
		pingCtx, cancel := context.WithTimeout(context.Background(), DB_PING_TIMEOUT)
		defer cancel()
		return &dbPingResult{Err: state.pinger.Ping(pingCtx)}, nil
	}).WithTimeout(DB_PING_TIMEOUT).Recover(func(err error) dbPingResult {
		return dbPingResult{Err: err}
	}).PipeTo(ctx.Self())
}

func (state *MonitorActor) respondHealth(ctx actor.Context, dbErr error) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MONITOR,
		Healthy: true,
		State:   "ok",
	}
	if age := state.clock().Sub(state.lastActivity()); age > state.staleAfter {
		resp.Healthy = false
		resp.State = fmt.Sprintf("no cycle completed for %s", age.Round(time.Second))
	}
	if state.lastCycle != nil && state.lastCycle.PollErr != nil {
		resp.Healthy = false
		resp.State = fmt.Sprintf("transport: %s", state.lastCycle.PollErr)
	}
	if dbErr != nil {
		resp.Healthy = false
		resp.State = fmt.Sprintf("database: %s", dbErr)
	}
	state.logger.Debug("monitor@healthcheck respond", zap.Bool("healthy", resp.Healthy), zap.String("state", resp.State))
	if state.healthReplyTo != nil {
		ctx.Send(state.healthReplyTo, resp)
	}
	state.healthReplyTo = nil
	ctx.CancelReceiveTimeout()
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// lastActivity is the completion time of the last cycle, or the start time before the first one.
func (state *MonitorActor) lastActivity() time.Time {
	if state.lastCycle == nil {
		return state.startedAt
	}
	return state.lastCycle.Started.Add(state.lastCycle.Duration)
}

func (state *MonitorActor) record(report domain.CycleReport) {
	state.cycles++
	if !report.Healthy() {
		state.failedCycles++
	}
	if report.Persisted() {
		state.lastPersisted = report.Timestamp
	}
	state.lastCycle = &report
	state.logger.Debug("monitor@default cycle recorded", zap.Int64("timestamp", report.Timestamp),
		zap.Int("readings", len(report.Readings)), zap.Bool("healthy", report.Healthy()))
}

func (state *MonitorActor) status() domain.GetCycleStatusResponse {
	resp := domain.GetCycleStatusResponse{
		StartedAt:     state.startedAt.Unix(),
		Cycles:        state.cycles,
		FailedCycles:  state.failedCycles,
		LastPersisted: state.lastPersisted,
	}
	if state.lastCycle != nil {
		last := *state.lastCycle
		resp.LastCycle = &last
	}
	return resp
}
