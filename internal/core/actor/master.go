package actor

import (
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type MonitorActorProvider func() *MonitorActor

// ActorProvider builds an optional child. A nil provider disables the child.
type ActorProvider func() actor.Actor

// MasterActor supervises the monitor and publisher children and fans cycle events out to them.
type MasterActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash

	currentHealthCheck   healthCheckResult
	monitorActor         *actor.PID
	mqttActor            *actor.PID
	monitorActorProvider MonitorActorProvider
	mqttActorProvider    ActorProvider
	logger               *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	healthy   bool
	states    []string
	respondTo *actor.PID
}

func NewMasterActor(monitorActorProvider MonitorActorProvider, mqttActorProvider ActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		behavior:             actor.NewBehavior(),
		stash:                &actorutil.Stash{},
		logger:               actorutil.ActorLogger(domain.ACTOR_ID_MASTER, logger),
		monitorActorProvider: monitorActorProvider,
		mqttActorProvider:    mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start Monitor child
		monitorActorPID, err := state.startMonitorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.monitorActor = monitorActorPID

		// start MQTT child
		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.CycleCompletedEvent:
		ctx.Send(state.monitorActor, msg)
		if state.mqttActor != nil && msg.Report.Persisted() && len(msg.Report.Readings) > 0 {
			ctx.Send(state.mqttActor, domain.PublishReadingsRequest{
				Timestamp: msg.Report.Timestamp,
				Readings:  msg.Report.Readings,
			})
		}
	case domain.GetCycleStatusRequest:
		ctx.Forward(state.monitorActor)
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()

		// Monitor Actor Request
		state.currentHealthCheck.expected++
		PipeHealthToSelf(ctx, state.monitorActor, domain.ACTOR_ID_MONITOR, DB_PING_TIMEOUT+500*time.Millisecond)
		// MQTT Actor Request
		if state.mqttActor != nil {
			state.currentHealthCheck.expected++
			PipeHealthToSelf(ctx, state.mqttActor, domain.ACTOR_ID_MQTT, 500*time.Millisecond)
		}

		ctx.SetReceiveTimeout(DB_PING_TIMEOUT + time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.healthy = false
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.add(msg)
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startMonitorActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		state.logger.Error("master: monitor failure, restarting", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	monitorProps := actor.PropsFromProducer(func() actor.Actor {
		return state.monitorActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(monitorProps, domain.ACTOR_ID_MONITOR)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

// PipeHealthToSelf asks pid for its health and delivers the answer, or an unhealthy one, to self.
func PipeHealthToSelf(ctx actor.Context, pid *actor.PID, id string, timeout time.Duration) {
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, timeout), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
			State:   err.Error(),
		}
	})
}

func (state *healthCheckResult) reset() {
	state.expected = 0
	state.received = 0
	state.healthy = true
	state.states = nil
	state.respondTo = nil
}

func (state *healthCheckResult) add(resp domain.ActorHealthResponse) {
	state.received++
	state.healthy = state.healthy && resp.Healthy
	state.states = append(state.states, fmt.Sprintf("%s=%s", resp.Id, resp.State))
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.healthy && state.allReceived(),
		State:   strings.Join(state.states, " "),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
