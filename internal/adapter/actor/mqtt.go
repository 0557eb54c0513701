package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/pvlogger/internal/config"
	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/mqtt"
	"github.com/berfenger/pvlogger/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher is the subset of the MQTT client the actor drives.
type MQTTPublisher interface {
	Connect(continuation func(error), timeout time.Duration)
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
	IsConnected() bool
	Disconnect(timeout time.Duration)
}

type MQTTPublisherFactory func(onConnectionLost func(error)) MQTTPublisher

type MQTTActor struct {
	config        config.MQTTConfig
	sensors       []domain.GenericSensor
	behavior      actor.Behavior
	stash         *actorutil.Stash
	clientFactory MQTTPublisherFactory
	client        MQTTPublisher
	logger        *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Topic string
	Error error
}

// NewMQTTActor publishes cycle readings to the broker of cfg. sensors are announced
// through Home Assistant discovery on every connect when enabled.
func NewMQTTActor(cfg config.MQTTConfig, sensors []domain.GenericSensor, logger *zap.Logger) *MQTTActor {
	return NewMQTTActorWithFactory(cfg, sensors, func(onConnectionLost func(error)) MQTTPublisher {
		return mqtt.CreateMQTTClient(mqtt.OptsFromConfig(cfg), nil, func(_ pahomqtt.Client, err error) {
			onConnectionLost(err)
		})
	}, logger)
}

func NewMQTTActorWithFactory(cfg config.MQTTConfig, sensors []domain.GenericSensor,
	factory MQTTPublisherFactory, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:        cfg,
		sensors:       sensors,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		clientFactory: factory,
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// create MQTT client
		state.client = state.clientFactory(func(err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected", zap.String("host", state.config.Host))

		state.client.Publish(mqtt.BridgeStateTopic(state.config.BaseTopic), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		if state.config.HADiscoveryEnable {
			if err := state.publishHomeAssistantDiscovery(state.sensors); err != nil {
				state.logger.Error("mqtt@starting PublishHADiscovery error", zap.Error(err))
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		connected := state.client.IsConnected()
		resp := domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: connected,
			State:   "connected",
		}
		if !connected {
			resp.State = "disconnected"
		}
		ctx.Respond(resp)
	case domain.PublishReadingsRequest:
		state.logger.Debug("mqtt@default PublishReadingsRequest", zap.Int64("timestamp", msg.Timestamp), zap.Int("readings", len(msg.Readings)))
		state.publishReadings(ctx, msg)
	case publishResult:
		if msg.Error != nil {
			state.logger.Warn("mqtt@publishing could not publish a message", zap.String("topic", msg.Topic), zap.Error(msg.Error))
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publishReadings never waits for the broker; failures come back as publishResult.
func (state *MQTTActor) publishReadings(ctx actor.Context, msg domain.PublishReadingsRequest) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	for _, reading := range msg.Readings {
		topic, payload, err := mqtt.ReadingMessage(state.config.BaseTopic, msg.Timestamp, reading)
		if err != nil {
			state.logger.Error("mqtt@publish: could not encode reading", zap.Uint8("inverter", reading.Address), zap.Error(err))
			continue
		}
		state.logger.Sugar().Debugf("mqtt@publish: reading publish %s => %s", topic, payload)
		state.client.Publish(topic, payload, 0, true, func(err error) {
			if err != nil {
				root.Send(self, publishResult{Topic: topic, Error: err})
			}
		}, 5*time.Second)
	}
}

func (state *MQTTActor) publishHomeAssistantDiscovery(sensors []domain.GenericSensor) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.config.BaseTopic, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(state.config.HADiscoveryTopic, sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	if state.client == nil {
		return
	}
	state.logger.Debug("mqtt: disconnect")
	state.client.Publish(mqtt.BridgeStateTopic(state.config.BaseTopic), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
	state.client.Disconnect(500 * time.Millisecond)
}
