package actor

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/pvlogger/internal/config"
	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/events"
	"github.com/berfenger/pvlogger/internal/util/actorutil"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload any
	retain  bool
}

type fakePublisher struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	disconnected bool
}

func (p *fakePublisher) Connect(continuation func(error), timeout time.Duration) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	go continuation(nil)
}

func (p *fakePublisher) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	p.mu.Lock()
	p.messages = append(p.messages, published{topic: topic, payload: payload, retain: retain})
	p.mu.Unlock()
	go continuation(nil)
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) Disconnect(timeout time.Duration) {
	p.mu.Lock()
	p.connected = false
	p.disconnected = true
	p.mu.Unlock()
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var topics []string
	for _, m := range p.messages {
		topics = append(topics, m.topic)
	}
	return topics
}

func (p *fakePublisher) last(topic string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].topic == topic {
			return p.messages[i].payload
		}
	}
	return nil
}

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)

	cfg := config.MQTTConfig{
		Host:              "localhost",
		Port:              1883,
		BaseTopic:         "pvlogger",
		HADiscoveryEnable: true,
		HADiscoveryTopic:  "homeassistant",
	}
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	publisher := &fakePublisher{}
	sensors := events.FleetSensors(cfg.BaseTopic, []uint8{1})
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMQTTActorWithFactory(cfg, sensors, func(func(error)) MQTTPublisher { return publisher }, logger)
	})
	pid := context.Spawn(props)

	assert.Eventually(func() bool {
		result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := result.(domain.ActorHealthResponse)
		return ok && resp.Healthy
	}, 2*time.Second, 50*time.Millisecond)

	topics := publisher.topics()
	assert.Contains(topics, "pvlogger/bridge/state")
	assert.Len(topics, 1+len(sensors), "bridge online plus one discovery config per sensor")

	context.Send(pid, domain.PublishReadingsRequest{
		Timestamp: 1717236000,
		Readings: []rs485_inverter.Reading{
			{Address: 1, Status: 3, PowerDC: 120, PowerAC: 100, YieldDay: 500},
			{Address: 2, Status: 3, PowerDC: 240, PowerAC: 200, YieldDay: 900},
		},
	})

	assert.Eventually(func() bool {
		return publisher.last("pvlogger/inverter_02/state") != nil
	}, time.Second, 20*time.Millisecond)

	var decoded map[string]any
	assert.NoError(json.Unmarshal(publisher.last("pvlogger/inverter_01/state").([]byte), &decoded))
	assert.Equal(float64(120), decoded["power_dc"])
	assert.Equal(float64(1717236000), decoded["timestamp"])

	context.StopFuture(pid).Wait()
	assert.Equal("offline", publisher.last("pvlogger/bridge/state"))
	assert.True(publisher.disconnected)

	as.Shutdown()
}
