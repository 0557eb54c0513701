package domain

import "github.com/berfenger/pvlogger/pkg/rs485_inverter"

const (
	ACTOR_ID_MASTER  = "master"
	ACTOR_ID_MONITOR = "monitor"
	ACTOR_ID_MQTT    = "mqtt"
)

type CycleCompletedEvent struct {
	Report CycleReport
}

type ActorHealthRequest struct{}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

type GetCycleStatusRequest struct{}

type GetCycleStatusResponse struct {
	ActorResponseMixIn
	StartedAt     int64
	Cycles        uint64
	FailedCycles  uint64
	LastCycle     *CycleReport
	LastPersisted int64
}

type PublishReadingsRequest struct {
	Timestamp int64
	Readings  []rs485_inverter.Reading
}

// ensure interface compliance
var _ ActorResponse = (*ActorHealthResponse)(nil)
var _ ActorResponse = (*GetCycleStatusResponse)(nil)
