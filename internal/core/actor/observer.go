package actor

import (
	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// CycleObserver forwards cycle reports into the actor system without blocking the scheduler.
type CycleObserver struct {
	root *actor.RootContext
	pid  *actor.PID
}

var _ port.CycleObserver = (*CycleObserver)(nil)

func NewCycleObserver(root *actor.RootContext, pid *actor.PID) *CycleObserver {
	return &CycleObserver{
		root: root,
		pid:  pid,
	}
}

func (o *CycleObserver) CycleCompleted(report domain.CycleReport) {
	o.root.Send(o.pid, domain.CycleCompletedEvent{Report: report})
}
