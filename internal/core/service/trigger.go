package service

import (
	"time"

	"github.com/reugn/go-quartz/quartz"
)

// MinuteTrigger fires on every wall-clock minute boundary.
type MinuteTrigger struct{}

func NewMinuteTrigger() *MinuteTrigger {
	return &MinuteTrigger{}
}

// NextFireTime returns the first minute boundary strictly after prev (unix nanoseconds).
func (t *MinuteTrigger) NextFireTime(prev int64) (int64, error) {
	return time.Unix(0, prev).Truncate(time.Minute).Add(time.Minute).UnixNano(), nil
}

func (t *MinuteTrigger) Description() string {
	return "MinuteTrigger"
}

// NewTrigger returns a cron trigger for expr, or a MinuteTrigger when expr is empty.
func NewTrigger(expr string, loc *time.Location) (quartz.Trigger, error) {
	if expr == "" {
		return NewMinuteTrigger(), nil
	}
	return quartz.NewCronTriggerWithLoc(expr, loc)
}

// ensure interface compliance
var _ quartz.Trigger = (*MinuteTrigger)(nil)
