package service

import (
	"context"
	"errors"
	"slices"

	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"go.uber.org/zap"
)

// DefaultFleetPoller queries every inverter one after the other; the bus is half-duplex.
type DefaultFleetPoller struct {
	client    port.InverterQuerier
	addresses []uint8
	logger    *zap.Logger
}

func NewFleetPoller(client port.InverterQuerier, addresses []uint8, logger *zap.Logger) *DefaultFleetPoller {
	addrs := slices.Clone(addresses)
	slices.Sort(addrs)
	return &DefaultFleetPoller{
		client:    client,
		addresses: slices.Compact(addrs),
		logger:    logger.With(zap.String("component", "poller")),
	}
}

func (p *DefaultFleetPoller) Addresses() []uint8 {
	return slices.Clone(p.addresses)
}

// Poll returns the readings of the inverters that answered, by ascending address.
// Only a lost transport or a cancelled context fails the whole poll.
func (p *DefaultFleetPoller) Poll(ctx context.Context) ([]rs485_inverter.Reading, error) {
	readings := make([]rs485_inverter.Reading, 0, len(p.addresses))
	for _, addr := range p.addresses {
		reading, err := p.client.Query(ctx, addr)
		if err != nil {
			if errors.Is(err, rs485_inverter.ErrTransportUnavailable) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.logger.Warn("poller@poll: inverter absent this cycle", zap.Uint8("inverter", addr), zap.Error(err))
			continue
		}
		readings = append(readings, *reading)
	}
	p.logger.Debug("poller@poll: done", zap.Int("readings", len(readings)), zap.Int("inverters", len(p.addresses)))
	return readings, nil
}

// Absent lists the addresses that have no reading in readings.
func Absent(addresses []uint8, readings []rs485_inverter.Reading) []uint8 {
	seen := make(map[uint8]bool, len(readings))
	for _, r := range readings {
		seen[r.Address] = true
	}
	var absent []uint8
	for _, addr := range addresses {
		if !seen[addr] {
			absent = append(absent, addr)
		}
	}
	return absent
}

// ensure interface compliance
var _ port.FleetPoller = (*DefaultFleetPoller)(nil)
var _ port.InverterQuerier = (*rs485_inverter.Client)(nil)
