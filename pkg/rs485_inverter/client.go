package rs485_inverter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DEFAULT_ATTEMPTS = 3
)

type ClientInstrument struct {
	RecordAttempt func(addr uint8, duration time.Duration, err error)
}

// Client drives request/response exchanges with inverters sharing one transport.
type Client struct {
	transport  Transport
	layout     ChecksumLayout
	attempts   int
	readWindow int
	logger     *zap.Logger
	instrument []ClientInstrument
}

func NewClient(transport Transport, layout ChecksumLayout, attempts int, readWindow int,
	logger *zap.Logger, instrumentation *ClientInstrument) *Client {
	if attempts < 1 {
		attempts = DEFAULT_ATTEMPTS
	}
	if readWindow <= 0 {
		readWindow = DEFAULT_READ_WINDOW
	}
	var inst []ClientInstrument
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &Client{
		transport:  transport,
		layout:     layout,
		attempts:   attempts,
		readWindow: readWindow,
		logger:     logger.With(zap.String("component", "rs485")),
		instrument: inst,
	}
}

// Query holds the transport for every attempt of one inverter and releases it on return.
// Only checksum, format and timeout failures are retried.
// A *NoReadingError means the inverter is absent this cycle; a wrapped
// ErrTransportUnavailable means no inverter can be reached at all.
func (c *Client) Query(ctx context.Context, addr uint8) (*Reading, error) {
	port, err := c.transport.Acquire()
	if err != nil {
		return nil, err
	}
	defer port.Close()

	var last error
	attempts := 0
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		attempts = attempt
		reading, err := c.exchange(port, addr)
		c.record(addr, time.Since(start), err)
		if err == nil {
			return reading, nil
		}
		last = err
		c.logger.Debug("rs485@query: attempt failed", zap.Uint8("inverter", addr),
			zap.Int("attempt", attempt), zap.Error(err))
		if !IsRetryable(err) {
			break
		}
	}
	return nil, &NoReadingError{Address: addr, Attempts: attempts, Last: last}
}

func (c *Client) exchange(port Port, addr uint8) (*Reading, error) {
	if _, err := port.Write(EncodeQuery(addr)); err != nil {
		return nil, fmt.Errorf("write query: %w", err)
	}
	frame, err := readWindow(port, c.readWindow)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(addr, frame, c.layout)
}

func (c *Client) record(addr uint8, duration time.Duration, err error) {
	for i := range c.instrument {
		if c.instrument[i].RecordAttempt != nil {
			c.instrument[i].RecordAttempt(addr, duration, err)
		}
	}
}
