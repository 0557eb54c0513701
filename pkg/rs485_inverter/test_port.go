package rs485_inverter

import (
	"fmt"
	"strconv"
	"sync"
)

// TestResponder answers the n-th (1 based) query sent to addr.
type TestResponder func(addr uint8, attempt int) ([]byte, error)

// TestTransport is an in-memory bus for tests and dry runs.
type TestTransport struct {
	Respond TestResponder
	OpenErr error
	// FailOpens makes that many next Acquire calls fail before the bus opens again.
	FailOpens int
	WriteErr  error

	mu       sync.Mutex
	inUse    bool
	queries  map[uint8]int
	acquired int
	released int
}

func NewTestTransport(respond TestResponder) *TestTransport {
	return &TestTransport{
		Respond: respond,
		queries: map[uint8]int{},
	}
}

func (t *TestTransport) Acquire() (Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, t.OpenErr)
	}
	if t.FailOpens > 0 {
		t.FailOpens--
		return nil, fmt.Errorf("%w: device busy", ErrTransportUnavailable)
	}
	if t.inUse {
		return nil, fmt.Errorf("%w: bus already acquired", ErrTransportUnavailable)
	}
	t.inUse = true
	t.acquired++
	return &testPort{transport: t}, nil
}

func (t *TestTransport) Queries(addr uint8) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queries[addr]
}

func (t *TestTransport) Acquired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquired
}

func (t *TestTransport) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

type testPort struct {
	transport *TestTransport
	pending   []byte
	err       error
	closed    bool
}

func (p *testPort) Write(b []byte) (int, error) {
	if len(b) < 4 || b[0] != QUERY_PREFIX {
		return 0, fmt.Errorf("unexpected query %q", b)
	}
	addr, err := strconv.ParseUint(string(b[1:3]), 10, 8)
	if err != nil {
		return 0, err
	}
	t := p.transport
	t.mu.Lock()
	t.queries[uint8(addr)]++
	attempt := t.queries[uint8(addr)]
	writeErr := t.WriteErr
	t.mu.Unlock()

	if writeErr != nil {
		return 0, writeErr
	}

	p.pending, p.err = t.Respond(uint8(addr), attempt)
	return len(b), nil
}

func (p *testPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		if p.err != nil {
			err := p.err
			p.err = nil
			return 0, err
		}
		return 0, ErrTimeout
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *testPort) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	t := p.transport
	t.mu.Lock()
	t.inUse = false
	t.released++
	t.mu.Unlock()
	return nil
}

// BuildTestFrame renders r the way an inverter answers, with a valid checksum.
func BuildTestFrame(r Reading, layout ChecksumLayout) []byte {
	text := fmt.Sprintf("\n%c%02d%c %d %.1f %.2f %d %.1f %.2f %d %d %d", RESPONSE_PREFIX, r.Address, QUERY_COMMAND,
		r.Status, r.VoltageDC, r.CurrentDC, r.PowerDC, r.VoltageAC, r.CurrentAC, r.PowerAC, r.Temperature, r.YieldDay)

	frame := make([]byte, 0, layout.PayloadEnd+8)
	for len(frame) < layout.PayloadStart {
		frame = append(frame, ' ')
	}
	frame = append(frame, text...)
	for len(frame) < layout.PayloadEnd {
		frame = append(frame, ' ')
	}
	frame = frame[:layout.PayloadEnd]
	frame = append(frame, Checksum(frame[layout.PayloadStart:layout.PayloadEnd]))
	return append(frame, []byte(" 4600xi\r")...)
}

// CorruptChecksum returns a copy of frame whose checksum byte no longer matches.
func CorruptChecksum(frame []byte, layout ChecksumLayout) []byte {
	out := append([]byte(nil), frame...)
	out[layout.PayloadEnd]++
	return out
}
