package rs485_inverter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	QUERY_PREFIX          = '#'
	QUERY_COMMAND         = '0'
	RESPONSE_PREFIX       = '*'
	RESPONSE_MIN_TOKENS   = 10
	DEFAULT_READ_WINDOW   = 100
	DEFAULT_PAYLOAD_START = 0
	DEFAULT_PAYLOAD_END   = 56
	MAX_ADDRESS           = 99
)

// ChecksumLayout locates the checksummed payload inside a response frame.
// The checksum byte immediately follows the payload, at PayloadEnd.
type ChecksumLayout struct {
	PayloadStart int
	PayloadEnd   int
}

func DefaultChecksumLayout() ChecksumLayout {
	return ChecksumLayout{
		PayloadStart: DEFAULT_PAYLOAD_START,
		PayloadEnd:   DEFAULT_PAYLOAD_END,
	}
}

func (l ChecksumLayout) Validate(readWindow int) error {
	if l.PayloadStart < 0 || l.PayloadEnd <= l.PayloadStart {
		return fmt.Errorf("invalid checksum payload range [%d, %d)", l.PayloadStart, l.PayloadEnd)
	}
	if l.PayloadEnd >= readWindow {
		return fmt.Errorf("checksum byte at %d does not fit in a %d bytes read window", l.PayloadEnd, readWindow)
	}
	return nil
}

func EncodeQuery(addr uint8) []byte {
	return []byte(fmt.Sprintf("%c%02d%c\r\n", QUERY_PREFIX, addr, QUERY_COMMAND))
}

// Checksum is the 8-bit sum of payload, modulo 256.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

func DecodeResponse(addr uint8, frame []byte, layout ChecksumLayout) (*Reading, error) {
	if len(frame) <= layout.PayloadEnd {
		return nil, &FormatError{
			Address: addr,
			Reason:  fmt.Sprintf("short response: %d bytes, checksum expected at %d", len(frame), layout.PayloadEnd),
		}
	}
	payload := frame[layout.PayloadStart:layout.PayloadEnd]
	expected := frame[layout.PayloadEnd]
	if computed := Checksum(payload); computed != expected {
		return nil, &ChecksumError{Address: addr, Expected: expected, Computed: computed}
	}

	tokens := strings.Fields(string(payload))
	if len(tokens) < RESPONSE_MIN_TOKENS {
		return nil, &FormatError{
			Address: addr,
			Reason:  fmt.Sprintf("expected at least %d fields, got %d", RESPONSE_MIN_TOKENS, len(tokens)),
		}
	}
	if echo, ok := parseAddressEcho(tokens[0]); ok && echo != addr {
		return nil, &FormatError{Address: addr, Reason: fmt.Sprintf("response addressed to inverter %02d", echo)}
	}

	p := fieldParser{addr: addr}
	reading := &Reading{
		Address:     addr,
		Status:      p.int("status", tokens[1]),
		VoltageDC:   p.float("voltage_dc", tokens[2]),
		CurrentDC:   p.float("current_dc", tokens[3]),
		PowerDC:     p.int("power_dc", tokens[4]),
		VoltageAC:   p.float("voltage_ac", tokens[5]),
		CurrentAC:   p.float("current_ac", tokens[6]),
		PowerAC:     p.int("power_ac", tokens[7]),
		Temperature: p.int("temperature", tokens[8]),
		YieldDay:    p.int("yield_day", tokens[9]),
	}
	if p.err != nil {
		return nil, p.err
	}
	return reading, nil
}

// parseAddressEcho reads the "*NN0" token that opens a response.
func parseAddressEcho(token string) (uint8, bool) {
	token = strings.TrimLeft(token, string(RESPONSE_PREFIX))
	if len(token) < 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(token[:2], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// fieldParser keeps the first parse failure so positional decoding reads top to bottom.
type fieldParser struct {
	addr uint8
	err  error
}

func (p *fieldParser) int(name string, token string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		p.fail(name, err)
	}
	return v
}

func (p *fieldParser) float(name string, token string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		p.fail(name, err)
	}
	return v
}

func (p *fieldParser) fail(name string, err error) {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		err = numErr.Err
	}
	p.err = &FormatError{Address: p.addr, Reason: fmt.Sprintf("field %s", name), Err: err}
}
