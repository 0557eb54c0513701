package rs485_inverter

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout              = errors.New("rs485: read timeout")
	ErrTransportUnavailable = errors.New("rs485: transport unavailable")
)

type ChecksumError struct {
	Address  uint8
	Expected byte
	Computed byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("rs485: inverter %02d checksum mismatch: frame says 0x%02x, computed 0x%02x",
		e.Address, e.Expected, e.Computed)
}

type FormatError struct {
	Address uint8
	Reason  string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rs485: inverter %02d malformed response: %s: %s", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("rs485: inverter %02d malformed response: %s", e.Address, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NoReadingError is returned once every attempt of an exchange failed.
type NoReadingError struct {
	Address  uint8
	Attempts int
	Last     error
}

func (e *NoReadingError) Error() string {
	return fmt.Sprintf("rs485: no reading from inverter %02d after %d attempts: %s", e.Address, e.Attempts, e.Last)
}

func (e *NoReadingError) Unwrap() error {
	return e.Last
}

// IsRetryable reports whether a failed exchange may be repeated on the same bus.
func IsRetryable(err error) bool {
	var csErr *ChecksumError
	var fmtErr *FormatError
	return errors.As(err, &csErr) || errors.As(err, &fmtErr) || errors.Is(err, ErrTimeout)
}
