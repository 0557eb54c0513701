package rs485_inverter

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// Port is the bus as seen during one exchange. Close releases it.
type Port interface {
	io.ReadWriteCloser
}

type Transport interface {
	Acquire() (Port, error)
}

type SerialConfig struct {
	Device      string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// SerialTransport hands out exclusive access to a half-duplex RS485 line.
// The device is opened on Acquire and closed when the returned Port is closed.
type SerialTransport struct {
	mu  sync.Mutex
	cfg SerialConfig
}

func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	return &SerialTransport{cfg: cfg}
}

func (t *SerialTransport) Acquire() (Port, error) {
	t.mu.Lock()
	port, err := serial.Open(&serial.Config{
		Address:  t.cfg.Device,
		BaudRate: t.cfg.BaudRate,
		DataBits: t.cfg.DataBits,
		StopBits: t.cfg.StopBits,
		Parity:   t.cfg.Parity,
		Timeout:  t.cfg.ReadTimeout,
	})
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransportUnavailable, t.cfg.Device, err)
	}
	return &serialPort{port: port, release: t.mu.Unlock}, nil
}

// Probe opens and closes the device once.
func (t *SerialTransport) Probe() error {
	port, err := t.Acquire()
	if err != nil {
		return err
	}
	return port.Close()
}

type serialPort struct {
	port    serial.Port
	release func()
	once    sync.Once
}

func (p *serialPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, ErrTimeout
	}
	return n, err
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *serialPort) Close() error {
	var err error
	p.once.Do(func() {
		err = p.port.Close()
		p.release()
	})
	return err
}

// readWindow reads until size bytes arrived or the line went quiet.
// Bytes received before a timeout are returned; a silent line is ErrTimeout.
func readWindow(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	n := 0
	for n < size {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, ErrTimeout) || errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if m == 0 {
			break
		}
	}
	if n == 0 {
		return nil, ErrTimeout
	}
	return buf[:n], nil
}
