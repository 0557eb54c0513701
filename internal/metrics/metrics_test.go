package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecordAttempt(t *testing.T) {

	assert := assert.New(t)

	m := NewMetrics()
	m.RecordAttempt(1, 10*time.Millisecond, nil)
	m.RecordAttempt(1, 10*time.Millisecond, &rs485_inverter.ChecksumError{Address: 1})
	m.RecordAttempt(1, 10*time.Millisecond, &rs485_inverter.FormatError{Address: 1, Reason: "too few tokens"})
	m.RecordAttempt(2, 500*time.Millisecond, rs485_inverter.ErrTimeout)
	m.RecordAttempt(2, 500*time.Millisecond, errors.New("broken pipe"))

	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("01", RESULT_OK)))
	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("01", RESULT_CHECKSUM)))
	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("01", RESULT_FORMAT)))
	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("02", RESULT_TIMEOUT)))
	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("02", RESULT_ERROR)))
}

func TestClientInstrument(t *testing.T) {

	assert := assert.New(t)

	layout := rs485_inverter.DefaultChecksumLayout()
	transport := rs485_inverter.NewTestTransport(func(addr uint8, attempt int) ([]byte, error) {
		frame := rs485_inverter.BuildTestFrame(rs485_inverter.Reading{Address: addr, Status: 3, PowerDC: 100}, layout)
		if attempt == 1 {
			return rs485_inverter.CorruptChecksum(frame, layout), nil
		}
		return frame, nil
	})

	m := NewMetrics()
	client := rs485_inverter.NewClient(transport, layout, 3, 0, zap.NewNop(), m.ClientInstrument())
	_, err := client.Query(context.Background(), 4)
	assert.NoError(err)

	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("04", RESULT_CHECKSUM)))
	assert.Equal(1.0, testutil.ToFloat64(m.attempts.WithLabelValues("04", RESULT_OK)))
}

func TestCycleCompleted(t *testing.T) {

	assert := assert.New(t)

	m := NewMetrics()
	m.CycleCompleted(domain.CycleReport{
		Timestamp: 1717236000,
		Duration:  4 * time.Second,
		Readings:  []rs485_inverter.Reading{{Address: 1}, {Address: 2}},
		Absent:    []uint8{3},
		RollupErr: errors.New("locked"),
	})
	m.CycleCompleted(domain.CycleReport{
		Timestamp: 1717236060,
		Duration:  3 * time.Second,
		AppendErr: errors.New("disk full"),
	})
	m.CycleCompleted(domain.CycleReport{
		Timestamp: 1717236120,
		Absent:    []uint8{1, 2, 3},
		PollErr:   rs485_inverter.ErrTransportUnavailable,
	})

	assert.Equal(0.0, testutil.ToFloat64(m.cycleReadings))
	assert.Equal(3.0, testutil.ToFloat64(m.cycleAbsent))
	assert.Equal(1717236120.0, testutil.ToFloat64(m.lastCycle))
	assert.Equal(1.0, testutil.ToFloat64(m.pollFailures))
	assert.Equal(1.0, testutil.ToFloat64(m.appendFailures))
	assert.Equal(1.0, testutil.ToFloat64(m.rollupFailures))
}

func TestHandler(t *testing.T) {

	assert := assert.New(t)

	m := NewMetrics()
	m.RecordAttempt(5, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(200, rec.Code)
	assert.Contains(rec.Body.String(), `pvlogger_device_attempts_total{inverter="05",result="ok"} 1`)
}

func TestNilMetrics(t *testing.T) {

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAttempt(1, time.Millisecond, nil)
		m.CycleCompleted(domain.CycleReport{})
	})
}
