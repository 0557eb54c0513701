package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func validConfig() Config {
	return Config{
		LogLevel: zap.DebugLevel,
		Serial: SerialConfig{
			Device:            "/dev/ttyUSB0",
			BaudRate:          9600,
			DataBits:          8,
			StopBits:          1,
			Parity:            "N",
			ReadTimeoutMillis: 500,
			ReadWindow:        100,
			Attempts:          3,
		},
		Inverters: InvertersConfig{Count: 5},
		Checksum:  ChecksumConfig{PayloadStart: 0, PayloadEnd: 56},
		Rollup:    RollupConfig{Timezone: "Europe/Zurich"},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			MinutesDSN: "database/pv_minutes.db",
			DaysDSN:    "database/pv_days.db",
		},
		Port: 8080,
	}
}

func TestValidConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	assert.NoError(cfg.Validate())
	assert.Equal([]uint8{1, 2, 3, 4, 5}, cfg.Inverters.AddressList())
	assert.Equal(56, cfg.Checksum.Layout().PayloadEnd)
	assert.Equal("/dev/ttyUSB0", cfg.Serial.Transport().Device)
	assert.Equal(int64(500), cfg.Serial.ReadTimeout().Milliseconds())
}

func TestExplicitAddresses(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	cfg.Inverters.Addresses = []uint8{7, 3}
	assert.NoError(cfg.Validate())
	assert.Equal([]uint8{3, 7}, cfg.Inverters.AddressList(), "explicit addresses win over count")
}

func TestInvalidConfig(t *testing.T) {

	assert := assert.New(t)

	cases := map[string]func(*Config){
		"no inverters":       func(c *Config) { c.Inverters.Count = 0 },
		"address zero":       func(c *Config) { c.Inverters.Addresses = []uint8{0, 1} },
		"address too big":    func(c *Config) { c.Inverters.Addresses = []uint8{100} },
		"count too big":      func(c *Config) { c.Inverters.Count = 100 },
		"count at type max":  func(c *Config) { c.Inverters.Count = 255 },
		"duplicated address": func(c *Config) { c.Inverters.Addresses = []uint8{2, 2} },
		"no device":          func(c *Config) { c.Serial.Device = "" },
		"no attempts":        func(c *Config) { c.Serial.Attempts = 0 },
		"no read timeout":    func(c *Config) { c.Serial.ReadTimeoutMillis = 0 },
		"checksum outside":   func(c *Config) { c.Checksum.PayloadEnd = 120 },
		"unknown timezone":   func(c *Config) { c.Rollup.Timezone = "Mars/Olympus_Mons" },
		"unknown driver":     func(c *Config) { c.Database.Driver = "oracle" },
		"no days dsn":        func(c *Config) { c.Database.DaysDSN = "" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(cfg.Validate(), name)
	}
}

func TestAddressListFullRange(t *testing.T) {

	assert := assert.New(t)

	addrs := InvertersConfig{Count: 255}.AddressList()
	assert.Len(addrs, 255)
	assert.Equal(uint8(1), addrs[0])
	assert.Equal(uint8(255), addrs[254])

	assert.Equal([]uint8{2, 7}, InvertersConfig{Count: 5, Addresses: []uint8{7, 2}}.AddressList())
}

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("PVLogger_1")
	assert.NoError(err)
	assert.Equal("pvlogger_1", topic)

	_, err = CheckMQTTTopic("pv/logger")
	assert.Error(err)
}
