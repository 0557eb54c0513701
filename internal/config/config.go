package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Serial    SerialConfig    `mapstructure:"serial"`
	Inverters InvertersConfig `mapstructure:"inverters"`
	Checksum  ChecksumConfig  `mapstructure:"checksum"`
	Rollup    RollupConfig    `mapstructure:"rollup"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type SerialConfig struct {
	Device            string
	BaudRate          int    `mapstructure:"baud_rate"`
	DataBits          int    `mapstructure:"data_bits"`
	StopBits          int    `mapstructure:"stop_bits"`
	Parity            string `mapstructure:"parity"`
	ReadTimeoutMillis uint32 `mapstructure:"read_timeout_millis"`
	ReadWindow        int    `mapstructure:"read_window"`
	Attempts          int    `mapstructure:"attempts"`
}

type InvertersConfig struct {
	Count     uint8   `mapstructure:"count"`
	Addresses []uint8 `mapstructure:"addresses"`
}

type ChecksumConfig struct {
	PayloadStart int `mapstructure:"payload_start"`
	PayloadEnd   int `mapstructure:"payload_end"`
}

type RollupConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

type DatabaseConfig struct {
	Driver                 string `mapstructure:"driver"`
	MinutesDSN             string `mapstructure:"minutes_dsn"`
	DaysDSN                string `mapstructure:"days_dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}

func (c SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMillis) * time.Millisecond
}

func (c SerialConfig) Transport() rs485_inverter.SerialConfig {
	return rs485_inverter.SerialConfig{
		Device:      c.Device,
		BaudRate:    c.BaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		ReadTimeout: c.ReadTimeout(),
	}
}

// AddressList returns the explicit addresses, or 1..Count when none are given.
func (c InvertersConfig) AddressList() []uint8 {
	if len(c.Addresses) > 0 {
		addrs := slices.Clone(c.Addresses)
		slices.Sort(addrs)
		return addrs
	}
	addrs := make([]uint8, 0, c.Count)
	for i := 1; i <= int(c.Count); i++ {
		addrs = append(addrs, uint8(i))
	}
	return addrs
}

func (c ChecksumConfig) Layout() rs485_inverter.ChecksumLayout {
	return rs485_inverter.ChecksumLayout{
		PayloadStart: c.PayloadStart,
		PayloadEnd:   c.PayloadEnd,
	}
}

func (c RollupConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) Validate() error {
	if len(c.Inverters.Addresses) == 0 && c.Inverters.Count > rs485_inverter.MAX_ADDRESS {
		return fmt.Errorf("config param inverters.count: %d exceeds %d", c.Inverters.Count, rs485_inverter.MAX_ADDRESS)
	}
	addrs := c.Inverters.AddressList()
	if len(addrs) == 0 {
		return errors.New("config param inverters.count or inverters.addresses must select at least one inverter")
	}
	for i, addr := range addrs {
		if addr == 0 || addr > rs485_inverter.MAX_ADDRESS {
			return fmt.Errorf("config param inverters.addresses: address %d out of range 1..%d", addr, rs485_inverter.MAX_ADDRESS)
		}
		if i > 0 && addrs[i-1] == addr {
			return fmt.Errorf("config param inverters.addresses: duplicated address %d", addr)
		}
	}
	if c.Serial.Device == "" {
		return errors.New("config param serial.device is required")
	}
	if c.Serial.Attempts < 1 {
		return errors.New("config param serial.attempts should be >= 1")
	}
	if c.Serial.ReadTimeoutMillis == 0 {
		return errors.New("config param serial.read_timeout_millis should be > 0")
	}
	if err := c.Checksum.Layout().Validate(c.Serial.ReadWindow); err != nil {
		return fmt.Errorf("config param checksum: %w", err)
	}
	if _, err := c.Rollup.Location(); err != nil {
		return fmt.Errorf("config param rollup.timezone: %w", err)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config param database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.MinutesDSN == "" || c.Database.DaysDSN == "" {
		return errors.New("config params database.minutes_dsn and database.days_dsn are required")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
