package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/pvlogger/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_ID_STATUS             = "status"
	SENSOR_ID_VOLTAGE_DC         = "voltage_dc"
	SENSOR_ID_CURRENT_DC         = "current_dc"
	SENSOR_ID_POWER_DC           = "power_dc"
	SENSOR_ID_VOLTAGE_AC         = "voltage_ac"
	SENSOR_ID_CURRENT_AC         = "current_ac"
	SENSOR_ID_POWER_AC           = "power_ac"
	SENSOR_ID_TEMPERATURE        = "temperature"
	SENSOR_ID_YIELD_DAY          = "yield_day"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("pvlogger_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "PVLogger",
		Model:        "RS485 bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("PVLogger %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(baseTopic string, addr uint8) domain.Device {
	bridge := BridgeDevice(baseTopic)
	return domain.Device{
		Id:        fmt.Sprintf("pvlogger_inverter_%s_%02d", md5HashShort(baseTopic), addr),
		Model:     "RS485 inverter",
		Name:      fmt.Sprintf("Inverter %02d", addr),
		ViaDevice: bridge.Id,
	}
}

// InverterSensors describes every field of a reading. All of them share the inverter state
// topic and pick their value out of the JSON payload.
func InverterSensors(inverterDevice domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	measurement := func(id, name, deviceClass, unit, icon string) {
		sensors = append(sensors, domain.GenericSensor{
			Device:            inverterDevice,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       deviceClass,
			UnitOfMeasurement: unit,
			ValueTemplate:     valueTemplate(id),
			Icon:              icon,
			UniqueId:          uniqueId(inverterDevice.Id, id),
		})
	}

	// Operating status
	sensors = append(sensors, domain.GenericSensor{
		Device:         inverterDevice,
		Id:             SENSOR_ID_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Status",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		ValueTemplate:  valueTemplate(SENSOR_ID_STATUS),
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_STATUS),
	})

	measurement(SENSOR_ID_VOLTAGE_DC, "DC voltage", DEVICE_CLASS_VOLTAGE, "V", "")
	measurement(SENSOR_ID_CURRENT_DC, "DC current", DEVICE_CLASS_CURRENT, "A", "")
	measurement(SENSOR_ID_POWER_DC, "DC power", DEVICE_CLASS_POWER, "W", "mdi:solar-power")
	measurement(SENSOR_ID_VOLTAGE_AC, "AC voltage", DEVICE_CLASS_VOLTAGE, "V", "")
	measurement(SENSOR_ID_CURRENT_AC, "AC current", DEVICE_CLASS_CURRENT, "A", "")
	measurement(SENSOR_ID_POWER_AC, "AC power", DEVICE_CLASS_POWER, "W", "mdi:transmission-tower-export")
	measurement(SENSOR_ID_TEMPERATURE, "Temperature", DEVICE_CLASS_TEMPERATURE, "°C", "")

	// Daily yield resets at midnight
	sensors = append(sensors, domain.GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_YIELD_DAY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Yield today",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "Wh",
		ValueTemplate:     valueTemplate(SENSOR_ID_YIELD_DAY),
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_YIELD_DAY),
	})

	return sensors
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	// Bridge state
	sensors = append(sensors, domain.GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// FleetSensors lists the bridge sensors followed by the sensors of every inverter.
func FleetSensors(baseTopic string, addrs []uint8) []domain.GenericSensor {
	sensors := BridgeSensors(BridgeDevice(baseTopic))
	for _, addr := range addrs {
		sensors = append(sensors, InverterSensors(InverterDevice(baseTopic, addr))...)
	}
	return sensors
}

func valueTemplate(field string) string {
	return fmt.Sprintf("{{ value_json.%s }}", field)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
