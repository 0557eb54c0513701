package rs485_inverter

// Reading is one decoded response of one inverter.
type Reading struct {
	Address     uint8   `json:"inverter_id"`
	Status      int     `json:"status"`
	VoltageDC   float64 `json:"voltage_dc"`
	CurrentDC   float64 `json:"current_dc"`
	PowerDC     int     `json:"power_dc"`
	VoltageAC   float64 `json:"voltage_ac"`
	CurrentAC   float64 `json:"current_ac"`
	PowerAC     int     `json:"power_ac"`
	Temperature int     `json:"temperature"`
	YieldDay    int     `json:"yield_day"`
}
