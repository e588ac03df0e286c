package internal

import "time"

// SensorStatus is the canonical per-reading health reported by the device.
// Device firmware has been observed sending other vocabularies ("WARNING",
// "-"); everything that is not exactly GOOD normalizes to BAD.
type SensorStatus string

const (
	SensorStatusGood SensorStatus = "GOOD"
	SensorStatusBad  SensorStatus = "BAD"
)

// DeviceStatus is derived from the current sensor batch.
type DeviceStatus string

const (
	DeviceStatusNormal  DeviceStatus = "Normal"
	DeviceStatusProblem DeviceStatus = "Problem"
	DeviceStatusNoData  DeviceStatus = "NoData"
)

type SensorLabel string

const (
	SensorPH          SensorLabel = "pH"
	SensorTDS         SensorLabel = "TDS"
	SensorDO          SensorLabel = "DO"
	SensorTemperature SensorLabel = "Temperature"
)

// SensorReading is one parsed measurement from a telemetry batch.
type SensorReading struct {
	Label        SensorLabel  `json:"label"`
	DisplayValue string       `json:"display_value"`
	Unit         string       `json:"unit"`
	Status       SensorStatus `json:"status"`
	Raw          *float64     `json:"raw,omitempty"`
	Voltage      *float64     `json:"voltage,omitempty"`
	Calibrated   *float64     `json:"calibrated,omitempty"`
	CalibratedOk *bool        `json:"calibrated_ok,omitempty"`
}

// DeviceState is the live record for one physical device. Sensors holds only
// the most recent batch; sensor types absent from the latest payload are not
// carried forward.
type DeviceState struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Status      DeviceStatus    `json:"status"`
	Online      bool            `json:"online"`
	LastOnline  time.Time       `json:"last_online"`
	LastData    time.Time       `json:"last_data"`
	Sensors     []SensorReading `json:"sensors"`
}

type MqttMessage struct {
	Topic   string
	Payload []byte
}

// Wire shapes of the inbound telemetry payload. Any subset of keys may be
// present; absent keys produce no reading.
type telemetryPayload struct {
	Ph          *channelPayload     `json:"ph"`
	Tds         *channelPayload     `json:"tds"`
	Do          *channelPayload     `json:"do"`
	Temperature *temperaturePayload `json:"temperature"`
}

type channelPayload struct {
	Raw          *float64 `json:"raw"`
	Voltage      *float64 `json:"voltage"`
	Calibrated   *float64 `json:"calibrated"`
	CalibratedOk *bool    `json:"calibrated_ok"`
	Status       string   `json:"status"`
}

type temperaturePayload struct {
	Value  *float64 `json:"value"`
	Status string   `json:"status"`
}
