package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ParseTelemetry turns one raw telemetry message into a normalized reading
// batch. A malformed payload returns an error and zero readings; the caller
// logs and drops the message so one bad device cannot affect others.
func ParseTelemetry(payload []byte) ([]SensorReading, error) {
	var data telemetryPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("error unmarshaling telemetry payload: %w", err)
	}

	readings := make([]SensorReading, 0, 4)
	if data.Ph != nil {
		readings = append(readings, channelReading(SensorPH, "", 2, data.Ph))
	}
	if data.Tds != nil {
		readings = append(readings, channelReading(SensorTDS, "ppm", 1, data.Tds))
	}
	if data.Do != nil {
		readings = append(readings, channelReading(SensorDO, "mg/L", 2, data.Do))
	}
	if data.Temperature != nil {
		readings = append(readings, temperatureReading(data.Temperature))
	}
	return readings, nil
}

func channelReading(label SensorLabel, unit string, precision int, ch *channelPayload) SensorReading {
	return SensorReading{
		Label:        label,
		DisplayValue: displayValue(ch.Calibrated, ch.Raw, precision),
		Unit:         unit,
		Status:       normalizeStatus(ch.Status),
		Raw:          ch.Raw,
		Voltage:      ch.Voltage,
		Calibrated:   ch.Calibrated,
		CalibratedOk: ch.CalibratedOk,
	}
}

func temperatureReading(t *temperaturePayload) SensorReading {
	return SensorReading{
		Label:        SensorTemperature,
		DisplayValue: displayValue(t.Value, nil, 1),
		Unit:         "°C",
		Status:       normalizeStatus(t.Status),
		Raw:          t.Value,
	}
}

// displayValue prefers the calibrated value, falls back to raw, and shows the
// "-" sentinel when neither is present.
func displayValue(calibrated, raw *float64, precision int) string {
	switch {
	case calibrated != nil:
		return strconv.FormatFloat(*calibrated, 'f', precision, 64)
	case raw != nil:
		return strconv.FormatFloat(*raw, 'f', precision, 64)
	default:
		return "-"
	}
}

// normalizeStatus maps every observed firmware status vocabulary onto the
// canonical GOOD/BAD enum. Only the exact string GOOD counts as healthy.
func normalizeStatus(status string) SensorStatus {
	if status == string(SensorStatusGood) {
		return SensorStatusGood
	}
	return SensorStatusBad
}
