package internal

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
)

// TdsStandard is a named reference solution offered to the operator.
type TdsStandard struct {
	Value float64
	Label string
}

var TdsStandards = []TdsStandard{
	{0, "distilled water"},
	{84, "NaCl 0.01%"},
	{342, "NaCl 0.02%"},
	{500, "500 ppm"},
	{1000, "1000 ppm"},
	{1413, "KCl standard"},
}

var ErrNoStandard = errors.New("no reference standard selected")

// TdsCompensationCoefficient normalizes a reading to the 25 °C reference
// temperature.
func TdsCompensationCoefficient(temperature float64) float64 {
	return 1.0 + 0.02*(temperature-25.0)
}

// TdsRawFromVoltage applies the sensor's fixed cubic response curve to a
// temperature-compensated voltage. Never negative.
func TdsRawFromVoltage(voltage, temperature float64) float64 {
	vc := voltage / TdsCompensationCoefficient(temperature)
	raw := (133.42*math.Pow(vc, 3) - 255.86*math.Pow(vc, 2) + 857.39*vc) * 0.5
	return math.Max(0, raw)
}

// TdsCalibrationConstant derives the single-point constant k from a reference
// standard. A zero raw reading would make k meaningless, so it defaults to 1.
func TdsCalibrationConstant(referenceStandard, rawTds float64) float64 {
	if rawTds <= 0 {
		return 1.0
	}
	return referenceStandard / rawTds
}

// TdsCalibrated is the calibrated estimate, clamped to the sensor's 0-1000
// ppm range.
func TdsCalibrated(rawTds, k float64) float64 {
	return math.Max(0, math.Min(1000, rawTds*k))
}

// TdsPreview is the operator feedback computed locally while calibrating. The
// device derives its own k from the submitted raw values; this preview only
// mirrors that computation.
type TdsPreview struct {
	CompensationCoefficient float64 `json:"compensation_coefficient"`
	CompensatedVoltage      float64 `json:"compensated_voltage"`
	RawTds                  float64 `json:"raw_tds"`
	KConstant               float64 `json:"k_constant"`
	Calibrated              float64 `json:"calibrated"`
}

type tdsCommand struct {
	Tds struct {
		V   float64 `json:"v"`
		Std float64 `json:"std"`
		T   float64 `json:"t"`
	} `json:"tds"`
}

// TdsCalibration is one single-point TDS calibration session bound to a
// device.
type TdsCalibration struct {
	SessionID string

	deviceID string
	feed     ReadingSource
	commands CommandPublisher

	mu       sync.Mutex
	standard float64
	selected bool
}

func NewTdsCalibration(deviceID string, feed ReadingSource, commands CommandPublisher) *TdsCalibration {
	return &TdsCalibration{
		SessionID: uuid.NewString(),
		deviceID:  deviceID,
		feed:      feed,
		commands:  commands,
	}
}

// SetStandard chooses the reference solution the probe is immersed in.
func (c *TdsCalibration) SetStandard(value float64) error {
	if value < 0 || math.IsNaN(value) {
		return ErrInvalidReference
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.standard = value
	c.selected = true
	return nil
}

// Preview computes the current calibration feedback from the live reading.
func (c *TdsCalibration) Preview() (TdsPreview, error) {
	c.mu.Lock()
	standard, selected := c.standard, c.selected
	c.mu.Unlock()

	if !selected {
		return TdsPreview{}, ErrNoStandard
	}
	voltage, temperature := c.feed.Voltage(), c.feed.Temperature()
	if voltage <= 0 || temperature <= 0 {
		return TdsPreview{}, ErrNotReady
	}

	coeff := TdsCompensationCoefficient(temperature)
	raw := TdsRawFromVoltage(voltage, temperature)
	k := TdsCalibrationConstant(standard, raw)
	return TdsPreview{
		CompensationCoefficient: coeff,
		CompensatedVoltage:      voltage / coeff,
		RawTds:                  raw,
		KConstant:               k,
		Calibrated:              TdsCalibrated(raw, k),
	}, nil
}

// Submit sends the raw voltage, chosen standard and current temperature to
// the device, which derives k on its side.
func (c *TdsCalibration) Submit(ctx context.Context) error {
	c.mu.Lock()
	standard, selected := c.standard, c.selected
	c.mu.Unlock()

	if !selected {
		return ErrNoStandard
	}
	if !c.feed.Connected() || c.feed.Voltage() <= 0 || c.feed.Temperature() <= 0 {
		return ErrNotReady
	}

	var cmd tdsCommand
	cmd.Tds.V = roundTo(c.feed.Voltage(), 4)
	cmd.Tds.Std = roundTo(standard, 2)
	cmd.Tds.T = roundTo(c.feed.Temperature(), 2)
	return c.commands.Publish(ctx, c.deviceID, "calibrate", cmd)
}
