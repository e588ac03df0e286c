package internal

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Saturated-DO reference values per integer degree Celsius, 0-40, from the
// probe manufacturer's table. Indexing clamps at the boundaries.
var doSaturationTable = [41]float64{
	14460, 14220, 13820, 13440, 13090, 12740, 12420, 12110, 11810, 11530,
	11260, 11010, 10770, 10530, 10300, 10080, 9860, 9660, 9460, 9270,
	9080, 8900, 8730, 8570, 8410, 8250, 8110, 7960, 7820, 7690,
	7560, 7430, 7300, 7180, 7070, 6950, 6840, 6730, 6630, 6530, 6410,
}

// DoSaturationAt looks up the expected saturated-DO value for a temperature,
// clamped to the table's 0-40 °C range.
func DoSaturationAt(temperature float64) float64 {
	idx := int(math.Floor(temperature))
	if idx < 0 {
		idx = 0
	}
	if idx > 40 {
		idx = 40
	}
	return doSaturationTable[idx]
}

// DoUncalibrated is the rough estimate used before any calibration exists.
func DoUncalibrated(voltageMV float64) float64 {
	return (voltageMV * 6.5) / 1000.0
}

// DoTheoreticalSaturation is the sea-level saturation polynomial shown to the
// operator as a sanity reference.
func DoTheoreticalSaturation(temperature float64) float64 {
	const (
		a = 14.652
		b = -0.41022
		c = 0.007991
		d = -0.000077774
	)
	return a + b*temperature + c*temperature*temperature + d*temperature*temperature*temperature
}

// DoCalibrated converts a voltage to mg/L against a saturation-voltage
// reference, clamped to the realistic 0-20 mg/L range.
func DoCalibrated(voltageMV, temperature, vSat float64) float64 {
	if vSat <= 0 {
		return 0
	}
	mgL := (voltageMV * DoSaturationAt(temperature)) / (vSat * 1000.0)
	return math.Max(0, math.Min(20, mgL))
}

type DoMode string

const (
	DoModeSingle   DoMode = "single"
	DoModeTwoPoint DoMode = "two-point"
)

// DoStep tracks the two-point capture state machine.
type DoStep int

const (
	DoStepAwaitingPoint1 DoStep = iota + 1
	DoStepAwaitingPoint2
	DoStepComplete
)

// DoPoint is one captured saturation reference: saturated air for point 1,
// zero-DO solution for point 2.
type DoPoint struct {
	Voltage     float64   `json:"voltage"`
	Temperature float64   `json:"temperature"`
	CapturedAt  time.Time `json:"captured_at"`
}

type doCommand struct {
	Do map[string]any `json:"do"`
}

var ErrPointsNotCaptured = errors.New("both calibration points must be captured")

// DoCalibration is one dissolved-oxygen calibration session bound to a
// device. Single-point mode anchors on the current saturated-air reading at
// submit time; two-point mode walks the capture state machine first.
type DoCalibration struct {
	SessionID string

	deviceID string
	feed     ReadingSource
	commands CommandPublisher

	mu     sync.Mutex
	mode   DoMode
	step   DoStep
	point1 *DoPoint
	point2 *DoPoint
}

func NewDoCalibration(deviceID string, feed ReadingSource, commands CommandPublisher) *DoCalibration {
	return &DoCalibration{
		SessionID: uuid.NewString(),
		deviceID:  deviceID,
		feed:      feed,
		commands:  commands,
		mode:      DoModeSingle,
		step:      DoStepAwaitingPoint1,
	}
}

// SetMode switches between single and two-point calibration. Switching to
// single-point discards any captured points.
func (c *DoCalibration) SetMode(mode DoMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	if mode == DoModeSingle {
		c.resetLocked()
	}
}

func (c *DoCalibration) Mode() DoMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *DoCalibration) Step() DoStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *DoCalibration) Points() (point1, point2 *DoPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.point1, c.point2
}

// CapturePoint records the current live reading as the next two-point
// reference and advances the state machine.
func (c *DoCalibration) CapturePoint() (DoPoint, error) {
	if !c.feed.Connected() || c.feed.Voltage() <= 0 || c.feed.Temperature() <= 0 {
		return DoPoint{}, ErrNotReady
	}

	point := DoPoint{
		Voltage:     c.feed.Voltage(),
		Temperature: c.feed.Temperature(),
		CapturedAt:  time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.step {
	case DoStepAwaitingPoint1:
		c.point1 = &point
		c.step = DoStepAwaitingPoint2
	case DoStepAwaitingPoint2:
		c.point2 = &point
		c.step = DoStepComplete
	default:
		return DoPoint{}, errors.New("two-point capture already complete")
	}
	return point, nil
}

// Reset returns the capture state machine to step 1, discarding both points.
// Available at any time before or after completion.
func (c *DoCalibration) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *DoCalibration) resetLocked() {
	c.point1 = nil
	c.point2 = nil
	c.step = DoStepAwaitingPoint1
}

// VSat derives the saturation-voltage reference for the current mode at a
// given temperature. Two-point interpolation guards against equal capture
// temperatures by falling back to point 1.
func (c *DoCalibration) VSat(temperature float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case DoModeTwoPoint:
		if c.point1 == nil || c.point2 == nil {
			return 0, ErrPointsNotCaptured
		}
		return interpolateVSat(*c.point1, *c.point2, temperature), nil
	default:
		if c.point1 != nil {
			return c.point1.Voltage, nil
		}
		// no capture yet: anchor on the current saturated-air reading
		return c.feed.Voltage(), nil
	}
}

// Estimate is the calibrated mg/L value for the current live reading, for
// operator preview.
func (c *DoCalibration) Estimate() (float64, error) {
	vSat, err := c.VSat(c.feed.Temperature())
	if err != nil {
		return 0, err
	}
	return DoCalibrated(c.feed.Voltage(), c.feed.Temperature(), vSat), nil
}

// Submit publishes the calibration command for the current mode.
func (c *DoCalibration) Submit(ctx context.Context) error {
	c.mu.Lock()
	mode := c.mode
	point1, point2 := c.point1, c.point2
	c.mu.Unlock()

	if mode == DoModeTwoPoint {
		if point1 == nil || point2 == nil {
			return ErrPointsNotCaptured
		}
		if !c.feed.Connected() {
			return ErrNotReady
		}
		return c.commands.Publish(ctx, c.deviceID, "calibrate", doCommand{Do: map[string]any{
			"cal1_v":         roundTo(point1.Voltage, 2),
			"cal1_t":         roundTo(point1.Temperature, 2),
			"cal2_v":         roundTo(point2.Voltage, 2),
			"cal2_t":         roundTo(point2.Temperature, 2),
			"two_point_mode": true,
			"calibrated":     true,
		}})
	}

	if !c.feed.Connected() || c.feed.Voltage() <= 0 || c.feed.Temperature() <= 0 {
		return ErrNotReady
	}
	return c.commands.Publish(ctx, c.deviceID, "calibrate", doCommand{Do: map[string]any{
		"cal1_v":         roundTo(c.feed.Voltage(), 2),
		"cal1_t":         roundTo(c.feed.Temperature(), 2),
		"two_point_mode": false,
		"calibrated":     true,
	}})
}

func interpolateVSat(p1, p2 DoPoint, temperature float64) float64 {
	if p1.Temperature == p2.Temperature {
		return p1.Voltage
	}
	return p1.Voltage + ((temperature-p1.Temperature)*(p2.Voltage-p1.Voltage))/(p2.Temperature-p1.Temperature)
}
