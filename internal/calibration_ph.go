package internal

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Standard pH buffer solutions offered to the operator; any other reference
// is entered as a custom value.
var PhBuffers = []float64{4.01, 6.86, 9.18}

var (
	ErrDuplicatePoint     = errors.New("reference value already captured")
	ErrInsufficientPoints = errors.New("at least two calibration points required")
	ErrNotReady           = errors.New("calibration preconditions not met")
	ErrInvalidReference   = errors.New("reference value out of range")
)

// PhPoint pairs an operator-confirmed buffer reference with the live sensor
// voltage at capture time.
type PhPoint struct {
	Reference  float64   `json:"reference"`
	Voltage    float64   `json:"voltage"`
	CapturedAt time.Time `json:"captured_at"`
}

// PhFit is the least-squares model pH = Slope*V + Intercept with its quality
// metric. RSquared is a warn-only gate: operators may submit a poor fit.
type PhFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Points    int     `json:"points"`
}

type phCommand struct {
	Ph struct {
		M float64 `json:"m"`
		C float64 `json:"c"`
	} `json:"ph"`
}

// PhCalibration is one pH calibration session bound to a device. Points are
// owned by the session and discarded with it.
type PhCalibration struct {
	SessionID string

	deviceID  string
	feed      ReadingSource
	commands  CommandPublisher
	tolerance float64

	mu     sync.Mutex
	points []PhPoint
}

func NewPhCalibration(deviceID string, feed ReadingSource, commands CommandPublisher, tolerance float64) *PhCalibration {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &PhCalibration{
		SessionID: uuid.NewString(),
		deviceID:  deviceID,
		feed:      feed,
		commands:  commands,
		tolerance: tolerance,
	}
}

// CapturePoint confirms the current live voltage against a buffer reference.
// References closer than the duplicate tolerance to an existing point are
// rejected.
func (c *PhCalibration) CapturePoint(reference float64) (PhPoint, error) {
	if reference < 0 || reference > 14 {
		return PhPoint{}, ErrInvalidReference
	}
	if !c.feed.Connected() || c.feed.Voltage() <= 0 {
		return PhPoint{}, ErrNotReady
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.points {
		if math.Abs(p.Reference-reference) < c.tolerance {
			return PhPoint{}, ErrDuplicatePoint
		}
	}

	point := PhPoint{
		Reference:  reference,
		Voltage:    c.feed.Voltage(),
		CapturedAt: time.Now(),
	}
	c.points = append(c.points, point)
	sort.Slice(c.points, func(i, j int) bool {
		return c.points[i].Reference < c.points[j].Reference
	})
	return point, nil
}

func (c *PhCalibration) RemovePoint(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.points) {
		return errors.New("calibration point index out of range")
	}
	c.points = append(c.points[:index], c.points[index+1:]...)
	return nil
}

func (c *PhCalibration) Points() []PhPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PhPoint, len(c.points))
	copy(out, c.points)
	return out
}

// Fit recomputes the regression from the current points.
func (c *PhCalibration) Fit() (PhFit, error) {
	c.mu.Lock()
	points := make([]PhPoint, len(c.points))
	copy(points, c.points)
	c.mu.Unlock()

	if len(points) < 2 {
		return PhFit{}, ErrInsufficientPoints
	}

	slope, intercept := fitLinear(points)
	return PhFit{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared(points, slope, intercept),
		Points:    len(points),
	}, nil
}

// Predict applies the current fit to a voltage, for operator preview.
func (c *PhCalibration) Predict(voltage float64) (float64, error) {
	fit, err := c.Fit()
	if err != nil {
		return 0, err
	}
	return fit.Slope*voltage + fit.Intercept, nil
}

// Submit publishes the fitted parameters, rounded to 5 decimals, to the
// device's calibration topic. The session is left intact on failure so the
// operator can resubmit.
func (c *PhCalibration) Submit(ctx context.Context) error {
	if !c.feed.Connected() || c.feed.Voltage() <= 0 || c.feed.Temperature() <= 0 {
		return ErrNotReady
	}

	fit, err := c.Fit()
	if err != nil {
		return err
	}

	var cmd phCommand
	cmd.Ph.M = roundTo(fit.Slope, 5)
	cmd.Ph.C = roundTo(fit.Intercept, 5)
	return c.commands.Publish(ctx, c.deviceID, "calibrate", cmd)
}

// fitLinear is ordinary least squares over (voltage, reference) pairs.
func fitLinear(points []PhPoint) (slope, intercept float64) {
	n := float64(len(points))
	var sumV, sumP, sumVP, sumVV float64
	for _, p := range points {
		sumV += p.Voltage
		sumP += p.Reference
		sumVP += p.Voltage * p.Reference
		sumVV += p.Voltage * p.Voltage
	}
	slope = (n*sumVP - sumV*sumP) / (n*sumVV - sumV*sumV)
	intercept = (sumP - slope*sumV) / n
	return slope, intercept
}

// rSquared is the coefficient of determination of the fit against the
// captured references.
func rSquared(points []PhPoint, slope, intercept float64) float64 {
	if len(points) < 2 {
		return 0
	}
	var mean float64
	for _, p := range points {
		mean += p.Reference
	}
	mean /= float64(len(points))

	var total, residual float64
	for _, p := range points {
		predicted := slope*p.Voltage + intercept
		total += (p.Reference - mean) * (p.Reference - mean)
		residual += (p.Reference - predicted) * (p.Reference - predicted)
	}
	if total == 0 {
		return 1
	}
	return 1 - residual/total
}
