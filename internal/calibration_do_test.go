package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSaturationAt(t *testing.T) {
	tests := []struct {
		temperature float64
		expected    float64
	}{
		{0, 14460},
		{-5, 14460},
		{25, 8250},
		{25.7, 8250},
		{40, 6410},
		{45, 6410},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, DoSaturationAt(test.temperature), "temperature %v", test.temperature)
	}
}

func TestDoUncalibrated(t *testing.T) {
	assert.InDelta(t, 9.75, DoUncalibrated(1500), 1e-9)
	assert.InDelta(t, 0.0, DoUncalibrated(0), 1e-9)
}

func TestDoTheoreticalSaturation(t *testing.T) {
	// the polynomial at 0 °C is its constant term
	assert.InDelta(t, 14.652, DoTheoreticalSaturation(0), 1e-9)
	assert.InDelta(t, 8.1757, DoTheoreticalSaturation(25), 1e-3)
}

func TestDoCalibrated(t *testing.T) {
	// voltage equal to the saturation reference reads the table value
	assert.InDelta(t, 8.25, DoCalibrated(1400, 25, 1400), 1e-9)
	assert.Equal(t, 20.0, DoCalibrated(4200, 25, 1400), "clamped high")
	assert.Equal(t, 0.0, DoCalibrated(-100, 25, 1400), "clamped low")
	assert.Equal(t, 0.0, DoCalibrated(1400, 25, 0), "zero reference guard")
}

func TestDoTwoPointStateMachine(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400, temperature: 25}
	cal := NewDoCalibration("SMNR-0001", feed, &capturePublisher{})
	cal.SetMode(DoModeTwoPoint)

	assert.Equal(t, DoStepAwaitingPoint1, cal.Step())

	_, err := cal.CapturePoint()
	require.NoError(t, err)
	assert.Equal(t, DoStepAwaitingPoint2, cal.Step())

	feed.voltage = 80
	feed.temperature = 26
	_, err = cal.CapturePoint()
	require.NoError(t, err)
	assert.Equal(t, DoStepComplete, cal.Step())

	_, err = cal.CapturePoint()
	assert.Error(t, err, "capture past completion")

	point1, point2 := cal.Points()
	require.NotNil(t, point1)
	require.NotNil(t, point2)
	assert.Equal(t, 1400.0, point1.Voltage)
	assert.Equal(t, 80.0, point2.Voltage)

	cal.Reset()
	assert.Equal(t, DoStepAwaitingPoint1, cal.Step())
	point1, point2 = cal.Points()
	assert.Nil(t, point1)
	assert.Nil(t, point2)
}

func TestDoSwitchingToSingleDiscardsPoints(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400, temperature: 25}
	cal := NewDoCalibration("SMNR-0001", feed, &capturePublisher{})
	cal.SetMode(DoModeTwoPoint)

	_, err := cal.CapturePoint()
	require.NoError(t, err)

	cal.SetMode(DoModeSingle)
	assert.Equal(t, DoModeSingle, cal.Mode())
	assert.Equal(t, DoStepAwaitingPoint1, cal.Step())
	point1, _ := cal.Points()
	assert.Nil(t, point1)
}

func TestDoCaptureReadiness(t *testing.T) {
	feed := &stubFeed{connected: false, voltage: 1400, temperature: 25}
	cal := NewDoCalibration("SMNR-0001", feed, &capturePublisher{})

	_, err := cal.CapturePoint()
	assert.ErrorIs(t, err, ErrNotReady)

	feed.connected = true
	feed.voltage = 0
	_, err = cal.CapturePoint()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDoVSatInterpolation(t *testing.T) {
	p1 := DoPoint{Voltage: 1400, Temperature: 20}
	p2 := DoPoint{Voltage: 1200, Temperature: 30}

	assert.InDelta(t, 1300, interpolateVSat(p1, p2, 25), 1e-9)
	assert.InDelta(t, 1400, interpolateVSat(p1, p2, 20), 1e-9)
	assert.InDelta(t, 1200, interpolateVSat(p1, p2, 30), 1e-9)
	// extrapolation beyond the captured range is allowed
	assert.InDelta(t, 1440, interpolateVSat(p1, p2, 18), 1e-9)

	equal := DoPoint{Voltage: 1200, Temperature: 20}
	assert.Equal(t, 1400.0, interpolateVSat(p1, equal, 25), "equal temperatures fall back to point 1")
}

func TestDoVSatTwoPointRequiresBothPoints(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400, temperature: 25}
	cal := NewDoCalibration("SMNR-0001", feed, &capturePublisher{})
	cal.SetMode(DoModeTwoPoint)

	_, err := cal.VSat(25)
	assert.ErrorIs(t, err, ErrPointsNotCaptured)
}

func TestDoSingleModeEstimate(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400, temperature: 25}
	cal := NewDoCalibration("SMNR-0001", feed, &capturePublisher{})

	// no capture yet: anchored on the live reading, so the estimate is the
	// table saturation value itself
	estimate, err := cal.Estimate()
	require.NoError(t, err)
	assert.InDelta(t, 8.25, estimate, 1e-9)
}

func TestDoSubmitSinglePoint(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400.456, temperature: 25.346}
	publisher := &capturePublisher{}
	cal := NewDoCalibration("SMNR-0001", feed, publisher)

	require.NoError(t, cal.Submit(context.Background()))
	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "calibrate", publisher.suffixes[0])

	cmd, ok := publisher.payloads[0].(doCommand)
	require.True(t, ok)
	assert.Equal(t, 1400.46, cmd.Do["cal1_v"])
	assert.Equal(t, 25.35, cmd.Do["cal1_t"])
	assert.Equal(t, false, cmd.Do["two_point_mode"])
	assert.Equal(t, true, cmd.Do["calibrated"])
	assert.NotContains(t, cmd.Do, "cal2_v")
}

func TestDoSubmitTwoPoint(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1400, temperature: 25}
	publisher := &capturePublisher{}
	cal := NewDoCalibration("SMNR-0001", feed, publisher)
	cal.SetMode(DoModeTwoPoint)

	assert.ErrorIs(t, cal.Submit(context.Background()), ErrPointsNotCaptured)

	_, err := cal.CapturePoint()
	require.NoError(t, err)
	feed.voltage = 80.333
	feed.temperature = 26.678
	_, err = cal.CapturePoint()
	require.NoError(t, err)

	require.NoError(t, cal.Submit(context.Background()))
	require.Len(t, publisher.payloads, 1)

	cmd, ok := publisher.payloads[0].(doCommand)
	require.True(t, ok)
	assert.Equal(t, 1400.0, cmd.Do["cal1_v"])
	assert.Equal(t, 25.0, cmd.Do["cal1_t"])
	assert.Equal(t, 80.33, cmd.Do["cal2_v"])
	assert.Equal(t, 26.68, cmd.Do["cal2_t"])
	assert.Equal(t, true, cmd.Do["two_point_mode"])
	assert.Equal(t, true, cmd.Do["calibrated"])
}
