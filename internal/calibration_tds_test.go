package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTdsCompensationCoefficient(t *testing.T) {
	assert.InDelta(t, 1.0, TdsCompensationCoefficient(25.0), 1e-12)
	assert.InDelta(t, 1.1, TdsCompensationCoefficient(30.0), 1e-12)
	assert.InDelta(t, 0.9, TdsCompensationCoefficient(20.0), 1e-12)
}

func TestTdsRawFromVoltage(t *testing.T) {
	// at the 25 °C reference the compensation is identity:
	// (133.42*1.5^3 - 255.86*1.5^2 + 857.39*1.5) * 0.5
	assert.InDelta(t, 580.34625, TdsRawFromVoltage(1.5, 25.0), 1e-9)
	assert.Equal(t, 0.0, TdsRawFromVoltage(0, 25.0))
}

func TestTdsCalibrationConstant(t *testing.T) {
	assert.InDelta(t, 1.2, TdsCalibrationConstant(600, 500), 1e-12)
	assert.Equal(t, 1.0, TdsCalibrationConstant(500, 0), "zero raw falls back to identity")
	assert.Equal(t, 1.0, TdsCalibrationConstant(500, -3), "negative raw falls back to identity")
}

func TestTdsCalibratedClamped(t *testing.T) {
	assert.InDelta(t, 600, TdsCalibrated(500, 1.2), 1e-9)
	assert.Equal(t, 1000.0, TdsCalibrated(900, 2.0))
	assert.Equal(t, 0.0, TdsCalibrated(500, -1.0))
}

func TestTdsPreview(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1.5, temperature: 25.0}
	cal := NewTdsCalibration("SMNR-0001", feed, &capturePublisher{})

	_, err := cal.Preview()
	assert.ErrorIs(t, err, ErrNoStandard)

	require.NoError(t, cal.SetStandard(500))
	preview, err := cal.Preview()
	require.NoError(t, err)

	assert.InDelta(t, 1.0, preview.CompensationCoefficient, 1e-12)
	assert.InDelta(t, 1.5, preview.CompensatedVoltage, 1e-12)
	assert.InDelta(t, 580.34625, preview.RawTds, 1e-9)
	assert.InDelta(t, 500.0/580.34625, preview.KConstant, 1e-9)
	assert.InDelta(t, 500.0, preview.Calibrated, 1e-9)
}

func TestTdsPreviewRequiresLiveReading(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 0, temperature: 25.0}
	cal := NewTdsCalibration("SMNR-0001", feed, &capturePublisher{})
	require.NoError(t, cal.SetStandard(500))

	_, err := cal.Preview()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestTdsSetStandardValidation(t *testing.T) {
	cal := NewTdsCalibration("SMNR-0001", &stubFeed{}, &capturePublisher{})
	assert.ErrorIs(t, cal.SetStandard(-1), ErrInvalidReference)
	assert.NoError(t, cal.SetStandard(0))
	assert.NoError(t, cal.SetStandard(1413))
}

func TestTdsSubmitPayload(t *testing.T) {
	feed := &stubFeed{connected: true, voltage: 1.52349, temperature: 27.333}
	publisher := &capturePublisher{}
	cal := NewTdsCalibration("SMNR-0001", feed, publisher)

	assert.ErrorIs(t, cal.Submit(context.Background()), ErrNoStandard)

	require.NoError(t, cal.SetStandard(342))
	require.NoError(t, cal.Submit(context.Background()))
	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "calibrate", publisher.suffixes[0])

	cmd, ok := publisher.payloads[0].(tdsCommand)
	require.True(t, ok)
	assert.InDelta(t, 1.5235, cmd.Tds.V, 1e-9)
	assert.InDelta(t, 342.0, cmd.Tds.Std, 1e-9)
	assert.InDelta(t, 27.33, cmd.Tds.T, 1e-9)
}

func TestTdsSubmitReadiness(t *testing.T) {
	feed := &stubFeed{connected: false, voltage: 1.5, temperature: 27}
	cal := NewTdsCalibration("SMNR-0001", feed, &capturePublisher{})
	require.NoError(t, cal.SetStandard(500))

	assert.ErrorIs(t, cal.Submit(context.Background()), ErrNotReady)
}
