package internal

import (
	"context"
	"errors"
	"fmt"
)

// ThresholdSet holds per-sensor min/max bounds, entirely operator-supplied.
// It exists only for the duration of one configuration submission; nothing is
// persisted here.
type ThresholdSet struct {
	PhMin   *float64
	PhMax   *float64
	TdsMin  *float64
	TdsMax  *float64
	DoMin   *float64
	DoMax   *float64
	TempMin *float64
	TempMax *float64
}

// RecommendedThresholds are the defaults suggested to operators for healthy
// freshwater aquaculture.
var RecommendedThresholds = ThresholdSet{
	PhMin:   floatPtr(6.5),
	PhMax:   floatPtr(8.5),
	TdsMin:  floatPtr(50),
	TdsMax:  floatPtr(500),
	DoMin:   floatPtr(5.0),
	DoMax:   floatPtr(15.0),
	TempMin: floatPtr(20.0),
	TempMax: floatPtr(30.0),
}

func floatPtr(v float64) *float64 { return &v }

var ErrNoThresholds = errors.New("at least one threshold pair must be supplied")

type thresholdPair struct {
	name     string
	min, max *float64
	// backend field names for the device command
	minField, maxField string
}

func (t ThresholdSet) pairs() []thresholdPair {
	return []thresholdPair{
		{"pH", t.PhMin, t.PhMax, "ph_good", "ph_bad"},
		{"TDS", t.TdsMin, t.TdsMax, "tds_good", "tds_bad"},
		{"DO", t.DoMin, t.DoMax, "do_good", "do_bad"},
		{"temperature", t.TempMin, t.TempMax, "temp_low", "temp_high"},
	}
}

// Validate rejects half-supplied pairs and inverted ranges before any network
// call is made.
func (t ThresholdSet) Validate() error {
	supplied := 0
	for _, p := range t.pairs() {
		if p.min == nil && p.max == nil {
			continue
		}
		if p.min == nil || p.max == nil {
			return fmt.Errorf("%s threshold needs both min and max", p.name)
		}
		if *p.min >= *p.max {
			return fmt.Errorf("%s threshold min must be below max", p.name)
		}
		supplied++
	}
	if supplied == 0 {
		return ErrNoThresholds
	}
	return nil
}

// CommandFields maps the operator-facing min/max pairs onto the backend field
// names the device expects. Only complete pairs are included.
func (t ThresholdSet) CommandFields() map[string]float64 {
	fields := make(map[string]float64)
	for _, p := range t.pairs() {
		if p.min == nil || p.max == nil {
			continue
		}
		fields[p.minField] = *p.min
		fields[p.maxField] = *p.max
	}
	return fields
}

// SubmitThresholds validates and publishes a threshold configuration to the
// device's offset topic.
func SubmitThresholds(ctx context.Context, commands CommandPublisher, deviceID string, set ThresholdSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	payload := map[string]any{"threshold": set.CommandFields()}
	return commands.Publish(ctx, deviceID, "offset", payload)
}
