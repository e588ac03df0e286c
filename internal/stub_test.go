package internal

import "context"

// stubFeed is a fixed-value ReadingSource for exercising the calibration
// engines without a broker.
type stubFeed struct {
	voltage     float64
	raw         float64
	temperature float64
	connected   bool
}

func (f *stubFeed) Voltage() float64     { return f.voltage }
func (f *stubFeed) Raw() float64         { return f.raw }
func (f *stubFeed) Temperature() float64 { return f.temperature }
func (f *stubFeed) Connected() bool      { return f.connected }

// capturePublisher records every published command for assertions.
type capturePublisher struct {
	deviceIDs []string
	suffixes  []string
	payloads  []any
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, deviceID, suffix string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.deviceIDs = append(p.deviceIDs, deviceID)
	p.suffixes = append(p.suffixes, suffix)
	p.payloads = append(p.payloads, payload)
	return nil
}
