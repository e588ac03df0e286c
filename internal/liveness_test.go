package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stalenessWindow = 120 * time.Second

func TestMarkStaleBoundary(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name    string
		elapsed time.Duration
		offline bool
	}{
		{"just inside window", stalenessWindow - time.Millisecond, false},
		{"exactly at window", stalenessWindow, false},
		{"just past window", stalenessWindow + time.Millisecond, true},
	}

	for _, test := range tests {
		store := NewStateStore()
		store.ApplyReadings("SMNR-0001", []SensorReading{goodReading(SensorPH)}, base)

		snapshot, changed := store.MarkStale(base.Add(test.elapsed), stalenessWindow)
		assert.Equal(t, !test.offline, snapshot["SMNR-0001"].Online, test.name)
		if test.offline {
			assert.Equal(t, []string{"SMNR-0001"}, changed, test.name)
		} else {
			assert.Empty(t, changed, test.name)
		}
	}
}

func TestMarkStaleLeavesLastOnlineUntouched(t *testing.T) {
	base := time.Now()
	store := NewStateStore()
	store.ApplyReadings("SMNR-0001", []SensorReading{goodReading(SensorPH)}, base)

	snapshot, changed := store.MarkStale(base.Add(stalenessWindow+time.Second), stalenessWindow)
	require.Equal(t, []string{"SMNR-0001"}, changed)
	assert.Equal(t, base, snapshot["SMNR-0001"].LastOnline)
	assert.Equal(t, base, snapshot["SMNR-0001"].LastData)
}

func TestMarkStaleSkipsAlreadyOffline(t *testing.T) {
	base := time.Now()
	store := NewStateStore()
	store.ApplyReadings("SMNR-0001", []SensorReading{goodReading(SensorPH)}, base)

	_, changed := store.MarkStale(base.Add(stalenessWindow+time.Second), stalenessWindow)
	require.Len(t, changed, 1)

	// second sweep must not report the same transition again
	_, changed = store.MarkStale(base.Add(2*stalenessWindow), stalenessWindow)
	assert.Empty(t, changed)
}

func TestMarkStaleSkipsZeroTimestamp(t *testing.T) {
	store := NewStateStore()
	store.devices = map[string]DeviceState{
		"SMNR-0001": {ID: "SMNR-0001", Online: true},
	}

	snapshot, changed := store.MarkStale(time.Now(), stalenessWindow)
	assert.Empty(t, changed)
	assert.True(t, snapshot["SMNR-0001"].Online)
}

func TestDataArrivalBringsDeviceBackOnline(t *testing.T) {
	base := time.Now()
	store := NewStateStore()
	store.ApplyReadings("SMNR-0001", []SensorReading{goodReading(SensorPH)}, base)

	_, changed := store.MarkStale(base.Add(stalenessWindow+time.Second), stalenessWindow)
	require.Len(t, changed, 1)

	reconnectAt := base.Add(stalenessWindow + 2*time.Second)
	snapshot := store.ApplyReadings("SMNR-0001", []SensorReading{goodReading(SensorPH)}, reconnectAt)
	assert.True(t, snapshot["SMNR-0001"].Online)
	assert.Equal(t, reconnectAt, snapshot["SMNR-0001"].LastOnline)
}
