package internal

import (
	"sync"
	"time"
)

// DeriveDeviceStatus computes the aggregate device status from one sensor
// batch. BAD dominates: a single BAD reading marks the device as Problem no
// matter how many GOOD readings accompany it.
func DeriveDeviceStatus(readings []SensorReading) DeviceStatus {
	if len(readings) == 0 {
		return DeviceStatusNoData
	}
	good := 0
	for _, r := range readings {
		switch r.Status {
		case SensorStatusBad:
			return DeviceStatusProblem
		case SensorStatusGood:
			good++
		}
	}
	if good > 0 {
		return DeviceStatusNormal
	}
	return DeviceStatusNoData
}

// Reduce folds a reading batch into the device map, returning a new map so
// snapshots handed to observers stay consistent mid-update. The device record
// is replaced wholesale; only the display name survives from the previous
// state.
func Reduce(prev map[string]DeviceState, deviceID string, readings []SensorReading, now time.Time) map[string]DeviceState {
	next := make(map[string]DeviceState, len(prev)+1)
	for id, st := range prev {
		next[id] = st
	}

	name := prev[deviceID].DisplayName
	if name == "" {
		name = "SIMONAIR " + deviceID
	}

	next[deviceID] = DeviceState{
		ID:          deviceID,
		DisplayName: name,
		Status:      DeriveDeviceStatus(readings),
		Online:      true,
		LastOnline:  now,
		LastData:    now,
		Sensors:     readings,
	}
	return next
}

// StateStore is the shared device-state map. The ingestion goroutine is the
// sole writer of "data arrived" updates and the liveness sweep the sole writer
// of "went offline" transitions; the mutex orders the two. Every write swaps
// in a freshly built map, so any snapshot returned from a method is immutable
// from the caller's point of view.
type StateStore struct {
	mu      sync.RWMutex
	devices map[string]DeviceState
}

func NewStateStore() *StateStore {
	return &StateStore{devices: make(map[string]DeviceState)}
}

// ApplyReadings records a new batch for the device and returns the resulting
// snapshot.
func (s *StateStore) ApplyReadings(deviceID string, readings []SensorReading, now time.Time) map[string]DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = Reduce(s.devices, deviceID, readings, now)
	return s.devices
}

// MarkStale flips devices whose last data is older than the staleness window
// to offline. Devices already offline, and devices whose last-data timestamp
// cannot be determined, are skipped. LastOnline is left untouched: it is a
// historical marker shown to the operator. Returns the snapshot and the ids
// that transitioned.
func (s *StateStore) MarkStale(now time.Time, window time.Duration) (map[string]DeviceState, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for id, st := range s.devices {
		if !st.Online || st.LastData.IsZero() {
			continue
		}
		if now.Sub(st.LastData) > window {
			changed = append(changed, id)
		}
	}
	if len(changed) == 0 {
		return s.devices, nil
	}

	next := make(map[string]DeviceState, len(s.devices))
	for id, st := range s.devices {
		next[id] = st
	}
	for _, id := range changed {
		st := next[id]
		st.Online = false
		next[id] = st
	}
	s.devices = next
	return s.devices, changed
}

// SetDisplayName upgrades the display name of a known device, e.g. once the
// registry lookup resolves. Returns the new snapshot, or nil when the device
// is unknown or the name did not change.
func (s *StateStore) SetDisplayName(deviceID, name string) map[string]DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.devices[deviceID]
	if !ok || name == "" || st.DisplayName == name {
		return nil
	}

	next := make(map[string]DeviceState, len(s.devices))
	for id, d := range s.devices {
		next[id] = d
	}
	st.DisplayName = name
	next[deviceID] = st
	s.devices = next
	return s.devices
}

func (s *StateStore) Device(deviceID string) (DeviceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.devices[deviceID]
	return st, ok
}

// Snapshot returns the current device map. Callers must treat it as
// read-only.
func (s *StateStore) Snapshot() map[string]DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices
}
