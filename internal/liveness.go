package internal

import (
	"context"
	"log/slog"
	"time"
)

// LivenessMonitor periodically demotes devices that stopped sending data to
// offline. It only performs the forward online-to-offline transition; the
// reducer is the only component that brings a device back online.
type LivenessMonitor struct {
	store    *StateStore
	window   time.Duration
	interval time.Duration
	emit     func(snapshot map[string]DeviceState, changed ...string)
	log      *slog.Logger
}

func NewLivenessMonitor(store *StateStore, window, interval time.Duration, emit func(map[string]DeviceState, ...string), log *slog.Logger) *LivenessMonitor {
	return &LivenessMonitor{
		store:    store,
		window:   window,
		interval: interval,
		emit:     emit,
		log:      log,
	}
}

// Run sweeps on a fixed period until the context is cancelled. Transitions
// are emitted to the same observers as reducer updates.
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snapshot, changed := m.store.MarkStale(now, m.window)
			if len(changed) == 0 {
				continue
			}
			for _, id := range changed {
				m.log.Info("device went offline", "device_id", id, "staleness_window", m.window)
			}
			m.emit(snapshot, changed...)
		}
	}
}
