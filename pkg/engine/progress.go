package engine

import (
	"sync"

	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// Tracker holds the latest progress snapshot for one engine instance. Any
// number of pollers may read it concurrently; the run goroutine is the only
// writer. An optional callback receives every update for push delivery.
type Tracker struct {
	mu       sync.RWMutex
	current  model.AnalysisProgress
	callback func(model.AnalysisProgress)
}

func NewTracker(callback func(model.AnalysisProgress)) *Tracker {
	return &Tracker{
		current:  model.AnalysisProgress{Status: model.StatusComplete, Message: "No analysis has run yet", Progress: 0},
		callback: callback,
	}
}

// Update overwrites the snapshot and notifies the callback.
func (t *Tracker) Update(p model.AnalysisProgress) {
	t.mu.Lock()
	t.current = p
	cb := t.callback
	t.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

// Current returns the latest snapshot.
func (t *Tracker) Current() model.AnalysisProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
