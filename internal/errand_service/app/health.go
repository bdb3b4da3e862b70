package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

// WorkerHealth is the binary healthy/degraded signal of one worker. It is
// reset at the start of each run and set degraded on any item or step
// failure during the run.
type WorkerHealth struct {
	name     string
	degraded atomic.Bool
}

func (h *WorkerHealth) Name() string { return h.name }

// Reset marks the worker healthy at the start of a run.
func (h *WorkerHealth) Reset() { h.degraded.Store(false) }

// SetDegraded marks the worker degraded for the remainder of the run.
func (h *WorkerHealth) SetDegraded() { h.degraded.Store(true) }

func (h *WorkerHealth) Healthy() bool { return !h.degraded.Load() }

// HealthRegistry aggregates worker health signals into one HTTP surface.
type HealthRegistry struct {
	mu      sync.RWMutex
	workers []*WorkerHealth
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{}
}

// Register creates and tracks a health signal for the named worker.
func (r *HealthRegistry) Register(name string) *WorkerHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	health := &WorkerHealth{name: name}
	r.workers = append(r.workers, health)
	return health
}

// Handler serves the aggregated health state: 200 when every worker is
// healthy, 503 when any is degraded.
func (r *HealthRegistry) Handler() http.HandlerFunc {
	type response struct {
		Status  string          `json:"status"`
		Workers map[string]bool `json:"workers"`
	}
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		resp := response{Status: "UP", Workers: make(map[string]bool, len(r.workers))}
		for _, worker := range r.workers {
			healthy := worker.Healthy()
			resp.Workers[worker.Name()] = healthy
			if !healthy {
				resp.Status = "DEGRADED"
			}
		}
		r.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "UP" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
