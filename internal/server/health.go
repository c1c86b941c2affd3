package server

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the overall /ready verdict.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus is the verdict for one dependency.
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health is the /ready response body.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status    ComponentStatus   `json:"status"`
	Message   string            `json:"message,omitempty"`
	LatencyMs float64           `json:"latency_ms,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

const (
	readyTimeout = 5 * time.Second
	// slowThreshold marks a reachable component as degraded.
	slowThreshold = 2 * time.Second
)

type healthCheck struct {
	name    string
	ping    func(context.Context) error
	details map[string]string
}

// HandleReady pings storage and, when configured, the catalog. It answers
// 503 if any of them is down.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h := s.checkHealth(ctx)
	code := http.StatusOK
	if h.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// HandleLive only proves the process answers HTTP.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) healthChecks() []healthCheck {
	backend := s.saver.Backend
	out := []healthCheck{{
		name: "storage",
		ping: backend.Ping,
		details: map[string]string{
			"backend": backend.Kind(),
			"policy":  string(s.saver.Policy),
		},
	}}
	if s.catalog != nil {
		out = append(out, healthCheck{name: "catalog", ping: s.catalog.Ping})
	}
	return out
}

// checkHealth runs every check concurrently so one slow remote does not add
// to the others' latency.
func (s *Server) checkHealth(ctx context.Context) Health {
	checks := s.healthChecks()
	results := make([]ComponentHealth, len(checks))

	var wg sync.WaitGroup
	for i, p := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, p)
		}()
	}
	wg.Wait()

	components := make(map[string]ComponentHealth, len(checks))
	for i, p := range checks {
		components[p.name] = results[i]
	}
	return Health{
		Status:     determineOverallHealth(components),
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Version,
		Components: components,
	}
}

func runCheck(ctx context.Context, p healthCheck) ComponentHealth {
	start := time.Now()
	err := p.ping(ctx)
	elapsed := time.Since(start)

	ch := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   p.name + " reachable",
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		Details:   p.details,
	}
	switch {
	case err != nil:
		ch.Status = ComponentStatusDown
		ch.Message = p.name + " unavailable: " + err.Error()
		ch.LatencyMs = 0
	case elapsed > slowThreshold:
		ch.Status = ComponentStatusDegraded
		ch.Message = p.name + " responding slowly"
	}
	return ch
}

// determineOverallHealth is unhealthy if anything is down, degraded if
// anything is slow, healthy otherwise.
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	overall := HealthStatusHealthy
	for _, c := range components {
		switch c.Status {
		case ComponentStatusDown:
			return HealthStatusUnhealthy
		case ComponentStatusDegraded:
			overall = HealthStatusDegraded
		}
	}
	return overall
}
