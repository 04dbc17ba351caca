// Package monitoring evaluates the probes behind /health/live and
// /health/ready.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus is the outcome of one probe, ordered up < degraded < down.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult is what a probe reports about its component.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport is the worst status across a probe set plus every result, in
// registration order.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check is a named probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck names fn. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

type probeSet int

const (
	liveness probeSet = iota
	readiness
)

const defaultProbeTimeout = 5 * time.Second

// HealthManager holds the liveness and readiness probe sets. Probes of a set
// run concurrently, each bounded by the probe timeout.
type HealthManager struct {
	mu      sync.RWMutex
	sets    map[probeSet][]Check
	timeout time.Duration
}

// NewHealthManager returns a manager with no probes.
func NewHealthManager() *HealthManager {
	return &HealthManager{
		sets:    make(map[probeSet][]Check),
		timeout: defaultProbeTimeout,
	}
}

// SetProbeTimeout bounds each probe run. Zero or less keeps the default.
func (m *HealthManager) SetProbeTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

func (m *HealthManager) RegisterLiveness(check Check)  { m.register(liveness, check) }
func (m *HealthManager) RegisterReadiness(check Check) { m.register(readiness, check) }

func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, liveness)
}

func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, readiness)
}

func (m *HealthManager) register(set probeSet, check Check) {
	if check.Name == "" || check.Run == nil {
		return
	}
	m.mu.Lock()
	m.sets[set] = append(m.sets[set], check)
	m.mu.Unlock()
}

func (m *HealthManager) evaluate(ctx context.Context, set probeSet) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	probes := append([]Check(nil), m.sets[set]...)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]ProbeResult, len(probes))
	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = run(probeCtx, probe)
		}()
	}
	wg.Wait()

	status := StatusUp
	for _, result := range results {
		if result.Status.severity() > status.severity() {
			status = result.Status
		}
	}
	return HealthReport{Success: status == StatusUp, Status: status, Checks: results}
}

func run(ctx context.Context, probe Check) (result ProbeResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(rec)}
		}
		result.Component = probe.Name
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
	}()
	return probe.Run(ctx)
}

func panicDetails(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

// ResultFromError maps err onto a result: nil is up, a cancelled or expired
// context is degraded, anything else is down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	result := ProbeResult{Component: component, Status: StatusUp, Duration: max(duration, 0)}
	if err == nil {
		return result
	}
	result.Details = err.Error()
	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	return result
}
