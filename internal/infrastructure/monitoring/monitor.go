// Package monitoring collects pipeline metrics and exposes them both as a
// JSON dashboard payload and as hand-rolled Prometheus text exposition,
// mirroring the teacher's own choice to avoid a full prometheus client
// dependency for a handful of counters and gauges.
package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics holds the process-wide counters. Scalar fields are updated with
// sync/atomic; the two histograms (per-stage latency, per-domain / per-block
// reason counts) are guarded by Monitor.mu since they are maps.
type Metrics struct {
	RequestsTotal   uint64
	RequestsSuccess uint64
	RequestsFailed  uint64

	RateLimitTrips     uint64
	InjectionsBlocked  uint64 // L1/L2 blocked_input occurrences
	SafetyFailures     uint64 // L8 safety_failed occurrences
	OutOfScopeRoutes   uint64

	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	LLMCallsTotal   uint64
	LLMRetries      uint64
	LLMFailures     uint64
	LLMTokensUsed   uint64

	ActiveRequests int64

	RequestLatencySum   uint64 // nanoseconds
	RequestLatencyCount uint64

	StartTime time.Time
}

// stageAgg accumulates latency for one pipeline stage.
type stageAgg struct {
	sum   uint64 // nanoseconds
	count uint64
}

// Monitor is the façade around Metrics; construct once at startup and share
// across the orchestrator, rate limiter, and HTTP layer.
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger

	mu            sync.RWMutex
	stageLatency  map[string]*stageAgg
	blockedAtStage map[string]uint64
	domainCounts  map[string]uint64

	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot is a point-in-time rollup used for the dashboard history.
type MetricsSnapshot struct {
	Timestamp         time.Time
	RequestsPerSecond float64
	AvgLatencyMs      float64
	ActiveRequests    int64
	MemoryMB          float64
	Goroutines        int
}

func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics:        &Metrics{StartTime: time.Now()},
		logger:         logger,
		stageLatency:   make(map[string]*stageAgg),
		blockedAtStage: make(map[string]uint64),
		domainCounts:   make(map[string]uint64),
		history:        make([]MetricsSnapshot, 0, 100),
		historyLimit:   100,
	}
}

func (m *Monitor) IncRequestTotal()   { atomic.AddUint64(&m.metrics.RequestsTotal, 1) }
func (m *Monitor) IncRequestSuccess() { atomic.AddUint64(&m.metrics.RequestsSuccess, 1) }
func (m *Monitor) IncRequestFailed()  { atomic.AddUint64(&m.metrics.RequestsFailed, 1) }
func (m *Monitor) IncRateLimitTrip()  { atomic.AddUint64(&m.metrics.RateLimitTrips, 1) }
func (m *Monitor) IncInjectionBlocked() { atomic.AddUint64(&m.metrics.InjectionsBlocked, 1) }
func (m *Monitor) IncSafetyFailure()  { atomic.AddUint64(&m.metrics.SafetyFailures, 1) }
func (m *Monitor) IncOutOfScope()     { atomic.AddUint64(&m.metrics.OutOfScopeRoutes, 1) }

func (m *Monitor) IncToolCallTotal()   { atomic.AddUint64(&m.metrics.ToolCallsTotal, 1) }
func (m *Monitor) IncToolCallSuccess() { atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1) }
func (m *Monitor) IncToolCallFailed()  { atomic.AddUint64(&m.metrics.ToolCallsFailed, 1) }

func (m *Monitor) IncLLMCall()    { atomic.AddUint64(&m.metrics.LLMCallsTotal, 1) }
func (m *Monitor) IncLLMRetry()   { atomic.AddUint64(&m.metrics.LLMRetries, 1) }
func (m *Monitor) IncLLMFailure() { atomic.AddUint64(&m.metrics.LLMFailures, 1) }
func (m *Monitor) AddTokensUsed(n int) {
	atomic.AddUint64(&m.metrics.LLMTokensUsed, uint64(n))
}

func (m *Monitor) IncActiveRequests() { atomic.AddInt64(&m.metrics.ActiveRequests, 1) }
func (m *Monitor) DecActiveRequests() { atomic.AddInt64(&m.metrics.ActiveRequests, -1) }

func (m *Monitor) RecordRequestLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.RequestLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.RequestLatencyCount, 1)
}

// RecordStageLatency accumulates wall-clock time spent in a single pipeline
// stage (L0..L9), keyed by stage name.
func (m *Monitor) RecordStageLatency(stage string, d time.Duration) {
	m.mu.Lock()
	agg, ok := m.stageLatency[stage]
	if !ok {
		agg = &stageAgg{}
		m.stageLatency[stage] = agg
	}
	m.mu.Unlock()
	atomic.AddUint64(&agg.sum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&agg.count, 1)
}

// IncBlockedAtStage records that a request was short-circuited at the given
// stage (e.g. "L0", "L1", "L2", "L8").
func (m *Monitor) IncBlockedAtStage(stage string) {
	m.mu.Lock()
	m.blockedAtStage[stage]++
	m.mu.Unlock()
}

// IncDomain records the domain a request was routed to by L4.
func (m *Monitor) IncDomain(domain string) {
	m.mu.Lock()
	m.domainCounts[domain]++
	m.mu.Unlock()
}

// GetStats returns a flat snapshot suitable for JSON serialization.
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)
	reqTotal := atomic.LoadUint64(&m.metrics.RequestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6
	}

	m.mu.RLock()
	stages := make(map[string]float64, len(m.stageLatency))
	for name, agg := range m.stageLatency {
		c := atomic.LoadUint64(&agg.count)
		if c == 0 {
			continue
		}
		stages[name] = float64(atomic.LoadUint64(&agg.sum)) / float64(c) / 1e6
	}
	domains := make(map[string]uint64, len(m.domainCounts))
	for k, v := range m.domainCounts {
		domains[k] = v
	}
	blocked := make(map[string]uint64, len(m.blockedAtStage))
	for k, v := range m.blockedAtStage {
		blocked[k] = v
	}
	m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":      uptime.Seconds(),
		"requests_total":      reqTotal,
		"requests_success":    atomic.LoadUint64(&m.metrics.RequestsSuccess),
		"requests_failed":     atomic.LoadUint64(&m.metrics.RequestsFailed),
		"rate_limit_trips":    atomic.LoadUint64(&m.metrics.RateLimitTrips),
		"injections_blocked":  atomic.LoadUint64(&m.metrics.InjectionsBlocked),
		"safety_failures":     atomic.LoadUint64(&m.metrics.SafetyFailures),
		"out_of_scope_routes": atomic.LoadUint64(&m.metrics.OutOfScopeRoutes),
		"tool_calls_total":    atomic.LoadUint64(&m.metrics.ToolCallsTotal),
		"tool_calls_success":  atomic.LoadUint64(&m.metrics.ToolCallsSuccess),
		"tool_calls_failed":   atomic.LoadUint64(&m.metrics.ToolCallsFailed),
		"llm_calls_total":     atomic.LoadUint64(&m.metrics.LLMCallsTotal),
		"llm_retries":         atomic.LoadUint64(&m.metrics.LLMRetries),
		"llm_failures":        atomic.LoadUint64(&m.metrics.LLMFailures),
		"llm_tokens_used":     atomic.LoadUint64(&m.metrics.LLMTokensUsed),
		"active_requests":     atomic.LoadInt64(&m.metrics.ActiveRequests),
		"avg_latency_ms":      avgLatency,
		"avg_stage_latency_ms": stages,
		"domain_counts":       domains,
		"blocked_at_stage":    blocked,
		"memory_mb":           float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":          runtime.NumGoroutine(),
		"rps":                 float64(reqTotal) / uptime.Seconds(),
	}
}

func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime).Seconds()
	reqTotal := atomic.LoadUint64(&m.metrics.RequestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:         time.Now(),
		RequestsPerSecond: float64(reqTotal) / uptime,
		AvgLatencyMs:      avgLatency,
		ActiveRequests:    atomic.LoadInt64(&m.metrics.ActiveRequests),
		MemoryMB:          float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:        runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector runs a periodic snapshot loop until ctx is cancelled. Launch
// it with safego.Go from the caller.
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

type DashboardData struct {
	Stats   map[string]interface{} `json:"stats"`
	History []MetricsSnapshot      `json:"history"`
}

func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{Stats: m.GetStats(), History: m.GetHistory()}
}
