package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler returns an http.Handler that serves metrics in the text
// exposition format, gated (per §6) to be mounted behind a localhost / trusted
// proxy allowlist and a feature flag by the caller — this handler itself has
// no knowledge of that policy.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"sentrychat_requests_total", "Total number of chat requests processed", "counter", atomic.LoadUint64(&m.metrics.RequestsTotal)},
			{"sentrychat_requests_success_total", "Total successful requests", "counter", atomic.LoadUint64(&m.metrics.RequestsSuccess)},
			{"sentrychat_requests_failed_total", "Total failed requests", "counter", atomic.LoadUint64(&m.metrics.RequestsFailed)},
			{"sentrychat_rate_limit_trips_total", "Total requests denied by the rate limiter", "counter", atomic.LoadUint64(&m.metrics.RateLimitTrips)},
			{"sentrychat_injections_blocked_total", "Total requests blocked as prompt injection / jailbreak", "counter", atomic.LoadUint64(&m.metrics.InjectionsBlocked)},
			{"sentrychat_safety_failures_total", "Total draft responses rejected by output safety", "counter", atomic.LoadUint64(&m.metrics.SafetyFailures)},
			{"sentrychat_out_of_scope_total", "Total requests routed out of scope", "counter", atomic.LoadUint64(&m.metrics.OutOfScopeRoutes)},

			{"sentrychat_tool_calls_total", "Total tool calls executed", "counter", atomic.LoadUint64(&m.metrics.ToolCallsTotal)},
			{"sentrychat_tool_calls_success_total", "Total successful tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsSuccess)},
			{"sentrychat_tool_calls_failed_total", "Total failed tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsFailed)},

			{"sentrychat_llm_calls_total", "Total LLM runtime calls", "counter", atomic.LoadUint64(&m.metrics.LLMCallsTotal)},
			{"sentrychat_llm_retries_total", "Total LLM call retries", "counter", atomic.LoadUint64(&m.metrics.LLMRetries)},
			{"sentrychat_llm_failures_total", "Total unrecoverable LLM call failures", "counter", atomic.LoadUint64(&m.metrics.LLMFailures)},

			{"sentrychat_active_requests", "Number of requests currently in flight", "gauge", atomic.LoadInt64(&m.metrics.ActiveRequests)},
			{"sentrychat_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			{"sentrychat_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"sentrychat_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			}
			fmt.Fprintln(w)
		}

		reqCount := atomic.LoadUint64(&m.metrics.RequestLatencyCount)
		if reqCount > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(reqCount) / 1e6
			fmt.Fprintf(w, "# HELP sentrychat_request_latency_avg_ms Average end-to-end request latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE sentrychat_request_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "sentrychat_request_latency_avg_ms %f\n\n", avgMs)
		}

		m.mu.RLock()
		defer m.mu.RUnlock()
		for stage, agg := range m.stageLatency {
			c := atomic.LoadUint64(&agg.count)
			if c == 0 {
				continue
			}
			avgMs := float64(atomic.LoadUint64(&agg.sum)) / float64(c) / 1e6
			fmt.Fprintf(w, "sentrychat_stage_latency_avg_ms{stage=%q} %f\n", stage, avgMs)
		}
	})
}
