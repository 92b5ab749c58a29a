package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler returns an http.Handler that serves Prometheus text format metrics.
// This avoids pulling in the full prometheus/client_golang dependency.
// Mount it at "/metrics" in your HTTP server.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		// Write metrics in Prometheus exposition format
		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			// Council run counters
			{"council_runs_total", "Total number of council deliberations started", "counter", atomic.LoadUint64(&m.metrics.CouncilsTotal)},
			{"council_runs_success_total", "Total successful council deliberations", "counter", atomic.LoadUint64(&m.metrics.CouncilsSuccess)},
			{"council_runs_failed_total", "Total failed council deliberations", "counter", atomic.LoadUint64(&m.metrics.CouncilsFailed)},

			// Per-stage model call counters
			{"council_stage1_calls_total", "Total stage-1 generator calls", "counter", atomic.LoadUint64(&m.metrics.Stage1Calls)},
			{"council_stage2_calls_total", "Total stage-2 judge calls", "counter", atomic.LoadUint64(&m.metrics.Stage2Calls)},
			{"council_stage3_calls_total", "Total stage-3 chairman and helper calls", "counter", atomic.LoadUint64(&m.metrics.Stage3Calls)},

			// Verdict quality counters
			{"council_ladder_repairs_total", "Total judge repair ladder descents", "counter", atomic.LoadUint64(&m.metrics.LadderRepairs)},
			{"council_coercions_total", "Total verdicts rebuilt into canonical form", "counter", atomic.LoadUint64(&m.metrics.Coercions)},
			{"council_adjudications_total", "Total consensus-gate adjudications", "counter", atomic.LoadUint64(&m.metrics.Adjudications)},
			{"council_synthetic_entries_total", "Total synthetic fallback entries", "counter", atomic.LoadUint64(&m.metrics.SyntheticEntries)},
			{"council_tokens_used_total", "Total tokens consumed across all calls", "counter", atomic.LoadUint64(&m.metrics.TokensUsed)},

			// Errors
			{"council_errors_total", "Total errors encountered", "counter", atomic.LoadUint64(&m.metrics.ErrorsTotal)},

			// Gauges
			{"council_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			// Runtime metrics
			{"council_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"council_memory_sys_bytes", "Total memory obtained from OS", "gauge", memStats.Sys},
			{"council_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"council_gc_pause_total_ns", "Total GC pause time in nanoseconds", "counter", memStats.PauseTotalNs},
			{"council_gc_cycles_total", "Total number of completed GC cycles", "counter", memStats.NumGC},
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

		// Latency summary
		count := atomic.LoadUint64(&m.metrics.CouncilLatencyCount)
		if count > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.CouncilLatencySum)) / float64(count) / 1e6
			fmt.Fprintf(w, "# HELP council_run_latency_avg_ms Average council run latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE council_run_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "council_run_latency_avg_ms %f\n\n", avgMs)
		}
	})
}
