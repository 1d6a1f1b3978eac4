package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	ScansLaunched      uint64
	ScansCancelled     uint64
	JobsDispatched     uint64
	ResultsReceived    uint64
	ProbesRegistered   uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementScansLaunched increments the launched-scan counter
func IncrementScansLaunched() {
	atomic.AddUint64(&globalMetrics.ScansLaunched, 1)
}

// IncrementScansCancelled increments the cancelled-scan counter
func IncrementScansCancelled() {
	atomic.AddUint64(&globalMetrics.ScansCancelled, 1)
}

// AddJobsDispatched adds a dispatch batch to the job counter
func AddJobsDispatched(n uint64) {
	atomic.AddUint64(&globalMetrics.JobsDispatched, n)
}

// IncrementResultsReceived increments the consumed-result counter
func IncrementResultsReceived() {
	atomic.AddUint64(&globalMetrics.ResultsReceived, 1)
}

// IncrementProbesRegistered increments the probe-registration counter
func IncrementProbesRegistered() {
	atomic.AddUint64(&globalMetrics.ProbesRegistered, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"scans_launched":       atomic.LoadUint64(&globalMetrics.ScansLaunched),
		"scans_cancelled":      atomic.LoadUint64(&globalMetrics.ScansCancelled),
		"jobs_dispatched":      atomic.LoadUint64(&globalMetrics.JobsDispatched),
		"results_received":     atomic.LoadUint64(&globalMetrics.ResultsReceived),
		"probes_registered":    atomic.LoadUint64(&globalMetrics.ProbesRegistered),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
