/*
Package monitoring provides Prometheus metrics for device lifecycle
operations: installs, launches, permission grants, remote commands and
instrumentation runs.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Time operations
	timer := monitoring.NewTimer(metrics, "install")
	// ... perform install ...
	timer.Stop("success")

Expose via the standard Prometheus handler against metrics.Registry().
*/
package monitoring
