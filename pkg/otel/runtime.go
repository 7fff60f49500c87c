package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics initializes OpenTelemetry runtime and host metrics
// collection: memory allocation, GC statistics, CPU, network and disk
// utilization.
func StartRuntimeMetrics() error {
	// Start runtime metrics collection (memory, GC, etc)
	if err := runtime.Start(
		runtime.WithMinimumReadMemStatsInterval(30 * time.Second),
	); err != nil {
		return err
	}

	// Start host metrics collection (CPU, memory, network, disk)
	if err := hostmetrics.Start(); err != nil {
		return err
	}

	return nil
}
