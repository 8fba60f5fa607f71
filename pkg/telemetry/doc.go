// Package telemetry provides observability instrumentation for PolicyProbe.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) behind a single handle used by the
// engine, the stores, and the HTTP surface.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "policyprobe"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The logger provides component-specific logging with run, execution, and step
// field helpers:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithRunID(runID).WithExecutionID(execID)
//	logger.WithStep("payment_checkout", "target").Info("step succeeded")
//
// # Tracing
//
// Run, combination, and step spans nest naturally:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, owner)
//	defer span.End()
//
// Supported exporters: "stdout" (development), "otlp" (gRPC collector),
// "none" (spans generated but not exported).
//
// # Metrics
//
// Key metrics exposed at /metrics on the API mux:
//
//   - policyprobe_runs_started_total{owner}
//   - policyprobe_runs_completed_total{status}
//   - policyprobe_run_duration_seconds{status}
//   - policyprobe_combinations_executed_total{category,status}
//   - policyprobe_step_outcomes_total{step,environment,status}
//   - policyprobe_step_duration_seconds{step,environment}
//   - policyprobe_store_writes_total{status}
//   - policyprobe_store_write_retries_total
//   - policyprobe_comparison_differences_total{severity}
//   - policyprobe_active_runs
//
// # Security Considerations
//
// Never log portal auth tokens. Loggers receive run and execution identifiers
// only; token values stay inside the engine call chain.
package telemetry
