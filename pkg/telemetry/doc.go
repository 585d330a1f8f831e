// Package telemetry instruments confts builds.
//
// It bundles four pieces behind a single Telemetry value:
//
//   - Logger wraps zerolog with build_id, entry and component fields
//   - Tracer opens a span per build and a child span per pipeline stage
//   - Metrics keeps Prometheus collectors on a private registry
//   - EventPublisher fans build.started, build.succeeded, build.failed,
//     policy.violation and watch.rebuild events out to subscribers
//
// The CLI builds one from DefaultConfig and hands it to the engine:
//
//	tel, err := telemetry.NewTelemetryWithLogger(cfg, log.Logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// In watch mode the metrics registry is exposed over HTTP:
//
//	go tel.Metrics.Serve(ctx, ":9090")
//
// Every component is safe to use when disabled. Nop returns a bundle that
// records nothing, which is what the engine uses when none is supplied.
package telemetry
