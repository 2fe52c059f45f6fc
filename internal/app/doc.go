// Package app wires the allocation service together and manages its lifecycle.
//
// NewApplication loads configuration, initializes slog and OpenTelemetry,
// builds the session store, the ingest and revision services, the WebSocket
// hub and the chi router. Start runs the hub, the session janitor and the HTTP
// server under one errgroup; Stop shuts them down in reverse and flushes
// telemetry.
//
// Routes:
//
//	GET  /ws?session={id}        live filter state
//	GET  /metrics                Prometheus exposition
//	     /api/health             health, readiness, liveness, stats
//	GET  /api/version
//	     /api/sessions           session workflow
//
// Typical use from main:
//
//	application, err := app.NewApplication(nil)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
package app
