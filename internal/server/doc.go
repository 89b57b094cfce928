// Package server provides the optional HTTP diagnostics endpoint.
//
// Routes:
//   - GET /healthz: liveness plus request totals
//   - GET /sessions: live sandbox sessions and per-icon breaker state
//   - GET /icons: the icons found by the last desktop scan
//   - POST /events: deliver an input event to one icon
//   - GET /metrics: Prometheus exposition
//
// POST /events takes {"path": "/home/me/Desktop/notes.txt", "event": {"kind": "click",
// "button": 1, "x": 10, "y": 12}} and answers with the script's EventResult.
// The server never starts or stops sessions itself.
//
// Example Usage:
//
//	srv := server.New(server.Config{Addr: "127.0.0.1:9477"}, manager, d, reg, metrics, logger)
//	if err := srv.Run(ctx); err != nil {
//	    logger.Error("diagnostics server failed", zap.Error(err))
//	}
package server
