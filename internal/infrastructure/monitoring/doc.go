/*
Package monitoring collects Prometheus metrics for the icon host.

# Metrics

  - deskglyph_requests_total{kind,outcome} and round_trip_duration_seconds{kind}
  - deskglyph_timeouts_total
  - deskglyph_sessions_active, sessions_spawned_total, session_failures_total{reason}
  - deskglyph_breaker_trips_total
  - deskglyph_render_passes_total, render_pass_duration_seconds
  - deskglyph_commands_dropped_total{reason}, actions_total{action}
  - deskglyph_http_requests_total for the diagnostics server

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	timer := monitoring.NewTimer(metrics, "render")
	// ... round trip ...
	timer.Stop("ok")

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
