// Package api hosts the operator HTTP server that runs alongside the scheduler.
// Routes:
//   - GET /healthz for process liveness.
//   - GET /readyz, which probes the database.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the scheduler state.
package api
