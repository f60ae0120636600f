// Package api implements the operator HTTP API for Stream Lights.
//
// Routes:
//   - GET /api/v1/health: component health checks (200 or 503)
//   - GET /api/v1/status: session, registration and device status snapshot
//   - GET /api/v1/commands: paginated audience command log
//   - GET /metrics: Prometheus metrics
//
// The API is read-only and intended for a local bind; it has no
// authentication.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
