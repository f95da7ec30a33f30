// Package health provides liveness and readiness probes for long-running
// mediator commands.
//
// # Endpoints
//
//   - /health: liveness, always 200 while the process serves requests
//   - /ready: readiness, 200 when every registered check passes, 503 otherwise
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("rules", health.RulesLoaded(engine))
//	checker.RegisterCheck("storage", health.StorageReachable(store))
//
//	mux := http.NewServeMux()
//	checker.Mount(mux, health.VersionInfo{Version: "0.1.0"})
//
// Checks run concurrently, each bounded by the checker timeout. A check that
// does not return in time is reported unhealthy.
package health
