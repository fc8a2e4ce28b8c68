// Package health implements liveness and readiness probes.
//
// A Checker holds named component checks, typically the store ping:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("store", st.Ping)
//	mux.Handle("GET /healthz", checker.LivenessHandler())
//	mux.Handle("GET /readyz", checker.ReadinessHandler())
//
// Readiness runs every check concurrently, each bounded by the checker
// timeout, and answers 503 when any check fails.
package health
