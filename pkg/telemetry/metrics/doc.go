// Package metrics exposes upgrade engine metrics to Prometheus.
//
// A single Collector is created at startup and passed to the engine, the
// trigger handler, the sweeper and the rules watcher, each of which sees it
// only through its own small recorder interface:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	svc := upgrade.NewService(st, resolver, executor, collector, logger)
//	mux.Handle("/metrics", collector.Handler())
//
// Label values are bounded enumerations (outcomes, rule kinds, error kinds);
// distributor IDs never appear as labels.
package metrics
