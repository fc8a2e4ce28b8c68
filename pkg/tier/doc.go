// Package tier defines the domain model shared by the upgrade engine and its
// storage backends: tiers, upgrade rules, distributors, metric snapshots and
// the history records written for every tier transition.
//
// It also declares the collaborator interfaces the engine depends on
// (RuleStore, MetricsProvider, DistributorStore, TransitionStore,
// HistoryStore). Implementations live in package store and package metrics.
package tier
