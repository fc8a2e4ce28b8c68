// Package server exposes the upgrade engine over HTTP.
//
// Routes:
//
//	POST /v1/manual/check                     check a distributor, issue a ticket
//	POST /v1/manual/confirm                   execute a checked upgrade
//	GET  /v1/distributors/{id}/eligibility    dry-run resolution
//	GET  /v1/distributors/{id}/history        latest history records
//	GET  /v1/history                          history by time range
//	POST /v1/history/{id}/reclassify          mark a record as manual
//	POST /v1/events/withdrawal                ledger withdrawal status change
//	POST /v1/events/commission                ledger commission status change
//	GET  /healthz, /readyz, /version          probes
//	GET  /metrics                             Prometheus, path configurable
//
// Operators identify themselves with the X-Operator-ID header and list
// their roles, comma separated, in X-Operator-Roles. Identity is taken as
// given; the server is meant to run behind an authenticating gateway.
package server
