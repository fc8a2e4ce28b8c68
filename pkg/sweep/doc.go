// Package sweep queues an upgrade check for every distributor.
//
// A Sweeper pages distributor IDs out of the store and publishes one check
// message per distributor with bounded concurrency. Sweeps closer together
// than the debounce window are skipped. A Scheduler runs sweeps on a cron
// schedule.
package sweep
