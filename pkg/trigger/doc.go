// Package trigger turns ledger events into distributor upgrade checks.
//
// A Listener reacts to terminal withdrawal and commission events by
// publishing a Message. A Publisher either hands the message to Kafka or
// runs the Handler in process. The Handler resolves the distributor and
// honors the queue contract:
//
//   - an unknown distributor is logged and acknowledged, never retried
//   - a concurrency conflict is resolved again, up to the attempt limit
//   - any other failure is returned so the transport redelivers
package trigger
