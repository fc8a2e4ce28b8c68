// Package logging builds the process slog.Logger.
//
// # Overview
//
// New returns a *slog.Logger whose handler:
//   - writes JSON or text at the configured level
//   - redacts connection secrets (DSN passwords, tokens)
//   - attaches identifiers stored in the context by WithDistributorID,
//     WithTriggerID, WithOperator and WithRequestID to every *Context call
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithDistributorID(ctx, 42)
//	logger.InfoContext(ctx, "resolution started") // includes distributor_id=42
package logging
