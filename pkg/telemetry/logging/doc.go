// Package logging builds the process *slog.Logger.
//
// # Overview
//
// New returns a plain *slog.Logger so every package can accept the standard
// type. Two handler wrappers are layered on top of the JSON or text handler:
//   - a context handler that copies trace_id and session_id from the
//     context.Context into each record logged with a *Context method
//   - a redacting handler (when RedactPII is set) that masks API keys, emails,
//     SSNs, phone numbers and bearer tokens in messages and string attributes,
//     and fully masks attributes whose key looks sensitive
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	ctx = logging.WithTraceID(ctx, msg.TraceID)
//	logger.InfoContext(ctx, "evaluated", "action", "pass")
package logging
