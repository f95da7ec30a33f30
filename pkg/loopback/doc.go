// Package loopback drives the bounded correction loop for one logical
// message.
//
// A Handler evaluates a message, adopts healed variants produced by the
// evaluator, and on rejection asks an injected RetryFunc for a revised message
// using a correction prompt built from the evaluation's correction tags. The
// loop stops when a message passes, when it is escalated, or when the retry
// budget is spent.
//
// # States
//
//	evaluating ──pass──────────────▶ passed
//	     │ ──escalate / exhausted──▶ rejected_terminal
//	     │ ──modify + healed──▶ evaluating (same iteration)
//	     ▼ reject / retry / modify without heal
//	correcting ──RetryFunc──▶ evaluating (iteration + 1)
//
// Every evaluation appends its Reflection to Result.History and is handed to
// the configured reflection.Sink. A RetryFunc failure ends the loop with a
// *RetryCallbackError that carries the partial Result.
//
// # Usage
//
//	h, err := loopback.New(eval, retry, cfg.Loopback,
//	    loopback.WithSink(reflection.SinkFunc(store.Store)),
//	    loopback.WithLogger(logger),
//	)
//	res, err := h.Run(ctx, msg)
package loopback
