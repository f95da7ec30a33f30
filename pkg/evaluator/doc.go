// Package evaluator scores agent messages and decides what happens to them.
//
// An evaluation runs in fixed stages: signals are computed from the message
// text (confidence, hallucination risk, semantic drift, clarity issues), a
// heuristic decision is taken (reject, modify or pass), the optional rule
// engine and mediator are consulted, and a reflection.Reflection is emitted.
//
// Heuristic policy, with the default thresholds:
//
//	confidence < 0.4 or hallucination risk > 0.6   reject, tag critical-quality-issues
//	confidence < 0.7, risk > 0.3, drift, clarity   modify, healed copy attached
//	otherwise                                      pass
//
// A decisive rule result (approve, reject, escalate) overrides the heuristic
// action. When an enhanced engine is attached, colleagues may force a reject
// (blocking policy) or turn an approval into a retry (poor data quality).
// A rule or colleague that fails is skipped and named in Reflection.Degraded.
//
// EvaluateAll and Go run evaluations on a bounded number of goroutines.
package evaluator
