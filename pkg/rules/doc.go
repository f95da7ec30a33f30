// Package rules implements the condition/action rule engine that drives
// message evaluation.
//
// # Model
//
// A Condition is a predicate over a dot-separated field path in a Context:
//
//	rules.Condition{Field: "metrics.confidence", Operator: rules.OpLessThan, Value: 0.3}
//
// A Rule combines an ordered list of Conditions with AND logic and carries a
// single Action. A Rule with no conditions always matches. Conditions are
// total functions: a path that cannot be resolved, or an operand that cannot
// be compared, evaluates to false and is never surfaced as an error.
//
// # Evaluation
//
// The Engine keeps its rules sorted by ascending Priority (lower value runs
// first, ties broken by name). Evaluate walks the list, skips disabled rules
// and executes every matching rule. The decisive actions (approve, reject,
// escalate) stop evaluation, so a result list holds any number of
// non-decisive results followed by at most one decisive result:
//
//	results := eng.Evaluate(ctx, rules.Context{"confidence": 0.2})
//	decision := rules.DecisionOf(results) // "continue" when nothing matched
//
// Custom rules call a HandlerFunc registered by name. Handler errors and
// panics are recorded on the ExecutionResult and never abort evaluation.
//
// # Reloading
//
// The rule list is published through an atomic pointer. Replace builds the
// new sorted list first and swaps it in one step, so concurrent evaluations
// observe either the old or the new set and never a mixture. Writers are
// serialized by the engine. Rule sets are usually loaded from a declarative
// YAML or JSON document (see RuleSet) through a Source, and Watch reloads the
// engine wholesale whenever the source reports a change.
package rules
