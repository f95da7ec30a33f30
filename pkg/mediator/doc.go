// Package mediator coordinates specialised colleagues that refine a rule
// engine decision.
//
// A Mediator routes typed requests to registered Colleagues. Routing is
// first-match: when no target is named, the first colleague (in registration
// order) whose Capabilities include the request kind handles it, and any later
// colleague advertising the same kind is never consulted. When nothing can
// handle a request the Mediator returns a *RoutingError.
//
// Four colleagues are provided:
//
//   - DataSourceColleague scores content against a trusted source list
//   - RuleEvaluatorColleague aggregates rule outcomes with a weighted or
//     consensus strategy
//   - PolicyColleague runs compliance policies and keeps a bounded violation log
//   - ActionTriggerColleague fires side-effecting actions whose CEL conditions
//     hold, at most once per cooldown window
//
// EnhancedEngine combines a rules.Engine with a Mediator. Colleague failures
// are collected per contributor and never abort the evaluation.
package mediator
