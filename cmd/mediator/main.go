// Mediator evaluates messages exchanged between autonomous agents and drives
// a bounded correction loop for the ones that do not pass.
//
// It provides:
//   - Heuristic scoring of confidence, hallucination risk, drift and clarity
//   - Priority-ordered rules with decisive short-circuiting
//   - Colleague consultation for data quality, policy and action triggers
//   - Reflection persistence, export and retention
//
// Usage:
//
//	# Evaluate a message file
//	mediator evaluate message.json
//
//	# Run the correction loop with scripted revisions
//	mediator loop message.json --revisions revisions.json
//
//	# Validate rule set files
//	mediator rules lint rules.yaml
//
//	# Query stored reflections
//	mediator reflections query --trace-id trace-1
package main

func main() {
	Execute()
}
