package evaluator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

// Outcome is the result of one asynchronous evaluation.
type Outcome struct {
	Index      int
	Reflection *reflection.Reflection
	Err        error
}

// EvaluateAll evaluates msgs concurrently on at most Workers goroutines.
// Outcomes are returned in input order; a per-message failure is reported in
// its Outcome. The returned error is non-nil only when ctx ends first, in
// which case messages that never ran carry that error.
func (e *Evaluator) EvaluateAll(ctx context.Context, msgs []*message.AgentMessage) ([]Outcome, error) {
	out := make([]Outcome, len(msgs))
	for i := range out {
		out[i].Index = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, msg := range msgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.Evaluate(gctx, msg)
			out[i] = Outcome{Index: i, Reflection: r, Err: err}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i := range out {
			if out[i].Reflection == nil && out[i].Err == nil {
				out[i].Err = err
			}
		}
	}
	return out, err
}

// Go evaluates msg asynchronously. The channel receives exactly one Outcome
// and is then closed. Concurrent Go calls share the Workers limit.
func (e *Evaluator) Go(ctx context.Context, msg *message.AgentMessage) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			ch <- Outcome{Err: ctx.Err()}
			return
		}
		r, err := e.EvaluateIteration(ctx, msg, 0)
		ch <- Outcome{Reflection: r, Err: err}
	}()
	return ch
}
