package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/telemetry/tracing"
)

// Handler runs correction loops. It holds no per-message state and is safe
// for concurrent use.
type Handler struct {
	eval    Evaluator
	retry   RetryFunc
	cfg     config.LoopbackConfig
	prompts *PromptBuilder
	limiter *rate.Limiter
	sink    reflection.Sink

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithSink receives every reflection as it is produced.
func WithSink(s reflection.Sink) Option {
	return func(h *Handler) {
		h.sink = s
	}
}

// WithTemplates overlays correction prompt templates on DefaultTemplates.
func WithTemplates(t map[string]string) Option {
	return func(h *Handler) {
		h.prompts = NewPromptBuilder(t)
	}
}

// WithLimiter paces retry-callback invocations. It replaces the limiter
// derived from RetryRate.
func WithLimiter(l *rate.Limiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a handler. Zero caps in cfg take the package defaults; negative
// caps fail with ErrInvalidIterations.
func New(eval Evaluator, retry RetryFunc, cfg config.LoopbackConfig, opts ...Option) (*Handler, error) {
	if eval == nil {
		return nil, ErrNilEvaluator
	}
	if retry == nil {
		return nil, ErrNilRetry
	}
	if cfg.MaxIterations < 0 || cfg.MaxHealPasses < 0 {
		return nil, fmt.Errorf("%w: max_iterations=%d max_heal_passes=%d",
			ErrInvalidIterations, cfg.MaxIterations, cfg.MaxHealPasses)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = config.DefaultMaxIterations
	}
	if cfg.MaxHealPasses == 0 {
		cfg.MaxHealPasses = config.DefaultMaxHealPasses
	}

	h := &Handler{
		eval:    eval,
		retry:   retry,
		cfg:     cfg,
		prompts: NewPromptBuilder(nil),
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer(""),
		metrics: nopMetrics{},
		now:     time.Now,
	}
	if cfg.RetryRate > 0 {
		burst := cfg.RetryBurst
		if burst <= 0 {
			burst = config.DefaultRetryBurst
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RetryRate), burst)
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "loopback")
	return h, nil
}

// MaxIterations returns the retry cap.
func (h *Handler) MaxIterations() int { return h.cfg.MaxIterations }

// Run drives msg through the correction loop. An invalid msg fails before any
// state is produced. Otherwise the returned Result always carries at least one
// reflection, including alongside a *RetryCallbackError or a context error.
func (h *Handler) Run(ctx context.Context, msg *message.AgentMessage) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	start := h.now()
	ctx, span := h.tracer.Start(ctx, "loopback.run",
		trace.WithAttributes(tracing.MessageAttributes(
			msg.TraceID, msg.SessionID, msg.SenderID, msg.ReceiverID, string(msg.Role))...))
	defer span.End()

	res := &Result{State: StateEvaluating, Final: msg}
	err := h.loop(ctx, span, res)

	span.SetAttributes(
		attribute.Int(tracing.AttrIteration, res.Iterations),
		attribute.Bool(tracing.AttrPassed, res.Passed()),
	)
	if err != nil {
		span.RecordError(err)
	}
	h.metrics.RecordLoop(string(res.Reason), res.Iterations, h.now().Sub(start))

	h.logger.InfoContext(ctx, "correction loop finished",
		"trace_id", msg.TraceID,
		"state", res.State,
		"reason", res.Reason,
		"iterations", res.Iterations,
		"heal_passes", res.HealPasses,
		"evaluations", len(res.History),
	)
	return res, err
}

func (h *Handler) loop(ctx context.Context, span trace.Span, res *Result) error {
	current := res.Final
	heals := 0

	for {
		r, err := h.eval.EvaluateIteration(ctx, current, res.Iterations)
		if err != nil {
			// Only a revised message can get here; the first was validated.
			return h.retryFailed(ctx, res, fmt.Errorf("revised message rejected by evaluator: %w", err))
		}
		res.History = append(res.History, r)
		res.Final = current
		h.record(ctx, r)

		span.AddEvent("evaluated", trace.WithAttributes(
			attribute.Int(tracing.AttrIteration, res.Iterations),
			attribute.String(tracing.AttrAction, string(r.ActionTaken)),
		))

		switch {
		case r.ActionTaken.Passed():
			res.stop(StatePassed, ReasonPassed)
			return nil

		case r.ActionTaken == reflection.ActionEscalate:
			res.stop(StateRejected, ReasonEscalated)
			return nil

		case r.ActionTaken == reflection.ActionModify && r.HasHealed && r.Healed != nil && heals < h.cfg.MaxHealPasses:
			h.logger.DebugContext(ctx, "adopting healed message",
				"trace_id", current.TraceID,
				"iteration", res.Iterations,
				"heal_pass", heals+1,
			)
			current = r.Healed
			heals++
			res.HealPasses++
			continue
		}

		if r.ActionTaken == reflection.ActionModify {
			h.logger.DebugContext(ctx, "modify without usable heal treated as reject",
				"trace_id", current.TraceID,
				"iteration", res.Iterations,
				"heal_passes", heals,
			)
		}

		if res.Iterations >= h.cfg.MaxIterations {
			res.stop(StateRejected, ReasonExhausted)
			return nil
		}

		res.State = StateCorrecting
		prompt := h.prompts.Build(r)

		if err := h.wait(ctx); err != nil {
			res.stop(StateRejected, ReasonCancelled)
			return err
		}

		next, err := h.callRetry(ctx, prompt, current)
		if err != nil {
			return h.retryFailed(ctx, res, err)
		}

		res.Prompts = append(res.Prompts, prompt)
		res.Iterations++
		res.State = StateEvaluating
		current = next
		heals = 0

		h.logger.DebugContext(ctx, "revised message received",
			"trace_id", current.TraceID,
			"iteration", res.Iterations,
		)
	}
}

func (h *Handler) retryFailed(ctx context.Context, res *Result, err error) error {
	h.metrics.RecordRetryError()
	res.stop(StateRejected, ReasonRetryFailed)
	h.logger.ErrorContext(ctx, "retry callback failed",
		"iteration", res.Iterations,
		"error", err,
	)
	return &RetryCallbackError{Iteration: res.Iterations, Err: err, Result: res}
}

// wait blocks on the retry limiter, if any, and honors ctx either way.
func (h *Handler) wait(ctx context.Context) error {
	if h.limiter != nil {
		return h.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// callRetry invokes the retry callback, converting panics and nil messages
// into errors.
func (h *Handler) callRetry(ctx context.Context, prompt string, current *message.AgentMessage) (next *message.AgentMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	next, err = h.retry(ctx, prompt, current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, ErrNoRevision
	}
	return next, nil
}

// record hands r to the sink. Sink failures are logged and do not stop the
// loop.
func (h *Handler) record(ctx context.Context, r *reflection.Reflection) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Record(ctx, r); err != nil {
		h.logger.WarnContext(ctx, "failed to record reflection",
			"reflection_id", r.ID,
			"error", err,
		)
	}
}

// Go runs the loop asynchronously. The channel receives exactly one Outcome
// and is then closed.
func (h *Handler) Go(ctx context.Context, msg *message.AgentMessage) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := h.Run(ctx, msg)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
