package loopback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/evaluator"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMessage(text string, confidence float64) *message.AgentMessage {
	return &message.AgentMessage{
		TraceID:    "trace-1",
		SessionID:  "session-1",
		SenderID:   "agent-a",
		ReceiverID: "agent-b",
		Role:       message.RoleAssistant,
		RawOutput:  text,
		Metrics:    &message.Metrics{Confidence: &confidence},
	}
}

// scripted returns reflections chosen by decide.
type scripted struct {
	mu         sync.Mutex
	iterations []int
	decide     func(msg *message.AgentMessage) *reflection.Reflection
}

func (s *scripted) EvaluateIteration(_ context.Context, msg *message.AgentMessage, iteration int) (*reflection.Reflection, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.iterations = append(s.iterations, iteration)
	s.mu.Unlock()

	r := s.decide(msg)
	r.TraceID = msg.TraceID
	r.IterationCount = iteration
	return r, nil
}

func always(action reflection.Action, tags ...string) *scripted {
	return &scripted{decide: func(*message.AgentMessage) *reflection.Reflection {
		return &reflection.Reflection{ActionTaken: action, CorrectionTags: tags, Explanation: "scripted " + string(action)}
	}}
}

// healing always returns modify with a healed copy of the message.
func healing() *scripted {
	return &scripted{decide: func(msg *message.AgentMessage) *reflection.Reflection {
		healed := msg.Clone()
		healed.RawOutput = msg.RawOutput + "!"
		return &reflection.Reflection{
			ActionTaken:    reflection.ActionModify,
			CorrectionTags: []string{"unclear-pronouns"},
			HasHealed:      true,
			Healed:         healed,
		}
	}}
}

type recordingRetry struct {
	mu      sync.Mutex
	prompts []string
	next    func(n int) (*message.AgentMessage, error)
}

func (r *recordingRetry) fn(_ context.Context, prompt string, current *message.AgentMessage) (*message.AgentMessage, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	n := len(r.prompts)
	r.mu.Unlock()
	if r.next != nil {
		return r.next(n)
	}
	revised := current.Clone()
	revised.RawOutput = current.RawOutput + " (revised)"
	return revised, nil
}

func (r *recordingRetry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

type fakeMetrics struct {
	mu          sync.Mutex
	outcomes    []string
	retryErrors int
}

func (f *fakeMetrics) RecordLoop(outcome string, _ int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeMetrics) RecordRetryError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryErrors++
}

func newHandler(t *testing.T, eval Evaluator, retry RetryFunc, cfg config.LoopbackConfig, opts ...Option) *Handler {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	h, err := New(eval, retry, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestNew_Validation(t *testing.T) {
	eval := always(reflection.ActionPass)
	retry := (&recordingRetry{}).fn

	tests := []struct {
		name  string
		eval  Evaluator
		retry RetryFunc
		cfg   config.LoopbackConfig
		want  error
	}{
		{"nil evaluator", nil, retry, config.LoopbackConfig{}, ErrNilEvaluator},
		{"nil retry", eval, nil, config.LoopbackConfig{}, ErrNilRetry},
		{"negative iterations", eval, retry, config.LoopbackConfig{MaxIterations: -1}, ErrInvalidIterations},
		{"negative heal passes", eval, retry, config.LoopbackConfig{MaxHealPasses: -2}, ErrInvalidIterations},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.eval, tt.retry, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	h := newHandler(t, always(reflection.ActionPass), (&recordingRetry{}).fn, config.LoopbackConfig{})
	if h.MaxIterations() != config.DefaultMaxIterations {
		t.Errorf("MaxIterations() = %d, want %d", h.MaxIterations(), config.DefaultMaxIterations)
	}
	if h.limiter != nil {
		t.Error("limiter set without a retry rate")
	}

	paced := newHandler(t, always(reflection.ActionPass), (&recordingRetry{}).fn, config.LoopbackConfig{RetryRate: 5})
	if paced.limiter == nil || paced.limiter.Burst() != config.DefaultRetryBurst {
		t.Error("expected a limiter with the default burst")
	}
}

func TestRun_InvalidMessage(t *testing.T) {
	eval := always(reflection.ActionPass)
	h := newHandler(t, eval, (&recordingRetry{}).fn, config.LoopbackConfig{})

	msg := newMessage("hello", 0.9)
	msg.SessionID = ""

	res, err := h.Run(t.Context(), msg)
	var verr *message.ValidationError
	if !errors.As(err, &verr) || verr.Field != "session_id" {
		t.Fatalf("Run() error = %v, want session_id ValidationError", err)
	}
	if res != nil {
		t.Errorf("Run() result = %+v, want nil", res)
	}
	if len(eval.iterations) != 0 {
		t.Error("evaluator ran for an invalid message")
	}
}

func TestRun_Terminal(t *testing.T) {
	tests := []struct {
		name   string
		action reflection.Action
		state  State
		reason Reason
	}{
		{"pass", reflection.ActionPass, StatePassed, ReasonPassed},
		{"approve", reflection.ActionApprove, StatePassed, ReasonPassed},
		{"continue", reflection.ActionContinue, StatePassed, ReasonPassed},
		{"escalate", reflection.ActionEscalate, StateRejected, ReasonEscalated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry := &recordingRetry{}
			metrics := &fakeMetrics{}
			h := newHandler(t, always(tt.action), retry.fn, config.LoopbackConfig{}, WithMetrics(metrics))

			res, err := h.Run(t.Context(), newMessage("hello", 0.9))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.State != tt.state || res.Reason != tt.reason {
				t.Errorf("state = %s/%s, want %s/%s", res.State, res.Reason, tt.state, tt.reason)
			}
			if len(res.History) != 1 || res.Iterations != 0 {
				t.Errorf("history = %d, iterations = %d", len(res.History), res.Iterations)
			}
			if retry.calls() != 0 {
				t.Errorf("retry called %d times", retry.calls())
			}
			if len(metrics.outcomes) != 1 || metrics.outcomes[0] != string(tt.reason) {
				t.Errorf("metrics outcomes = %v", metrics.outcomes)
			}
		})
	}
}

func TestRun_RejectExhaustsIterations(t *testing.T) {
	for _, action := range []reflection.Action{reflection.ActionReject, reflection.ActionRetry} {
		t.Run(string(action), func(t *testing.T) {
			eval := always(action, "critical-quality-issues")
			retry := &recordingRetry{}
			h := newHandler(t, eval, retry.fn, config.LoopbackConfig{MaxIterations: 3})

			res, err := h.Run(t.Context(), newMessage("hello", 0.9))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.State != StateRejected || res.Reason != ReasonExhausted {
				t.Errorf("state = %s/%s", res.State, res.Reason)
			}
			if retry.calls() != 3 || res.Iterations != 3 {
				t.Errorf("retry calls = %d, iterations = %d, want 3", retry.calls(), res.Iterations)
			}
			if len(res.History) != 4 || len(res.Prompts) != 3 {
				t.Errorf("history = %d, prompts = %d", len(res.History), len(res.Prompts))
			}
			for i, it := range eval.iterations {
				if it != i {
					t.Errorf("evaluation %d ran as iteration %d", i, it)
				}
			}
			if !strings.HasSuffix(res.Final.RawOutput, "(revised) (revised) (revised)") {
				t.Errorf("Final = %q", res.Final.RawOutput)
			}
		})
	}
}

func TestRun_ModifyWithoutHealIsRetried(t *testing.T) {
	retry := &recordingRetry{}
	h := newHandler(t, always(reflection.ActionModify, "semantic-drift"), retry.fn, config.LoopbackConfig{MaxIterations: 1})

	res, err := h.Run(t.Context(), newMessage("hello", 0.9))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if retry.calls() != 1 || res.Reason != ReasonExhausted {
		t.Errorf("retry calls = %d, reason = %s", retry.calls(), res.Reason)
	}
	if !strings.Contains(retry.prompts[0], DefaultTemplates["semantic-drift"]) {
		t.Errorf("prompt = %q", retry.prompts[0])
	}
}

func TestRun_HealPassesAreCapped(t *testing.T) {
	eval := healing()
	retry := &recordingRetry{}
	h := newHandler(t, eval, retry.fn, config.LoopbackConfig{MaxIterations: 1, MaxHealPasses: 2})

	res, err := h.Run(t.Context(), newMessage("hello", 0.9))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonExhausted {
		t.Errorf("state = %s/%s", res.State, res.Reason)
	}
	if res.HealPasses != 4 || res.Iterations != 1 || len(res.History) != 6 {
		t.Errorf("heal passes = %d, iterations = %d, history = %d", res.HealPasses, res.Iterations, len(res.History))
	}
	want := []int{0, 0, 0, 1, 1, 1}
	for i, it := range eval.iterations {
		if it != want[i] {
			t.Errorf("evaluation %d iteration = %d, want %d", i, it, want[i])
		}
	}
}

func TestRun_RetryFailures(t *testing.T) {
	boom := errors.New("model unavailable")
	invalid := newMessage("revised", 0.9)
	invalid.TraceID = ""

	tests := []struct {
		name  string
		next  func(int) (*message.AgentMessage, error)
		check func(t *testing.T, err error)
	}{
		{
			name: "callback error",
			next: func(int) (*message.AgentMessage, error) { return nil, boom },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, boom) {
					t.Errorf("error = %v, want %v", err, boom)
				}
			},
		},
		{
			name: "nil message",
			next: func(int) (*message.AgentMessage, error) { return nil, nil },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoRevision) {
					t.Errorf("error = %v, want ErrNoRevision", err)
				}
			},
		},
		{
			name: "panic",
			next: func(int) (*message.AgentMessage, error) { panic("retry exploded") },
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "retry exploded") {
					t.Errorf("error = %v", err)
				}
			},
		},
		{
			name: "invalid revision",
			next: func(int) (*message.AgentMessage, error) { return invalid, nil },
			check: func(t *testing.T, err error) {
				var verr *message.ValidationError
				if !errors.As(err, &verr) || verr.Field != "trace_id" {
					t.Errorf("error = %v, want trace_id ValidationError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &fakeMetrics{}
			retry := &recordingRetry{next: tt.next}
			h := newHandler(t, always(reflection.ActionReject), retry.fn, config.LoopbackConfig{}, WithMetrics(metrics))

			res, err := h.Run(t.Context(), newMessage("hello", 0.9))
			var rerr *RetryCallbackError
			if !errors.As(err, &rerr) {
				t.Fatalf("Run() error = %v, want RetryCallbackError", err)
			}
			tt.check(t, err)

			if rerr.Result != res || len(res.History) != 1 {
				t.Errorf("partial history = %d", len(res.History))
			}
			if res.State != StateRejected || res.Reason != ReasonRetryFailed {
				t.Errorf("state = %s/%s", res.State, res.Reason)
			}
			if retry.calls() != 1 {
				t.Errorf("retry calls = %d, want 1", retry.calls())
			}
			if metrics.retryErrors != 1 {
				t.Errorf("retry errors = %d, want 1", metrics.retryErrors)
			}
		})
	}
}

func TestRun_CancelledBeforeRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	retry := &recordingRetry{}
	h := newHandler(t, always(reflection.ActionReject), retry.fn, config.LoopbackConfig{})

	res, err := h.Run(ctx, newMessage("hello", 0.9))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res.Reason != ReasonCancelled || len(res.History) != 1 || retry.calls() != 0 {
		t.Errorf("reason = %s, history = %d, retry calls = %d", res.Reason, len(res.History), retry.calls())
	}
}

func TestRun_SinkReceivesEveryReflection(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	sink := reflection.SinkFunc(func(_ context.Context, r *reflection.Reflection) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(r.ActionTaken))
		return errors.New("disk full")
	})

	h := newHandler(t, always(reflection.ActionReject), (&recordingRetry{}).fn,
		config.LoopbackConfig{MaxIterations: 2}, WithSink(sink))

	res, err := h.Run(t.Context(), newMessage("hello", 0.9))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 3 || len(res.History) != 3 {
		t.Errorf("sink got %d, history %d, want 3", len(got), len(res.History))
	}
}

func TestRun_WithEvaluator(t *testing.T) {
	evalCfg := config.DefaultEvaluatorConfig()
	evalCfg.MediatorID = "loop-test"
	eval := evaluator.New(evalCfg, evaluator.WithLogger(testLogger()))

	t.Run("hedged message is healed in place", func(t *testing.T) {
		retry := &recordingRetry{}
		h := newHandler(t, eval, retry.fn, config.LoopbackConfig{})

		msg := &message.AgentMessage{
			TraceID: "trace-1", SessionID: "session-1", SenderID: "agent-a", ReceiverID: "agent-b",
			Role: message.RoleAssistant, RawOutput: "I think maybe it's 42", SemanticDriftScore: 0.1,
		}
		res, err := h.Run(t.Context(), msg)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Passed() {
			t.Fatalf("state = %s/%s, last = %+v", res.State, res.Reason, res.Last())
		}
		if res.HealPasses != 1 || res.Iterations != 0 || retry.calls() != 0 {
			t.Errorf("heal passes = %d, iterations = %d, retries = %d", res.HealPasses, res.Iterations, retry.calls())
		}
		if res.Final.RawOutput != "It's 42" {
			t.Errorf("Final = %q, want %q", res.Final.RawOutput, "It's 42")
		}
		if res.History[0].ActionTaken != reflection.ActionModify || res.Last().ActionTaken != reflection.ActionPass {
			t.Errorf("history actions = %s, %s", res.History[0].ActionTaken, res.Last().ActionTaken)
		}
	})

	t.Run("speculative claims are qualified once", func(t *testing.T) {
		retry := &recordingRetry{}
		h := newHandler(t, eval, retry.fn, config.LoopbackConfig{})

		msg := &message.AgentMessage{
			TraceID: "trace-2", SessionID: "session-1", SenderID: "agent-a", ReceiverID: "agent-b",
			Role: message.RoleAssistant, RawOutput: "Studies show everyone knows the answer is 42.",
		}
		res, err := h.Run(t.Context(), msg)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Passed() || res.HealPasses != 1 || retry.calls() != 0 {
			t.Fatalf("state = %s/%s, heal passes = %d, retries = %d", res.State, res.Reason, res.HealPasses, retry.calls())
		}
		if want := evaluator.EvidencePrefix + "the answer is 42."; res.Final.RawOutput != want {
			t.Errorf("Final = %q, want %q", res.Final.RawOutput, want)
		}
	})

	t.Run("unresolvable risk reaches the callback unqualified", func(t *testing.T) {
		const text = "Maybe 45% of people, 60% of experts, 70% of users and 80% of scientists agree."
		var received []string
		retry := func(_ context.Context, _ string, current *message.AgentMessage) (*message.AgentMessage, error) {
			received = append(received, current.RawOutput)
			return newMessage("The capital of France is Paris.", 0.95), nil
		}
		h := newHandler(t, eval, retry, config.LoopbackConfig{})

		msg := &message.AgentMessage{
			TraceID: "trace-3", SessionID: "session-1", SenderID: "agent-a", ReceiverID: "agent-b",
			Role: message.RoleAssistant, RawOutput: text,
		}
		res, err := h.Run(t.Context(), msg)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Passed() || res.HealPasses != 0 || res.Iterations != 1 {
			t.Fatalf("state = %s/%s, heal passes = %d, iterations = %d", res.State, res.Reason, res.HealPasses, res.Iterations)
		}
		if len(received) != 1 || received[0] != text {
			t.Errorf("callback received %q, want the original text", received)
		}
		if res.History[0].ActionTaken != reflection.ActionModify || res.History[0].HasHealed {
			t.Errorf("first reflection = %s healed %v", res.History[0].ActionTaken, res.History[0].HasHealed)
		}
	})

	t.Run("rejected message is revised", func(t *testing.T) {
		retry := &recordingRetry{next: func(int) (*message.AgentMessage, error) {
			return newMessage("The capital of France is Paris.", 0.95), nil
		}}
		h := newHandler(t, eval, retry.fn, config.LoopbackConfig{})

		res, err := h.Run(t.Context(), newMessage("The answer is 42.", 0.2))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Passed() || res.Iterations != 1 || len(res.History) != 2 {
			t.Fatalf("state = %s, iterations = %d, history = %d", res.State, res.Iterations, len(res.History))
		}
		if res.Last().IterationCount != 1 {
			t.Errorf("last IterationCount = %d, want 1", res.Last().IterationCount)
		}
		prompt := retry.prompts[0]
		if !strings.Contains(prompt, DefaultTemplates[evaluator.TagCriticalQuality]) ||
			!strings.Contains(prompt, "Evaluator feedback: critical quality issues") {
			t.Errorf("prompt = %q", prompt)
		}
	})
}

func TestGo(t *testing.T) {
	h := newHandler(t, always(reflection.ActionPass), (&recordingRetry{}).fn, config.LoopbackConfig{})

	ch := h.Go(t.Context(), newMessage("hello", 0.9))
	o, ok := <-ch
	if !ok {
		t.Fatal("channel closed without an outcome")
	}
	if o.Err != nil || !o.Result.Passed() {
		t.Errorf("outcome = %+v", o)
	}
	if _, ok := <-ch; ok {
		t.Error("channel delivered a second outcome")
	}
}
