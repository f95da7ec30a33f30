package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"mercator-hq/mediator/pkg/reflection/storage"
	"mercator-hq/mediator/pkg/rules"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"default timeout", 0, 5 * time.Second},
		{"negative timeout", -time.Second, 5 * time.Second},
		{"custom timeout", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.timeout)
			if c.timeout != tt.want {
				t.Errorf("timeout = %v, want %v", c.timeout, tt.want)
			}
			if len(c.Checks()) != 0 {
				t.Errorf("new checker has checks %v", c.Checks())
			}
		})
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	c := New(time.Second)
	ok := func(context.Context) error { return nil }

	c.RegisterCheck("storage", ok)
	c.RegisterCheck("rules", ok)
	c.RegisterCheck("rules", ok)
	if got := c.Checks(); !slices.Equal(got, []string{"rules", "storage"}) {
		t.Errorf("Checks() = %v", got)
	}

	c.UnregisterCheck("storage")
	c.UnregisterCheck("missing")
	if got := c.Checks(); !slices.Equal(got, []string{"rules"}) {
		t.Errorf("Checks() = %v", got)
	}
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("store closed") }
	blocking := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		unhealthy  []string
	}{
		{"no checks", nil, StatusReady, nil},
		{"all pass", map[string]CheckFunc{"a": ok, "b": ok}, StatusReady, nil},
		{"one fails", map[string]CheckFunc{"a": ok, "b": failing}, StatusDegraded, []string{"b"}},
		{"timeout", map[string]CheckFunc{"slow": blocking}, StatusDegraded, []string{"slow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(20 * time.Millisecond)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}

			report := c.Readiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", report.Status, tt.wantStatus)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(report.Checks), len(tt.checks))
			}
			for name, res := range report.Checks {
				wantBad := slices.Contains(tt.unhealthy, name)
				if (res.Status == StatusUnhealthy) != wantBad {
					t.Errorf("check %s status = %s", name, res.Status)
				}
				if wantBad && res.Message == "" {
					t.Errorf("check %s has no message", name)
				}
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("rules", func(context.Context) error { return errors.New("no enabled rules loaded") })
	mux := http.NewServeMux()
	c.Mount(mux, VersionInfo{Version: "1.2.3", Commit: "abc123"})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody bool
	}{
		{"liveness", http.MethodGet, "/health", http.StatusOK, true},
		{"liveness head", http.MethodHead, "/health", http.StatusOK, false},
		{"readiness degraded", http.MethodGet, "/ready", http.StatusServiceUnavailable, true},
		{"version", http.MethodGet, "/version", http.StatusOK, true},
		{"post not allowed", http.MethodPost, "/health", http.StatusMethodNotAllowed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if (rec.Body.Len() > 0) != tt.wantBody {
				t.Errorf("body = %q, wantBody %v", rec.Body.String(), tt.wantBody)
			}
		})
	}

	t.Run("version body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

		var info VersionInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
			t.Errorf("info = %+v", info)
		}
	})

	t.Run("readiness body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		var report Report
		if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if report.Status != StatusDegraded || report.Checks["rules"].Message != "no enabled rules loaded" {
			t.Errorf("report = %+v", report)
		}
	})
}

func TestRulesLoaded(t *testing.T) {
	engine, err := rules.NewEngine(rules.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	check := RulesLoaded(engine)
	ctx := context.Background()

	if err := check(ctx); err == nil {
		t.Error("empty engine should fail")
	}

	r := rules.NewRule("low_confidence", rules.ActionReject, 1,
		rules.Condition{Field: "confidence", Operator: rules.OpLessThan, Value: 0.3})
	if err := engine.AddRule(r); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	if err := check(ctx); err != nil {
		t.Errorf("loaded engine error = %v", err)
	}

	if err := engine.SetEnabled("low_confidence", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if err := check(ctx); err == nil {
		t.Error("engine with only disabled rules should fail")
	}
}

func TestStorageReachable(t *testing.T) {
	store := storage.NewMemoryStorage()
	defer store.Close()

	if err := StorageReachable(store)(context.Background()); err != nil {
		t.Errorf("StorageReachable() error = %v", err)
	}
}
