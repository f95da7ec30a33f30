package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/config"
)

func TestProbeServer(t *testing.T) {
	useConfig(t)
	a, err := newApp()
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close(context.Background())

	if err := a.buildEngine(context.Background()); err != nil {
		t.Fatalf("buildEngine() error = %v", err)
	}
	if err := a.openStorage(""); err != nil {
		t.Fatalf("openStorage() error = %v", err)
	}
	srv := a.probeServer("")

	for _, path := range []string{"/health", "/ready", "/version", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRuleSource(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		path     string
		repo     string
		wantErr  bool
		wantExit int
	}{
		{name: "default", source: ""},
		{name: "explicit default", source: "default"},
		{name: "file", source: "file", path: "rules.yaml"},
		{name: "file without path", source: "file", wantErr: true, wantExit: cli.ExitConfig},
		{name: "unknown", source: "s3", wantErr: true, wantExit: cli.ExitConfig},
		{name: "git with unresolved secret", source: "git", repo: "https://${secret:rules-repo-url-unset}", wantErr: true, wantExit: cli.ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EngineConfig{Source: tt.source, RulesPath: tt.path}
			cfg.Git.Repository = tt.repo

			src, err := ruleSource(context.Background(), cfg, config.SecretsConfig{}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ruleSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if cli.ExitCode(err) != tt.wantExit {
					t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), tt.wantExit)
				}
				return
			}
			if src == nil || strings.TrimSpace(src.String()) == "" {
				t.Errorf("source = %v", src)
			}
		})
	}
}
