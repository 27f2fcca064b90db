package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `run_id: nightly-42
output: ./messages.ndjson
report: ./report.json
log_level: debug
flush_timeout: 45s

engine:
  command: [go, test, -json, ./...]
  env:
    GOFLAGS: -count=1
  dir: ./suite

storage:
  dataset: msgfmt
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true
  batch_size: 64

adapter:
  type: webhook
  url: https://hooks.example.com/msgfmt
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "run_id", cfg.RunID, "nightly-42")
	assertEqual(t, "output", cfg.Output, "./messages.ndjson")
	assertEqual(t, "report", cfg.Report, "./report.json")
	assertEqual(t, "log_level", cfg.LogLevel, "debug")
	if cfg.FlushTimeout.Duration != 45*time.Second {
		t.Errorf("flush_timeout = %v, want 45s", cfg.FlushTimeout.Duration)
	}

	// Engine
	if got := strings.Join(cfg.Engine.Command, " "); got != "go test -json ./..." {
		t.Errorf("engine.command = %q", got)
	}
	assertEqual(t, "engine.env.GOFLAGS", cfg.Engine.Env["GOFLAGS"], "-count=1")
	assertEqual(t, "engine.dir", cfg.Engine.Dir, "./suite")

	// Storage
	assertEqual(t, "storage.dataset", cfg.Storage.Dataset, "msgfmt")
	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/prefix")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	assertEqual(t, "storage.endpoint", cfg.Storage.Endpoint, "https://example.com")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}
	if cfg.Storage.BatchSize != 64 {
		t.Errorf("storage.batch_size = %d, want 64", cfg.Storage.BatchSize)
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/msgfmt")
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v, want 10s", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("adapter.retries = %v, want 3", cfg.Adapter.Retries)
	}
}

func TestLoad_EmptyConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   \n  \n  \n"},
		{"comments only", "# This is a comment\n# Another comment\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.RunID != "" || cfg.Storage.Backend != "" || len(cfg.Engine.Command) != 0 {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "storage: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "invalid YAML") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MSGFMT_TEST_BUCKET", "ci-bucket")
	cfg, err := Load(writeTemp(t, "storage:\n  backend: s3\n  path: ${MSGFMT_TEST_BUCKET}/runs\n  region: ${MSGFMT_TEST_REGION:-eu-west-1}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "storage.path", cfg.Storage.Path, "ci-bucket/runs")
	assertEqual(t, "storage.region", cfg.Storage.Region, "eu-west-1")
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: ${MSGFMT_UNSET_HOOK_12345:?webhook url}\n"))
	var missing *MissingEnvError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingEnvError, got %v", err)
	}
	if missing.Vars[0] != "MSGFMT_UNSET_HOOK_12345" {
		t.Errorf("Vars = %v", missing.Vars)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"top level", "run_id: r1\nbogus_key: should_fail\n", "bogus_key"},
		{"nested", "storage:\n  backend: fs\n  path: ./data\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.content))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %q, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("retries: 0 should be non-nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("retries = %d, want 0", *cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("omitted retries should be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestLoad_RedisStreamAdapter(t *testing.T) {
	cfg, err := Load(writeTemp(t, `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: ci:runs
  mode: stream
  max_len: 1000
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "ci:runs")
	assertEqual(t, "adapter.mode", cfg.Adapter.Mode, "stream")
	if cfg.Adapter.MaxLen != 1000 {
		t.Errorf("adapter.max_len = %d, want 1000", cfg.Adapter.MaxLen)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero", Config{}, ""},
		{"fs storage", Config{Storage: StorageConfig{Backend: "fs", Path: "./data"}}, ""},
		{"unknown backend", Config{Storage: StorageConfig{Backend: "gcs", Path: "b"}}, "storage.backend"},
		{"backend without path", Config{Storage: StorageConfig{Backend: "fs"}}, "storage.path"},
		{"negative batch", Config{Storage: StorageConfig{BatchSize: -2}}, "batch_size"},
		{"unknown adapter", Config{Adapter: AdapterConfig{Type: "kafka", URL: "x"}}, "adapter.type"},
		{"adapter without url", Config{Adapter: AdapterConfig{Type: "webhook"}}, "adapter.url"},
		{"unknown mode", Config{Adapter: AdapterConfig{Type: "redis", URL: "redis://x", Mode: "fanout"}}, "adapter.mode"},
		{"negative retries", Config{Adapter: AdapterConfig{Type: "webhook", URL: "http://x", Retries: &neg}}, "adapter.retries"},
		{"negative flush timeout", Config{FlushTimeout: Duration{-time.Second}}, "flush_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    time.Duration
		wantErr bool
	}{
		{"minutes and seconds", "flush_timeout: 5m30s\n", 5*time.Minute + 30*time.Second, false},
		{"empty string is zero", "flush_timeout: \"\"\n", 0, false},
		{"invalid format", "flush_timeout: soon\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, tt.content))
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "invalid duration") {
					t.Errorf("expected invalid duration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.FlushTimeout.Duration != tt.want {
				t.Errorf("got %v, want %v", cfg.FlushTimeout.Duration, tt.want)
			}
		})
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "msgfmt.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
