package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
watch_dir: /srv/docsort/inbox
output_dir: /srv/docsort/sorted
remote:
  base_url: http://localhost:8080
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.Debounce != 2*time.Second {
		t.Errorf("Debounce = %s, want 2s", cfg.Debounce)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0] != "*.pdf" {
		t.Errorf("Patterns = %v, want [*.pdf]", cfg.Patterns)
	}
	if cfg.Rename.MaxFileSizeMb != 50 {
		t.Errorf("Rename.MaxFileSizeMb = %d, want 50", cfg.Rename.MaxFileSizeMb)
	}
	if cfg.Split.MaxPollAttempts != 300 {
		t.Errorf("Split.MaxPollAttempts = %d, want 300", cfg.Split.MaxPollAttempts)
	}
	if cfg.Split.PollInterval != 2*time.Second {
		t.Errorf("Split.PollInterval = %s, want 2s", cfg.Split.PollInterval)
	}
	if cfg.Index.TTL != 720*time.Hour {
		t.Errorf("Index.TTL = %s, want 720h", cfg.Index.TTL)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
watch_dir: /in
output_dir: /out
patterns: ["*.pdf", "*.docx", "invoice.pdf"]
concurrency: 8
debounce: 500ms
dry_run: true
remote:
  base_url: http://split.internal:9000
  timeout: 30s
split:
  enabled: true
  mode: pages
  poll_interval: 1s
  max_poll_attempts: 10
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %s, want 500ms", cfg.Debounce)
	}
	if !cfg.DryRun {
		t.Error("DryRun not set")
	}
	if len(cfg.Patterns) != 3 {
		t.Errorf("Patterns = %v, want 3 entries", cfg.Patterns)
	}
	if cfg.Split.Mode != "pages" {
		t.Errorf("Split.Mode = %q, want pages", cfg.Split.Mode)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Remote.Timeout = %s, want 30s", cfg.Remote.Timeout)
	}
}

func TestLoadReadsAPIKeyFromEnv(t *testing.T) {
	t.Setenv("DOCSORT_API_KEY", "secret-token")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.APIKey != "secret-token" {
		t.Errorf("Remote.APIKey = %q, want secret-token", cfg.Remote.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			"missing watch dir",
			"output_dir: /out\nremote:\n  base_url: http://x\n",
			"watch_dir",
		},
		{
			"missing remote base url",
			"watch_dir: /in\noutput_dir: /out\n",
			"remote.base_url",
		},
		{
			"concurrency too high",
			"watch_dir: /in\noutput_dir: /out\nconcurrency: 11\nremote:\n  base_url: http://x\n",
			"concurrency",
		},
		{
			"empty patterns",
			"watch_dir: /in\noutput_dir: /out\npatterns: []\nremote:\n  base_url: http://x\n",
			"patterns",
		},
		{
			"index without redis addr",
			"watch_dir: /in\noutput_dir: /out\nindex:\n  enabled: true\nremote:\n  base_url: http://x\n",
			"index.redis.addr",
		},
		{
			"archive without bucket",
			"watch_dir: /in\noutput_dir: /out\narchive:\n  enabled: true\n  minio:\n    endpoint: localhost:9000\nremote:\n  base_url: http://x\n",
			"archive.minio.bucket",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("Load succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}
