package cliconfig

import (
	"os"
	"testing"

	"github.com/PulseLoom/PulseLoom/internal/config"
)

// setTestHome points config resolution at a temp dir and removes env that
// would leak real provider keys or config locations into the test. The
// vars must be absent, not empty: envconfig treats a present-but-empty
// variable as an override.
func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"PULSELOOM_HOME", "PULSELOOM_CONFIG",
		"PULSELOOM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY",
		"OPENAI_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	return home
}

func TestSetGetUnsetRoundTrip(t *testing.T) {
	setTestHome(t)

	val, err := Get("model.name")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	def, ok := val.(string)
	if !ok || def == "" {
		t.Fatalf("expected default model name, got %#v", val)
	}

	if err := Set("model.name", "openai/gpt-4o"); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err = Get("model.name")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if val != "openai/gpt-4o" {
		t.Fatalf("expected openai/gpt-4o, got %#v", val)
	}

	cfgPath, err := config.ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected mode 0600, got %04o", perm)
	}

	if err := Set("model.maxTokens", "2048"); err != nil {
		t.Fatalf("set numeric: %v", err)
	}
	val, err = Get("model.maxTokens")
	if err != nil {
		t.Fatalf("get numeric: %v", err)
	}
	if n, ok := val.(float64); !ok || n != 2048 {
		t.Fatalf("expected 2048, got %#v", val)
	}

	if err := Unset("model.name"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	val, err = Get("model.name")
	if err != nil {
		t.Fatalf("get after unset: %v", err)
	}
	if val != def {
		t.Fatalf("expected default %q restored, got %#v", def, val)
	}

	if err := Unset("model.name"); err == nil {
		t.Fatalf("expected error unsetting absent key")
	}
}

func TestSetCreatesNestedSections(t *testing.T) {
	setTestHome(t)

	if err := Set("providers.anthropic.apiKey", "sk-test"); err != nil {
		t.Fatalf("set nested: %v", err)
	}
	val, err := Get("providers.anthropic.apiKey")
	if err != nil {
		t.Fatalf("get nested: %v", err)
	}
	if val != "sk-test" {
		t.Fatalf("expected sk-test, got %#v", val)
	}
}

func TestGetRejectsUnknownAndEmptyPaths(t *testing.T) {
	setTestHome(t)

	if _, err := Get("no.such.path"); err == nil {
		t.Fatalf("expected error for unknown path")
	}
	if _, err := Get(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Get("..."); err == nil {
		t.Fatalf("expected error for dots-only path")
	}
}
