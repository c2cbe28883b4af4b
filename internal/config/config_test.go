package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_EmptyOwner(t *testing.T) {
	cfg := Defaults()
	cfg.General.OwnerID = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty ownerId")
	}
}

func TestValidate_MaxAttemptsBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.MaxAttempts = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxAttempts=0")
	}

	cfg.Exchange.MaxAttempts = 11
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxAttempts=11")
	}

	cfg.Exchange.MaxAttempts = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxAttempts=1 should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Web.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Channels.Web.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_VoiceNeedsKey(t *testing.T) {
	cfg := Defaults()
	cfg.Voice.Enabled = true
	cfg.Voice.APIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("enabled voice without an API key must fail validation")
	}
	cfg.Voice.APIKey = "k"
	if err := Validate(cfg); err != nil {
		t.Fatalf("voice with key should be valid: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

// --- Load / Save ---

func TestLoad_AppliesDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"general":{"ownerId":"alice"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.OwnerID != "alice" {
		t.Fatalf("ownerId = %q", cfg.General.OwnerID)
	}
	if cfg.Exchange.TimeoutSeconds != 30 || cfg.Exchange.MaxAttempts != 3 {
		t.Fatalf("exchange defaults not applied: %+v", cfg.Exchange)
	}
	if cfg.Exchange.CacheCapacity != 50 {
		t.Fatalf("cacheCapacity default = %d", cfg.Exchange.CacheCapacity)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Defaults()
	cfg.General.OwnerID = "bob"
	cfg.Channels.Web.Enabled = true
	cfg.Channels.Web.Port = 9999

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.General.OwnerID != "bob" || loaded.Channels.Web.Port != 9999 {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AGENTCHAT_TEST_KEY", "secret123")

	out := ExpandEnvVars(`{"apiKey":"${AGENTCHAT_TEST_KEY}"}`)
	if !strings.Contains(out, "secret123") {
		t.Fatalf("env var not expanded: %s", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("AGENTCHAT_UNSET_VAR")

	out := ExpandEnvVars(`${AGENTCHAT_UNSET_VAR:-fallback}`)
	if out != "fallback" {
		t.Fatalf("default not applied: %q", out)
	}
}

func TestExpandEnvVars_UnsetNoDefaultKept(t *testing.T) {
	os.Unsetenv("AGENTCHAT_UNSET_VAR")

	out := ExpandEnvVars(`${AGENTCHAT_UNSET_VAR}`)
	if out != "${AGENTCHAT_UNSET_VAR}" {
		t.Fatalf("unset var without default should stay literal, got %q", out)
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("AGENTCHAT_OWNER", "carol")
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"general":{"ownerId":"${AGENTCHAT_OWNER}"}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.OwnerID != "carol" {
		t.Fatalf("ownerId = %q", cfg.General.OwnerID)
	}
}

// --- Accessor ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "channels.web.port")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.(float64); !ok || int(n) != 8080 {
		t.Fatalf("channels.web.port = %v", v)
	}
	if _, err := GetByPath(cfg, "no.such.key"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "channels.web.port", "9001"); err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Web.Port != 9001 {
		t.Fatalf("port = %d", cfg.Channels.Web.Port)
	}
	if err := SetByPath(cfg, "voice.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	if !cfg.Voice.Enabled {
		t.Fatal("voice.enabled not set")
	}
}

func TestSanitize_MasksVoiceKey(t *testing.T) {
	cfg := Defaults()
	cfg.Voice.APIKey = "gsk_live_abcdef123456"

	clean := Sanitize(cfg)
	if clean.Voice.APIKey == cfg.Voice.APIKey {
		t.Fatal("API key must be masked")
	}
	if cfg.Voice.APIKey != "gsk_live_abcdef123456" {
		t.Fatal("original config must not be mutated")
	}

	data, _ := json.Marshal(clean)
	if strings.Contains(string(data), "abcdef123456") {
		t.Fatal("masked output still leaks the key")
	}
}

// --- Agent registry ---

func writeAgentsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgents_ResolvesEndpoint(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - id: support
    name: Support Agent
    endpoint: https://agents.example.com/support
  - id: sales
    name: Sales Agent
    endpoint: https://agents.example.com/sales
`)
	reg, err := LoadAgents(path)
	if err != nil {
		t.Fatal(err)
	}
	url, err := reg.Endpoint("support")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://agents.example.com/support" {
		t.Fatalf("endpoint = %q", url)
	}
	if _, err := reg.Endpoint("ghost"); err == nil {
		t.Fatal("unknown agent must error")
	}
	if got := len(reg.List()); got != 2 {
		t.Fatalf("List returned %d agents", got)
	}
}

func TestLoadAgents_MissingFileIsEmpty(t *testing.T) {
	reg, err := LoadAgents(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.List()) != 0 {
		t.Fatal("missing file should yield an empty registry")
	}
}

func TestLoadAgents_RejectsBadEntries(t *testing.T) {
	for name, body := range map[string]string{
		"empty id":     "agents:\n  - name: X\n    endpoint: https://x\n",
		"bad endpoint": "agents:\n  - id: a\n    endpoint: ftp://x\n",
		"duplicate":    "agents:\n  - id: a\n    endpoint: https://x\n  - id: a\n    endpoint: https://y\n",
	} {
		if _, err := LoadAgents(writeAgentsFile(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSaveAgents_RoundTrip(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - id: support
    endpoint: https://agents.example.com/support
`)
	reg, err := LoadAgents(path)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "copy.yaml")
	if err := SaveAgents(out, reg); err != nil {
		t.Fatal(err)
	}
	again, err := LoadAgents(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := again.Endpoint("support"); err != nil {
		t.Fatal("saved registry lost the agent")
	}
}
