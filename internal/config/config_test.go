package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ROOMCHAT_CONFIG", "ROOMCHAT_DATA", "ROOMCHAT_AGENT_URL", "ROOMCHAT_TURN_TIMEOUT",
		"ROOMCHAT_VOICE", "ROOMCHAT_SPEECH_PROVIDER", "OPENAI_API_KEY", "ROOMCHAT_TTS_VOICE",
		"ROOMCHAT_PLAYER", "ROOMCHAT_CHUNK_TIMEOUT", "ROOMCHAT_DB", "ROOMCHAT_SCREENSHOTS",
		"ROOMCHAT_SCREENSHOT_SCHEDULE", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
		"MINIO_USE_SSL", "MINIO_BUCKET", "ROOMCHAT_METRICS_ADDR", "ROOMCHAT_STUB_ADDR",
		"ROOMCHAT_STUB_FRAME_DELAY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Agent.URL != "http://localhost:8000" {
		t.Errorf("unexpected agent url: %s", cfg.Agent.URL)
	}
	if cfg.Agent.TurnTimeout != 2*time.Minute {
		t.Errorf("unexpected turn timeout: %v", cfg.Agent.TurnTimeout)
	}
	if cfg.Voice.Enabled || cfg.Voice.Provider != "agent" || cfg.Voice.TTSVoice != "nova" {
		t.Errorf("unexpected voice config: %+v", cfg.Voice)
	}
	if cfg.Voice.ChunkTimeout != 30*time.Second {
		t.Errorf("unexpected chunk timeout: %v", cfg.Voice.ChunkTimeout)
	}
	if cfg.Store.Path != filepath.Join(".roomchat", "roomchat.db") {
		t.Errorf("unexpected db path: %s", cfg.Store.Path)
	}
	if cfg.Screenshots.Enabled || cfg.Screenshots.Schedule != "@every 2s" {
		t.Errorf("unexpected screenshot config: %+v", cfg.Screenshots)
	}
	if cfg.Storage.Enabled {
		t.Error("storage should be disabled without credentials")
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("metrics should be off by default, got %s", cfg.Metrics.Addr)
	}
	if cfg.Stub.Addr != ":8000" || cfg.Stub.FrameDelay != 50*time.Millisecond {
		t.Errorf("unexpected stub config: %+v", cfg.Stub)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROOMCHAT_AGENT_URL", "http://agent:9000")
	t.Setenv("ROOMCHAT_TURN_TIMEOUT", "45s")
	t.Setenv("ROOMCHAT_VOICE", "true")
	t.Setenv("ROOMCHAT_SPEECH_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MINIO_ACCESS_KEY", "access")
	t.Setenv("MINIO_SECRET_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Agent.URL != "http://agent:9000" || cfg.Agent.TurnTimeout != 45*time.Second {
		t.Errorf("unexpected agent config: %+v", cfg.Agent)
	}
	if !cfg.Voice.Enabled || cfg.Voice.Provider != "openai" || cfg.Voice.APIKey != "sk-test" {
		t.Errorf("unexpected voice config: %+v", cfg.Voice)
	}
	if !cfg.Storage.Enabled {
		t.Error("storage should be enabled with credentials")
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	yaml := `
agent:
  url: http://from-file:8000
  turn_timeout: 90s
voice:
  enabled: "true"
  tts_voice: shimmer
screenshots:
  schedule: "@every 5s"
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROOMCHAT_CONFIG", path)
	t.Setenv("ROOMCHAT_TTS_VOICE", "alloy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Agent.URL != "http://from-file:8000" || cfg.Agent.TurnTimeout != 90*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Agent)
	}
	if !cfg.Voice.Enabled {
		t.Error("voice should be enabled from file")
	}
	if cfg.Voice.TTSVoice != "alloy" {
		t.Errorf("env should override file, got %s", cfg.Voice.TTSVoice)
	}
	if cfg.Screenshots.Schedule != "@every 5s" {
		t.Errorf("unexpected schedule: %s", cfg.Screenshots.Schedule)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad timeout":     {"ROOMCHAT_TURN_TIMEOUT": "soon"},
		"negative chunk":  {"ROOMCHAT_CHUNK_TIMEOUT": "-1s"},
		"bad bool":        {"ROOMCHAT_VOICE": "sometimes"},
		"openai no key":   {"ROOMCHAT_SPEECH_PROVIDER": "openai"},
		"bad provider":    {"ROOMCHAT_SPEECH_PROVIDER": "espeak"},
		"missing file":    {"ROOMCHAT_CONFIG": "/nonexistent/roomchat.yaml"},
		"bad minio ssl":   {"MINIO_USE_SSL": "maybe"},
		"bad screenshots": {"ROOMCHAT_SCREENSHOTS": "often"},
		"bad frame delay": {"ROOMCHAT_STUB_FRAME_DELAY": "0s"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRuntimeConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	dir := t.TempDir()
	rc, err := NewRuntimeConfig(dir, cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}

	if rc.VoiceEnabled() {
		t.Error("voice should fall back to the loaded config")
	}
	if rc.Get("tts_voice") != "nova" {
		t.Errorf("unexpected tts voice: %s", rc.Get("tts_voice"))
	}

	if err := rc.Set("voice", "true"); err != nil {
		t.Fatalf("set voice: %v", err)
	}
	if err := rc.Set("voice", "loud"); err == nil {
		t.Error("invalid voice value should be rejected")
	}
	if err := rc.Set("speech_provider", "espeak"); err == nil {
		t.Error("invalid provider should be rejected")
	}
	if err := rc.Set("openai_api_key", "sk"); err == nil {
		t.Error("secrets must not be settable at runtime")
	}

	// persisted across instances
	rc2, err := NewRuntimeConfig(dir, cfg)
	if err != nil {
		t.Fatalf("reload runtime config: %v", err)
	}
	if !rc2.VoiceEnabled() {
		t.Error("voice override should persist")
	}
	if got := rc2.Overrides(); len(got) != 1 || got["voice"] != "true" {
		t.Errorf("unexpected overrides: %v", got)
	}

	if err := rc2.Reset("voice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if rc2.VoiceEnabled() {
		t.Error("reset should revert to the loaded config")
	}
	if len(rc2.All()) != len(AllowedKeys) {
		t.Errorf("All should list every allowed key")
	}
}

func TestRuntimeConfigDropsInvalidFile(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "runtime_config.json"), []byte(`{"voice":"loud","tts_voice":"echo"}`), 0644)

	rc, err := NewRuntimeConfig(dir, cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}
	if got := rc.Overrides(); len(got) != 1 || got["tts_voice"] != "echo" {
		t.Errorf("invalid voice should be dropped, got %v", got)
	}
}
