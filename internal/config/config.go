package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("ROOMCHAT_CONFIG"))
	if err != nil {
		return nil, err
	}

	dataDir := lookup("ROOMCHAT_DATA", file.DataDir, ".roomchat")

	agentConfig, err := loadAgentConfig(file)
	if err != nil {
		return nil, err
	}

	voiceConfig, err := loadVoiceConfig(file)
	if err != nil {
		return nil, err
	}

	screenshotConfig, err := loadScreenshotConfig(file)
	if err != nil {
		return nil, err
	}

	storageConfig, err := loadStorageConfig(file)
	if err != nil {
		return nil, err
	}

	frameDelay, err := durationValue("ROOMCHAT_STUB_FRAME_DELAY", file.Stub.FrameDelay, 50*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return &Config{
		DataDir:     dataDir,
		Agent:       agentConfig,
		Voice:       voiceConfig,
		Store:       StoreConfig{Path: lookup("ROOMCHAT_DB", file.Store.Path, filepath.Join(dataDir, "roomchat.db"))},
		Screenshots: screenshotConfig,
		Storage:     storageConfig,
		Metrics:     MetricsConfig{Addr: lookup("ROOMCHAT_METRICS_ADDR", file.Metrics.Addr, "")},
		Stub: StubConfig{
			Addr:       lookup("ROOMCHAT_STUB_ADDR", file.Stub.Addr, ":8000"),
			FrameDelay: frameDelay,
		},
	}, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func loadAgentConfig(file fileConfig) (AgentConfig, error) {
	timeout, err := durationValue("ROOMCHAT_TURN_TIMEOUT", file.Agent.TurnTimeout, 2*time.Minute)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		URL:         lookup("ROOMCHAT_AGENT_URL", file.Agent.URL, "http://localhost:8000"),
		TurnTimeout: timeout,
	}, nil
}

func loadVoiceConfig(file fileConfig) (VoiceConfig, error) {
	enabled, err := boolValue("ROOMCHAT_VOICE", file.Voice.Enabled, false)
	if err != nil {
		return VoiceConfig{}, err
	}

	chunkTimeout, err := durationValue("ROOMCHAT_CHUNK_TIMEOUT", file.Voice.ChunkTimeout, 30*time.Second)
	if err != nil {
		return VoiceConfig{}, err
	}

	provider := lookup("ROOMCHAT_SPEECH_PROVIDER", file.Voice.Provider, "agent")
	apiKey := os.Getenv("OPENAI_API_KEY")

	switch provider {
	case "agent":
	case "openai":
		if apiKey == "" {
			return VoiceConfig{}, fmt.Errorf("OPENAI_API_KEY not set")
		}
	default:
		return VoiceConfig{}, fmt.Errorf("unknown ROOMCHAT_SPEECH_PROVIDER: %s", provider)
	}

	return VoiceConfig{
		Enabled:      enabled,
		Provider:     provider,
		APIKey:       apiKey,
		TTSVoice:     lookup("ROOMCHAT_TTS_VOICE", file.Voice.TTSVoice, "nova"),
		Player:       lookup("ROOMCHAT_PLAYER", file.Voice.Player, "mpg123 -q"),
		ChunkTimeout: chunkTimeout,
	}, nil
}

func loadScreenshotConfig(file fileConfig) (ScreenshotConfig, error) {
	enabled, err := boolValue("ROOMCHAT_SCREENSHOTS", file.Screenshots.Enabled, false)
	if err != nil {
		return ScreenshotConfig{}, err
	}

	return ScreenshotConfig{
		Enabled:  enabled,
		Schedule: lookup("ROOMCHAT_SCREENSHOT_SCHEDULE", file.Screenshots.Schedule, "@every 2s"),
	}, nil
}

func loadStorageConfig(file fileConfig) (StorageConfig, error) {
	useSSL, err := boolValue("MINIO_USE_SSL", file.Storage.UseSSL, false)
	if err != nil {
		return StorageConfig{}, err
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  lookup("MINIO_ENDPOINT", file.Storage.Endpoint, "localhost:9000"),
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    useSSL,
		Bucket:    lookup("MINIO_BUCKET", file.Storage.Bucket, "roomchat-media"),
	}, nil
}

// lookup returns the environment value, else the file value, else def.
func lookup(env, fileValue, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if fileValue != "" {
		return fileValue
	}
	return def
}

func boolValue(env, fileValue string, def bool) (bool, error) {
	raw := lookup(env, fileValue, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", env, raw)
	}
	return v, nil
}

func durationValue(env, fileValue string, def time.Duration) (time.Duration, error) {
	raw := lookup(env, fileValue, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", env, raw)
	}
	return d, nil
}
