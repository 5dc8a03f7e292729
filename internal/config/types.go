package config

import "time"

type Config struct {
	DataDir     string
	Agent       AgentConfig
	Voice       VoiceConfig
	Store       StoreConfig
	Screenshots ScreenshotConfig
	Storage     StorageConfig
	Metrics     MetricsConfig
	Stub        StubConfig
}

type AgentConfig struct {
	URL         string
	TurnTimeout time.Duration
}

type VoiceConfig struct {
	Enabled      bool
	Provider     string // agent or openai
	APIKey       string
	TTSVoice     string
	Player       string // command line, audio file path appended
	ChunkTimeout time.Duration
}

type StoreConfig struct {
	Path string
}

type ScreenshotConfig struct {
	Enabled  bool
	Schedule string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type MetricsConfig struct {
	Addr string // empty disables the endpoint
}

type StubConfig struct {
	Addr       string
	FrameDelay time.Duration // pause between streamed frames
}

// fileConfig is the optional YAML file named by ROOMCHAT_CONFIG. Environment
// variables take precedence over it.
type fileConfig struct {
	DataDir string `yaml:"data_dir"`
	Agent   struct {
		URL         string `yaml:"url"`
		TurnTimeout string `yaml:"turn_timeout"`
	} `yaml:"agent"`
	Voice struct {
		Enabled      string `yaml:"enabled"`
		Provider     string `yaml:"provider"`
		TTSVoice     string `yaml:"tts_voice"`
		Player       string `yaml:"player"`
		ChunkTimeout string `yaml:"chunk_timeout"`
	} `yaml:"voice"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Screenshots struct {
		Enabled  string `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"screenshots"`
	Storage struct {
		Endpoint string `yaml:"endpoint"`
		UseSSL   string `yaml:"use_ssl"`
		Bucket   string `yaml:"bucket"`
	} `yaml:"storage"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Stub struct {
		Addr       string `yaml:"addr"`
		FrameDelay string `yaml:"frame_delay"`
	} `yaml:"stub"`
}
