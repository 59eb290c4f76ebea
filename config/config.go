package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderService = "service"
	ProviderOpenAI  = "openai"

	DefaultServiceURL = "https://speech-test-webapp.azurewebsites.net/"
	DefaultOpenAIURL  = "https://api.groq.com/openai/v1/audio/transcriptions"
	DefaultModel      = "whisper-large-v3-turbo"
)

// Config is the complete client configuration.
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	Audio         AudioConfig         `yaml:"audio"`
	Recording     RecordingConfig     `yaml:"recording"`
	Log           LogConfig           `yaml:"log"`
}

type TranscriptionConfig struct {
	Provider string `yaml:"provider"` // "service" or "openai"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	// Endpoint selects the service route: "speech" or "whisper".
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AudioConfig struct {
	Device      string        `yaml:"device"`
	SampleRate  int           `yaml:"sample_rate"`
	Channels    int           `yaml:"channels"`
	BlockSize   int           `yaml:"block_size"`   // frames
	MaxDuration time.Duration `yaml:"max_duration"` // 0 = unbounded
}

type RecordingConfig struct {
	Duration       time.Duration `yaml:"duration"`        // 0 = until stopped
	SilenceTimeout time.Duration `yaml:"silence_timeout"` // 0 = never
	SaveDir        string        `yaml:"save_dir"`
}

type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"` // debug, info, warn, error; empty = info
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			Provider: ProviderService,
			BaseURL:  DefaultServiceURL,
			Model:    DefaultModel,
			Endpoint: "speech",
			Timeout:  60 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			BlockSize:  4096,
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/wavscribe/config.yaml (or the OS
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "wavscribe", "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path falls back to WAVSCRIBE_CONFIG and then to
// DefaultPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("WAVSCRIBE_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WAVSCRIBE_PROVIDER"); v != "" {
		c.Transcription.Provider = v
		if v == ProviderOpenAI && c.Transcription.BaseURL == DefaultServiceURL {
			c.Transcription.BaseURL = DefaultOpenAIURL
		}
	}
	if v := os.Getenv("WAVSCRIBE_URL"); v != "" {
		c.Transcription.BaseURL = v
	}
	if c.Transcription.APIKey == "" {
		for _, name := range []string{"WAVSCRIBE_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				c.Transcription.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("WAVSCRIBE_LOG_PATH"); v != "" && c.Log.Path == "" {
		c.Log.Path = v
	}
}

// MaxSamples converts Audio.MaxDuration into a sample cap; zero when
// unbounded.
func (c *Config) MaxSamples() int {
	if c.Audio.MaxDuration <= 0 {
		return 0
	}
	frames := int(c.Audio.MaxDuration.Seconds() * float64(c.Audio.SampleRate))
	return frames * c.Audio.Channels
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case ProviderService:
		if t.Endpoint != "speech" && t.Endpoint != "whisper" {
			return fmt.Errorf("endpoint must be 'speech' or 'whisper', got '%s'", t.Endpoint)
		}
	case ProviderOpenAI:
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai provider (set GROQ_API_KEY or OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("provider must be 'service' or 'openai', got '%s'", t.Provider)
	}
	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", t.Timeout)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	if a.BlockSize < 1 {
		return fmt.Errorf("block_size must be at least 1 frame, got %d", a.BlockSize)
	}
	if a.MaxDuration < 0 {
		return fmt.Errorf("max_duration cannot be negative, got %s", a.MaxDuration)
	}
	return nil
}

func (r *RecordingConfig) Validate() error {
	if r.Duration < 0 {
		return fmt.Errorf("duration cannot be negative, got %s", r.Duration)
	}
	if r.SilenceTimeout < 0 {
		return fmt.Errorf("silence_timeout cannot be negative, got %s", r.SilenceTimeout)
	}
	return nil
}

func (l *LogConfig) Validate() error {
	switch l.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("level must be one of debug, info, warn, error, got '%s'", l.Level)
}
