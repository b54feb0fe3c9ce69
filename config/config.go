package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Store      StoreConfig      `yaml:"store"`
	NATS       NATSConfig       `yaml:"nats"`
	Pushover   PushoverConfig   `yaml:"pushover"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// PublicURL is the base other machines reach this server at; locally
	// cached audio is published under it.
	PublicURL string `yaml:"public_url"`
}

type AudioConfig struct {
	// Source selects the capture backend: "mic" or "dropdir".
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sample_rate"`
	DropDir    string `yaml:"drop_dir"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

type StoreConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type PlaybackConfig struct {
	// GestureWait bounds how long a blocked playback waits for a user
	// interaction before giving up.
	GestureWait time.Duration `yaml:"gesture_wait"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "mic"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.DropDir == "" {
		c.Audio.DropDir = "./recordings"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.Store.Bucket == "" {
		c.Store.Bucket = "agora-audio"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "agora.pipeline.events"
	}
	if c.Playback.GestureWait == 0 {
		c.Playback.GestureWait = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
