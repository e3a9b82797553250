package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr               string
	SettingsPath             string
	APIKey                   string
	BaseURL                  string
	ModelName                string
	TranscriptLanguages      []string
	RequestTimeout           time.Duration
	TranscriptTimeout        time.Duration
	SummaryTimeout           time.Duration
	YouTubeRequestsPerSecond float64
	MaxInputBytes            int64
	LogLevel                 string
}

type envConfig struct {
	ListenAddr               string   `env:"LISTEN_ADDR" envDefault:":7860"`
	ConfigPath               string   `env:"CONFIG_PATH" envDefault:"config.toml"`
	ConfigFallbackPath       string   `env:"CONFIG_FALLBACK_PATH" envDefault:"config.example.toml"`
	TranscriptLanguages      []string `env:"TRANSCRIPT_LANGUAGES" envDefault:"en,zh-CN" envSeparator:","`
	RequestTimeoutSeconds    int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"120"`
	TranscriptTimeoutSeconds int      `env:"TRANSCRIPT_TIMEOUT_SECONDS" envDefault:"30"`
	SummaryTimeoutSeconds    int      `env:"SUMMARY_TIMEOUT_SECONDS" envDefault:"120"`
	YouTubeRequestsPerSecond float64  `env:"YOUTUBE_REQUESTS_PER_SECOND" envDefault:"2"`
	MaxInputBytes            int64    `env:"MAX_INPUT_BYTES" envDefault:"4096"`
	LogLevel                 string   `env:"LOG_LEVEL" envDefault:"info"`
}

// settingsFile mirrors config.toml.
type settingsFile struct {
	API struct {
		APIKey    *string `toml:"api_key"`
		BaseURL   *string `toml:"base_url"`
		ModelName *string `toml:"model_name"`
	} `toml:"api"`
}

// Load reads an optional .env, the process environment and the TOML settings
// file, in that order. A missing .env is skipped; a malformed one is an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:               strings.TrimSpace(raw.ListenAddr),
		TranscriptLanguages:      cleanList(raw.TranscriptLanguages),
		RequestTimeout:           time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		TranscriptTimeout:        time.Duration(raw.TranscriptTimeoutSeconds) * time.Second,
		SummaryTimeout:           time.Duration(raw.SummaryTimeoutSeconds) * time.Second,
		YouTubeRequestsPerSecond: raw.YouTubeRequestsPerSecond,
		MaxInputBytes:            raw.MaxInputBytes,
		LogLevel:                 strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.loadSettings(strings.TrimSpace(raw.ConfigPath), strings.TrimSpace(raw.ConfigFallbackPath)); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadSettings reads the [api] section from primary, or from fallback when
// primary does not exist.
func (c *Config) loadSettings(primary, fallback string) error {
	path := primary
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && fallback != "" {
		path = fallback
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	var file settingsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}

	c.SettingsPath = path
	if file.API.APIKey == nil {
		return fmt.Errorf("%s: api.api_key is missing", path)
	}
	c.APIKey = strings.TrimSpace(*file.API.APIKey)
	if file.API.BaseURL != nil {
		c.BaseURL = strings.TrimSpace(*file.API.BaseURL)
	}
	if file.API.ModelName != nil {
		c.ModelName = strings.TrimSpace(*file.API.ModelName)
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.ModelName == "" {
		return errors.New("api.model_name must not be empty")
	}
	if len(c.TranscriptLanguages) == 0 {
		return errors.New("TRANSCRIPT_LANGUAGES must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.TranscriptTimeout <= 0 {
		return errors.New("TRANSCRIPT_TIMEOUT_SECONDS must be > 0")
	}
	if c.SummaryTimeout <= 0 {
		return errors.New("SUMMARY_TIMEOUT_SECONDS must be > 0")
	}
	if c.YouTubeRequestsPerSecond <= 0 {
		return errors.New("YOUTUBE_REQUESTS_PER_SECOND must be > 0")
	}
	if c.MaxInputBytes <= 0 {
		return errors.New("MAX_INPUT_BYTES must be > 0")
	}
	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
