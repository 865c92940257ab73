package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type NotifyConfig struct {
	// Desktop toggles notify-send style popups.
	Desktop        bool     `yaml:"desktop"`
	DesktopCommand []string `yaml:"desktop_command"`
	// TelegramChatID mirrors every reminder into this chat when
	// TELEGRAM_TOKEN is also set. Zero disables the mirror.
	TelegramChatID int64 `yaml:"telegram_chat_id"`
}

type SpeechConfig struct {
	Enabled bool `yaml:"enabled"`
	// Engine is "openai" or "command".
	Engine    string   `yaml:"engine"`
	Model     string   `yaml:"model"`
	Voice     string   `yaml:"voice"`
	Speed     float64  `yaml:"speed"`
	Command   []string `yaml:"command"`
	Player    []string `yaml:"player"`
	QueueSize int      `yaml:"queue_size"`
}

type RemoteConfig struct {
	// SyncCron is a cron expression for pushing schedules to DATABASE_URI.
	SyncCron string `yaml:"sync_cron"`
}

type Config struct {
	Listen   string `yaml:"listen"`
	DataPath string `yaml:"data_path"`

	LeadMinutes            int `yaml:"lead_minutes"`
	CooldownMinutes        int `yaml:"cooldown_minutes"`
	DispatchTimeoutSeconds int `yaml:"dispatch_timeout_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Notify NotifyConfig `yaml:"notify"`
	Speech SpeechConfig `yaml:"speech"`
	Remote RemoteConfig `yaml:"remote"`

	// Secrets come from the environment and are never written to the file.
	TelegramToken string `yaml:"-"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"-"`
	DatabaseURI   string `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:                 "127.0.0.1:8765",
		DataPath:               defaultDataPath(),
		LeadMinutes:            5,
		CooldownMinutes:        2,
		DispatchTimeoutSeconds: 30,
		LogLevel:               "info",
		LogFormat:              "text",
		Notify: NotifyConfig{
			Desktop:        true,
			DesktopCommand: []string{"notify-send", "--app-name=chime"},
		},
		Speech: SpeechConfig{
			Enabled:   true,
			Engine:    "openai",
			Model:     "tts-1",
			Voice:     "alloy",
			Speed:     1.0,
			Command:   []string{"espeak-ng", "-v", "ja"},
			Player:    []string{"mpv", "--really-quiet", "-"},
			QueueSize: 16,
		},
		Remote: RemoteConfig{
			SyncCron: "*/10 * * * *",
		},
	}
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chime.db"
	}
	return filepath.Join(dir, "chime", "chime.db")
}

// Normalize replaces zero or invalid values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.LeadMinutes <= 0 {
		c.LeadMinutes = def.LeadMinutes
	}
	if c.CooldownMinutes <= 0 {
		c.CooldownMinutes = def.CooldownMinutes
	}
	if c.DispatchTimeoutSeconds <= 0 {
		c.DispatchTimeoutSeconds = def.DispatchTimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		c.LogFormat = def.LogFormat
	}
	if len(c.Notify.DesktopCommand) == 0 {
		c.Notify.DesktopCommand = def.Notify.DesktopCommand
	}
	switch c.Speech.Engine {
	case "openai", "command":
	default:
		c.Speech.Engine = def.Speech.Engine
	}
	if c.Speech.Model == "" {
		c.Speech.Model = def.Speech.Model
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = def.Speech.Voice
	}
	if c.Speech.Speed <= 0 {
		c.Speech.Speed = def.Speech.Speed
	}
	if len(c.Speech.Command) == 0 {
		c.Speech.Command = def.Speech.Command
	}
	if len(c.Speech.Player) == 0 {
		c.Speech.Player = def.Speech.Player
	}
	if c.Speech.QueueSize <= 0 {
		c.Speech.QueueSize = def.Speech.QueueSize
	}
	if c.Remote.SyncCron == "" {
		c.Remote.SyncCron = def.Remote.SyncCron
	}
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// Load reads the YAML file at path, creating it with defaults on first run,
// and then applies secrets from the environment and an optional .env file.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		cfg.Normalize()
	}

	cfg.LoadEnv()
	return cfg, nil
}

// LoadEnv fills the secrets from the process environment.
func (c *Config) LoadEnv() {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}

	c.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	c.DatabaseURI = os.Getenv("DATABASE_URI")
}

// Save writes cfg atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chime-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
