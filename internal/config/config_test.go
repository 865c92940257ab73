package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv("TELEGRAM_TOKEN", "secret-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LeadMinutes)
	assert.Equal(t, 2*time.Minute, cfg.Cooldown())
	assert.Equal(t, "secret-token", cfg.TelegramToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-token")
	assert.Contains(t, string(data), "lead_minutes: 5")
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lead_minutes: 10\nspeech:\n  engine: command\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LeadMinutes)
	assert.Equal(t, "command", cfg.Speech.Engine)
	assert.True(t, cfg.Notify.Desktop)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, 30*time.Second, cfg.DispatchTimeout())
}

func TestLoadExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notify:\n  desktop: false\nspeech:\n  enabled: false\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Notify.Desktop)
	assert.False(t, cfg.Speech.Enabled)
	assert.NotEmpty(t, cfg.Notify.DesktopCommand)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lead_minutes: [oops"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{LeadMinutes: -3, LogFormat: "xml", Speech: SpeechConfig{Engine: "festival"}}
	cfg.Normalize()

	assert.Equal(t, 5, cfg.LeadMinutes)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "openai", cfg.Speech.Engine)
	assert.Equal(t, "*/10 * * * *", cfg.Remote.SyncCron)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("DATABASE_URI", "postgres://localhost/chime")

	cfg := DefaultConfig()
	cfg.LoadEnv()
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "postgres://localhost/chime", cfg.DatabaseURI)
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
