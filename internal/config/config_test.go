package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env:
  app_name: "Budget"
  env: "PROD"
api:
  base_url: "https://api.example.com"
  request_timeout: "3s"
auth:
  telegram_wait: "5s"
  login_path: "/signin"
backend:
  port: "9090"
  telegram_bot_token: "123:abc"
`

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(envConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.GetBaseURL())
	require.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 100*time.Millisecond, cfg.GetTokenReadTimeout())
	require.Equal(t, 8*time.Second, cfg.GetTelegramCredentialWait())
	require.Equal(t, 500*time.Millisecond, cfg.GetVKRetryDelay())
	require.Equal(t, 50*time.Millisecond, cfg.GetPollInterval())
	require.Equal(t, "/login", cfg.GetLoginPath())
	require.Equal(t, "/register", cfg.GetRegisterPath())
	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, []string{"*"}, cfg.GetAllowedOrigins())
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", sampleYAML)

	cfg, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, "Budget", cfg.GetAppName())
	require.Equal(t, "PROD", cfg.GetEnv())
	require.Equal(t, "https://api.example.com", cfg.GetBaseURL())
	require.Equal(t, 3*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 5*time.Second, cfg.GetTelegramCredentialWait())
	require.Equal(t, "/signin", cfg.GetLoginPath())
	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, "123:abc", cfg.GetTelegramBotToken())
	// untouched sections keep their defaults
	require.Equal(t, 100*time.Millisecond, cfg.GetTokenReadTimeout())
}

func TestLoad_EnvOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", sampleYAML)
	t.Setenv("API_BASE_URL", "https://override.example.com")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "https://override.example.com", cfg.GetBaseURL())
}

func TestLoad_ConfigPathEnvAndLocalFile(t *testing.T) {
	t.Run("CONFIG_PATH", func(t *testing.T) {
		dir := t.TempDir()
		p := writeFile(t, dir, "cfg.yaml", sampleYAML)
		t.Setenv(envConfigPath, p)

		cfg, err := Load("")
		require.NoError(t, err)
		require.Equal(t, "Budget", cfg.GetAppName())
	})

	t.Run("local.yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, localConfigFile, sampleYAML)
		chdir(t, dir)
		t.Setenv(envConfigPath, "")

		cfg, err := Load("")
		require.NoError(t, err)
		require.Equal(t, "Budget", cfg.GetAppName())
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")

	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}
