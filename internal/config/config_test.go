package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "glucolog.db"), cfg.Storage.SQLitePath)
	assert.True(t, cfg.Reminders.Enabled)
	assert.Equal(t, "*/15 * * * *", cfg.Reminders.CronSpec)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NotEmpty(t, cfg.Security.JWTSecret, "a JWT secret must be generated when absent")
}

func TestLoad_ConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "glucolog.yaml")

	content := []byte("server:\n  port: 9090\nsecurity:\n  jwt_secret: testsecret\n")
	require.NoError(t, os.WriteFile(configPath, content, 0600))

	cfg, err := Load(configPath, dataDir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "testsecret", cfg.Security.JWTSecret)
}

func TestLoad_NightscoutEnvEnables(t *testing.T) {
	t.Setenv("GLUCOLOG_NIGHTSCOUT_URL", "https://cgm.example.com")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Nightscout.Enabled)
	assert.Equal(t, "https://cgm.example.com", cfg.Nightscout.URL)
}

func TestLoad_InvalidPort(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "glucolog.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: -1\n"), 0600))

	_, err := Load(configPath, dataDir)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glucolog.yaml")

	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 8080")

	// The written file must load cleanly.
	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# comment\nGLUCOLOG_TEST_KEY=value1\nGLUCOLOG_TEST_QUOTED=\"quoted\"\nmalformed line\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0600))

	t.Setenv("GLUCOLOG_TEST_KEY", "")
	os.Unsetenv("GLUCOLOG_TEST_KEY")
	os.Unsetenv("GLUCOLOG_TEST_QUOTED")

	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "value1", os.Getenv("GLUCOLOG_TEST_KEY"))
	assert.Equal(t, "quoted", os.Getenv("GLUCOLOG_TEST_QUOTED"))
}
