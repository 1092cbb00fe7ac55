package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Equal(t, "/nonexistent/path/config.yaml", cfg.Path())
}

func TestLoad_WithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `current_profile: production
profiles:
  production:
    relay_url: https://relay.example.com
    webhook_url: https://n8n.example.com/webhook/chat
    timeout: 15s
    fallback_on_status: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.CurrentProfile)
	profile, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com", profile.RelayURL)
	assert.Equal(t, "https://n8n.example.com/webhook/chat", profile.WebhookURL)
	assert.Equal(t, 15*time.Second, profile.TimeoutOr(time.Minute))
	assert.True(t, profile.FallbackOnStatus)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: [unclosed"), 0600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestSaveProfileRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("staging", &Profile{
		RelayURL:   "http://relay.staging:8080",
		WebhookURL: "https://n8n.staging/webhook/x",
	}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "staging", reloaded.CurrentProfile)
	assert.Equal(t, []string{"staging"}, reloaded.ProfileNames())
	assert.Equal(t, "https://n8n.staging/webhook/x", reloaded.Profiles["staging"].WebhookURL)
}

func TestSaveProfileRequiresName(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.SaveProfile(" ", &Profile{}))
}

func TestUseAndRemoveProfile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("a", &Profile{RelayURL: "http://a"}))
	require.NoError(t, cfg.SaveProfile("b", &Profile{RelayURL: "http://b"}))

	require.NoError(t, cfg.UseProfile("a"))
	assert.Equal(t, "a", cfg.CurrentProfile)
	assert.Error(t, cfg.UseProfile("missing"))

	require.NoError(t, cfg.RemoveProfile("a"))
	assert.Empty(t, cfg.CurrentProfile)
	assert.Equal(t, []string{"b"}, cfg.ProfileNames())
	assert.Error(t, cfg.RemoveProfile("a"))

	_, err = cfg.GetProfile("a")
	assert.Error(t, err)
}

func TestTimeoutOr(t *testing.T) {
	var nilProfile *Profile
	assert.Equal(t, time.Minute, nilProfile.TimeoutOr(time.Minute))
	assert.Equal(t, time.Minute, (&Profile{Timeout: "soon"}).TimeoutOr(time.Minute))
	assert.Equal(t, time.Minute, (&Profile{Timeout: "-5s"}).TimeoutOr(time.Minute))
	assert.Equal(t, 90*time.Second, (&Profile{Timeout: "90s"}).TimeoutOr(time.Minute))
}
