package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv("DIRECTOR_URL", "")
	t.Setenv("DIRECTOR_SITE", "")
	t.Setenv("DIRECTOR_TOKEN", "")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 30*time.Second, cfg.GetTimeout())
	assert.Error(t, cfg.Validate(), "no URL configured")
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: https://director.example.com
site: 42
token: abc
timeout: 5s
ssh:
  enabled: true
  host: shell.example.com
  user: student
  key_file: /home/student/.ssh/id_ed25519
  root: /site
logging:
  level: debug
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 42, cfg.Site)
	assert.Equal(t, 5*time.Second, cfg.GetTimeout())
	assert.Equal(t, 22, cfg.SSH.Port, "unset fields keep defaults")
	assert.Equal(t, "json", cfg.LoggerConfig().Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://old.example.com\nsite: 1\n"), 0644))
	t.Setenv("DIRECTOR_URL", "https://director.example.com")
	t.Setenv("DIRECTOR_SITE", "9")
	t.Setenv("DIRECTOR_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://director.example.com", cfg.URL)
	assert.Equal(t, 9, cfg.Site)
	assert.Equal(t, "from-env", cfg.Token)

	t.Setenv("DIRECTOR_SITE", "nine")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site: [\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.URL = "https://director.example.com"
		c.Site = 3
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"scheme", func(c *Config) { c.URL = "ftp://director.example.com" }},
		{"site", func(c *Config) { c.Site = 0 }},
		{"timeout", func(c *Config) { c.Timeout = "soon" }},
		{"ssh host", func(c *Config) { c.SSH = SSHConfig{Enabled: true, User: "u", Password: "p"} }},
		{"ssh port", func(c *Config) { c.SSH = SSHConfig{Enabled: true, Host: "h", Port: 70000} }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.URL = "https://director.example.com"
	cfg.Site = 5
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
