package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/forwarder")
	t.Setenv("ENABLE_AUTH", "true")
	t.Setenv("ALLOWED_IPS", "127.0.0.1, 10.0.0.1")
	t.Setenv("SECRET_ALCHEMY", "topsecret")
	t.Setenv("RUN_MIGRATIONS_ON_STARTUP", "1")

	cfg, err := Load(afero.NewMemMapFs(), "", []string{"alchemy"})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/forwarder", cfg.DatabaseURL)
	assert.True(t, cfg.EnableAuth)
	assert.True(t, cfg.RunMigrationsOnStartup)
	assert.Len(t, cfg.AllowedAddresses, 2)
	assert.Equal(t, "topsecret", cfg.ProviderSecrets["alchemy"])
}

func TestLoadFromFileFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/forwarder/config.yaml", []byte(`
ConnectionStrings:
  Database: "postgres://file-based/forwarder"
Authentication:
  ProviderSecrets:
    alchemy: "file-secret"
`), 0o644))

	cfg, err := Load(fs, "/etc/forwarder/config.yaml", []string{"alchemy"})
	require.NoError(t, err)

	assert.Equal(t, "postgres://file-based/forwarder", cfg.DatabaseURL)
	assert.Equal(t, "file-secret", cfg.ProviderSecrets["alchemy"])
}

func TestEnvTakesPrecedenceOverFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte(`
Authentication:
  ProviderSecrets:
    alchemy: "file-secret"
`), 0o644))
	t.Setenv("SECRET_ALCHEMY", "env-secret")

	cfg, err := Load(fs, "/config.yaml", []string{"alchemy"})
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.ProviderSecrets["alchemy"])
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/does/not/exist.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabaseURL)
}
