package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_FailsValidationWithoutCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())
}

func TestLoader_Load_MergesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: triggers-staging
identity:
  client_id: file-client-id
  client_secret: file-secret
`), 0644))

	t.Setenv("TRIGGERS_IDENTITY_CLIENT_SECRET", "env-secret")

	l := NewLoader(nil)
	cfg, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "triggers-staging", cfg.Service.Name)
	assert.Equal(t, "file-client-id", cfg.Identity.ClientID)
	assert.Equal(t, "env-secret", cfg.Identity.ClientSecret, "env var must override file value")
}

func TestConfig_Merge_LeavesZeroFieldsUntouched(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{Log: LogConfig{Level: "debug"}})
	assert.Equal(t, "debug", base.Log.Level)
	assert.Equal(t, "json", base.Log.Format, "unset fields on other must not clobber base")
}
