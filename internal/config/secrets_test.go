package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("WEEX_API_KEY", "env-key")
	t.Setenv("WEEX_API_SECRET", "env-secret")
	t.Setenv("DEEPSEEK_API_KEY", "env-llm")
	t.Setenv("ALPACA_API_KEY", "env-alpaca")

	cfg := getValidConfig()
	require.NoError(t, ResolveSecrets(cfg))

	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.SecretKey)
	assert.Equal(t, "env-llm", cfg.LLM.APIKey)
	assert.Equal(t, "env-alpaca", cfg.Equities.APIKey)
}

func TestResolveSecretsDoesNotOverride(t *testing.T) {
	t.Setenv("WEEX_API_KEY", "env-key")

	cfg := getValidConfig()
	cfg.Exchange.APIKey = "file-key"
	require.NoError(t, ResolveSecrets(cfg))

	assert.Equal(t, "file-key", cfg.Exchange.APIKey)
}

func TestResolveSecretsVaultDisabled(t *testing.T) {
	cfg := getValidConfig()
	cfg.Vault.Enabled = false
	// Must not attempt any Vault contact
	assert.NoError(t, ResolveSecrets(cfg))
}

func TestResolveSecretsVaultMissingToken(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")

	cfg := getValidConfig()
	cfg.Vault.Enabled = true
	cfg.Vault.Address = "http://127.0.0.1:8200"

	err := ResolveSecrets(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_TOKEN")
}
