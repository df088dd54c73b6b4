package config

import (
	"context"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig holds Vault connection configuration. When disabled, secrets
// come from environment variables only.
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
}

// ResolveSecrets fills credential fields that are still empty after viper
// unmarshalling. Environment variables win over Vault so an operator can
// always override a single credential locally.
func ResolveSecrets(cfg *Config) error {
	fromEnv := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}

	fromEnv(&cfg.Exchange.APIKey, "WEEX_API_KEY")
	fromEnv(&cfg.Exchange.SecretKey, "WEEX_API_SECRET")
	fromEnv(&cfg.Exchange.Passphrase, "WEEX_API_PASSWORD")
	fromEnv(&cfg.LLM.APIKey, "DEEPSEEK_API_KEY")
	fromEnv(&cfg.Equities.APIKey, "ALPACA_API_KEY")
	fromEnv(&cfg.Equities.SecretKey, "ALPACA_SECRET_KEY")
	fromEnv(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")

	if !cfg.Vault.Enabled {
		return nil
	}

	vc, err := newVaultClient(cfg.Vault)
	if err != nil {
		return fmt.Errorf("vault init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := vc.readSecret(ctx, "credentials")
	if err != nil {
		return fmt.Errorf("vault read: %w", err)
	}

	fromVault := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := data[key].(string); ok {
			*dst = v
		}
	}

	fromVault(&cfg.Exchange.APIKey, "exchange_api_key")
	fromVault(&cfg.Exchange.SecretKey, "exchange_secret_key")
	fromVault(&cfg.Exchange.Passphrase, "exchange_passphrase")
	fromVault(&cfg.LLM.APIKey, "llm_api_key")
	fromVault(&cfg.Equities.APIKey, "equities_api_key")
	fromVault(&cfg.Equities.SecretKey, "equities_secret_key")
	fromVault(&cfg.Telegram.Token, "telegram_token")

	log.Info().
		Str("address", cfg.Vault.Address).
		Str("secret_path", cfg.Vault.SecretPath).
		Msg("Secrets resolved from Vault")

	return nil
}

type vaultClient struct {
	client *vault.Client
	config VaultConfig
}

func newVaultClient(cfg VaultConfig) (*vaultClient, error) {
	vaultCfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(token)

	return &vaultClient{client: client, config: cfg}, nil
}

// readSecret reads a KV v2 secret relative to the configured SecretPath.
func (vc *vaultClient) readSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	// KV v2 nests payload under "data"
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}
