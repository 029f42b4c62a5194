// Package vault supplies venue API credentials from HashiCorp Vault. With
// Vault disabled the client degrades to an in-memory store so paper and test
// runs need no Vault instance.
package vault

import (
	"context"
	"fmt"
	"sync"

	"mesh-trading-engine/config"

	"github.com/hashicorp/vault/api"
)

// Credentials are one venue's API key pair.
type Credentials struct {
	Venue     string `json:"venue"`
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"testnet"`
}

// Client wraps the HashiCorp Vault client with a per-venue cache.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]*Credentials // venue key -> credentials
}

// NewClient creates a new Vault client. With cfg.Enabled false the client
// serves only what has been stored via StoreCredentials.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]*Credentials),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	return c, nil
}

// StoreCredentials stores a venue's key pair in Vault (or the local cache
// when Vault is disabled).
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	c.cache[c.cacheKey(creds.Venue, creds.Testnet)] = &creds
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.secretPath(creds.Venue, creds.Testnet)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"venue":      creds.Venue,
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"testnet":    creds.Testnet,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store venue credentials in vault: %w", err)
	}
	return nil
}

// GetCredentials retrieves a venue's key pair, cache first.
func (c *Client) GetCredentials(ctx context.Context, venue string, testnet bool) (*Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[c.cacheKey(venue, testnet)]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("no credentials for venue %s and vault is disabled", venue)
	}

	path := c.secretPath(venue, testnet)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials stored for venue %s", venue)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for venue %s", venue)
	}

	creds := &Credentials{
		Venue:     getString(data, "venue"),
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Testnet:   getBool(data, "testnet"),
	}

	c.mu.Lock()
	c.cache[c.cacheKey(venue, testnet)] = creds
	c.mu.Unlock()

	return creds, nil
}

// DeleteCredentials removes a venue's key pair.
func (c *Client) DeleteCredentials(ctx context.Context, venue string, testnet bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(venue, testnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(venue, testnet)); err != nil {
		return fmt.Errorf("failed to delete venue credentials from vault: %w", err)
	}
	return nil
}

// ClearCache drops the in-memory cache, forcing the next read through Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(venue string, testnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s_%s", c.config.MountPath, c.config.SecretPath, venue, network(testnet))
}

func (c *Client) metadataPath(venue string, testnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s_%s", c.config.MountPath, c.config.SecretPath, venue, network(testnet))
}

func (c *Client) cacheKey(venue string, testnet bool) string {
	return venue + "_" + network(testnet)
}

func network(testnet bool) string {
	if testnet {
		return "testnet"
	}
	return "mainnet"
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		}
	}
	return false
}

// NewMockClient creates a disabled client for testing.
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{Enabled: false},
		cache:  make(map[string]*Credentials),
	}
}
