// Package vault configures Vault's OIDC auth method against the stack's
// Keycloak realm, so that developers log in to Vault with their Keycloak
// account.
package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nerzal/gocloak/v13"
	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
)

// Defaults for OIDCConfig fields left empty.
const (
	DefaultRole     = "osss"
	DefaultClientID = "vault"
	DefaultTTL      = "1h"
	mountPath       = "oidc"
)

// Issuer is the part of the Keycloak client used here. *gocloak.GoCloak
// satisfies it.
type Issuer interface {
	GetIssuer(ctx context.Context, realm string) (*gocloak.IssuerResponse, error)
}

var _ Issuer = (*gocloak.GoCloak)(nil)

// OIDCConfig is what Configure writes to Vault.
type OIDCConfig struct {
	DiscoveryURL string   `json:"discoveryUrl"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"-"`
	Role         string   `json:"role"`
	RedirectURIs []string `json:"redirectUris"`
	Policies     []string `json:"policies"`
	TTL          string   `json:"ttl"`
}

// withDefaults fills empty fields. vaultAddr seeds the UI callback URI.
func (c OIDCConfig) withDefaults(vaultAddr string) OIDCConfig {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Role == "" {
		c.Role = DefaultRole
	}
	if c.TTL == "" {
		c.TTL = DefaultTTL
	}
	if len(c.Policies) == 0 {
		c.Policies = []string{"default"}
	}
	if len(c.RedirectURIs) == 0 {
		c.RedirectURIs = []string{"http://localhost:8250/oidc/callback"}
		if vaultAddr != "" {
			c.RedirectURIs = append(c.RedirectURIs,
				strings.TrimRight(vaultAddr, "/")+"/ui/vault/auth/oidc/oidc/callback")
		}
	}
	return c
}

// Configurator talks to Vault and Keycloak.
type Configurator struct {
	Client   *api.Client
	Keycloak Issuer
	Log      *zap.Logger
}

// NewConfigurator builds clients for the Vault at vaultAddr and the
// Keycloak at keycloakURL.
func NewConfigurator(vaultAddr, token, keycloakURL string, log *zap.Logger) (*Configurator, error) {
	if token == "" {
		return nil, model.NewCLIError(model.ExitGeneralError, "VAULT_TOKEN is not set")
	}
	cfg := api.DefaultConfig()
	if vaultAddr != "" {
		cfg.Address = vaultAddr
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)
	return &Configurator{
		Client:   client,
		Keycloak: gocloak.NewClient(strings.TrimRight(keycloakURL, "/")),
		Log:      log,
	}, nil
}

// DiscoveryURLFor checks that realm exists on the Keycloak at keycloakURL
// and returns its OIDC discovery base URL.
func (c *Configurator) DiscoveryURLFor(ctx context.Context, keycloakURL, realm string) (string, error) {
	issuer, err := c.Keycloak.GetIssuer(ctx, realm)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("keycloak realm %q not reachable at %s", realm, keycloakURL), err)
	}
	if issuer.Realm != nil && *issuer.Realm != realm {
		return "", fmt.Errorf("keycloak answered for realm %q, expected %q", *issuer.Realm, realm)
	}
	return strings.TrimRight(keycloakURL, "/") + "/realms/" + realm, nil
}

// Configure enables the oidc auth method and writes its config and role.
// It can be run repeatedly; an already enabled method is left mounted and
// the config and role are overwritten.
func (c *Configurator) Configure(ctx context.Context, cfg OIDCConfig) (*OIDCConfig, error) {
	if cfg.DiscoveryURL == "" {
		return nil, fmt.Errorf("OIDC discovery URL is required")
	}
	cfg = cfg.withDefaults(c.Client.Address())
	log := logging.OrNop(c.Log)

	err := c.Client.Sys().EnableAuthWithOptionsWithContext(ctx, mountPath, &api.EnableAuthOptions{Type: "oidc"})
	switch {
	case err == nil:
		log.Info("enabled vault auth method", zap.String("path", mountPath))
	case strings.Contains(err.Error(), "already in use"):
		log.Debug("vault oidc auth already enabled")
	default:
		return nil, fmt.Errorf("failed to enable oidc auth: %w", err)
	}

	_, err = c.Client.Logical().WriteWithContext(ctx, "auth/"+mountPath+"/config", map[string]interface{}{
		"oidc_discovery_url": cfg.DiscoveryURL,
		"oidc_client_id":     cfg.ClientID,
		"oidc_client_secret": cfg.ClientSecret,
		"default_role":       cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write oidc config: %w", err)
	}

	_, err = c.Client.Logical().WriteWithContext(ctx, "auth/"+mountPath+"/role/"+cfg.Role, map[string]interface{}{
		"role_type":             "oidc",
		"user_claim":            "sub",
		"groups_claim":          "groups",
		"oidc_scopes":           []string{"openid", "profile", "email"},
		"allowed_redirect_uris": cfg.RedirectURIs,
		"token_policies":        cfg.Policies,
		"token_ttl":             cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write oidc role %s: %w", cfg.Role, err)
	}
	log.Info("configured vault oidc role", zap.String("role", cfg.Role))
	return &cfg, nil
}
