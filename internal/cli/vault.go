package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/vault"
)

type vaultFlags struct {
	cfg         vault.OIDCConfig
	realm       string
	keycloakURL string
}

func newVaultOIDCCommand(a *app) *cobra.Command {
	flags := &vaultFlags{}

	cmd := &cobra.Command{
		Use:   "vault-oidc",
		Short: "Configure Vault's OIDC login against the Keycloak realm",
		Long: `Enable the oidc auth method in Vault (VAULT_ADDR, VAULT_TOKEN) and point
it at the Keycloak realm (KEYCLOAK_URL, KEYCLOAK_REALM).

The realm is checked on Keycloak first unless --discovery-url is given,
which is needed when Vault reaches Keycloak under another name than this
host does. Running the command again overwrites the config and role.

The client secret is read from --client-secret or OIDC_CLIENT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.configureVault(cmd.Context(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.keycloakURL, "keycloak-url", "", "Keycloak base URL (default KEYCLOAK_URL)")
	f.StringVar(&flags.realm, "realm", "", "Keycloak realm (default KEYCLOAK_REALM)")
	f.StringVar(&flags.cfg.DiscoveryURL, "discovery-url", "", "OIDC discovery URL as seen from Vault")
	f.StringVar(&flags.cfg.ClientID, "client-id", vault.DefaultClientID, "Keycloak client ID")
	f.StringVar(&flags.cfg.ClientSecret, "client-secret", "", "Keycloak client secret")
	f.StringVar(&flags.cfg.Role, "role", vault.DefaultRole, "Vault role name")
	f.StringSliceVar(&flags.cfg.Policies, "policy", []string{"default"}, "Token policies of the role")
	f.StringSliceVar(&flags.cfg.RedirectURIs, "redirect-uri", nil, "Allowed redirect URIs (default CLI and UI callbacks)")
	f.StringVar(&flags.cfg.TTL, "ttl", vault.DefaultTTL, "Token TTL")
	return cmd
}

func (a *app) configureVault(ctx context.Context, flags *vaultFlags) error {
	s := a.settings
	keycloakURL := flags.keycloakURL
	if keycloakURL == "" {
		keycloakURL = s.KeycloakURL
	}
	realm := flags.realm
	if realm == "" {
		realm = s.KeycloakRealm
	}
	cfg := flags.cfg
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("OIDC_CLIENT_SECRET")
	}

	c, err := vault.NewConfigurator(s.VaultAddr, s.VaultToken, keycloakURL, a.log)
	if err != nil {
		return err
	}
	if cfg.DiscoveryURL == "" {
		if cfg.DiscoveryURL, err = c.DiscoveryURLFor(ctx, keycloakURL, realm); err != nil {
			return err
		}
	}
	applied, err := c.Configure(ctx, cfg)
	if err != nil {
		return err
	}
	if s.JSON {
		return writeJSON(a.stdout, applied)
	}
	menu.OK(a.stdout, "vault oidc role %q uses %s", applied.Role, applied.DiscoveryURL)
	if applied.ClientSecret == "" {
		menu.Warn(a.stdout, "no client secret set; only public Keycloak clients will work")
	}
	return nil
}
