package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers the Vault and Keycloak endpoints Configure and
// DiscoveryURLFor call, and records request bodies by path.
type fakeServer struct {
	mu          sync.Mutex
	authEnabled bool
	bodies      map[string]map[string]interface{}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[r.URL.Path] = body

	switch r.URL.Path {
	case "/realms/OSSS":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"realm":"OSSS","public_key":"MIIB","token-service":"x","account-service":"y","tokens-not-before":0}`))
	case "/v1/sys/auth/oidc":
		if f.authEnabled {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["path is already in use at oidc/"]}`))
			return
		}
		f.authEnabled = true
		w.WriteHeader(http.StatusNoContent)
	case "/v1/auth/oidc/config", "/v1/auth/oidc/role/osss", "/v1/auth/oidc/role/admins":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	}
}

func newTestConfigurator(t *testing.T) (*Configurator, *fakeServer, string) {
	t.Helper()
	fake := &fakeServer{bodies: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewConfigurator(srv.URL, "root", srv.URL, nil)
	require.NoError(t, err)
	return c, fake, srv.URL
}

func TestNewConfigurator_RequiresToken(t *testing.T) {
	_, err := NewConfigurator("http://127.0.0.1:8200", "", "http://localhost:8080", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_TOKEN")
}

func TestDiscoveryURLFor(t *testing.T) {
	c, _, url := newTestConfigurator(t)

	got, err := c.DiscoveryURLFor(context.Background(), url+"/", "OSSS")
	require.NoError(t, err)
	assert.Equal(t, url+"/realms/OSSS", got)

	_, err = c.DiscoveryURLFor(context.Background(), url, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `realm "missing"`)
}

func TestConfigure(t *testing.T) {
	c, fake, url := newTestConfigurator(t)

	cfg, err := c.Configure(context.Background(), OIDCConfig{
		DiscoveryURL: url + "/realms/OSSS",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultRole, cfg.Role)
	assert.Equal(t, []string{
		"http://localhost:8250/oidc/callback",
		url + "/ui/vault/auth/oidc/oidc/callback",
	}, cfg.RedirectURIs)

	conf := fake.bodies["/v1/auth/oidc/config"]
	assert.Equal(t, url+"/realms/OSSS", conf["oidc_discovery_url"])
	assert.Equal(t, "vault", conf["oidc_client_id"])
	assert.Equal(t, "s3cret", conf["oidc_client_secret"])
	assert.Equal(t, "osss", conf["default_role"])

	role := fake.bodies["/v1/auth/oidc/role/osss"]
	assert.Equal(t, "sub", role["user_claim"])
	assert.Equal(t, "groups", role["groups_claim"])
	assert.Equal(t, "1h", role["token_ttl"])
	assert.Equal(t, []interface{}{"default"}, role["token_policies"])

	assert.Equal(t, "oidc", fake.bodies["/v1/sys/auth/oidc"]["type"])
}

// TestConfigure_AlreadyEnabled verifies a second run succeeds and rewrites
// the role.
func TestConfigure_AlreadyEnabled(t *testing.T) {
	c, fake, url := newTestConfigurator(t)
	ctx := context.Background()

	_, err := c.Configure(ctx, OIDCConfig{DiscoveryURL: url + "/realms/OSSS"})
	require.NoError(t, err)

	_, err = c.Configure(ctx, OIDCConfig{
		DiscoveryURL: url + "/realms/OSSS",
		Role:         "admins",
		Policies:     []string{"admin"},
		TTL:          "8h",
	})
	require.NoError(t, err)
	assert.Equal(t, "8h", fake.bodies["/v1/auth/oidc/role/admins"]["token_ttl"])
}

func TestConfigure_RequiresDiscoveryURL(t *testing.T) {
	c, _, _ := newTestConfigurator(t)
	_, err := c.Configure(context.Background(), OIDCConfig{})
	assert.Error(t, err)
}
