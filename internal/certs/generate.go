package certs

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/process"
)

// Preset is a known TLS target of the OSSS stack.
type Preset struct {
	Name     string
	DNSNames []string
	IPs      []net.IP

	// Java marks services that read JKS keystores.
	Java bool
}

// Presets are the services the stack terminates TLS for.
var Presets = map[string]Preset{
	"trino": {
		Name:     "trino",
		DNSNames: []string{"trino", "localhost"},
		IPs:      []net.IP{net.ParseIP("127.0.0.1")},
		Java:     true,
	},
	"keycloak": {
		Name:     "keycloak",
		DNSNames: []string{"keycloak", "localhost"},
		Java:     true,
	},
	"openmetadata": {
		Name:     "openmetadata",
		DNSNames: []string{"openmetadata-server", "localhost"},
		Java:     true,
	},
}

// PresetNames returns the preset keys, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Options controls Generate.
type Options struct {
	Dir        string
	CommonName string

	// Targets are preset names; empty means all presets.
	Targets []string

	// Force regenerates the CA and every leaf.
	Force bool

	Password string
	Runner   process.Runner
	Log      *zap.Logger
	LookPath func(name string) bool
}

// LeafResult reports one generated or reused target.
type LeafResult struct {
	*Leaf
	Keystore string `json:"keystore,omitempty"`
	Reused   bool   `json:"reused"`
}

// Result reports what Generate produced.
type Result struct {
	CA         string       `json:"ca"`
	CACreated  bool         `json:"caCreated"`
	Truststore string       `json:"truststore,omitempty"`
	Leaves     []LeafResult `json:"leaves"`
}

// Generate ensures the CA and a leaf per target, then builds keystores for
// Java targets when the JDK tools are present. Valid existing leaves are
// kept unless Force is set or the CA was just created.
func Generate(ctx context.Context, opts Options) (*Result, error) {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = PresetNames()
	}
	var presets []Preset
	for _, t := range targets {
		p, ok := Presets[t]
		if !ok {
			return nil, fmt.Errorf("unknown certificate target %q (known: %s)", t, strings.Join(PresetNames(), ", "))
		}
		presets = append(presets, p)
	}

	log := logging.OrNop(opts.Log)
	ca, err := EnsureCA(opts.Dir, opts.CommonName, opts.Force)
	if err != nil {
		return nil, err
	}
	result := &Result{CA: ca.CertPath, CACreated: ca.Created}

	ks := &Keystores{Runner: opts.Runner, Log: opts.Log, Password: opts.Password, LookPath: opts.LookPath}
	needJava := false
	for _, p := range presets {
		needJava = needJava || p.Java
	}
	withKeystores := needJava && ks.Available()

	for _, p := range presets {
		req := LeafRequest{Name: p.Name, DNSNames: p.DNSNames, IPs: p.IPs}
		res := LeafResult{}
		if !opts.Force && !ca.Created {
			if leaf := ca.ExistingLeaf(req); leaf != nil {
				res.Leaf, res.Reused = leaf, true
			}
		}
		if res.Leaf == nil {
			leaf, err := ca.IssueLeaf(req)
			if err != nil {
				return result, err
			}
			res.Leaf = leaf
			log.Info("issued certificate", zap.String("target", p.Name), zap.Strings("dns", p.DNSNames))
		}
		if withKeystores && p.Java {
			jks, err := ks.Build(ctx, ca, res.Leaf)
			if err != nil {
				return result, err
			}
			res.Keystore = jks
		}
		result.Leaves = append(result.Leaves, res)
	}

	if withKeystores {
		ts, err := ks.Truststore(ctx, ca)
		if err != nil {
			return result, err
		}
		result.Truststore = ts
	}
	return result, nil
}
