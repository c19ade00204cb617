package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/certs"
	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/process"
)

const defaultCertsDir = "certs"

type certsFlags struct {
	dir        string
	commonName string
	password   string
	force      bool
}

func newCertsCommand(a *app) *cobra.Command {
	flags := &certsFlags{}

	cmd := &cobra.Command{
		Use:   "certs [target...]",
		Short: "Generate the local CA, leaf certificates and Java keystores",
		Long: fmt.Sprintf(`Generate a local development CA and a certificate per target, plus
PKCS#12/JKS keystores and a shared truststore for the Java services.

Targets: %s (default: all).

Existing certificates that are still valid are kept unless --force is set.
Keystores need openssl and keytool on PATH; without them only PEM files
are written.`, strings.Join(certs.PresetNames(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.generateCerts(cmd.Context(), flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Output directory (default certs/ beside the compose file)")
	cmd.Flags().StringVar(&flags.commonName, "cn", "", "CA common name")
	cmd.Flags().StringVar(&flags.password, "store-pass", certs.DefaultStorePassword, "Keystore and truststore password")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Regenerate the CA and every certificate")
	return cmd
}

func (a *app) generateCerts(ctx context.Context, flags *certsFlags, targets []string) error {
	dir := flags.dir
	if dir == "" {
		dir = filepath.Join(a.settings.ProjectDir, defaultCertsDir)
	}
	res, err := certs.Generate(ctx, certs.Options{
		Dir:        dir,
		CommonName: flags.commonName,
		Targets:    targets,
		Force:      flags.force,
		Password:   flags.password,
		Runner:     a.runner,
		Log:        a.log,
		LookPath:   process.LookPath,
	})
	if err != nil {
		return err
	}
	if a.settings.JSON {
		return writeJSON(a.stdout, res)
	}

	if res.CACreated {
		menu.OK(a.stdout, "created CA %s", res.CA)
	} else {
		menu.OK(a.stdout, "using CA %s", res.CA)
	}
	for _, l := range res.Leaves {
		verb := "issued"
		if l.Reused {
			verb = "kept"
		}
		menu.OK(a.stdout, "%s %s certificate %s", verb, l.Name, l.CertPath)
		if l.Keystore != "" {
			fmt.Fprintln(a.stdout, menu.Muted("   keystore: "+l.Keystore))
		}
	}
	if res.Truststore != "" {
		menu.OK(a.stdout, "truststore %s", res.Truststore)
	}
	return nil
}
