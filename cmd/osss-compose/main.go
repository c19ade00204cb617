// Command osss-compose manages the OSSS local development stack.
//
// Build-time variables are injected with
// -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
package main

import (
	"github.com/osss-dev/osss-compose/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
