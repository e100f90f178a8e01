package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swapi-aggregator",
		Short: "Aggregate the paginated Star Wars API into single responses",
		Long: `swapi-aggregator serves /people and /planets. Each request walks the
upstream pagination chain to the end, resolves planet residents to names and
returns one {data, count} document.

Every serve flag defaults to its environment variable; a .env file in the
working directory is loaded first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCmd())

	return cmd
}
