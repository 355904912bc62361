package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/research-finder/internal/config"
	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/papersources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the providers and their rate limits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		writeSources(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func writeSources(out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tCREDENTIAL\tINTERVAL")
	for _, st := range domain.AllSourceTypes() {
		credentialed := cfg.Sources.Credentialed(st)
		cred := "no"
		if credentialed {
			cred = "yes"
		}
		enabled := "no"
		if cfg.Sources.For(st).Enabled {
			enabled = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			st, st.DisplayName(), enabled, cred, papersources.IntervalFor(st, credentialed))
	}
	w.Flush()
}
