package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/triangulate/internal/connector"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Show the resolved connector chain in trust order",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tNAME\tKIND\tTIMEOUT")
		for _, d := range connector.Resolve(cfg.Connectors) {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.TrustRank, d.Name, d.Kind, d.Timeout)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(connectorsCmd)
}
