package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "triangulate",
	Short: "Evidence-gated organisation record enrichment",
	Long:  "Queries research connectors in trust order, cross-validates their findings and accepts, rejects or quarantines each proposed field change with a rollback plan and an evidence trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
