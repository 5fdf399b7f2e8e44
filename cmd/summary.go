package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/infra/gridfile"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the capacity summary of the configured grid",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := gridfile.LoadModel(cfg.Grid.Path)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), m.Summary())
}
