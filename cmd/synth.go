package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/core/scenario"
	datafile "github.com/xuwkk/power-system-operation/infra/scenario"
)

var synthFlags struct {
	out   string
	hours int
	seed  uint64
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Write synthetic per-load series for the configured grid",
	RunE:  runSynth,
}

func init() {
	synthCmd.Flags().StringVarP(&synthFlags.out, "out", "o", "data", "output directory")
	synthCmd.Flags().IntVar(&synthFlags.hours, "hours", scenario.HoursPerYear, "number of hours")
	synthCmd.Flags().Uint64Var(&synthFlags.seed, "seed", 1, "generator seed")
	rootCmd.AddCommand(synthCmd)
}

func runSynth(cmd *cobra.Command, _ []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	s := scenario.Synthetic(svc.Grid, synthFlags.hours, synthFlags.seed)
	if err := datafile.Write(synthFlags.out, svc.Grid, s); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files of %d hours to %s\n", svc.Grid.NumLoad, synthFlags.hours, synthFlags.out)
	return err
}
