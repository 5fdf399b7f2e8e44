package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/core/operation"
)

var compileFlags struct {
	formulation string
	horizon     int
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a formulation and print its standard-form dimensions",
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileFlags.formulation, "formulation", "f", string(operation.NCUCNoInt), "ncuc_no_int, ncuc_with_int or ed")
	compileCmd.Flags().IntVarP(&compileFlags.horizon, "horizon", "T", 24, "number of periods")
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, _ []string) error {
	f, err := operation.ParseFormulation(compileFlags.formulation)
	if err != nil {
		return err
	}
	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	report, err := svc.Compile(f, compileFlags.horizon)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
