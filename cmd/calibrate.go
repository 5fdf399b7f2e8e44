package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/infra/logger"
)

var calibrateWrite string

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Derive branch limits from flows observed over the configured series",
	RunE:  runCalibrate,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest stored calibration of the configured case",
	RunE:  runLatest,
}

func init() {
	calibrateCmd.Flags().StringVarP(&calibrateWrite, "write", "w", "", "write the grid with calibrated limits to this file")
	calibrateCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	svc.StartMetrics(ctx)

	series, err := svc.Series()
	if err != nil {
		return err
	}
	rec, err := svc.Calibrate(ctx, series)
	if err != nil {
		return err
	}
	if calibrateWrite != "" {
		if err := svc.WriteLimits(calibrateWrite, rec); err != nil {
			return err
		}
		logger.New("calibrate").Infof("calibrated grid written to %s", calibrateWrite)
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runLatest(cmd *cobra.Command, _ []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(cmd, svc)
	rec, err := svc.LatestCalibration(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}
