package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/app"
)

var solveFlags struct {
	start     int
	horizon   int
	withInt   bool
	loadScale float64
	noise     float64
	seed      uint64
	publish   bool
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Commit units on a perturbed forecast window and dispatch them at the realised values",
	RunE:  runSolve,
}

func init() {
	fl := solveCmd.Flags()
	fl.IntVar(&solveFlags.start, "start", 0, "first hour of the window")
	fl.IntVarP(&solveFlags.horizon, "horizon", "T", 24, "number of periods")
	fl.BoolVar(&solveFlags.withInt, "with-int", false, "commit units with boolean variables")
	fl.Float64Var(&solveFlags.loadScale, "load-scale", 1, "load multiplier")
	fl.Float64Var(&solveFlags.noise, "noise", 0.1, "relative forecast error")
	fl.Uint64Var(&solveFlags.seed, "seed", 0, "forecast error seed")
	fl.BoolVar(&solveFlags.publish, "publish", true, "publish the dispatch schedule over MQTT when enabled")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, _ []string) error {
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
	res, err := svc.Solve(ctx, series, app.SolveRequest{
		Start:     solveFlags.start,
		Horizon:   solveFlags.horizon,
		WithInt:   solveFlags.withInt,
		LoadScale: solveFlags.loadScale,
		Noise:     solveFlags.noise,
		Seed:      solveFlags.seed,
		Publish:   solveFlags.publish,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
