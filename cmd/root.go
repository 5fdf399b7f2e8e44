// Package cmd implements the pso command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xuwkk/power-system-operation/app"
	"github.com/xuwkk/power-system-operation/config"
	"github.com/xuwkk/power-system-operation/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "pso",
	Short:         "Power system operation: unit commitment, economic dispatch and branch limit calibration",
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration and configures logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openService loads the configuration and builds the service. The caller
// closes it.
func openService() (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func closeService(cmd *cobra.Command, svc *app.Service) {
	if err := svc.Close(); err != nil {
		if _, ferr := fmt.Fprintf(cmd.ErrOrStderr(), "error while closing: %v\n", err); ferr != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
