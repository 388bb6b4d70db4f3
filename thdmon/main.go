// thdmon - host side monitor for the THD instrument
//
// Reads measurement frames from the instrument over USB serial (or from a simulated
// instrument), prints the harmonic breakdown of every record and sends sampling rate
// requests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/config"
	"github.com/itohio/gothd/pkg/logging"
)

type globalFlags struct {
	configPath string
	logLevel   string
	port       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "thdmon",
		Short: "Monitor harmonic distortion measured by the THD instrument",
		Long: `thdmon receives measurement records from the instrument over its serial link
and prints the fundamental, the harmonic lines, RMS and THD of each record.

Commands:
  monitor   Stream and print measurements
  rate      Request a new sampling rate
  ports     List serial ports and the automatic selection`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "configuration file path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&flags.port, "port", "p", "", "serial port override (e.g. COM3 or /dev/ttyACM0)")

	root.AddCommand(
		newMonitorCmd(flags),
		newRateCmd(flags),
		newPortsCmd(),
	)
	return root
}

// setup loads and validates the configuration, applies flag overrides and builds the logger.
func (f *globalFlags) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
