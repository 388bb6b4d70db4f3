package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/link"
	"github.com/itohio/gothd/pkg/ratectl"
)

func newRateCmd(global *globalFlags) *cobra.Command {
	var pow2 bool

	cmd := &cobra.Command{
		Use:   "rate <hz>",
		Short: "Request a new sampling rate from the instrument",
		Long: `Sends a sampling rate request to the instrument. The instrument applies it at the
start of its next cycle. Requests outside [10, 20000] Hz are ignored by the instrument
and requests above its ceiling are clamped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hz, err := parseRate(args[0])
			if err != nil {
				return err
			}
			hz = requestedRate(hz, pow2)

			cfg, logger, err := global.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dev := link.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, link.WithLogger(logger))
			if err := dev.Connect(); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer dev.Close()

			if err := dev.RequestRate(hz); err != nil {
				return fmt.Errorf("failed to request rate: %w", err)
			}
			logger.Info("rate requested", zap.String("port", dev.Port()), zap.Uint32("hz", hz))
			fmt.Fprintf(cmd.OutOrStdout(), "requested %d Hz on %s\n", hz, dev.Port())
			return nil
		},
	}

	cmd.Flags().BoolVar(&pow2, "pow2", false, "round the rate to the nearest power of two")
	return cmd
}

// parseRate parses a rate argument and rejects rates the instrument would ignore.
func parseRate(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	hz := uint32(v)
	if err := checkRate(hz); err != nil {
		return 0, err
	}
	return hz, nil
}

// checkRate rejects rates outside the range the instrument accepts.
func checkRate(hz uint32) error {
	if hz < ratectl.MinRate || hz > ratectl.MaxRequest {
		return fmt.Errorf("%w: %d Hz", ratectl.ErrRateOutOfRange, hz)
	}
	return nil
}

func requestedRate(hz uint32, pow2 bool) uint32 {
	if pow2 {
		return ratectl.NearestPowerOfTwo(hz)
	}
	return hz
}
