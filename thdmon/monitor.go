package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/config"
	"github.com/itohio/gothd/pkg/link"
	"github.com/itohio/gothd/pkg/meter"
)

type monitorFlags struct {
	mock     bool
	rate     uint32
	pow2     bool
	duration time.Duration
	width    int
	trend    bool
}

func newMonitorCmd(global *globalFlags) *cobra.Command {
	flags := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream measurements and print each record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := global.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if flags.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flags.duration)
				defer cancel()
			}

			return monitor(ctx, cmd.OutOrStdout(), openLink(cfg, flags.mock, logger), cfg, flags, logger)
		},
	}

	cmd.Flags().BoolVar(&flags.mock, "mock", false, "use a simulated instrument instead of the serial port")
	cmd.Flags().Uint32VarP(&flags.rate, "rate", "r", 0, "request this sampling rate (Hz) after connecting")
	cmd.Flags().BoolVar(&flags.pow2, "pow2", false, "round the requested rate to the nearest power of two")
	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().IntVarP(&flags.width, "width", "w", 64, "width of the waveform preview in characters (0 = off)")
	cmd.Flags().BoolVar(&flags.trend, "trend", false, "print trend averages with every record")
	return cmd
}

func openLink(cfg *config.Config, mock bool, logger *zap.Logger) link.Device {
	if mock {
		return link.NewMock(cfg, link.WithLogger(logger))
	}
	return link.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate,
		link.WithLogger(logger),
		link.WithMaxSamples(cfg.Link.MaxSamples),
		link.WithReadSize(cfg.Host.ReadBuffer),
	)
}

// monitor connects dev and prints every processed record to out until ctx is done or the
// link shuts down. A link failure is returned.
func monitor(ctx context.Context, out io.Writer, dev link.Device, cfg *config.Config, flags *monitorFlags, logger *zap.Logger) error {
	if flags.rate > 0 {
		if err := checkRate(flags.rate); err != nil {
			return err
		}
	}
	if err := dev.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if flags.rate > 0 {
		hz := requestedRate(flags.rate, flags.pow2)
		if err := dev.RequestRate(hz); err != nil {
			_ = dev.Close()
			return fmt.Errorf("failed to request rate: %w", err)
		}
		logger.Info("rate requested", zap.Uint32("hz", hz))
	}

	m := meter.New(cfg)
	opts := reportOptions{previewWidth: flags.width, trend: flags.trend}
	m.OnUpdate(func(latest meter.Measurement, trend []meter.TrendPoint) {
		fmt.Fprintln(out, formatMeasurement(latest, trend, opts))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.ProcessRecords(dev.Records())
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	if err := dev.Close(); err != nil {
		logger.Warn("close failed", zap.Error(err))
	}
	<-done

	st := dev.Stats()
	logger.Info("link closed",
		zap.Uint64("records", m.Count()),
		zap.Uint64("frames", st.Frames),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("checksum_errors", st.ChecksumErrors),
		zap.Uint64("rejected_headers", st.RejectedHeaders),
		zap.Uint64("discarded_bytes", st.Discarded))

	return dev.Err()
}
