// Package device runs the measurement cycle of the instrument: apply pending rate requests,
// acquire a synchronized window, analyze it and stream the framed record to the host.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/acquire"
	"github.com/itohio/gothd/pkg/frame"
	"github.com/itohio/gothd/pkg/logging"
	"github.com/itohio/gothd/pkg/ratectl"
	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/sample"
	"github.com/itohio/gothd/pkg/spectrum"
)

// DefaultCyclePause separates two measurement cycles.
const DefaultCyclePause = 2 * time.Second

// ErrSend is returned when a frame could not be written to the link.
var ErrSend = errors.New("failed to send frame")

// Port is the device end of the link: frames are written to it and rate requests read from it.
type Port interface {
	io.Writer
	ratectl.BufferedReader
}

// Config contains the cycle parameters.
type Config struct {
	WindowLength int
	Deadline     time.Duration
	CyclePause   time.Duration
	Midpoint     float64 // Subtracted from transmitted samples (V)
	FullScale    float64 // Quantization full scale (V)
	ChunkSize    int
	ChunkPause   time.Duration
}

// DefaultConfig returns the power-on cycle parameters.
func DefaultConfig() Config {
	return Config{
		WindowLength: acquire.DefaultWindowLength,
		Deadline:     acquire.DefaultDeadline,
		CyclePause:   DefaultCyclePause,
		Midpoint:     sample.DefaultMidpoint,
		FullScale:    frame.DefaultFullScale,
		ChunkSize:    frame.DefaultChunkSize,
		ChunkPause:   frame.DefaultChunkPause,
	}
}

// Stats counts cycle outcomes.
type Stats struct {
	Cycles   uint64
	Frames   uint64
	Timeouts uint64
	Failures uint64
}

// Instrument owns the acquisition pipeline of one input channel.
type Instrument struct {
	cfg      Config
	port     Port
	rates    *ratectl.Controller
	sched    *acquire.Scheduler
	codec    frame.Codec
	sender   *frame.Sender
	logger   *zap.Logger
	observer func(record.Record)

	cycles, frames, timeouts, failures atomic.Uint64
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Instrument) {
		in.logger = logging.OrNop(l)
	}
}

// WithObserver registers a function receiving every analyzed record before it is sent,
// for a local status display.
func WithObserver(fn func(record.Record)) Option {
	return func(in *Instrument) {
		in.observer = fn
	}
}

// New creates an Instrument.
func New(port Port, sched *acquire.Scheduler, rates *ratectl.Controller, cfg Config, opts ...Option) *Instrument {
	def := DefaultConfig()
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = def.WindowLength
	}
	if cfg.FullScale <= 0 {
		cfg.FullScale = def.FullScale
	}

	in := &Instrument{
		cfg:    cfg,
		port:   port,
		rates:  rates,
		sched:  sched,
		codec:  frame.Codec{FullScale: cfg.FullScale},
		sender: frame.NewSender(port, cfg.ChunkSize, cfg.ChunkPause),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Stats returns the cycle counters.
func (in *Instrument) Stats() Stats {
	return Stats{
		Cycles:   in.cycles.Load(),
		Frames:   in.frames.Load(),
		Timeouts: in.timeouts.Load(),
		Failures: in.failures.Load(),
	}
}

// Cycle runs one measurement cycle and returns the record that was sent.
func (in *Instrument) Cycle(ctx context.Context) (record.Record, error) {
	in.cycles.Add(1)

	if err := in.rates.Poll(in.port); err != nil {
		in.logger.Warn("failed to poll rate requests", zap.Error(err))
	}
	cfg := acquire.Config{Rate: in.rates.Rate(), WindowLength: in.cfg.WindowLength}

	buf, err := in.sched.Acquire(ctx, cfg, in.cfg.Deadline)
	if err != nil {
		if errors.Is(err, acquire.ErrTimeout) {
			in.timeouts.Add(1)
		}
		return record.Record{}, err
	}

	rec := spectrum.Analyze(buf.Values(), cfg.Rate)
	rec.Samples = sample.CenterOnMidpoint(buf.Values(), in.cfg.Midpoint)

	in.logSummary(rec)
	if in.observer != nil {
		in.observer(rec)
	}

	data, err := in.codec.Encode(rec)
	if err != nil {
		in.failures.Add(1)
		return record.Record{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := in.sender.Send(ctx, data); err != nil {
		in.failures.Add(1)
		if ctx.Err() != nil {
			return record.Record{}, ctx.Err()
		}
		return record.Record{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	in.frames.Add(1)
	return rec, nil
}

// Run repeats Cycle until ctx is done or the link fails.
// Timed out acquisitions are logged and the next cycle starts after the usual pause.
func (in *Instrument) Run(ctx context.Context) error {
	in.logger.Info("instrument started",
		zap.Uint32("rate", in.rates.Rate()),
		zap.Int("window_length", in.cfg.WindowLength))

	for {
		_, err := in.Cycle(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, acquire.ErrTimeout):
			in.logger.Warn("acquisition timed out, retrying", zap.Error(err))
		case errors.Is(err, ErrSend):
			in.logger.Error("link failure", zap.Error(err))
			return err
		default:
			in.logger.Error("cycle failed", zap.Error(err))
		}

		if in.cfg.CyclePause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(in.cfg.CyclePause):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (in *Instrument) logSummary(rec record.Record) {
	f1 := rec.Fundamental()
	in.logger.Info("measurement",
		zap.Uint32("rate", rec.Rate),
		zap.Int("samples", rec.SampleCount()),
		zap.Float64("window", rec.Duration()),
		zap.Float64("f1", f1.Frequency),
		zap.Float64("a1", f1.Amplitude),
		zap.Float64("rms", rec.RMS),
		zap.Float64("thd", rec.THD),
		zap.Ints("orders", rec.Orders()))
}
