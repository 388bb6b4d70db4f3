// Package acquire captures one window of samples synchronized to an ascending zero crossing.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/logging"
	"github.com/itohio/gothd/pkg/sample"
)

const (
	// DefaultRate is the sampling rate used until a rate request is applied (Hz).
	DefaultRate = 1024
	// DefaultWindowLength is the number of samples per acquisition.
	DefaultWindowLength = 1024
	// DefaultDeadline bounds one acquisition, including the wait for the crossing.
	DefaultDeadline = 5 * time.Second
	// DefaultZeroCrossPoll is the interval between input reads while waiting for a crossing.
	DefaultZeroCrossPoll = 50 * time.Microsecond
	// DefaultDonePoll is the interval at which the control loop checks for completion.
	DefaultDonePoll = time.Millisecond
)

var (
	// ErrTimeout is returned when the deadline elapses before the window is complete.
	ErrTimeout = errors.New("acquisition timed out")
	// ErrInvalidConfig is returned for a zero rate or an empty window.
	ErrInvalidConfig = errors.New("invalid sampling config")
)

// Config is the sampling configuration of one acquisition cycle.
type Config struct {
	Rate         uint32 // Hz
	WindowLength int    // Samples
}

// DefaultConfig returns the power-on sampling configuration.
func DefaultConfig() Config {
	return Config{Rate: DefaultRate, WindowLength: DefaultWindowLength}
}

// Validate checks that the configuration can drive a timer and fill a buffer.
func (c Config) Validate() error {
	if c.Rate == 0 {
		return fmt.Errorf("%w: zero rate", ErrInvalidConfig)
	}
	if c.WindowLength <= 0 {
		return fmt.Errorf("%w: window length %d", ErrInvalidConfig, c.WindowLength)
	}
	return nil
}

// Period returns the interval between two samples.
func (c Config) Period() time.Duration {
	if c.Rate == 0 {
		return 0
	}
	return time.Second / time.Duration(c.Rate)
}

// AwaitAscendingCrossing blocks until two consecutive readings of src straddle midpoint from
// below. It returns ctx.Err() if ctx is done first.
func AwaitAscendingCrossing(ctx context.Context, src sample.Source, midpoint float64, poll time.Duration) error {
	prev := src.Read()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if poll > 0 {
			time.Sleep(poll)
		}
		cur := src.Read()
		if prev < midpoint && cur >= midpoint {
			return nil
		}
		prev = cur
	}
}

// Phase is the progress of the current acquisition.
type Phase int32

const (
	Idle Phase = iota
	WaitingCrossing
	Sampling
	Complete
	Timeout
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case WaitingCrossing:
		return "waiting_crossing"
	case Sampling:
		return "sampling"
	case Complete:
		return "complete"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Scheduler paces sample reads with a periodic timer.
// The timer callback only stores readings; completion is observed by the control loop.
type Scheduler struct {
	src       sample.Source
	timer     Timer
	midpoint  float64
	crossPoll time.Duration
	donePoll  time.Duration
	logger    *zap.Logger

	buf   *sample.Buffer // Reused while the window length is unchanged
	phase atomic.Int32
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimer replaces the ticker based timer.
func WithTimer(t Timer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.timer = t
		}
	}
}

// WithMidpoint sets the crossing threshold (V).
func WithMidpoint(v float64) Option {
	return func(s *Scheduler) {
		s.midpoint = v
	}
}

// WithZeroCrossPoll sets the read interval while waiting for a crossing.
func WithZeroCrossPoll(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.crossPoll = d
		}
	}
}

// WithDonePoll sets the completion check interval of the control loop.
func WithDonePoll(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.donePoll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.OrNop(l)
	}
}

// NewScheduler creates a Scheduler reading from src.
func NewScheduler(src sample.Source, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:       src,
		timer:     TickerTimer{},
		midpoint:  sample.DefaultMidpoint,
		crossPoll: DefaultZeroCrossPoll,
		donePoll:  DefaultDonePoll,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the phase of the last or current acquisition.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Acquire waits for an ascending crossing, then fills a buffer of cfg.WindowLength samples at
// cfg.Rate. The deadline covers both steps. On timeout the timer is stopped, the partial
// buffer is discarded and the returned error wraps ErrTimeout. The returned buffer is
// valid until the next call to Acquire.
func (s *Scheduler) Acquire(ctx context.Context, cfg Config, deadline time.Duration) (*sample.Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	s.setPhase(WaitingCrossing)
	if err := AwaitAscendingCrossing(ctx, s.src, s.midpoint, s.crossPoll); err != nil {
		return nil, s.abandon(err, 0)
	}

	buf := s.buffer(cfg.WindowLength)

	s.setPhase(Sampling)
	stop := s.timer.Start(cfg.Period(), func() {
		if !buf.Full() {
			buf.Append(s.src.Read())
		}
	})

	ticker := time.NewTicker(s.donePoll)
	defer ticker.Stop()

	for !buf.Full() {
		select {
		case <-ctx.Done():
			stop()
			return nil, s.abandon(ctx.Err(), buf.Len())
		case <-ticker.C:
		}
	}
	stop()

	s.setPhase(Complete)
	return buf, nil
}

// buffer returns an empty buffer of capacity n, reusing the previous one when it fits.
func (s *Scheduler) buffer(n int) *sample.Buffer {
	if s.buf == nil || s.buf.Cap() != n {
		s.buf = sample.NewBuffer(n)
	} else {
		s.buf.Reset()
	}
	return s.buf
}

func (s *Scheduler) abandon(err error, collected int) error {
	s.setPhase(Timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Debug("acquisition deadline elapsed", zap.Int("collected", collected))
		return fmt.Errorf("%w after %d samples: %w", ErrTimeout, collected, err)
	}
	return err
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase.Store(int32(p))
}
