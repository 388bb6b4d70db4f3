// Package link connects the host to an instrument, real or simulated, and delivers the
// decoded measurement records.
package link

import (
	"errors"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/logging"
	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/stream"
)

const (
	// DefaultBaudRate is the UART rate of the instrument.
	DefaultBaudRate = 115200
	// DefaultReadSize is the size of a single read from the link.
	DefaultReadSize = 4096
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("link closed")
	ErrReaderPanic      = errors.New("link reader panicked")
)

// Device defines the interface for instrument links (real or mocked).
type Device interface {
	Connect() error
	Close() error
	// Records delivers the newest decoded record. Older undelivered records are dropped.
	// The channel is closed when the link shuts down for any reason.
	Records() <-chan record.Record
	// RequestRate asks the instrument to sample at hz from its next cycle on.
	RequestRate(hz uint32) error
	IsConnected() bool
	// Err returns the error that terminated the reader, or nil.
	Err() error
	Stats() Stats
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// Stats counts what the reader did with the byte stream.
type Stats struct {
	stream.Stats
	Dropped uint64 // Records replaced by a newer one before being consumed
}

type options struct {
	logger     *zap.Logger
	maxSamples int
	readSize   int
}

// Option configures a link.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(l)
	}
}

// WithMaxSamples sets the largest sample count accepted from a frame header.
func WithMaxSamples(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSamples = n
		}
	}
}

// WithReadSize sets the size of a single read from the link.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:     zap.NewNop(),
		maxSamples: stream.DefaultMaxSamples,
		readSize:   DefaultReadSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
