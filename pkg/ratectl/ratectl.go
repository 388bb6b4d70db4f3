// Package ratectl carries sampling rate requests from the host to the device.
//
// A request is a single little-endian uint32 holding the rate in Hz. The device accepts
// requests in [MinRate, MaxRequest], clamps them to its ceiling and applies them at the
// start of the next acquisition cycle. There is no acknowledgement.
package ratectl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/logging"
)

const (
	// MinRate is the lowest accepted rate (Hz).
	MinRate = 10
	// MaxRequest is the highest rate a request may carry (Hz).
	MaxRequest = 20000
	// DefaultCeiling is the highest rate actually applied (Hz).
	DefaultCeiling = 10000
	// MessageSize is the size of one request on the wire.
	MessageSize = 4
)

var (
	// ErrRateOutOfRange is returned for requests outside [MinRate, MaxRequest].
	ErrRateOutOfRange = errors.New("requested rate out of range")
	// ErrShortMessage is returned when fewer than MessageSize bytes are decoded.
	ErrShortMessage = errors.New("short rate request")
)

// Encode returns the wire form of a request for hz.
func Encode(hz uint32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, MessageSize), hz)
}

// Decode parses the first MessageSize bytes of b.
func Decode(b []byte) (uint32, error) {
	if len(b) < MessageSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Request writes a rate request to w.
func Request(w io.Writer, hz uint32) error {
	if _, err := w.Write(Encode(hz)); err != nil {
		return fmt.Errorf("failed to send rate request: %w", err)
	}
	return nil
}

// NearestPowerOfTwo rounds hz to the closest power of two on a logarithmic scale.
// Zero is returned unchanged.
func NearestPowerOfTwo(hz uint32) uint32 {
	if hz == 0 {
		return 0
	}
	exp := math.Round(math.Log2(float64(hz)))
	return uint32(math.Min(math.Pow(2, exp), math.MaxUint32))
}

// BufferedReader is the device side of the link as seen by the controller.
type BufferedReader interface {
	io.Reader
	// Buffered returns the number of bytes that can be read without blocking.
	Buffered() int
}

// Controller holds the sampling rate of the device.
type Controller struct {
	mu      sync.Mutex
	rate    uint32
	ceiling uint32
	logger  *zap.Logger
}

// NewController creates a Controller starting at initial Hz.
// A zero ceiling selects DefaultCeiling.
func NewController(initial, ceiling uint32, logger *zap.Logger) *Controller {
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	return &Controller{
		rate:    min(initial, ceiling),
		ceiling: ceiling,
		logger:  logging.OrNop(logger),
	}
}

// Rate returns the rate to use for the next cycle.
func (c *Controller) Rate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Ceiling returns the highest rate the controller applies.
func (c *Controller) Ceiling() uint32 {
	return c.ceiling
}

// Apply validates a requested rate and adopts it, clamped to the ceiling.
// Out of range requests leave the rate unchanged and return ErrRateOutOfRange.
// The adopted rate is returned in both cases.
func (c *Controller) Apply(raw uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if raw < MinRate || raw > MaxRequest {
		c.logger.Warn("ignoring rate request",
			zap.Uint32("requested", raw),
			zap.Uint32("rate", c.rate))
		return c.rate, fmt.Errorf("%w: %d Hz", ErrRateOutOfRange, raw)
	}

	rate := raw
	if rate > c.ceiling {
		c.logger.Info("clamping rate request",
			zap.Uint32("requested", raw),
			zap.Uint32("ceiling", c.ceiling))
		rate = c.ceiling
	}
	if rate != c.rate {
		c.logger.Info("sampling rate updated",
			zap.Uint32("from", c.rate),
			zap.Uint32("to", rate))
	}
	c.rate = rate
	return rate, nil
}

// Poll consumes every complete request buffered in r and applies them in order.
// Partial requests stay buffered until the rest arrives. Only read errors are returned.
func (c *Controller) Poll(r BufferedReader) error {
	var msg [MessageSize]byte
	for r.Buffered() >= MessageSize {
		if _, err := io.ReadFull(r, msg[:]); err != nil {
			return fmt.Errorf("failed to read rate request: %w", err)
		}
		raw, _ := Decode(msg[:])
		_, _ = c.Apply(raw)
	}
	return nil
}
