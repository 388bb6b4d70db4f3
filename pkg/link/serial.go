package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/ratectl"
	"github.com/itohio/gothd/pkg/record"
)

// readTimeout bounds a single blocking read so the reader notices cancellation.
const readTimeout = 100 * time.Millisecond

// Serial represents a connection to the instrument over a serial port.
type Serial struct {
	port     string
	baudRate int
	logger   *zap.Logger

	rd        *reader
	conn      serial.Port
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	closed    bool
}

// NewSerial creates a Serial link for the named port. "auto" selects the first USB port
// when connecting.
func NewSerial(port string, baudRate int, opts ...Option) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	o := newOptions(opts)

	return &Serial{
		port:     port,
		baudRate: baudRate,
		logger:   o.logger,
		rd:       newReader(o),
	}
}

// Port returns the port name, resolved after Connect when "auto" was requested.
func (d *Serial) Port() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.port
}

// Connect opens the serial port and starts reading frames.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.connected {
		return ErrAlreadyConnected
	}

	name := d.port
	if name == AutoPort {
		selected, err := AutoSelect()
		if err != nil {
			return err
		}
		name = selected
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.port = name
	d.conn = port
	d.cancel = cancel
	d.connected = true
	d.rd.start(ctx, port)

	d.logger.Info("connected", zap.String("port", name), zap.Int("baud_rate", d.baudRate))
	return nil
}

// Close stops the reader, closes the port and closes the records channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.cancel != nil {
		d.cancel()
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("error closing serial port", zap.Error(err))
		}
	}
	d.rd.wait()

	d.conn = nil
	d.connected = false
	return nil
}

// Records returns the channel of decoded records.
func (d *Serial) Records() <-chan record.Record {
	return d.rd.records
}

// RequestRate sends a sampling rate request to the instrument.
func (d *Serial) RequestRate(hz uint32) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected || d.rd.exited() {
		return ErrNotConnected
	}
	return ratectl.Request(d.conn, hz)
}

// IsConnected reports whether the port is open and the reader is running.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected && !d.rd.exited()
}

// Err returns the error that stopped the reader, or nil.
func (d *Serial) Err() error {
	return d.rd.Err()
}

// Stats returns the reader counters.
func (d *Serial) Stats() Stats {
	return d.rd.Stats()
}
