package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/gothd/pkg/acquire"
	"github.com/itohio/gothd/pkg/config"
	"github.com/itohio/gothd/pkg/device"
	"github.com/itohio/gothd/pkg/ratectl"
	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/sample"
)

// Mock simulates an instrument by running the device pipeline against a synthetic waveform.
// Frames travel through an in-memory pipe and are decoded by the same reader as a serial link.
type Mock struct {
	cfg    *config.Config
	logger *zap.Logger

	rd         *reader
	requests   *requestQueue
	instrument *device.Instrument
	pipe       *io.PipeReader
	deviceDone chan struct{}

	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	closed    bool
}

// NewMock creates a new mocked instrument. A nil cfg selects config.Default().
func NewMock(cfg *config.Config, opts ...Option) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	o := newOptions(append([]Option{
		WithMaxSamples(cfg.Link.MaxSamples),
		WithReadSize(cfg.Host.ReadBuffer),
	}, opts...))

	return &Mock{
		cfg:        cfg,
		logger:     o.logger,
		rd:         newReader(o),
		requests:   &requestQueue{},
		deviceDone: make(chan struct{}),
	}
}

// Waveform builds the simulated input signal from the mock configuration.
func Waveform(mc config.MockConfig) *sample.Waveform {
	tones := []sample.Tone{{Frequency: mc.Frequency, Amplitude: mc.Amplitude}}
	for _, h := range mc.Harmonics {
		tones = append(tones, sample.Tone{
			Frequency: float64(h.Order) * mc.Frequency,
			Amplitude: h.Ratio * mc.Amplitude,
		})
	}
	return sample.NewWaveform(mc.Offset, mc.Noise, tones...)
}

// Connect starts the simulated instrument and the reader.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.connected {
		return ErrAlreadyConnected
	}

	s := m.cfg.Sampling
	pr, pw := io.Pipe()
	devLogger := m.logger.Named("device")

	sched := acquire.NewScheduler(Waveform(m.cfg.Mock),
		acquire.WithMidpoint(s.Midpoint),
		acquire.WithZeroCrossPoll(s.ZeroCrossPoll),
		acquire.WithLogger(devLogger))
	rates := ratectl.NewController(s.Rate, s.RateCeiling, devLogger)
	m.instrument = device.New(&mockPort{w: pw, requests: m.requests}, sched, rates, device.Config{
		WindowLength: s.WindowLength,
		Deadline:     s.Deadline,
		CyclePause:   s.CyclePause,
		Midpoint:     s.Midpoint,
		FullScale:    s.FullScale,
		ChunkSize:    m.cfg.Link.ChunkSize,
		ChunkPause:   m.cfg.Link.ChunkPause,
	}, device.WithLogger(devLogger))

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.pipe = pr
	m.connected = true

	go func() {
		defer close(m.deviceDone)
		err := m.instrument.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			devLogger.Error("instrument stopped", zap.Error(err))
		}
		pw.CloseWithError(err)
	}()
	m.rd.start(ctx, pr)

	return nil
}

// Close stops the simulated instrument and the reader and closes the records channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.connected {
		m.cancel()
		m.pipe.Close()
		<-m.deviceDone
	}
	m.rd.wait()

	m.connected = false
	return nil
}

// Records returns the channel of decoded records.
func (m *Mock) Records() <-chan record.Record {
	return m.rd.records
}

// RequestRate queues a rate request for the simulated instrument.
func (m *Mock) RequestRate(hz uint32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected || m.rd.exited() {
		return ErrNotConnected
	}
	m.requests.write(ratectl.Encode(hz))
	return nil
}

// IsConnected reports whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && !m.rd.exited()
}

// Err returns the error that stopped the reader, or nil.
func (m *Mock) Err() error {
	return m.rd.Err()
}

// Stats returns the reader counters.
func (m *Mock) Stats() Stats {
	return m.rd.Stats()
}

// DeviceStats returns the counters of the simulated instrument.
func (m *Mock) DeviceStats() device.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.instrument == nil {
		return device.Stats{}
	}
	return m.instrument.Stats()
}

// requestQueue carries rate requests from the host to the simulated device.
type requestQueue struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (q *requestQueue) write(p []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf.Write(p)
}

// mockPort is the device end of the in-memory link.
type mockPort struct {
	w        io.Writer
	requests *requestQueue
}

func (p *mockPort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *mockPort) Read(b []byte) (int, error) {
	p.requests.mu.Lock()
	defer p.requests.mu.Unlock()
	return p.requests.buf.Read(b)
}

func (p *mockPort) Buffered() int {
	p.requests.mu.Lock()
	defer p.requests.mu.Unlock()
	return p.requests.buf.Len()
}
