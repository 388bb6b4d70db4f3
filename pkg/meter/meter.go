package meter

import (
	"sync"
	"time"

	"github.com/itohio/gothd/pkg/config"
	"github.com/itohio/gothd/pkg/record"
	"github.com/itohio/gothd/pkg/sample"
)

var _ HarmonicMeter = (*Meter)(nil)

// Measurement is a received record with host side annotations.
type Measurement struct {
	Received time.Time
	Record   record.Record
	Orders   []int // Harmonic order of each record entry
}

// TrendPoint is the history entry of one measurement.
type TrendPoint struct {
	Time time.Time
	F1   float64 // Hz
	RMS  float64 // V
	THD  float64 // %
}

// HarmonicMeter consumes records, keeps the newest one and a short metric history.
type HarmonicMeter interface {
	ProcessRecords(input <-chan record.Record)
	Latest() (Measurement, bool)                           // Most recent measurement
	Trend() []TrendPoint                                   // History within the trend window, oldest first
	OnUpdate(func(latest Measurement, trend []TrendPoint)) // Register callback for updates
}

// Meter implements HarmonicMeter.
// The producer keeps at most one undelivered record, so every poll drains the channel and
// only the newest record is processed.
type Meter struct {
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest Measurement
	have   bool
	trend  []TrendPoint
	count  uint64

	callbacks []func(latest Measurement, trend []TrendPoint)
	cbMu      sync.RWMutex

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a new HarmonicMeter instance.
func New(cfg *config.Config) *Meter {
	if cfg == nil {
		cfg = config.Default()
	}
	interval := cfg.Host.PollInterval
	if interval <= 0 {
		interval = config.Default().Host.PollInterval
	}

	return &Meter{
		interval: interval,
		window:   cfg.Host.TrendWindow,
		now:      time.Now,
		trend:    make([]TrendPoint, 0),
	}
}

// ProcessRecords polls input every poll interval until it is closed.
// When the input channel closes, it sets shutdown flag to prevent further callbacks.
func (m *Meter) ProcessRecords(input <-chan record.Record) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for range ticker.C {
		rec, ok, closed := drain(input)
		if ok {
			m.processRecord(rec)
		}
		if closed {
			break
		}
	}

	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// drain takes every record currently buffered in input and returns the newest.
func drain(input <-chan record.Record) (latest record.Record, ok, closed bool) {
	for {
		select {
		case rec, open := <-input:
			if !open {
				return latest, ok, true
			}
			latest, ok = rec, true
		default:
			return latest, ok, false
		}
	}
}

// processRecord stores rec as the latest measurement and extends the trend.
func (m *Meter) processRecord(rec record.Record) {
	now := m.now()
	f1 := rec.Fundamental()

	m.mu.Lock()
	m.latest = Measurement{
		Received: now,
		Record:   rec,
		Orders:   rec.Orders(),
	}
	m.have = true
	m.count++

	m.trend = append(m.trend, TrendPoint{
		Time: now,
		F1:   f1.Frequency,
		RMS:  rec.RMS,
		THD:  rec.THD,
	})
	if m.window > 0 {
		cutoff := now.Add(-m.window)
		i := 0
		for i < len(m.trend) && !m.trend[i].Time.After(cutoff) {
			i++
		}
		m.trend = m.trend[i:]
	}

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// Latest returns the most recent measurement and whether there is one.
func (m *Meter) Latest() (Measurement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.have
}

// Count returns the number of processed records.
func (m *Meter) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Trend returns a copy of the metric history.
func (m *Meter) Trend() []TrendPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]TrendPoint, len(m.trend))
	copy(result, m.trend)
	return result
}

// Preview returns the latest samples reduced to at most maxPoints for display.
func (m *Meter) Preview(maxPoints int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.have {
		return nil
	}
	return sample.Decimate(nil, m.latest.Record.Samples, maxPoints)
}

// OnUpdate registers a callback function that will be called when a new record was processed.
// The callback should copy data quickly and return as fast as possible.
func (m *Meter) OnUpdate(callback func(latest Measurement, trend []TrendPoint)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before consuming a new link.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with current data.
func (m *Meter) notifyCallbacks() {
	latest, _ := m.Latest()
	trend := m.Trend()

	m.cbMu.RLock()
	callbacks := make([]func(latest Measurement, trend []TrendPoint), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(latest, trend)
		}
	}
}
