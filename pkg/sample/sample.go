package sample

import (
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

const (
	// DefaultVRef is the ADC reference voltage (V).
	DefaultVRef = 3.3
	// DefaultMidpoint is the DC bias of the conditioned input, VCC/2 (V).
	DefaultMidpoint = 1.65
	// adcFullScale is the maximum value returned by a 16-bit normalized ADC read.
	adcFullScale = 65535.0
)

// Source delivers one normalized voltage reading per call.
type Source interface {
	Read() float64
}

// ADC is the subset of a hardware ADC used for sampling.
// machine.ADC satisfies it on TinyGo targets.
type ADC interface {
	Get() uint16
}

// ADCSource converts raw ADC reads to volts.
type ADCSource struct {
	ADC  ADC
	VRef float64
}

var _ Source = (*ADCSource)(nil)

// Read returns the current input voltage.
func (s *ADCSource) Read() float64 {
	return adcToVoltage(s.ADC.Get(), s.VRef)
}

// adcToVoltage converts a 16-bit normalized ADC reading to voltage.
func adcToVoltage(adc uint16, vref float64) float64 {
	return (float64(adc) / adcFullScale) * vref
}

// Buffer is a fixed-capacity sample buffer filled in acquisition order.
// It supports exactly one writer; readers must observe Full (or Len) before reading Values.
type Buffer struct {
	data []float64
	n    atomic.Int32
}

// NewBuffer allocates a buffer holding up to capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]float64, capacity)}
}

// Append stores v and reports whether the buffer is full afterwards.
// Values appended to a full buffer are dropped.
func (b *Buffer) Append(v float64) bool {
	i := int(b.n.Load())
	if i >= len(b.data) {
		return true
	}
	b.data[i] = v
	b.n.Store(int32(i + 1))
	return i+1 >= len(b.data)
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int {
	return int(b.n.Load())
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Full reports whether the buffer holds Cap samples.
func (b *Buffer) Full() bool {
	return b.Len() >= len(b.data)
}

// Values returns the stored samples. The slice aliases the buffer.
func (b *Buffer) Values() []float64 {
	return b.data[:b.Len()]
}

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() {
	b.n.Store(0)
}

// CenterOnMidpoint subtracts the fixed input bias from every sample, producing the
// AC-centered samples that are transmitted. It is independent of the analyzer's mean removal.
func CenterOnMidpoint(samples []float64, midpoint float64) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v - midpoint
	}
	return out
}

// Tone is one sinusoidal component of a Waveform.
type Tone struct {
	Frequency float64 // Hz
	Amplitude float64 // V peak
	Phase     float64 // rad
}

// Waveform is a synthetic periodic signal riding on a DC offset.
type Waveform struct {
	Offset float64 // V
	Tones  []Tone
	Noise  float64 // V, uniform peak

	start time.Time
	rng   *rand.Rand
}

var _ Source = (*Waveform)(nil)

// NewWaveform creates a waveform whose time origin is now.
func NewWaveform(offset, noise float64, tones ...Tone) *Waveform {
	return &Waveform{
		Offset: offset,
		Tones:  tones,
		Noise:  noise,
		start:  time.Now(),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// At returns the noiseless signal value at t seconds.
func (w *Waveform) At(t float64) float64 {
	v := w.Offset
	for _, tone := range w.Tones {
		v += tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*t+tone.Phase)
	}
	return v
}

// Read samples the waveform at the current wall-clock time, clipped to the ADC range.
func (w *Waveform) Read() float64 {
	v := w.At(time.Since(w.start).Seconds())
	if w.Noise > 0 && w.rng != nil {
		v += (w.rng.Float64()*2 - 1) * w.Noise
	}
	return math.Max(0, math.Min(v, DefaultVRef))
}
