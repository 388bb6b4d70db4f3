package record

import "math"

// MaxHarmonics is the largest number of harmonic entries a record carries.
const MaxHarmonics = 10

// Harmonic is one spectral line of a measurement.
type Harmonic struct {
	Frequency float64 // Hz
	Amplitude float64 // V
}

// Record is one measurement: the transmitted samples and the metrics derived from them.
// A Record is built once and never mutated afterwards; consumers own the slices they receive.
type Record struct {
	Rate      uint32     // Sampling rate (Hz)
	Samples   []float64  // AC-centered samples (V)
	Harmonics []Harmonic // Ascending by harmonic order, fundamental first
	RMS       float64    // V
	THD       float64    // %
}

// SampleCount returns the number of samples in the record.
func (r Record) SampleCount() int {
	return len(r.Samples)
}

// Fundamental returns the first harmonic entry, or a zero Harmonic if there is none.
func (r Record) Fundamental() Harmonic {
	if len(r.Harmonics) == 0 {
		return Harmonic{}
	}
	return r.Harmonics[0]
}

// Orders recovers the harmonic order of each entry relative to the fundamental.
func (r Record) Orders() []int {
	f1 := r.Fundamental().Frequency
	orders := make([]int, len(r.Harmonics))
	if f1 <= 0 {
		return orders
	}
	for i, h := range r.Harmonics {
		orders[i] = int(math.Round(h.Frequency / f1))
	}
	return orders
}

// Duration returns the time span covered by the samples in seconds.
func (r Record) Duration() float64 {
	if r.Rate == 0 {
		return 0
	}
	return float64(len(r.Samples)) / float64(r.Rate)
}
