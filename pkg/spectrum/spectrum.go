// Package spectrum derives the harmonic content, RMS and THD of a sampled waveform.
//
// Every function is pure: inputs are never modified and no state is shared between calls.
package spectrum

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/itohio/gothd/pkg/record"
)

const (
	// PeakThreshold is the fraction of the spectrum maximum a peak must exceed.
	PeakThreshold = 0.01
	// MaxOrder is the highest harmonic order that is classified.
	MaxOrder = record.MaxHarmonics
	// OrderTolerance is the allowed deviation from n*f1, as a fraction of f1.
	OrderTolerance = 0.10
	// Epsilon guards the THD denominator when no fundamental was found.
	Epsilon = 1e-12
)

// Peak is a local maximum of the amplitude spectrum.
type Peak struct {
	Frequency float64 // Hz
	Amplitude float64 // V
}

// Harmonic is a peak with its inferred order relative to the fundamental (1 = fundamental).
type Harmonic struct {
	Order int
	Peak
}

// Spectrum is the single-sided amplitude spectrum of a window.
type Spectrum struct {
	Frequencies []float64 // Hz, bin k at k*rate/N
	Amplitudes  []float64 // V
}

// Analysis holds every intermediate result of Run.
type Analysis struct {
	Spectrum    Spectrum
	Peaks       []Peak     // Descending amplitude
	Fundamental Peak       // Zero when no peak was found
	Harmonics   []Harmonic // Ascending order, at most MaxOrder entries
	RMS         float64    // V, of the mean-removed signal
	THD         float64    // %
}

// Analyze runs the analysis and packs the result into a record carrying a copy of samples.
func Analyze(samples []float64, rate uint32) record.Record {
	a := Run(samples, rate)

	rec := record.Record{
		Rate:      rate,
		Samples:   append([]float64(nil), samples...),
		Harmonics: make([]record.Harmonic, len(a.Harmonics)),
		RMS:       a.RMS,
		THD:       a.THD,
	}
	for i, h := range a.Harmonics {
		rec.Harmonics[i] = record.Harmonic{Frequency: h.Frequency, Amplitude: h.Amplitude}
	}
	return rec
}

// Run performs the full analysis of samples taken at rate Hz.
func Run(samples []float64, rate uint32) Analysis {
	ac := RemoveMean(samples)
	spec := AmplitudeSpectrum(ac, rate)
	peaks := PickPeaks(spec, PeakThreshold)

	var f1 Peak
	if len(peaks) > 0 {
		f1 = peaks[0]
	}
	harmonics := Classify(peaks, f1.Frequency)

	return Analysis{
		Spectrum:    spec,
		Peaks:       peaks,
		Fundamental: f1,
		Harmonics:   harmonics,
		RMS:         RMS(ac),
		THD:         THD(harmonics, f1.Amplitude),
	}
}

// RemoveMean returns samples with their mean subtracted.
func RemoveMean(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	copy(out, samples)
	floats.AddConst(-stat.Mean(samples, nil), out)
	return out
}

// Hann returns the symmetric Hann window of length n and its amplitude correction factor,
// 1/mean(window).
func Hann(n int) ([]float64, float64) {
	if n < 2 {
		w := make([]float64, n)
		floats.AddConst(1, w)
		return w, 1
	}
	w := window.Hann(n)
	mean := stat.Mean(w, nil)
	if mean == 0 {
		return w, 0
	}
	return w, 1 / mean
}

// AmplitudeSpectrum windows x and returns the amplitudes of the first N/2 bins.
func AmplitudeSpectrum(x []float64, rate uint32) Spectrum {
	n := len(x)
	half := n / 2
	spec := Spectrum{
		Frequencies: make([]float64, half),
		Amplitudes:  make([]float64, half),
	}
	if half == 0 {
		return spec
	}

	w, correction := Hann(n)
	windowed := make([]float64, n)
	floats.MulTo(windowed, x, w)

	bins := fft.FFTReal(windowed)
	scale := correction * 2 / float64(n)
	for k := range half {
		spec.Frequencies[k] = float64(k) * float64(rate) / float64(n)
		spec.Amplitudes[k] = scale * cmplx.Abs(bins[k])
	}
	return spec
}

// PickPeaks returns the strict local maxima above threshold*max(amplitude), sorted by
// descending amplitude. Equal amplitudes keep ascending frequency order.
func PickPeaks(s Spectrum, threshold float64) []Peak {
	amps := s.Amplitudes
	if len(amps) < 3 {
		return nil
	}
	limit := threshold * floats.Max(amps)

	var peaks []Peak
	for i := 1; i < len(amps)-1; i++ {
		if amps[i] > amps[i-1] && amps[i] > amps[i+1] && amps[i] > limit {
			peaks = append(peaks, Peak{Frequency: s.Frequencies[i], Amplitude: amps[i]})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Amplitude > peaks[j].Amplitude
	})
	return peaks
}

// Classify assigns harmonic orders relative to f1. Peaks are visited in the given order;
// those with order in [1, MaxOrder] within OrderTolerance*f1 of n*f1 are kept, stably
// sorted by order and capped at MaxOrder entries. More than one peak may share an order.
func Classify(peaks []Peak, f1 float64) []Harmonic {
	if f1 <= 0 {
		return nil
	}

	var out []Harmonic
	for _, p := range peaks {
		n := int(math.Round(p.Frequency / f1))
		if n < 1 || n > MaxOrder {
			continue
		}
		if math.Abs(p.Frequency-float64(n)*f1) > OrderTolerance*f1 {
			continue
		}
		out = append(out, Harmonic{Order: n, Peak: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	if len(out) > MaxOrder {
		out = out[:MaxOrder]
	}
	return out
}

// RMS returns the root-mean-square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// THD returns the total harmonic distortion in percent. The first entry of harmonics is
// taken as the fundamental and skipped; a1 is the fundamental amplitude.
func THD(harmonics []Harmonic, a1 float64) float64 {
	if len(harmonics) < 2 {
		return 0
	}
	var sum float64
	for _, h := range harmonics[1:] {
		sum += h.Amplitude * h.Amplitude
	}
	return 100 * math.Sqrt(sum) / (a1 + Epsilon)
}
