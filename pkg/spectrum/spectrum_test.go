package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synth(n int, rate float64, offset float64, tones ...[2]float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / rate
		v := offset
		for _, tone := range tones {
			v += tone[1] * math.Sin(2*math.Pi*tone[0]*t)
		}
		out[i] = v
	}
	return out
}

func TestAnalyze_FundamentalAndThirdHarmonic(t *testing.T) {
	samples := synth(1024, 1024, 1.65, [2]float64{50, 1}, [2]float64{150, 0.3})

	a := Run(samples, 1024)

	require.GreaterOrEqual(t, len(a.Harmonics), 2)
	assert.InDelta(t, 50, a.Fundamental.Frequency, 1)
	assert.InDelta(t, 1.0, a.Fundamental.Amplitude, 0.02)

	assert.Equal(t, 1, a.Harmonics[0].Order)
	third := a.Harmonics[1]
	assert.Equal(t, 3, third.Order)
	assert.InDelta(t, 150, third.Frequency, 1)
	assert.InDelta(t, 0.3, third.Amplitude/a.Fundamental.Amplitude, 0.01)

	assert.InDelta(t, 30, a.THD, 1)
	// sqrt((1 + 0.09) / 2)
	assert.InDelta(t, math.Sqrt(1.09/2), a.RMS, 1e-3)
}

func TestAnalyze_Record(t *testing.T) {
	samples := synth(1024, 1024, 0, [2]float64{50, 1}, [2]float64{150, 0.3})

	rec := Analyze(samples, 1024)

	assert.Equal(t, uint32(1024), rec.Rate)
	assert.Equal(t, samples, rec.Samples)
	require.GreaterOrEqual(t, len(rec.Harmonics), 2)
	assert.InDelta(t, 50, rec.Fundamental().Frequency, 1)
	assert.InDelta(t, 30, rec.THD, 1)

	rec.Samples[0] = 42
	assert.NotEqual(t, 42.0, samples[0], "record owns a copy")
}

func TestAnalyze_Degenerate(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
	}{
		{"empty", nil},
		{"single", []float64{1.2}},
		{"all zero", make([]float64, 1024)},
		{"constant", synth(512, 1024, 1.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Analyze(tt.samples, 1024)

			assert.Empty(t, rec.Harmonics)
			assert.Zero(t, rec.THD)
			assert.InDelta(t, 0, rec.RMS, 1e-12)
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	samples := synth(2048, 4000, 0.1, [2]float64{60, 0.8}, [2]float64{180, 0.1}, [2]float64{300, 0.05})
	orig := append([]float64(nil), samples...)

	first := Run(samples, 4000)
	second := Run(samples, 4000)

	assert.Equal(t, first, second)
	assert.Equal(t, orig, samples, "input is not modified")
}

func TestAnalyze_Bounds(t *testing.T) {
	tones := make([][2]float64, 0, 15)
	for k := 1; k <= 15; k++ {
		tones = append(tones, [2]float64{float64(20 * k), 1 / float64(k)})
	}
	samples := synth(4096, 4096, 0, tones...)

	a := Run(samples, 4096)

	assert.LessOrEqual(t, len(a.Harmonics), MaxOrder)
	for i, h := range a.Harmonics {
		assert.GreaterOrEqual(t, h.Order, 1)
		assert.LessOrEqual(t, h.Order, MaxOrder)
		if i > 0 {
			assert.LessOrEqual(t, a.Harmonics[i-1].Order, h.Order)
		}
	}
	assert.GreaterOrEqual(t, a.THD, 0.0)
}

func TestAmplitudeSpectrum_Bins(t *testing.T) {
	s := AmplitudeSpectrum(make([]float64, 1000), 2000)

	require.Len(t, s.Frequencies, 500)
	assert.Equal(t, 0.0, s.Frequencies[0])
	assert.Equal(t, 2.0, s.Frequencies[1])
	assert.Equal(t, 998.0, s.Frequencies[499])
}

func TestHann_Correction(t *testing.T) {
	w, corr := Hann(1024)
	require.Len(t, w, 1024)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 0, w[1023], 1e-12)
	assert.InDelta(t, 2, corr, 0.01)

	w, corr = Hann(1)
	assert.Equal(t, []float64{1}, w)
	assert.Equal(t, 1.0, corr)
}

func TestPickPeaks(t *testing.T) {
	s := Spectrum{
		Frequencies: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		Amplitudes:  []float64{0, 5, 1, 1, 1, 0.001, 0.2, 0.2, 0},
	}

	peaks := PickPeaks(s, PeakThreshold)

	// Plateaus are not strict maxima.
	require.Len(t, peaks, 1)
	assert.Equal(t, Peak{Frequency: 1, Amplitude: 5}, peaks[0])

	s.Amplitudes = []float64{0, 2, 0, 3, 0, 2, 0}
	peaks = PickPeaks(s, PeakThreshold)
	assert.Equal(t, []Peak{{3, 3}, {1, 2}, {5, 2}}, peaks, "ties keep frequency order")
}

func TestClassify(t *testing.T) {
	peaks := []Peak{
		{Frequency: 50, Amplitude: 1},
		{Frequency: 250, Amplitude: 0.2},
		{Frequency: 152, Amplitude: 0.3},
		{Frequency: 125, Amplitude: 0.25}, // 2.5*f1, outside tolerance
		{Frequency: 20, Amplitude: 0.1},   // order 0
		{Frequency: 600, Amplitude: 0.05}, // order 12
	}

	got := Classify(peaks, 50)

	assert.Equal(t, []Harmonic{
		{Order: 1, Peak: Peak{50, 1}},
		{Order: 3, Peak: Peak{152, 0.3}},
		{Order: 5, Peak: Peak{250, 0.2}},
	}, got)
	assert.Nil(t, Classify(peaks, 0))
}

func TestClassify_FundamentalNotLowest(t *testing.T) {
	peaks := []Peak{{150, 1}, {50, 0.3}}

	got := Classify(peaks, 150)

	assert.Equal(t, []Harmonic{{Order: 1, Peak: Peak{150, 1}}}, got)
	assert.Zero(t, THD(got, 1))
}

func TestClassify_Cap(t *testing.T) {
	var peaks []Peak
	for k := 1; k <= MaxOrder; k++ {
		peaks = append(peaks, Peak{Frequency: float64(10 * k), Amplitude: 1 / float64(k)})
	}
	// Second peaks near the first two orders.
	peaks = append(peaks, Peak{Frequency: 11, Amplitude: 0.01}, Peak{Frequency: 21, Amplitude: 0.01})

	got := Classify(peaks, 10)

	require.Len(t, got, MaxOrder)
	assert.Equal(t, 1, got[0].Order)
	assert.Equal(t, 1, got[1].Order)
	assert.Equal(t, 2, got[2].Order)
}

func TestTHD_SidePeakNearFundamental(t *testing.T) {
	// A second peak within tolerance of f1 is classified as order 1 and sorts after the
	// fundamental, so it is counted as distortion.
	peaks := []Peak{{50, 1}, {47, 0.5}, {100, 0.1}}

	h := Classify(peaks, 50)
	require.Len(t, h, 3)
	assert.Equal(t, []int{1, 1, 2}, []int{h[0].Order, h[1].Order, h[2].Order})
	assert.Equal(t, 50.0, h[0].Frequency)

	assert.InDelta(t, 100*math.Sqrt(0.25+0.01), THD(h, 1), 1e-9)
}

func TestTHD(t *testing.T) {
	assert.Zero(t, THD(nil, 1))
	assert.Zero(t, THD([]Harmonic{{Order: 1, Peak: Peak{50, 1}}}, 1))

	h := []Harmonic{
		{Order: 1, Peak: Peak{50, 2}},
		{Order: 2, Peak: Peak{100, 0.3}},
		{Order: 3, Peak: Peak{150, 0.4}},
	}
	assert.InDelta(t, 25, THD(h, 2), 1e-9)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 2, RMS([]float64{2, -2, 2, -2}), 1e-12)
}

func TestRemoveMean(t *testing.T) {
	in := []float64{1, 2, 3}
	out := RemoveMean(in)

	assert.InDeltaSlice(t, []float64{-1, 0, 1}, out, 1e-12)
	assert.Equal(t, []float64{1, 2, 3}, in)
	assert.Empty(t, RemoveMean(nil))
}
