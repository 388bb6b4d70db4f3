package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Fundamental(t *testing.T) {
	assert.Equal(t, Harmonic{}, Record{}.Fundamental())

	rec := Record{Harmonics: []Harmonic{{Frequency: 50, Amplitude: 1}, {Frequency: 150, Amplitude: 0.3}}}
	assert.Equal(t, Harmonic{Frequency: 50, Amplitude: 1}, rec.Fundamental())
}

func TestRecord_Orders(t *testing.T) {
	tests := []struct {
		name      string
		harmonics []Harmonic
		want      []int
	}{
		{"none", nil, []int{}},
		{"fundamental only", []Harmonic{{50, 1}}, []int{1}},
		{"odd harmonics", []Harmonic{{50, 1}, {151, 0.3}, {249, 0.1}}, []int{1, 3, 5}},
		{"side peak", []Harmonic{{50, 1}, {47, 0.5}, {100, 0.1}}, []int{1, 1, 2}},
		{"no fundamental frequency", []Harmonic{{0, 1}, {100, 0.1}}, []int{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Record{Harmonics: tt.harmonics}.Orders())
		})
	}
}

func TestRecord_SampleCountAndDuration(t *testing.T) {
	rec := Record{Rate: 1024, Samples: make([]float64, 512)}
	assert.Equal(t, 512, rec.SampleCount())
	assert.InDelta(t, 0.5, rec.Duration(), 1e-12)

	assert.Zero(t, Record{Samples: make([]float64, 10)}.Duration())
}
