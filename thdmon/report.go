package main

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/itohio/gothd/pkg/meter"
	"github.com/itohio/gothd/pkg/sample"
)

type reportOptions struct {
	previewWidth int
	trend        bool
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// formatMeasurement renders one measurement as a summary line followed by one line per
// harmonic entry.
func formatMeasurement(m meter.Measurement, trend []meter.TrendPoint, opts reportOptions) string {
	rec := m.Record
	f1 := rec.Fundamental()

	var b strings.Builder
	fmt.Fprintf(&b, "%s  fs=%d Hz  n=%d  f1=%.2f Hz  rms=%.4f V  thd=%.2f %%",
		m.Received.Format("15:04:05.000"), rec.Rate, rec.SampleCount(), f1.Frequency, rec.RMS, rec.THD)

	lo, hi := sample.Bounds(rec.Samples)
	fmt.Fprintf(&b, "  pk-pk=%.3f V", hi-lo)

	if opts.trend && len(trend) > 0 {
		thd := make([]float64, len(trend))
		rms := make([]float64, len(trend))
		for i, p := range trend {
			thd[i] = p.THD
			rms[i] = p.RMS
		}
		fmt.Fprintf(&b, "  avg(%d): rms=%.4f V thd=%.2f %%", len(trend), stat.Mean(rms, nil), stat.Mean(thd, nil))
	}

	for i, h := range rec.Harmonics {
		order := 0
		if i < len(m.Orders) {
			order = m.Orders[i]
		}
		rel := 0.0
		if f1.Amplitude > 0 {
			rel = 100 * h.Amplitude / f1.Amplitude
		}
		fmt.Fprintf(&b, "\n  H%-2d %10.2f Hz %9.4f V %7.2f %%", order, h.Frequency, h.Amplitude, rel)
	}

	if line := sparkline(rec.Samples, opts.previewWidth); line != "" {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}

// sparkline draws samples decimated to width characters, scaled between their bounds.
func sparkline(samples []float64, width int) string {
	points := sample.Decimate(nil, samples, width)
	if len(points) == 0 {
		return ""
	}
	lo, hi := sample.Bounds(points)
	span := hi - lo

	out := make([]rune, len(points))
	for i, v := range points {
		level := 0
		if span > 0 {
			level = int((v - lo) / span * float64(len(sparkLevels)-1))
		}
		out[i] = sparkLevels[level]
	}
	return string(out)
}
