package sample

// Decimate reduces samples to at most maxPoints values for display.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// If len(samples) <= maxPoints, all samples are copied.
func Decimate(dst []float64, samples []float64, maxPoints int) []float64 {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(samples) <= maxPoints {
		if cap(dst) >= len(samples) {
			dst = dst[:len(samples)]
			copy(dst, samples)
			return dst
		}
		result := make([]float64, len(samples))
		copy(result, samples)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	step := float64(len(samples)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(samples) {
			dst = append(dst, samples[idx])
		}
	}

	return dst
}

// Bounds returns the minimum and maximum of samples, or zeros when empty.
func Bounds(samples []float64) (lo, hi float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi = samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
