package audio

// Resample converts samples from one rate to another by linear
// interpolation. Equal rates return the input unchanged.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		src := float64(i) * ratio
		idx := int(src)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(src - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	return out
}
