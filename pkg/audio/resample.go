package audio

// ResampleMono resamples mono float32 samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate (or either rate is invalid),
// the input is returned unchanged. Browser capture contexts commonly run at
// 44.1 or 48 kHz, while the model expects 16 kHz input.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dst := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	out := make([]float32, dst)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// DownmixStereo averages interleaved stereo float32 samples into mono.
// A dangling final sample (malformed interleaving) is dropped.
func DownmixStereo(samples []float32) []float32 {
	frames := len(samples) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}
