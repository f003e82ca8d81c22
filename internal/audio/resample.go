package audio

// Quality selects the resampler kernel.
type Quality int

const (
	// QualityLow is plain linear interpolation.
	QualityLow Quality = iota
	// QualityHigh low-pass averages neighboring input samples before
	// interpolating, reducing aliasing on downsampling ratios >= 2.
	QualityHigh
)

// Downmix folds interleaved multi-channel s16 PCM to mono by averaging.
func Downmix(in []int16, channels int) []int16 {
	if channels <= 1 {
		return in
	}
	out := make([]int16, len(in)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(in[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Resample converts mono s16 PCM from srcRate to dstRate.
func Resample(in []int16, srcRate, dstRate int, q Quality) []int16 {
	if srcRate == dstRate || len(in) == 0 {
		return in
	}
	src := in
	if q == QualityHigh && srcRate > dstRate {
		src = smooth(in, srcRate/dstRate)
	}
	outLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, outLen)
	for i := range out {
		// fixed-point source position: i * srcRate / dstRate
		num := int64(i) * int64(srcRate)
		j := int(num / int64(dstRate))
		frac := num % int64(dstRate)
		a := src[j]
		b := a
		if j+1 < len(src) {
			b = src[j+1]
		}
		out[i] = int16(int64(a) + (int64(b)-int64(a))*frac/int64(dstRate))
	}
	return out
}

// smooth applies a centered moving average of the given span.
func smooth(in []int16, span int) []int16 {
	if span < 2 {
		return in
	}
	out := make([]int16, len(in))
	half := span / 2
	for i := range in {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(in) {
			hi = len(in) - 1
		}
		var sum int
		for j := lo; j <= hi; j++ {
			sum += int(in[j])
		}
		out[i] = int16(sum / (hi - lo + 1))
	}
	return out
}
