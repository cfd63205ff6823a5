package frame

// A PCMFrame is a block of float32 samples, nominally in [-1, 1].
//
// Multi-channel data is interleaved, i.e. for stereo audio the layout is
// [L0, R0, L1, R1, ...].
type PCMFrame []float32

// Interleave writes the planar left and right channels into dst as
// interleaved stereo. dst must hold at least 2*min(len(left), len(right)) samples.
//
// Returns the written slice of dst.
func Interleave(dst PCMFrame, left, right []float32) PCMFrame {
	n := min(len(left), len(right))
	for i := range n {
		dst[2*i] = left[i]
		dst[2*i+1] = right[i]
	}
	return dst[:2*n]
}

// Downmix writes the average of the left and right channels into dst.
// dst must hold at least min(len(left), len(right)) samples.
func Downmix(dst []float32, left, right []float32) []float32 {
	n := min(len(left), len(right))
	for i := range n {
		dst[i] = (left[i] + right[i]) / 2
	}
	return dst[:n]
}
