package visualizer

import "errors"

var (
	errEmptyInput    = errors.New("cannot resample an empty sequence")
	errInvalidLength = errors.New("target length must be positive")
)

// Resample stretches or compresses in to exactly n samples by linear
// interpolation.
//
// Output sample i is taken at source position i*(M-1)/(N-1), so the first and
// last samples of in are always preserved. When M == N the result is a copy of
// in; when N == 1 it is in[0]; when M == 1 every output sample is in[0].
func Resample(in []float32, n int) ([]float32, error) {
	m := len(in)
	if m == 0 {
		return nil, errEmptyInput
	}
	if n <= 0 {
		return nil, errInvalidLength
	}

	out := make([]float32, n)
	switch {
	case m == n:
		copy(out, in)
		return out, nil
	case n == 1 || m == 1:
		for i := range out {
			out[i] = in[0]
		}
		return out, nil
	}

	for i := range out {
		position := float64(i*(m-1)) / float64(n-1)
		index := int(position)
		if index >= m-1 {
			out[i] = in[m-1]
			continue
		}
		frac := float32(position - float64(index))
		out[i] = in[index] + (in[index+1]-in[index])*frac
	}
	return out, nil
}
