package synth

import "math"

const TwoPi = 2 * math.Pi

// OscillatorPair is a stateful pair of sine oscillators producing a binaural
// signal: the left channel plays the carrier, the right channel plays the
// carrier plus the beat frequency.
//
// Phases are kept in radians and wrapped to [0, 2π) after every block so that
// long runs do not lose precision to an ever growing accumulator.
type OscillatorPair struct {
	CarrierHz float64
	BeatHz    float64

	PhaseLeft  float64
	PhaseRight float64
}

// Generate fills left and right with one block of samples and advances both
// phases by 2π·f·n/sampleRate, where n = min(len(left), len(right)).
//
// The frequencies are read once when the call starts and used for the whole
// block. Generate does no I/O and does not allocate, so it is safe to call from
// an audio callback.
func (o *OscillatorPair) Generate(left, right []float32, sampleRate float64) {
	leftStep := TwoPi * o.CarrierHz / sampleRate
	rightStep := TwoPi * o.RightFrequency() / sampleRate
	n := min(len(left), len(right))

	for i := range n {
		left[i] = float32(math.Sin(o.PhaseLeft + leftStep*float64(i)))
		right[i] = float32(math.Sin(o.PhaseRight + rightStep*float64(i)))
	}

	o.PhaseLeft = WrapPhase(o.PhaseLeft + leftStep*float64(n))
	o.PhaseRight = WrapPhase(o.PhaseRight + rightStep*float64(n))
}

// RightFrequency is the effective frequency of the right channel.
func (o *OscillatorPair) RightFrequency() float64 {
	return o.CarrierHz + o.BeatHz
}

// ResetPhase zeroes both phases. Frequencies are left untouched.
func (o *OscillatorPair) ResetPhase() {
	o.PhaseLeft = 0
	o.PhaseRight = 0
}

// WrapPhase maps any finite phase into [0, 2π).
func WrapPhase(phase float64) float64 {
	phase = math.Mod(phase, TwoPi)
	if phase < 0 {
		phase += TwoPi
	}
	// -tiny + 2π rounds to exactly 2π
	if phase >= TwoPi {
		phase = 0
	}
	return phase
}
