package synth

import "time"

// RampDuration is the length of the fade applied when playback starts or stops.
const RampDuration = 10 * time.Millisecond

// Direction of a Ramp.
type Direction int

const (
	// Fade from silence to full gain
	In Direction = iota
	// Fade from full gain to silence
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return "unknown"
	}
}

// RampSamples returns the number of samples RampDuration spans at sampleRate.
func RampSamples(sampleRate float64) int {
	return int(sampleRate * RampDuration.Seconds())
}

// Ramp is a linear fade-in/fade-out envelope that continues across block
// boundaries.
//
// Invariant: 0 <= Position <= TotalSamples. Once Position reaches TotalSamples
// the ramp is inactive, and the settled gain (1.0 for In, 0.0 for Out) applies.
//
// Starting a new ramp always restarts from Position 0, regardless of the gain
// the previous ramp had reached. Interrupting a fade-out with a fade-in (or the
// reverse) therefore produces a small step in gain.
type Ramp struct {
	Active       bool
	Direction    Direction
	Position     int
	TotalSamples int
}

// Reset arms the ramp in the given direction from position zero.
func (r *Ramp) Reset(direction Direction, totalSamples int) {
	r.Active = true
	r.Direction = direction
	r.Position = 0
	r.TotalSamples = max(totalSamples, 0)
}

// Apply multiplies each frame of left and right by the ramp gain, advancing
// Position by one per frame until TotalSamples is reached.
//
// Returns true if the ramp completed during this call, in which case the ramp
// is now inactive. An inactive ramp leaves the block untouched and returns false.
func (r *Ramp) Apply(left, right []float32) (completed bool) {
	if !r.Active {
		return false
	}

	n := min(len(left), len(right))
	for i := range n {
		var gain float32
		if r.Position < r.TotalSamples {
			r.Position += 1
			gain = r.gainAt(r.Position)
		} else {
			gain = r.settledGain()
		}
		left[i] *= gain
		right[i] *= gain
	}

	if r.Position >= r.TotalSamples {
		r.Active = false
		return true
	}
	return false
}

// Gain after `position` ramp samples have been consumed, so that the final ramp
// sample lands exactly on 1.0 (In) or 0.0 (Out). The first sample is therefore
// 1/total (In) or (total-1)/total (Out) rather than the endpoint itself.
func (r *Ramp) gainAt(position int) float32 {
	if r.Direction == In {
		return float32(float64(position) / float64(r.TotalSamples))
	}
	return float32(float64(r.TotalSamples-position) / float64(r.TotalSamples))
}

func (r *Ramp) settledGain() float32 {
	if r.Direction == In {
		return 1.0
	}
	return 0.0
}
