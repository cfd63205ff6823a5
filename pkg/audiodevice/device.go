package audiodevice

import "github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// A BlockCallback produces one block of audio into out.
//
// out is interleaved (see frame.PCMFrame) and sized framesPerBuffer*NumChannels
// for the stream the callback was registered with. Callbacks are invoked from
// the device's real-time context: they must not block, must not panic out of
// the call, and must fill all of out (with silence if nothing else).
type BlockCallback func(out frame.PCMFrame)

// Interface for audio output streams, e.g. speakers.
//
// Output streams are pull based: the device requests a block of audio by
// invoking the registered BlockCallback, at a cadence set by the device's block
// size and sample rate.
type OutputStream interface {
	// Begin invoking the BlockCallback.
	Start() error

	// Stop the stream and release the device.
	//
	// Once Close returns the BlockCallback is not running and will not be invoked
	// again. Calling Close more than once is safe.
	Close() error

	GetDeviceProperties() DeviceProperties
}
