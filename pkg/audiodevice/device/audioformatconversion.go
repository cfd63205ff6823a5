package device

import (
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

// FormatConverter converts interleaved blocks from a source format to a sink
// format: channel count (mono <-> stereo) and sample rate.
//
// Conversion buffers are allocated once, sized for blocks of up to
// maxSourceFrames frames. The returned frames alias those buffers and are only
// valid until the next call to Convert.
//
// A FormatConverter holds resampler state between calls and is not safe for
// concurrent use.
type FormatConverter struct {
	sourceProperties audiodevice.DeviceProperties
	sinkProperties   audiodevice.DeviceProperties

	// The functions to apply, in order, when converting source data to the sink format
	conversionFunctions []formatConversionFunction
}

// Create a new FormatConverter from the source properties (the format of the
// blocks handed to Convert) to the sink properties (the format returned).
// Only mono and stereo are supported.
func NewFormatConverter(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
	maxSourceFrames int,
) *FormatConverter {
	conversionFunctions := make([]formatConversionFunction, 0)

	// Channel conversion happens before resampling so the resampler
	// processes the sink channel count.
	if sourceProperties.NumChannels == 1 && sinkProperties.NumChannels == 2 {
		slog.Debug("adding mono to stereo")
		conversionFunctions = append(conversionFunctions, monoToStereo(maxSourceFrames))
	}
	if sourceProperties.NumChannels == 2 && sinkProperties.NumChannels == 1 {
		slog.Debug("adding stereo to mono")
		conversionFunctions = append(conversionFunctions, stereoToMono(maxSourceFrames))
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		slog.Debug("adding resampler",
			"sourceSampleRate", sourceProperties.SampleRate,
			"sinkSampleRate", sinkProperties.SampleRate,
		)
		conversionFunctions = append(conversionFunctions, newResampleFunction(sourceProperties, sinkProperties, maxSourceFrames))
	}

	return &FormatConverter{
		sourceProperties:    sourceProperties,
		sinkProperties:      sinkProperties,
		conversionFunctions: conversionFunctions,
	}
}

// Convert one block from the source format to the sink format.
// When the formats match the block is returned unchanged.
func (c *FormatConverter) Convert(sourceFrame frame.PCMFrame) frame.PCMFrame {
	for _, f := range c.conversionFunctions {
		sourceFrame = f(sourceFrame)
	}
	return sourceFrame
}

// IsIdentity reports whether Convert passes blocks through untouched.
func (c *FormatConverter) IsIdentity() bool {
	return len(c.conversionFunctions) == 0
}

func (c *FormatConverter) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return c.sourceProperties
}

func (c *FormatConverter) GetDeviceProperties() audiodevice.DeviceProperties {
	return c.sinkProperties
}

// --------------------------------------------------------------------------------

type formatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func monoToStereo(maxFrames int) formatConversionFunction {
	buf := make(frame.PCMFrame, 2*maxFrames)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		return frame.Interleave(buf, sourceFrame, sourceFrame)
	}
}

func stereoToMono(maxFrames int) formatConversionFunction {
	left := make([]float32, maxFrames)
	right := make([]float32, maxFrames)
	buf := make([]float32, maxFrames)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := deinterleave(sourceFrame, left, right)
		return frame.Downmix(buf, left[:n], right[:n])
	}
}

// Split interleaved stereo into left and right, dropping a trailing odd sample.
// Returns the number of frames written.
func deinterleave(sourceFrame frame.PCMFrame, left, right []float32) int {
	n := min(len(sourceFrame)/2, len(left), len(right))
	for i := range n {
		left[i] = sourceFrame[2*i]
		right[i] = sourceFrame[2*i+1]
	}
	return n
}

func newResampleFunction(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
	maxSourceFrames int,
) formatConversionFunction {
	// Worst case output length for one block, with headroom for the filter tail
	maxSinkFrames := maxSourceFrames*sinkProperties.SampleRate/sourceProperties.SampleRate + resampleQuality*4

	if sinkProperties.NumChannels == 1 {
		r := resampler.New(1, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)
		buf := make(frame.PCMFrame, maxSinkFrames)
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			_, written := r.ProcessFloat32(0, sourceFrame, buf)
			return buf[:written]
		}
	}

	r := resampler.New(2, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)
	leftSource := make([]float32, maxSourceFrames)
	rightSource := make([]float32, maxSourceFrames)
	leftSink := make([]float32, maxSinkFrames)
	rightSink := make([]float32, maxSinkFrames)
	buf := make(frame.PCMFrame, 2*maxSinkFrames)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := deinterleave(sourceFrame, leftSource, rightSource)
		_, written := r.ProcessFloat32(0, leftSource[:n], leftSink)
		r.ProcessFloat32(1, rightSource[:n], rightSink)
		return frame.Interleave(buf, leftSink[:written], rightSink[:written])
	}
}
