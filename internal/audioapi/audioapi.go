package audioapi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
)

// Sample rate used when the default output device cannot be queried.
const FallbackSampleRate = 48000

var (
	errNoDefaultDevice        = errors.New("no default device available")
	errDeviceQueryUnsupported = errors.New("device query not supported by this api")
	errUnknownBackend         = errors.New("unknown audio backend")
)

// Backend names accepted by NewAudioIODeviceAPI
var Backends = []string{"portaudio", "oto", "dummy"}

type AudioIODevice struct {
	// The ID of the device
	//
	// Should come from the underlying API (PortAudio),
	// But could be defined in some programmatic way by the AudioIODeviceAPI
	ID int

	// A human-readable name for the device, if one exists.
	// Not necessary, and not canonical.
	Name string

	// The native device properties (sample rate and output channels) of this device.
	DeviceProperties audiodevice.DeviceProperties
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %d\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.DeviceProperties.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.DeviceProperties.NumChannels)
	return sb.String()
}

// Define an API to interface with hardware output devices.
// Intended to be an abstract way to:
// - Query existing output devices and the default one (for sample rate detection)
// - Open an output stream driven by a BlockCallback
//
// Implementations are small wrappers around PortAudio and oto, plus a
// dummy and a file API that need no sound card.
type AudioIODeviceAPI interface {
	OutputDevices() []AudioIODevice
	DefaultOutputDevice() (AudioIODevice, error)

	// Open a stream with the given format. The stream is not started.
	OpenOutputStream(
		properties audiodevice.DeviceProperties,
		framesPerBuffer int,
		callback audiodevice.BlockCallback,
	) (audiodevice.OutputStream, error)

	// Release the API. No stream may be open.
	Terminate() error
}

// Create the AudioIODeviceAPI named by backend: "portaudio", "oto", or "dummy".
//
// sampleRate is only used by backends that cannot query the hardware (oto, dummy)
// to describe their default device; zero means FallbackSampleRate.
func NewAudioIODeviceAPI(backend string, sampleRate int) (AudioIODeviceAPI, error) {
	if sampleRate <= 0 {
		sampleRate = FallbackSampleRate
	}

	switch backend {
	case "portaudio":
		return NewPortAudioAPI()
	case "oto":
		return NewOtoAPI(), nil
	case "dummy":
		return NewDummyAudioIODeviceAPI(audiodevice.DeviceProperties{
			SampleRate:  sampleRate,
			NumChannels: 2,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, backend)
	}
}

// DetectSampleRate returns the native sample rate of the default output device.
//
// Detection failure is not fatal: a warning is logged and FallbackSampleRate is returned.
func DetectSampleRate(api AudioIODeviceAPI) int {
	device, err := api.DefaultOutputDevice()
	if err != nil {
		slog.Warn("could not autodetect sample rate, using fallback",
			"fallbackSampleRate", FallbackSampleRate,
			"err", err,
		)
		return FallbackSampleRate
	}
	if device.DeviceProperties.SampleRate <= 0 {
		slog.Warn("default output device reports no sample rate, using fallback",
			"device", device.Name,
			"fallbackSampleRate", FallbackSampleRate,
		)
		return FallbackSampleRate
	}

	slog.Debug("detected output sample rate",
		"device", device.Name,
		"sampleRate", device.DeviceProperties.SampleRate,
	)
	return device.DeviceProperties.SampleRate
}
