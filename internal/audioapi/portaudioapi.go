package audioapi

import (
	"fmt"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice/device"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

type PortAudioAPI struct {
	logger *slog.Logger
}

// Initialize PortAudio. Terminate must be called once all streams are closed.
func NewPortAudioAPI() (*PortAudioAPI, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"portaudio api uuid", uuid,
	)

	if err := portaudio.Initialize(); err != nil {
		logger.Error("failed to initialize portaudio", "err", err)
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	logger.Debug("initialized portaudio", "version", portaudio.VersionText())

	return &PortAudioAPI{
		logger: logger,
	}, nil
}

func toAudioIODevice(d *portaudio.DeviceInfo) AudioIODevice {
	return AudioIODevice{
		ID:   d.Index,
		Name: d.Name,
		DeviceProperties: audiodevice.DeviceProperties{
			SampleRate:  int(d.DefaultSampleRate),
			NumChannels: d.MaxOutputChannels,
		},
	}
}

// Filters PortAudio devices to get only output
func (api *PortAudioAPI) OutputDevices() []AudioIODevice {
	devices, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to list devices", "err", err)
		return nil
	}

	outputDevices := make([]AudioIODevice, 0)
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			outputDevices = append(outputDevices, toAudioIODevice(d))
		}
	}
	return outputDevices
}

// The default output device as reported by PortAudio or, if there is none,
// the first device with output channels.
func (api *PortAudioAPI) DefaultOutputDevice() (AudioIODevice, error) {
	d, err := portaudio.DefaultOutputDevice()
	if err == nil && d != nil {
		return toAudioIODevice(d), nil
	}
	api.logger.Debug("no default output device, searching for any output device", "err", err)

	outputDevices := api.OutputDevices()
	if len(outputDevices) == 0 {
		return AudioIODevice{}, errNoDefaultDevice
	}
	return outputDevices[0], nil
}

func (api *PortAudioAPI) OpenOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (audiodevice.OutputStream, error) {
	stream, err := device.NewPortAudioOutputStream(properties.SampleRate, properties.NumChannels, framesPerBuffer, callback)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (api *PortAudioAPI) Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		api.logger.Error("failed to terminate portaudio", "err", err)
		return fmt.Errorf("failed to terminate portaudio: %w", err)
	}
	return nil
}
