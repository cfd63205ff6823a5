package audioapi

import (
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice/device"
)

// A dummy API that lists only one output device, which pulls blocks at the
// real-time cadence and discards them.
//
// This API is intended for testing and for running without a sound card.
type DummyAudioIODeviceAPI struct {
	properties audiodevice.DeviceProperties
}

func NewDummyAudioIODeviceAPI(properties audiodevice.DeviceProperties) DummyAudioIODeviceAPI {
	return DummyAudioIODeviceAPI{
		properties: properties,
	}
}

func (api DummyAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:               0,
			Name:             "DummyOutput",
			DeviceProperties: api.properties,
		},
	}
}

func (api DummyAudioIODeviceAPI) DefaultOutputDevice() (AudioIODevice, error) {
	return api.OutputDevices()[0], nil
}

func (api DummyAudioIODeviceAPI) OpenOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (audiodevice.OutputStream, error) {
	return device.NewDummyOutputStream(properties, framesPerBuffer, callback), nil
}

func (api DummyAudioIODeviceAPI) Terminate() error {
	return nil
}
