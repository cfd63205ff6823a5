package audioapi

import (
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice/device"
)

// An API whose single output device renders to a .WAV file as fast as blocks
// can be produced. Used for offline rendering.
//
// Every stream opened by this API writes (and truncates) the same file.
type FileAudioIODeviceAPI struct {
	audioFilePath  string
	fileProperties audiodevice.DeviceProperties

	framesRendered atomic.Int64
}

// fileProperties is the format stored in the file. Streams may be opened with
// other properties; blocks are converted before writing.
func NewFileAudioIODeviceAPI(audioFilePath string, fileProperties audiodevice.DeviceProperties) *FileAudioIODeviceAPI {
	return &FileAudioIODeviceAPI{
		audioFilePath:  audioFilePath,
		fileProperties: fileProperties,
	}
}

func (api *FileAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:               0,
			Name:             api.audioFilePath,
			DeviceProperties: api.fileProperties,
		},
	}
}

func (api *FileAudioIODeviceAPI) DefaultOutputDevice() (AudioIODevice, error) {
	return api.OutputDevices()[0], nil
}

func (api *FileAudioIODeviceAPI) OpenOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (audiodevice.OutputStream, error) {
	api.framesRendered.Store(0)
	stream, err := device.NewFileOutputStream(
		api.audioFilePath,
		properties,
		api.fileProperties,
		framesPerBuffer,
		callback,
		func(frames int) { api.framesRendered.Add(int64(frames)) },
	)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// The number of frames (at the stream's sample rate) rendered by the most
// recently opened stream.
func (api *FileAudioIODeviceAPI) FramesRendered() int64 {
	return api.framesRendered.Load()
}

func (api *FileAudioIODeviceAPI) Terminate() error {
	return nil
}
