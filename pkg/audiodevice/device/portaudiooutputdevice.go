package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// PortAudioOutputStream plays audio to the default output device using PortAudio.
// It implements the OutputStream interface.
//
// PortAudio must be initialized (portaudio.Initialize) before a stream is created,
// and stay initialized until the stream is closed.
type PortAudioOutputStream struct {
	logger *slog.Logger
	uuid   uuid.UUID

	stream          *portaudio.Stream
	sampleRate      int
	numChannels     int
	framesPerBuffer int
	callback        audiodevice.BlockCallback
	started         bool

	shutdownOnce sync.Once
	closeErr     error
}

// NewPortAudioOutputStream opens (but does not start) a stream on the default output device.
// sampleRate and numChannels define the audio format, always float32 interleaved.
// framesPerBuffer fixes the size of each block handed to callback (typically 512 or 1024).
func NewPortAudioOutputStream(
	sampleRate int,
	numChannels int,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (*PortAudioOutputStream, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"portaudio output stream uuid", uuid,
	)

	d := &PortAudioOutputStream{
		logger:          logger,
		uuid:            uuid,
		sampleRate:      sampleRate,
		numChannels:     numChannels,
		framesPerBuffer: framesPerBuffer,
		callback:        callback,
	}

	stream, err := portaudio.OpenDefaultStream(0, numChannels, float64(sampleRate), framesPerBuffer, d.processAudio)
	if err != nil {
		logger.Error("failed to open audio stream", "err", err)
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	d.stream = stream

	logger.Debug(
		"opened portaudio output stream",
		"sampleRate", sampleRate,
		"channels", numChannels,
		"framesPerBuffer", framesPerBuffer,
	)
	return d, nil
}

// Invoked by PortAudio on its real-time thread.
func (d *PortAudioOutputStream) processAudio(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags&portaudio.OutputUnderflow != 0 {
		d.logger.Warn("output underflow detected")
	}
	d.callback(frame.PCMFrame(out))
}

func (d *PortAudioOutputStream) Start() error {
	if err := d.stream.Start(); err != nil {
		d.logger.Error("failed to start audio stream", "err", err)
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	d.started = true
	d.logger.Info("portaudio output stream started successfully")
	return nil
}

// Close stops the audio stream and releases the device.
// PortAudio guarantees the callback has returned once Stop returns.
func (d *PortAudioOutputStream) Close() error {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		var stopErr error
		if d.started {
			stopErr = d.stream.Stop()
			if stopErr != nil {
				d.logger.Error("error stopping audio stream", "err", stopErr)
			}
		}
		closeErr := d.stream.Close()
		if closeErr != nil {
			d.logger.Error("error closing audio stream", "err", closeErr)
		}
		d.closeErr = errors.Join(stopErr, closeErr)
		d.logger.Info("portaudio output stream closed")
	})
	return d.closeErr
}

// GetDeviceProperties returns the audio properties (sample rate, channels) of this device.
func (d *PortAudioOutputStream) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  d.sampleRate,
		NumChannels: d.numChannels,
	}
}
