package audioapi

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice/device"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

// An API backed by oto. oto allows a single context per process, and the
// context fixes the sample rate and channel count, so the context is created
// by the first OpenOutputStream and every later stream must use the same format.
//
// oto cannot query hardware, so DefaultOutputDevice always fails and the
// caller falls back to a configured or default sample rate.
type OtoAPI struct {
	logger *slog.Logger

	mutex      sync.Mutex
	ctx        *oto.Context
	properties audiodevice.DeviceProperties
}

func NewOtoAPI() *OtoAPI {
	uuid := uuid.New()
	logger := slog.Default().With(
		"oto api uuid", uuid,
	)
	return &OtoAPI{
		logger: logger,
	}
}

func (api *OtoAPI) OutputDevices() []AudioIODevice {
	return nil
}

func (api *OtoAPI) DefaultOutputDevice() (AudioIODevice, error) {
	return AudioIODevice{}, errDeviceQueryUnsupported
}

func (api *OtoAPI) context(properties audiodevice.DeviceProperties, framesPerBuffer int) (*oto.Context, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()

	if api.ctx != nil {
		if properties != api.properties {
			return nil, fmt.Errorf("oto context already created with %+v, cannot open stream with %+v", api.properties, properties)
		}
		return api.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   properties.SampleRate,
		ChannelCount: properties.NumChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(framesPerBuffer) * time.Second / time.Duration(properties.SampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		api.logger.Error("failed to create oto context", "err", err)
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	api.logger.Debug("created oto context",
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
	)
	api.ctx = ctx
	api.properties = properties
	return ctx, nil
}

func (api *OtoAPI) OpenOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (audiodevice.OutputStream, error) {
	ctx, err := api.context(properties, framesPerBuffer)
	if err != nil {
		return nil, err
	}
	return device.NewOtoOutputStream(ctx, properties, framesPerBuffer, callback), nil
}

// oto contexts cannot be destroyed; suspending releases the device.
func (api *OtoAPI) Terminate() error {
	api.mutex.Lock()
	defer api.mutex.Unlock()

	if api.ctx == nil {
		return nil
	}
	if err := api.ctx.Suspend(); err != nil {
		api.logger.Error("failed to suspend oto context", "err", err)
		return fmt.Errorf("failed to suspend oto context: %w", err)
	}
	return nil
}
