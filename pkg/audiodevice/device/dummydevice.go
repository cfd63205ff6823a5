package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
)

var errStreamClosed = errors.New("stream already closed")

// An OutputStream that pulls blocks from its callback at the real-time cadence
// of the stream (framesPerBuffer / SampleRate) and discards them.
//
// A minimal example of the architecture of an OutputStream, useful in testing
// and on machines without a sound card.
type DummyOutputStream struct {
	properties      audiodevice.DeviceProperties
	framesPerBuffer int
	callback        audiodevice.BlockCallback

	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	startOnce     sync.Once
	shutdownOnce  sync.Once
	closeWg       sync.WaitGroup
}

func NewDummyOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) *DummyOutputStream {
	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &DummyOutputStream{
		properties:      properties,
		framesPerBuffer: framesPerBuffer,
		callback:        callback,
		ctx:             ctx,
		ctxCancelFunc:   ctxCancelFunc,
	}
}

// Duration of one block at the stream's sample rate.
func (d *DummyOutputStream) blockDuration() time.Duration {
	return time.Duration(d.framesPerBuffer) * time.Second / time.Duration(d.properties.SampleRate)
}

func (d *DummyOutputStream) Start() error {
	if d.ctx.Err() != nil {
		return errStreamClosed
	}

	d.startOnce.Do(func() {
		d.closeWg.Add(1)
		go func() {
			defer d.closeWg.Done()
			buf := make(frame.PCMFrame, d.framesPerBuffer*d.properties.NumChannels)

			ticker := time.NewTicker(d.blockDuration())
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.callback(buf)
				case <-d.ctx.Done():
					return
				}
			}
		}()
	})
	return nil
}

func (d *DummyOutputStream) Close() error {
	d.shutdownOnce.Do(func() {
		d.ctxCancelFunc()
		d.closeWg.Wait()
	})
	return nil
}

func (d *DummyOutputStream) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}
