package device

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

const bytesPerFloat32 = 4

// OtoOutputStream plays audio through an oto context.
// It implements the OutputStream interface.
//
// oto pulls bytes through io.Reader in whatever chunk size suits its mixer,
// so the stream keeps one pending block of framesPerBuffer frames and only
// invokes the callback once that block has been fully handed over.
// The callback therefore always sees fixed-size blocks.
type OtoOutputStream struct {
	logger *slog.Logger
	uuid   uuid.UUID

	player          *oto.Player
	properties      audiodevice.DeviceProperties
	framesPerBuffer int
	callback        audiodevice.BlockCallback

	// Guards the block and closed flag against Close racing the player's Read.
	// Only held for the duration of one Read.
	mutex   sync.Mutex
	block   frame.PCMFrame
	pending []byte
	encoded []byte
	closed  bool

	shutdownOnce sync.Once
	closeErr     error
}

// NewOtoOutputStream creates a player on ctx. The context fixes the sample rate
// and channel count, which must agree with properties, and must use oto.FormatFloat32LE.
func NewOtoOutputStream(
	ctx *oto.Context,
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) *OtoOutputStream {
	uuid := uuid.New()
	logger := slog.Default().With(
		"oto output stream uuid", uuid,
	)

	samplesPerBlock := framesPerBuffer * properties.NumChannels
	d := &OtoOutputStream{
		logger:          logger,
		uuid:            uuid,
		properties:      properties,
		framesPerBuffer: framesPerBuffer,
		callback:        callback,
		block:           make(frame.PCMFrame, samplesPerBlock),
		encoded:         make([]byte, samplesPerBlock*bytesPerFloat32),
	}
	d.player = ctx.NewPlayer(d)
	// Keep the player's own buffering to a single block so latency matches a
	// callback device with the same block size.
	d.player.SetBufferSize(samplesPerBlock * bytesPerFloat32)

	logger.Debug(
		"created oto output stream",
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
		"framesPerBuffer", framesPerBuffer,
	)
	return d
}

// Read implements io.Reader for the oto player.
func (d *OtoOutputStream) Read(p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		if len(d.pending) == 0 {
			d.callback(d.block)
			for i, sample := range d.block {
				binary.LittleEndian.PutUint32(d.encoded[i*bytesPerFloat32:], math.Float32bits(sample))
			}
			d.pending = d.encoded
		}
		copied := copy(p[n:], d.pending)
		d.pending = d.pending[copied:]
		n += copied
	}
	return n, nil
}

func (d *OtoOutputStream) Start() error {
	d.mutex.Lock()
	closed := d.closed
	d.mutex.Unlock()
	if closed {
		return errStreamClosed
	}

	d.player.Play()
	d.logger.Info("oto output stream started successfully")
	return nil
}

// Close stops the player. Once the mutex is released here no Read can invoke
// the callback again.
func (d *OtoOutputStream) Close() error {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		d.mutex.Lock()
		d.closed = true
		d.mutex.Unlock()

		d.player.Pause()
		d.closeErr = d.player.Close()
		if d.closeErr != nil {
			d.logger.Error("error closing oto player", "err", d.closeErr)
		}
		d.logger.Info("oto output stream closed")
	})
	return d.closeErr
}

func (d *OtoOutputStream) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}
