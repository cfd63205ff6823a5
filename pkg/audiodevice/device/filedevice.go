package device

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const wavBitDepth = 16

// --------------------------------------------------------------------------------
// FileOutputStream

// Define an OutputStream that pulls blocks from its callback as fast as they can
// be encoded and writes them to a 16-bit .WAV file.
//
// Blocks are produced at the stream's properties and, if the file properties
// differ (sample rate or channel count), converted by a FormatConverter before
// being written. Note the resulting file is only valid once the stream is closed.
type FileOutputStream struct {
	logger *slog.Logger
	uuid   uuid.UUID

	properties      audiodevice.DeviceProperties
	framesPerBuffer int
	callback        audiodevice.BlockCallback
	converter       *FormatConverter

	// Invoked after every written block with the number of source frames rendered
	onRendered func(frames int)

	encoder    *wav.Encoder
	fileHandle *os.File

	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	startOnce     sync.Once
	shutdownOnce  sync.Once
	closeWg       sync.WaitGroup
	closeErr      error
}

// Create a new FileOutputStream writing to audioFilePath.
//
// properties is the format the callback produces, fileProperties the format
// stored in the file. onRendered may be nil.
func NewFileOutputStream(
	audioFilePath string,
	properties audiodevice.DeviceProperties,
	fileProperties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
	onRendered func(frames int),
) (*FileOutputStream, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file output stream uuid", uuid,
	)

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, fileProperties.SampleRate, wavBitDepth, fileProperties.NumChannels, 1)

	logger.Debug(
		"created audio file",
		"audioFile", audioFilePath,
		"sampleRate", encoder.SampleRate,
		"channels", encoder.NumChans,
	)

	if onRendered == nil {
		onRendered = func(int) {}
	}
	converter := NewFormatConverter(properties, fileProperties, framesPerBuffer)
	if !converter.IsIdentity() {
		logger.Debug(
			"converting blocks before writing",
			"from", converter.GetSourceDeviceProperties(),
			"to", converter.GetDeviceProperties(),
		)
	}

	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &FileOutputStream{
		logger:          logger,
		uuid:            uuid,
		properties:      properties,
		framesPerBuffer: framesPerBuffer,
		callback:        callback,
		converter:       converter,
		onRendered:      onRendered,
		encoder:         encoder,
		fileHandle:      f,
		ctx:             ctx,
		ctxCancelFunc:   ctxCancelFunc,
	}, nil
}

func (d *FileOutputStream) Start() error {
	if d.ctx.Err() != nil {
		return errStreamClosed
	}

	d.startOnce.Do(func() {
		d.closeWg.Add(1)
		go d.render()
	})
	return nil
}

func (d *FileOutputStream) render() {
	defer d.closeWg.Done()
	const maxInt16 = float32(math.MaxInt16)

	block := make(frame.PCMFrame, d.framesPerBuffer*d.properties.NumChannels)
	fileProperties := d.converter.GetDeviceProperties()
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  fileProperties.SampleRate,
			NumChannels: fileProperties.NumChannels,
		},
		SourceBitDepth: wavBitDepth,
	}

	for d.ctx.Err() == nil {
		d.callback(block)
		converted := d.converter.Convert(block)

		if cap(buf.Data) < len(converted) {
			buf.Data = make([]int, len(converted))
		}
		buf.Data = buf.Data[:len(converted)]
		for i, sample := range converted {
			buf.Data[i] = int(max(-1, min(1, sample)) * maxInt16)
		}

		if err := d.encoder.Write(buf); err != nil {
			d.logger.Error("error while writing block to file", "err", err)
			return
		}
		d.onRendered(d.framesPerBuffer)
	}
}

// Close stops rendering and finalizes the .WAV file.
func (d *FileOutputStream) Close() error {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		d.ctxCancelFunc()
		d.closeWg.Wait()

		encoderErr := d.encoder.Close()
		syncErr := d.fileHandle.Sync()
		closeErr := d.fileHandle.Close()
		d.closeErr = errors.Join(encoderErr, syncErr, closeErr)
		if d.closeErr != nil {
			d.logger.Error("error while finalizing audio file", "err", d.closeErr)
		}
	})
	return d.closeErr
}

func (d *FileOutputStream) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}
