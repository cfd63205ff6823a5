package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/synth"
	"github.com/google/uuid"
)

const (
	// Frames per block requested from the output device
	BlockSize = 1024

	NumChannels = 2

	// Fixed gain applied to both channels after the envelope
	MasterGain = 0.3

	// Bound on queued state notifications; transitions are human paced
	notificationBufferSize = 64
)

var errEngineClosed = errors.New("engine closed")

// Commands posted by the control side and consumed by the callback at the
// start of the next block.
type rampCommand int32

const (
	commandNone rampCommand = iota
	commandRampIn
	commandRampOut
)

// A channel that is always closed, returned by RequestStop when already stopped
var closedChannel = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Signals between the callback of one stream and its monitor goroutine.
type session struct {
	// Capacity one: a pending signal coalesces with a new one, and the
	// monitor re-reads engine state on every wake-up.
	rampInDone  chan struct{}
	rampOutDone chan struct{}

	// Closed once the stream has been closed and the engine is Stopped
	stopped chan struct{}
}

func newSession() *session {
	return &session{
		rampInDone:  make(chan struct{}, 1),
		rampOutDone: make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}
}

// Never blocks, so it is safe inside the callback.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Engine owns the output stream and drives a binaural signal into it.
//
// The control side (Start, RequestStop, Stop, the frequency setters) and the
// device callback never share a lock. The control side posts parameters
// (frequencies, ramp commands) through atomics; the callback reads them at the
// start of each block. The oscillators and the ramp belong to the callback
// while a stream is open and to the control side otherwise.
//
// State change listeners are invoked, in transition order, from a dedicated
// goroutine: never from the callback, and never with engine locks held.
type Engine struct {
	logger *slog.Logger
	uuid   uuid.UUID

	api         audioapi.AudioIODeviceAPI
	properties  audiodevice.DeviceProperties
	rampSamples int
	mix         *MixBuffer

	// --------------------------------------------------------------------------------
	// Shared between the control side and the callback

	carrierBits atomic.Uint64
	beatBits    atomic.Uint64
	command     atomic.Int32
	state       atomic.Int32

	// Set by the callback once a fade-out has reached silence, cleared by a fade-in.
	// While set the callback emits silence without generating.
	drained atomic.Bool

	// --------------------------------------------------------------------------------
	// Control side

	// Serializes transitions and guards stream, session and closed.
	// Never taken by the callback.
	mutex   sync.Mutex
	stream  audiodevice.OutputStream
	session *session
	closed  bool

	notifications  chan State
	dispatcherDone chan struct{}
	listenersMutex sync.Mutex
	listeners      []func(State)

	// --------------------------------------------------------------------------------
	// Callback owned while a stream is open

	osc   synth.OscillatorPair
	ramp  synth.Ramp
	left  []float32
	right []float32
	mono  []float32
}

// Create a new Engine that opens its streams through api at sampleRate.
// carrierHz and beatHz are the initial frequencies; callers are expected to
// clamp them to the supported ranges.
func NewEngine(api audioapi.AudioIODeviceAPI, sampleRate int, carrierHz, beatHz float64) *Engine {
	uuid := uuid.New()
	logger := slog.Default().With(
		"engine uuid", uuid,
	)

	e := &Engine{
		logger: logger,
		uuid:   uuid,
		api:    api,
		properties: audiodevice.DeviceProperties{
			SampleRate:  sampleRate,
			NumChannels: NumChannels,
		},
		rampSamples:    synth.RampSamples(float64(sampleRate)),
		mix:            NewMixBuffer(BlockSize),
		notifications:  make(chan State, notificationBufferSize),
		dispatcherDone: make(chan struct{}),
		left:           make([]float32, BlockSize),
		right:          make([]float32, BlockSize),
		mono:           make([]float32, BlockSize),
	}
	e.SetCarrierFrequency(carrierHz)
	e.SetBeatFrequency(beatHz)

	logger.Debug("created engine",
		"sampleRate", sampleRate,
		"blockSize", BlockSize,
		"rampSamples", e.rampSamples,
	)

	go e.dispatch()
	return e
}

// --------------------------------------------------------------------------------
// Parameters

// SetCarrierFrequency takes effect at the next block boundary.
func (e *Engine) SetCarrierFrequency(hz float64) {
	e.carrierBits.Store(math.Float64bits(hz))
}

// SetBeatFrequency takes effect at the next block boundary.
func (e *Engine) SetBeatFrequency(hz float64) {
	e.beatBits.Store(math.Float64bits(hz))
}

func (e *Engine) CarrierFrequency() float64 {
	return math.Float64frombits(e.carrierBits.Load())
}

func (e *Engine) BeatFrequency() float64 {
	return math.Float64frombits(e.beatBits.Load())
}

// Frequencies returns the effective frequency of each channel for display:
// left is the carrier, right is the carrier plus the beat.
func (e *Engine) Frequencies() (left, right float64) {
	carrierHz := e.CarrierFrequency()
	return carrierHz, carrierHz + e.BeatFrequency()
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) GetDeviceProperties() audiodevice.DeviceProperties {
	return e.properties
}

// The latest mono mix, for visualization
func (e *Engine) MixBuffer() *MixBuffer {
	return e.mix
}

// OnStateChange registers f to be called on every state transition.
func (e *Engine) OnStateChange(f func(State)) {
	e.listenersMutex.Lock()
	defer e.listenersMutex.Unlock()
	e.listeners = append(e.listeners, f)
}

// --------------------------------------------------------------------------------
// Lifecycle

// Start playback.
//
// From Stopped this opens and starts a new stream with phases reset and a
// fade-in armed. If the device cannot be opened or started the error is
// returned and the engine remains Stopped.
// From Stopping the stream is still open, so the fade-in is restarted on it.
// Starting or Running: no-op.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return errEngineClosed
	}

	switch e.State() {
	case Starting, Running:
		return nil
	case Stopping:
		e.command.Store(int32(commandRampIn))
		e.setStateLocked(Starting)
		return nil
	}

	e.osc.ResetPhase()
	e.ramp.Reset(synth.In, e.rampSamples)
	e.drained.Store(false)
	e.command.Store(int32(commandNone))

	sess := newSession()
	stream, err := e.api.OpenOutputStream(e.properties, BlockSize, func(out frame.PCMFrame) {
		e.processBlock(sess, out)
	})
	if err != nil {
		e.logger.Error("could not open output stream", "err", err)
		return fmt.Errorf("could not open output stream: %w", err)
	}

	// Set before starting: the callback may finish the fade-in before Start returns
	e.state.Store(int32(Starting))
	if err := stream.Start(); err != nil {
		e.state.Store(int32(Stopped))
		e.logger.Error("could not start output stream", "err", err)
		return fmt.Errorf("could not start output stream: %w", errors.Join(err, stream.Close()))
	}

	e.stream = stream
	e.session = sess
	e.notifyLocked(Starting)
	e.logger.Info("playback started",
		"carrierHz", e.CarrierFrequency(),
		"beatHz", e.BeatFrequency(),
	)

	go e.monitor(sess)
	return nil
}

// RequestStop begins a fade-out and returns immediately. The returned channel
// is closed once the fade-out has completed and the stream is closed.
// Stopping or Stopped: no new fade-out is started.
func (e *Engine) RequestStop() <-chan struct{} {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	switch e.State() {
	case Stopped:
		return closedChannel
	case Stopping:
		return e.session.stopped
	}

	e.command.Store(int32(commandRampOut))
	e.setStateLocked(Stopping)
	return e.session.stopped
}

// Stop begins a fade-out and waits until the stream is closed or ctx is done.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-e.RequestStop():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle stops playback if it is Starting or Running, and starts it otherwise.
func (e *Engine) Toggle(ctx context.Context) error {
	if e.State().Playing() {
		return e.Stop(ctx)
	}
	return e.Start()
}

// Close stops playback (waiting for the fade-out) and releases the engine.
//
// If ctx is done before the fade-out completes, the stream is closed
// immediately and ctx's error is returned.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Stop(ctx)
	if err != nil {
		e.logger.Warn("fade-out did not complete before shutdown, closing stream", "err", err)
		e.forceStop()
	}

	e.mutex.Lock()
	alreadyClosed := e.closed
	if !alreadyClosed {
		e.closed = true
		close(e.notifications)
	}
	e.mutex.Unlock()

	if !alreadyClosed {
		<-e.dispatcherDone
		e.logger.Debug("engine closed")
	}
	return err
}

// --------------------------------------------------------------------------------
// Control side internals

func (e *Engine) setStateLocked(state State) {
	e.state.Store(int32(state))
	e.notifyLocked(state)
}

func (e *Engine) notifyLocked(state State) {
	if e.closed {
		return
	}
	e.notifications <- state
}

func (e *Engine) dispatch() {
	defer close(e.dispatcherDone)
	for state := range e.notifications {
		e.listenersMutex.Lock()
		listeners := slices.Clone(e.listeners)
		e.listenersMutex.Unlock()

		for _, f := range listeners {
			f(state)
		}
	}
}

// Watch the callback's signals for one stream until that stream is torn down.
func (e *Engine) monitor(sess *session) {
	for {
		select {
		case <-sess.rampInDone:
			e.mutex.Lock()
			if e.session == sess && e.State() == Running {
				e.notifyLocked(Running)
			}
			e.mutex.Unlock()
		case <-sess.rampOutDone:
			if e.finishStop(sess) {
				return
			}
		case <-sess.stopped:
			return
		}
	}
}

// Close the stream if the fade-out really has completed.
// Returns true once the session is over.
func (e *Engine) finishStop(sess *session) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.session != sess {
		return true
	}
	// A fade-in may have been requested after the fade-out completed
	if e.State() != Stopping || !e.drained.Load() {
		return false
	}
	e.teardownLocked()
	return true
}

func (e *Engine) forceStop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.stream != nil {
		e.teardownLocked()
	}
}

// Close the stream and return to Stopped. Once the stream is closed the
// callback no longer runs, so its state may be reset here.
func (e *Engine) teardownLocked() {
	if err := e.stream.Close(); err != nil {
		e.logger.Error("error while closing output stream", "err", err)
	}
	e.stream = nil

	e.osc.ResetPhase()
	e.ramp = synth.Ramp{}
	e.drained.Store(false)
	e.command.Store(int32(commandNone))

	close(e.session.stopped)
	e.session = nil
	e.setStateLocked(Stopped)
	e.logger.Info("playback stopped")
}

// --------------------------------------------------------------------------------
// Callback

// processBlock is the BlockCallback of every stream opened by the engine.
//
// It must not block or allocate. Any fault is contained: the block is
// replaced with silence and the error logged, the stream keeps running.
func (e *Engine) processBlock(sess *session, out frame.PCMFrame) {
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			e.logger.Error("fault in audio callback, emitting silence", "panic", r)
		}
	}()

	switch rampCommand(e.command.Swap(int32(commandNone))) {
	case commandRampIn:
		e.ramp.Reset(synth.In, e.rampSamples)
		e.drained.Store(false)
	case commandRampOut:
		if e.drained.Load() {
			// Already silent, nothing left to fade
			signal(sess.rampOutDone)
		} else {
			e.ramp.Reset(synth.Out, e.rampSamples)
		}
	}

	if e.drained.Load() {
		clear(out)
		return
	}

	frames := len(out) / NumChannels
	if len(out)%NumChannels != 0 || frames > len(e.left) {
		clear(out)
		e.logger.Error("output buffer does not hold whole stereo frames within a block, emitting silence",
			"samples", len(out),
			"blockSize", BlockSize,
		)
		return
	}
	left, right := e.left[:frames], e.right[:frames]

	e.osc.CarrierHz = e.CarrierFrequency()
	e.osc.BeatHz = e.BeatFrequency()
	e.osc.Generate(left, right, float64(e.properties.SampleRate))

	if e.ramp.Apply(left, right) {
		switch e.ramp.Direction {
		case synth.In:
			if e.state.CompareAndSwap(int32(Starting), int32(Running)) {
				signal(sess.rampInDone)
			}
		case synth.Out:
			e.drained.Store(true)
			signal(sess.rampOutDone)
		}
	}

	for i := range frames {
		left[i] *= MasterGain
		right[i] *= MasterGain
	}
	frame.Interleave(out, left, right)
	e.mix.Publish(frame.Downmix(e.mono, left, right))
}
