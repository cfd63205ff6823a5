package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/synth"
	"github.com/go-audio/wav"
)

const testSampleRate = 48000

// --------------------------------------------------------------------------------
// A stream whose callback is only invoked when the test pulls a block

type manualStream struct {
	mutex    sync.Mutex
	callback audiodevice.BlockCallback
	started  bool
	closed   bool
	startErr error
}

func (s *manualStream) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

// Holding the mutex across the callback means Close waits for an in-flight block,
// as real devices do.
func (s *manualStream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

func (s *manualStream) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{SampleRate: testSampleRate, NumChannels: NumChannels}
}

func (s *manualStream) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// Pull one block of the given number of frames. Returns nil if the stream is
// not running.
func (s *manualStream) pull(frames int) frame.PCMFrame {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started || s.closed {
		return nil
	}
	out := make(frame.PCMFrame, frames*NumChannels)
	s.callback(out)
	return out
}

type manualAPI struct {
	audioapi.DummyAudioIODeviceAPI

	mutex    sync.Mutex
	streams  []*manualStream
	openErr  error
	startErr error
}

func (api *manualAPI) OpenOutputStream(
	properties audiodevice.DeviceProperties,
	framesPerBuffer int,
	callback audiodevice.BlockCallback,
) (audiodevice.OutputStream, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	if api.openErr != nil {
		return nil, api.openErr
	}
	stream := &manualStream{callback: callback, startErr: api.startErr}
	api.streams = append(api.streams, stream)
	return stream, nil
}

func (api *manualAPI) numStreams() int {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return len(api.streams)
}

func (api *manualAPI) last() *manualStream {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return api.streams[len(api.streams)-1]
}

func newTestEngine(t *testing.T) (*Engine, *manualAPI) {
	t.Helper()
	api := &manualAPI{}
	e := NewEngine(api, testSampleRate, 100, 4)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		e.Close(ctx)
	})
	return e, api
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the engine to stop")
	}
}

// Deinterleave an output block into left and right
func channels(out frame.PCMFrame) (left, right []float32) {
	for i := 0; i+1 < len(out); i += 2 {
		left = append(left, out[i])
		right = append(right, out[i+1])
	}
	return left, right
}

// --------------------------------------------------------------------------------
// Tests

func TestStartIsIdempotent(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if got := api.numStreams(); got != 1 {
		t.Errorf("opened %d streams, want 1", got)
	}
	if got := e.State(); got != Starting {
		t.Errorf("state = %v, want %v", got, Starting)
	}
}

func TestFadeInReachesRunning(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out := api.last().pull(BlockSize)

	if got := e.State(); got != Running {
		t.Fatalf("state = %v after one block, want %v", got, Running)
	}

	left, _ := channels(out)
	rampSamples := synth.RampSamples(testSampleRate)
	if left[0] != 0 {
		t.Errorf("first sample = %v, want 0", left[0])
	}
	// Past the ramp the left channel is the bare carrier at master gain
	i := rampSamples + 10
	want := MasterGain * math.Sin(synth.TwoPi*100*float64(i)/testSampleRate)
	if math.Abs(float64(left[i])-want) > 1e-5 {
		t.Errorf("left[%d] = %v, want %v", i, left[i], want)
	}
	for j, s := range out {
		if math.Abs(float64(s)) > MasterGain+1e-6 {
			t.Fatalf("sample %d = %v exceeds master gain", j, s)
		}
	}
}

func TestStateNotifications(t *testing.T) {
	e, api := newTestEngine(t)

	states := make(chan State, 16)
	e.OnStateChange(func(s State) { states <- s })

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()
	stream.pull(BlockSize)

	// Wait until Running has been announced before stopping, so the order is fixed
	expect := func(want State) {
		t.Helper()
		select {
		case got := <-states:
			if got != want {
				t.Fatalf("notification = %v, want %v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}
	expect(Starting)
	expect(Running)

	stopped := e.RequestStop()
	stream.pull(BlockSize)
	waitClosed(t, stopped)

	expect(Stopping)
	expect(Stopped)
}

func TestImmediateStopClosesStream(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()
	stopped := e.RequestStop()

	if got := e.State(); got != Stopping {
		t.Fatalf("state = %v, want %v", got, Stopping)
	}

	out := stream.pull(BlockSize)
	left, _ := channels(out)
	rampSamples := synth.RampSamples(testSampleRate)
	for i := rampSamples; i < len(left); i++ {
		if left[i] != 0 {
			t.Fatalf("left[%d] = %v after the fade-out, want silence", i, left[i])
		}
	}

	waitClosed(t, stopped)
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
	if !stream.isClosed() {
		t.Error("stream not closed after stop")
	}
	if e.osc.PhaseLeft != 0 || e.osc.PhaseRight != 0 {
		t.Errorf("phases = (%v, %v) after stop, want 0", e.osc.PhaseLeft, e.osc.PhaseRight)
	}
}

func TestRequestStopWhenStopped(t *testing.T) {
	e, _ := newTestEngine(t)

	select {
	case <-e.RequestStop():
	default:
		t.Fatal("RequestStop on a stopped engine should return a closed channel")
	}
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
}

func TestFrequencyChangeAppliesAtNextBlock(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()
	stream.pull(BlockSize)

	e.SetBeatFrequency(7)
	left, right := e.Frequencies()
	if left != 100 || right != 107 {
		t.Fatalf("Frequencies() = (%v, %v), want (100, 107)", left, right)
	}

	phaseRight := e.osc.PhaseRight
	out := stream.pull(BlockSize)
	_, r := channels(out)

	step := synth.TwoPi * 107 / testSampleRate
	for _, i := range []int{0, 1, 500} {
		want := MasterGain * math.Sin(phaseRight+step*float64(i))
		if math.Abs(float64(r[i])-want) > 1e-5 {
			t.Errorf("right[%d] = %v, want %v", i, r[i], want)
		}
	}
}

func TestBlockBoundaryContinuity(t *testing.T) {
	e, api := newTestEngine(t)
	e.SetCarrierFrequency(440)
	e.SetBeatFrequency(10)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()
	stream.pull(BlockSize)

	first := stream.pull(BlockSize)
	second := stream.pull(BlockSize)
	l1, r1 := channels(first)
	l2, r2 := channels(second)

	maxStep := MasterGain*synth.TwoPi*450/testSampleRate + 1e-5
	if d := math.Abs(float64(l2[0] - l1[len(l1)-1])); d > maxStep {
		t.Errorf("left discontinuity %v > %v", d, maxStep)
	}
	if d := math.Abs(float64(r2[0] - r1[len(r1)-1])); d > maxStep {
		t.Errorf("right discontinuity %v > %v", d, maxStep)
	}
}

func TestMixBufferReceivesDownmix(t *testing.T) {
	e, api := newTestEngine(t)

	if _, ok := e.MixBuffer().Snapshot(nil); ok {
		t.Fatal("mix buffer written before playback")
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out := api.last().pull(BlockSize)
	left, right := channels(out)

	mix, ok := e.MixBuffer().Snapshot(nil)
	if !ok {
		t.Fatal("mix buffer not written after a block")
	}
	if len(mix) != BlockSize {
		t.Fatalf("len(mix) = %d, want %d", len(mix), BlockSize)
	}
	for i := range mix {
		want := (left[i] + right[i]) / 2
		if math.Abs(float64(mix[i]-want)) > 1e-6 {
			t.Fatalf("mix[%d] = %v, want %v", i, mix[i], want)
		}
	}
}

func TestMalformedBlockIsSilent(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()

	out := stream.pull(2 * BlockSize)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence for an oversized block", i, s)
		}
	}

	// The stream keeps running
	stream.pull(BlockSize)
	if got := e.State(); got != Running {
		t.Errorf("state = %v, want %v", got, Running)
	}
}

func TestCallbackPanicIsSilent(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()

	mix := e.mix
	e.mix = nil
	out := stream.pull(BlockSize)
	e.mix = mix

	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence after a fault", i, s)
		}
	}
	if stream.isClosed() {
		t.Error("stream closed after a callback fault")
	}
}

func TestRestartDuringFadeOut(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()
	stream.pull(BlockSize)

	e.RequestStop()
	// Less than a ramp: the fade-out is still in progress
	stream.pull(100)
	if got := e.State(); got != Stopping {
		t.Fatalf("state = %v, want %v", got, Stopping)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start during fade-out: %v", err)
	}
	if got := e.State(); got != Starting {
		t.Fatalf("state = %v, want %v", got, Starting)
	}

	// The fade-in restarts from zero gain
	out := stream.pull(100)
	left, _ := channels(out)
	rampSamples := synth.RampSamples(testSampleRate)
	if limit := MasterGain / float64(rampSamples); math.Abs(float64(left[0])) > limit+1e-6 {
		t.Errorf("|left[0]| = %v, want <= %v", math.Abs(float64(left[0])), limit)
	}

	stream.pull(BlockSize)
	if got := e.State(); got != Running {
		t.Errorf("state = %v, want %v", got, Running)
	}
	if got := api.numStreams(); got != 1 {
		t.Errorf("opened %d streams, want 1", got)
	}
	if stream.isClosed() {
		t.Error("stream closed by an interrupted fade-out")
	}
}

func TestStopWaitsForFadeOut(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			stream.pull(BlockSize)
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Toggle while Starting or Running stops, and waits for Stopped
	if err := e.Toggle(ctx); err != nil {
		t.Fatalf("Toggle (stop): %v", err)
	}
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
	if !stream.isClosed() {
		t.Error("stream not closed after stop")
	}

	if err := e.Toggle(ctx); err != nil {
		t.Fatalf("Toggle (start): %v", err)
	}
	if got := e.State(); got != Starting {
		t.Errorf("state = %v, want %v", got, Starting)
	}
	if got := api.numStreams(); got != 2 {
		t.Errorf("opened %d streams, want 2", got)
	}
}

func TestStartAfterStopOpensNewStream(t *testing.T) {
	e, api := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := api.last()
	first.pull(BlockSize)
	stopped := e.RequestStop()
	first.pull(BlockSize)
	waitClosed(t, stopped)

	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := api.numStreams(); got != 2 {
		t.Fatalf("opened %d streams, want 2", got)
	}

	// Phases were reset, so the new stream begins at zero
	out := api.last().pull(BlockSize)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("first frame = (%v, %v), want (0, 0)", out[0], out[1])
	}
}

func TestOpenFailureLeavesStopped(t *testing.T) {
	openErr := errors.New("no such device")
	api := &manualAPI{openErr: openErr}
	e := NewEngine(api, testSampleRate, 100, 4)
	defer e.Close(context.Background())

	err := e.Start()
	if !errors.Is(err, openErr) {
		t.Fatalf("Start error = %v, want %v", err, openErr)
	}
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
}

func TestStartFailureClosesStream(t *testing.T) {
	startErr := errors.New("device busy")
	api := &manualAPI{startErr: startErr}
	e := NewEngine(api, testSampleRate, 100, 4)
	defer e.Close(context.Background())

	err := e.Start()
	if !errors.Is(err, startErr) {
		t.Fatalf("Start error = %v, want %v", err, startErr)
	}
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
	if !api.last().isClosed() {
		t.Error("stream not closed after a failed start")
	}
}

func TestCloseForcesStopOnTimeout(t *testing.T) {
	api := &manualAPI{}
	e := NewEngine(api, testSampleRate, 100, 4)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := api.last()

	// No blocks are pulled, so the fade-out never completes
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := e.Close(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close error = %v, want %v", err, context.DeadlineExceeded)
	}
	if !stream.isClosed() {
		t.Error("stream not closed by Close")
	}
	if got := e.State(); got != Stopped {
		t.Errorf("state = %v, want %v", got, Stopped)
	}
	if err := e.Start(); !errors.Is(err, errEngineClosed) {
		t.Errorf("Start after Close = %v, want %v", err, errEngineClosed)
	}
}

func TestRenderThroughFileAPI(t *testing.T) {
	path := t.TempDir() + "/render.wav"
	api := audioapi.NewFileAudioIODeviceAPI(path, audiodevice.DeviceProperties{
		SampleRate:  testSampleRate,
		NumChannels: NumChannels,
	})
	e := NewEngine(api, testSampleRate, 100, 4)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for api.FramesRendered() < testSampleRate/10 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the render")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if got := buf.Format.SampleRate; got != testSampleRate {
		t.Errorf("sample rate = %d, want %d", got, testSampleRate)
	}
	if got := buf.NumFrames(); got < testSampleRate/10 {
		t.Errorf("rendered %d frames, want at least %d", got, testSampleRate/10)
	}
	// Fade-in from silence
	if buf.Data[0] != 0 || buf.Data[1] != 0 {
		t.Errorf("first frame = (%d, %d), want silence", buf.Data[0], buf.Data[1])
	}
}
