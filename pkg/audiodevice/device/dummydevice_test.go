package device

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/frame"
)

func TestDummyOutputStreamInvokesCallback(t *testing.T) {
	properties := audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}

	var calls atomic.Int64
	var badSize atomic.Bool
	stream := NewDummyOutputStream(properties, 64, func(out frame.PCMFrame) {
		if len(out) != 128 {
			badSize.Store(true)
		}
		calls.Add(1)
	})
	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if calls.Load() < 3 {
		t.Fatalf("callback invoked %d times, want at least 3", calls.Load())
	}
	if badSize.Load() {
		t.Errorf("callback received a block of the wrong size")
	}

	// No invocations once Close has returned
	after := calls.Load()
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("callback invoked after Close")
	}

	if err := stream.Start(); err == nil {
		t.Errorf("Start() after Close should fail")
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
