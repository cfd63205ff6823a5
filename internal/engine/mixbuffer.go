package engine

import "sync"

// MixBuffer holds the most recently generated mono block for visualization.
//
// It is a single-slot latest-value channel, not a queue: each Publish replaces
// the previous block. There is one writer (the audio callback) and one reader
// (the visualization sampler). Both sides only hold the lock for a copy of
// one block, so the writer's critical section is bounded.
type MixBuffer struct {
	mutex   sync.Mutex
	samples []float32
	written bool
}

// Create a MixBuffer for blocks of up to capacity samples.
// Storage is allocated once so Publish never allocates.
func NewMixBuffer(capacity int) *MixBuffer {
	return &MixBuffer{
		samples: make([]float32, 0, capacity),
	}
}

// Publish replaces the stored block with a copy of block.
// Samples beyond the buffer's capacity are dropped.
func (b *MixBuffer) Publish(block []float32) {
	b.mutex.Lock()
	n := copy(b.samples[:cap(b.samples)], block)
	b.samples = b.samples[:n]
	b.written = true
	b.mutex.Unlock()
}

// Snapshot copies the latest block into dst (reusing its storage when large
// enough) and returns it.
//
// ok is false if nothing has been published yet.
func (b *MixBuffer) Snapshot(dst []float32) (snapshot []float32, ok bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.written {
		return dst[:0], false
	}
	return append(dst[:0], b.samples...), true
}
