// Package buffer provides a ring buffer for caching recent event frames.
package buffer

import (
	"sync"
)

// FrameRing is a thread-safe circular buffer holding the most recent
// frames up to a fixed count. When the ring is full, the oldest frame
// is discarded to make room.
//
// It caches encoded event frames per session so WebSocket subscribers
// can receive recent history when they connect.
type FrameRing struct {
	frames   [][]byte
	capacity int
	mu       sync.RWMutex
}

// NewFrameRing creates a FrameRing holding up to capacity frames.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewFrameRing(capacity int) *FrameRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameRing{
		frames:   make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a frame to the ring, discarding the oldest frame if the
// ring is full. The frame is copied, so the caller may reuse p.
func (r *FrameRing) Append(p []byte) {
	frame := make([]byte, len(p))
	copy(frame, p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) < r.capacity {
		r.frames = append(r.frames, frame)
		return
	}

	copy(r.frames, r.frames[1:])
	r.frames[len(r.frames)-1] = frame
}

// Snapshot returns a copy of the buffered frames, oldest first.
// The returned slice is safe to use without holding the lock.
func (r *FrameRing) Snapshot() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.frames) == 0 {
		return nil
	}

	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

// Cap returns the maximum number of frames the ring holds.
func (r *FrameRing) Cap() int {
	return r.capacity
}

// Len returns the number of buffered frames.
func (r *FrameRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// Clear removes all frames from the ring.
func (r *FrameRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = r.frames[:0]
}
