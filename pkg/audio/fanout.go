package audio

import "sync"

// Fanout distributes captured audio frames to multiple read-only observers.
//
// The voice activity detector and the transcriber consume the same live
// capture stream concurrently; neither may block the other, and neither may
// block the capture loop. Each subscriber therefore gets its own buffered
// channel, and a publish that would block on a full subscriber buffer drops
// the frame for that subscriber only (recorded in the drop counter).
//
// All methods are safe for concurrent use.
type Fanout struct {
	mu      sync.Mutex
	subs    []chan Frame
	paused  bool
	closed  bool
	dropped uint64
	bufSize int
}

// NewFanout creates a Fanout whose subscriber channels buffer up to bufSize
// frames each. bufSize values below 1 are clamped to 16 (roughly 320 ms of
// 20 ms frames).
func NewFanout(bufSize int) *Fanout {
	if bufSize < 1 {
		bufSize = 16
	}
	return &Fanout{bufSize: bufSize}
}

// Subscribe registers a new observer and returns its frame channel. The
// channel is closed when the Fanout is closed. Subscribing after Close
// returns a closed channel.
func (f *Fanout) Subscribe() <-chan Frame {
	ch := make(chan Frame, f.bufSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Unsubscribe removes an observer previously returned by [Fanout.Subscribe]
// and closes its channel. Unknown or already removed channels are ignored.
func (f *Fanout) Unsubscribe(ch <-chan Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for i, sub := range f.subs {
		if sub == ch {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers frame to every subscriber without blocking. Frames are
// silently discarded while the fanout is paused; a slow subscriber loses
// the frame rather than stalling its peers.
func (f *Fanout) Publish(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.paused {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- frame:
		default:
			f.dropped++
		}
	}
}

// Pause suspends frame delivery. Used while the session is muted: the capture
// connection stays alive but no audio reaches VAD or the transcriber.
func (f *Fanout) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

// Resume re-enables frame delivery after a [Fanout.Pause].
func (f *Fanout) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

// Paused reports whether delivery is currently suspended.
func (f *Fanout) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// Dropped returns the number of frames discarded due to full subscriber
// buffers since creation.
func (f *Fanout) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close closes all subscriber channels. Publish becomes a no-op. Close is
// safe to call more than once.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
	return nil
}
