// Package broadcast provides a bounded, lossy, single-producer/multi-consumer
// fan-out of binary frames.
//
// Frames live in a fixed-size ring indexed by a monotonically increasing
// sequence number. Every Receiver keeps the sequence number of the next frame
// it wants; when the producer overwrites that slot before the receiver gets to
// it, the receiver is told how many frames it lost (LaggedError) and is moved
// forward to the oldest frame still buffered. The producer never waits on a
// receiver.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the ring size used when a non-positive capacity is given.
const DefaultCapacity = 32

// ErrClosed is returned by Receive once the channel is closed and the
// receiver has drained every buffered frame.
var ErrClosed = errors.New("broadcast channel closed")

// LaggedError reports that a receiver fell more than the ring capacity behind
// and Missed frames were overwritten before it could read them.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged by %d frames", e.Missed)
}

// IsLagged reports whether err is a *LaggedError and returns the missed count.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if errors.As(err, &lagged) {
		return lagged.Missed, true
	}
	return 0, false
}

// Channel is the shared ring buffer. Send never blocks.
type Channel struct {
	mu        sync.Mutex
	ring      [][]byte
	next      uint64 // sequence number the next Send will use
	receivers int
	closed    bool

	// notify is closed and replaced on every Send and on Close to wake
	// receivers parked in Receive.
	notify chan struct{}
}

// NewChannel creates a channel holding at most capacity frames.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		ring:   make([][]byte, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (c *Channel) Capacity() int {
	return len(c.ring)
}

// Send appends frame to the ring and wakes waiting receivers. It reports
// false when the frame was discarded because nobody is subscribed or the
// channel is closed.
func (c *Channel) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.receivers == 0 {
		return false
	}

	c.ring[c.next%uint64(len(c.ring))] = frame
	c.next++
	c.wake()
	return true
}

// Subscribe returns a receiver that observes frames sent after this call.
// Subscribing to a closed channel yields a receiver that reports ErrClosed.
func (c *Channel) Subscribe() *Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &Receiver{ch: c, next: c.next}
}

// ReceiverCount returns the number of receivers that have not been closed.
func (c *Channel) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Close marks the channel as ended. Buffered frames stay readable; after
// they are drained every Receive returns ErrClosed. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.wake()
}

// wake must be called with mu held.
func (c *Channel) wake() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// oldest returns the lowest sequence number still present in the ring.
// Must be called with mu held.
func (c *Channel) oldest() uint64 {
	capacity := uint64(len(c.ring))
	if c.next < capacity {
		return 0
	}
	return c.next - capacity
}

// Receiver is an independent cursor into a Channel. A Receiver is not safe
// for concurrent use by multiple goroutines.
type Receiver struct {
	ch     *Channel
	next   uint64
	closed bool
}

// Receive returns the next frame. It blocks until a frame is available, the
// channel is closed and drained (ErrClosed), or ctx is done. When frames were
// overwritten before they could be read it returns a *LaggedError and the
// following call resumes at the oldest buffered frame.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	c := r.ch
	for {
		c.mu.Lock()
		if oldest := c.oldest(); r.next < oldest {
			missed := oldest - r.next
			r.next = oldest
			c.mu.Unlock()
			return nil, &LaggedError{Missed: missed}
		}
		if r.next < c.next {
			frame := c.ring[r.next%uint64(len(c.ring))]
			r.next++
			c.mu.Unlock()
			return frame, nil
		}
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close detaches the receiver from its channel. It is idempotent.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true

	r.ch.mu.Lock()
	r.ch.receivers--
	r.ch.mu.Unlock()
}
