package camera

import (
	"context"
	"image"
	"sync"
)

// mailbox holds at most one frame. Put overwrites an unread frame, so a slow
// reader always gets the newest image and the producer never blocks.
type mailbox struct {
	mu      sync.Mutex
	frame   image.Image
	ready   chan struct{}
	dropped uint64
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) Put(img image.Image) {
	m.mu.Lock()
	if m.frame != nil {
		m.dropped++
	}
	m.frame = img
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// take returns the pending frame, if any.
func (m *mailbox) take() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	img := m.frame
	m.frame = nil
	return img
}

// Get waits for a frame until ctx or stop is done. It returns nil on either.
func (m *mailbox) Get(ctx context.Context, stop <-chan struct{}) image.Image {
	for {
		if img := m.take(); img != nil {
			return img
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			return nil
		case <-stop:
			return m.take()
		}
	}
}

func (m *mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
