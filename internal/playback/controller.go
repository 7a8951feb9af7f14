package playback

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Chunk is one framed slice of a playing audio payload.
type Chunk struct {
	HandleID    string
	Seq         int
	ContentType string
	Data        []byte
	Final       bool
}

// Sink receives the chunks of the handle that currently owns the slot.
type Sink func(Chunk) error

var ErrNoAudio = errors.New("playback payload is empty")

// Controller owns the single "currently playing" slot. Starting a new
// handle always silences and releases the previous one first; there is
// never more than one live stream.
type Controller struct {
	chunkBytes int

	mu      sync.Mutex
	current *Handle
}

// Handle is the live, singular audio-output resource.
type Handle struct {
	id   string
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

func NewController(chunkBytes int) *Controller {
	if chunkBytes <= 0 {
		chunkBytes = 32 << 10
	}
	return &Controller{chunkBytes: chunkBytes}
}

// Play replaces the slot with a new handle and streams the payload to
// the sink. The previous handle, if any, is stopped and released before
// the new one goes live.
func (c *Controller) Play(data []byte, contentType string, sink Sink) (*Handle, error) {
	if len(data) == 0 {
		return nil, ErrNoAudio
	}
	if sink == nil {
		return nil, errors.New("playback sink is required")
	}

	h := &Handle{
		id:   uuid.NewString(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.current
	c.current = h
	c.mu.Unlock()

	if prev != nil {
		prev.release()
	}

	go c.stream(h, data, contentType, sink)
	return h, nil
}

// Stop silences and releases the current handle, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.current
	c.current = nil
	c.mu.Unlock()

	if h != nil {
		h.release()
	}
}

// Playing reports whether a handle currently owns the slot.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Controller) stream(h *Handle, data []byte, contentType string, sink Sink) {
	defer close(h.done)
	// A completed or preempted handle must only clear the slot while it
	// still owns it; a newer handle's slot is never touched.
	defer c.clearIfOwner(h)

	seq := 0
	for off := 0; off < len(data); off += c.chunkBytes {
		select {
		case <-h.stop:
			return
		default:
		}

		end := off + c.chunkBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := Chunk{
			HandleID:    h.id,
			Seq:         seq,
			ContentType: contentType,
			Data:        data[off:end],
			Final:       end == len(data),
		}
		if err := sink(chunk); err != nil {
			// Delivery failures end playback but never surface to the
			// conversation flow.
			log.Printf("playback: sink error on handle %s: %v", h.id, err)
			return
		}
		seq++
	}
}

func (c *Controller) clearIfOwner(h *Handle) {
	c.mu.Lock()
	if c.current == h {
		c.current = nil
	}
	c.mu.Unlock()
}

// ID identifies the handle; chunks carry it so consumers can drop
// frames from preempted streams.
func (h *Handle) ID() string { return h.id }

// Done is closed when the handle finished streaming or was stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) release() {
	h.stopOnce.Do(func() { close(h.stop) })
}
