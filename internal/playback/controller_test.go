package playback

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func collectSink(mu *sync.Mutex, out *[]Chunk) Sink {
	return func(c Chunk) error {
		mu.Lock()
		defer mu.Unlock()
		*out = append(*out, c)
		return nil
	}
}

func TestPlayStreamsAllChunksAndSelfReleases(t *testing.T) {
	c := NewController(4)
	data := []byte("0123456789") // 3 chunks with chunkBytes=4

	var mu sync.Mutex
	var got []Chunk
	h, err := c.Play(data, "audio/wav", collectSink(&mu, &got))
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("handle did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	var joined []byte
	for i, ch := range got {
		if ch.Seq != i {
			t.Fatalf("chunk %d seq = %d", i, ch.Seq)
		}
		if ch.ContentType != "audio/wav" {
			t.Fatalf("chunk content type = %q", ch.ContentType)
		}
		joined = append(joined, ch.Data...)
	}
	if !bytes.Equal(joined, data) {
		t.Fatalf("joined = %q, want %q", joined, data)
	}
	if !got[len(got)-1].Final {
		t.Fatalf("last chunk should be final")
	}
	if c.Playing() {
		t.Fatalf("slot should self-release after natural completion")
	}
}

func TestPlayPreemptsPreviousHandle(t *testing.T) {
	c := NewController(1)

	// A slow sink keeps the first handle mid-stream while the second starts.
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	first, err := c.Play(bytes.Repeat([]byte("a"), 64), "audio/wav", func(Chunk) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	<-started

	var mu sync.Mutex
	var got []Chunk
	second, err := c.Play([]byte("bb"), "audio/wav", collectSink(&mu, &got))
	if err != nil {
		t.Fatalf("Play() second error = %v", err)
	}
	close(release)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatalf("preempted handle did not release")
	}
	select {
	case <-second.Done():
	case <-time.After(time.Second):
		t.Fatalf("second handle did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, ch := range got {
		if ch.HandleID != second.ID() {
			t.Fatalf("chunk from stale handle %q leaked into new stream", ch.HandleID)
		}
	}
	if c.Playing() {
		t.Fatalf("slot should be clear after both handles finished")
	}
}

func TestStaleCompletionDoesNotClearNewSlot(t *testing.T) {
	c := NewController(1)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	first, _ := c.Play(bytes.Repeat([]byte("a"), 8), "audio/wav", func(Chunk) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	<-started

	blockSecond := make(chan struct{})
	second, _ := c.Play(bytes.Repeat([]byte("b"), 8), "audio/wav", func(Chunk) error {
		<-blockSecond
		return nil
	})

	// Let the preempted first handle finish while the second is mid-stream.
	close(release)
	<-first.Done()

	if !c.Playing() {
		t.Fatalf("stale completion cleared the active slot")
	}
	close(blockSecond)
	<-second.Done()
}

func TestStopReleasesSlot(t *testing.T) {
	c := NewController(1)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	h, err := c.Play(bytes.Repeat([]byte("a"), 64), "audio/wav", func(Chunk) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	<-started

	c.Stop()
	close(release)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("stopped handle did not release")
	}
	if c.Playing() {
		t.Fatalf("slot should be clear after Stop")
	}
}

func TestPlayRejectsEmptyPayload(t *testing.T) {
	c := NewController(4)
	if _, err := c.Play(nil, "audio/wav", func(Chunk) error { return nil }); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Play() error = %v, want ErrNoAudio", err)
	}
}

func TestSinkErrorEndsPlaybackQuietly(t *testing.T) {
	c := NewController(1)
	h, err := c.Play([]byte("abc"), "audio/wav", func(Chunk) error {
		return errors.New("client gone")
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("handle did not release after sink error")
	}
	if c.Playing() {
		t.Fatalf("slot should be clear after sink error")
	}
}
