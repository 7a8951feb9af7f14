package session

import (
	"context"
	"testing"
	"time"
)

func TestStoreCreateAppendTurns(t *testing.T) {
	s := NewStore(time.Minute)
	sess := s.Create()
	if sess.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	if err := s.Append(sess.ID, Turn{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(sess.ID, Turn{Role: RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	turns, err := s.Turns(sess.ID)
	if err != nil {
		t.Fatalf("Turns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "hi" {
		t.Fatalf("first turn = %+v, want user hi", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "hello" {
		t.Fatalf("second turn = %+v, want assistant hello", turns[1])
	}
	if turns[0].At.IsZero() {
		t.Fatalf("turn timestamp should be set")
	}
}

func TestStoreAppendUnknownSession(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.Append("nope", Turn{Role: RoleUser, Content: "x"}); err != ErrNotFound {
		t.Fatalf("Append() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Turns("nope"); err != ErrNotFound {
		t.Fatalf("Turns() error = %v, want ErrNotFound", err)
	}
}

func TestStoreClearKeepsIDAndBumpsGeneration(t *testing.T) {
	s := NewStore(time.Minute)
	sess := s.Create()
	_ = s.Append(sess.ID, Turn{Role: RoleUser, Content: "hi"})

	gen, err := s.Generation(sess.ID)
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if err := s.Clear(sess.ID); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	turns, err := s.Turns(sess.ID)
	if err != nil {
		t.Fatalf("Turns() after Clear error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("len(turns) after Clear = %d, want 0", len(turns))
	}

	after, err := s.Generation(sess.ID)
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if after != gen+1 {
		t.Fatalf("generation after Clear = %d, want %d", after, gen+1)
	}
}

func TestStoreAppendIfGenerationDiscardsStale(t *testing.T) {
	s := NewStore(time.Minute)
	sess := s.Create()
	gen, _ := s.Generation(sess.ID)

	// Clear lands between capture and append, as with an in-flight reply.
	if err := s.Clear(sess.ID); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	appended, err := s.AppendIfGeneration(sess.ID, gen, Turn{Role: RoleAssistant, Content: "stale"})
	if err != nil {
		t.Fatalf("AppendIfGeneration() error = %v", err)
	}
	if appended {
		t.Fatalf("stale append should be discarded")
	}

	turns, _ := s.Turns(sess.ID)
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0", len(turns))
	}

	cur, _ := s.Generation(sess.ID)
	appended, err = s.AppendIfGeneration(sess.ID, cur, Turn{Role: RoleAssistant, Content: "fresh"})
	if err != nil || !appended {
		t.Fatalf("fresh append = (%v, %v), want (true, nil)", appended, err)
	}
}

func TestStoreEnsureIsIdempotent(t *testing.T) {
	s := NewStore(time.Minute)
	a := s.Ensure("client-made-id")
	_ = s.Append(a.ID, Turn{Role: RoleUser, Content: "hi"})
	b := s.Ensure("client-made-id")
	if a.ID != b.ID {
		t.Fatalf("Ensure() minted a new session for an existing id")
	}
	turns, _ := s.Turns(b.ID)
	if len(turns) != 1 {
		t.Fatalf("Ensure() should not reset history, len = %d", len(turns))
	}
}

func TestStoreJanitorExpiresIdle(t *testing.T) {
	s := NewStore(30 * time.Millisecond)
	sess := s.Create()

	expired := make(chan string, 1)
	s.SetExpireHook(func(id string) { expired <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != sess.ID {
			t.Fatalf("expired id = %q, want %q", id, sess.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire idle session")
	}

	if _, err := s.Get(sess.ID); err != ErrNotFound {
		t.Fatalf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}
