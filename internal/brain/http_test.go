package brain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPAdapterReplySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["message"] != "Hi" || req["session_id"] != "s1" {
			t.Errorf("unexpected request body: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":   "success",
			"response": "Hello!",
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	res, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if res.Text != "Hello!" {
		t.Fatalf("Reply() text = %q, want Hello!", res.Text)
	}
}

func TestHTTPAdapterReplyErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "error",
			"error":  "model overloaded",
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	_, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Reply() error = %v, want *BackendError", err)
	}
	if backendErr.Detail != "model overloaded" {
		t.Fatalf("Detail = %q, want model overloaded", backendErr.Detail)
	}
}

func TestHTTPAdapterRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":   "success",
			"response": "Recovered",
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	res, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if res.Text != "Recovered" {
		t.Fatalf("Reply() text = %q, want Recovered", res.Text)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestHTTPAdapterMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	_, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Reply() error = %v, want ErrMalformedResponse", err)
	}
}

func TestHTTPAdapterNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	a := NewHTTPAdapter(srv.URL)
	_, err := a.Reply(context.Background(), ReplyRequest{SessionID: "s1", Message: "Hi"})
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("Reply() error = %v, want ErrNetworkUnavailable", err)
	}
}

func TestHTTPAdapterStarter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/starter" {
			t.Errorf("path = %q, want /starter", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "success",
			"starter": "What's on your mind?",
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	starter, err := a.Starter(context.Background())
	if err != nil {
		t.Fatalf("Starter() error = %v", err)
	}
	if starter != "What's on your mind?" {
		t.Fatalf("Starter() = %q", starter)
	}
}

func TestHTTPAdapterClearSession(t *testing.T) {
	var cleared atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clear" {
			t.Errorf("path = %q, want /clear", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["session_id"] != "s1" {
			t.Errorf("session_id = %q, want s1", req["session_id"])
		}
		cleared.Store(true)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	if err := a.ClearSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if !cleared.Load() {
		t.Fatalf("clear endpoint was not called")
	}
}
