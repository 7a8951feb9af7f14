// perfchat drives a running server over its websocket surface and
// reports per-turn latencies: time to the committed assistant text and
// time to the final audio chunk.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppiazzi/clara/internal/protocol"
	"github.com/ppiazzi/clara/internal/session"
)

type options struct {
	baseURL     string
	turns       int
	turnTimeout time.Duration
	audio       bool
	verbose     bool
}

var defaultUtterances = []string{
	"Reply in three words: how are you?",
	"Reply in three words: favorite season?",
	"Reply in three words: plan for today?",
	"Reply in three words: best advice?",
}

type turnTiming struct {
	textMS  float64
	audioMS float64
}

func main() {
	opts := parseFlags()

	sessionID, err := createSession(opts.baseURL)
	if err != nil {
		fatalf("create session: %v", err)
	}
	if opts.verbose {
		fmt.Printf("session %s\n", sessionID)
	}

	conn, err := dialWS(opts.baseURL, sessionID)
	if err != nil {
		fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	if !opts.audio {
		sendControl(conn, sessionID, protocol.ActionAudioOff)
	}

	var timings []turnTiming
	for i := 0; i < opts.turns; i++ {
		text := defaultUtterances[i%len(defaultUtterances)]
		timing, err := runTurn(conn, sessionID, text, opts)
		if err != nil {
			fatalf("turn %d: %v", i+1, err)
		}
		timings = append(timings, timing)
		if opts.verbose {
			fmt.Printf("turn %d: text %.0fms audio %.0fms\n", i+1, timing.textMS, timing.audioMS)
		}
	}

	report(timings, opts.audio)
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	flag.IntVar(&opts.turns, "turns", 4, "number of turns to run")
	flag.DurationVar(&opts.turnTimeout, "turn-timeout", 60*time.Second, "per-turn deadline")
	flag.BoolVar(&opts.audio, "audio", true, "wait for the audio branch as well as text")
	flag.BoolVar(&opts.verbose, "v", false, "verbose per-turn output")
	flag.Parse()
	if opts.turns <= 0 {
		fatalf("-turns must be positive")
	}
	return opts
}

func createSession(baseURL string) (string, error) {
	resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/v1/session", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var created session.CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	if created.SessionID == "" {
		return "", fmt.Errorf("empty session id")
	}
	return created.SessionID, nil
}

func dialWS(baseURL, sessionID string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/session/ws"
	u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func sendControl(conn *websocket.Conn, sessionID, action string) {
	_ = conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    action,
	})
}

// runTurn sends one utterance and waits for the assistant text and, when
// audio is enabled, the final audio chunk of that turn.
func runTurn(conn *websocket.Conn, sessionID, text string, opts options) (turnTiming, error) {
	start := time.Now()
	if err := conn.WriteJSON(protocol.ClientMessage{
		Type:      protocol.TypeClientMessage,
		SessionID: sessionID,
		Text:      text,
	}); err != nil {
		return turnTiming{}, err
	}

	var timing turnTiming
	var turnID string
	gotText := false
	deadline := time.Now().Add(opts.turnTimeout)

	for {
		if gotText && (!opts.audio || timing.audioMS > 0) {
			return timing, nil
		}
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gotText {
				// Text landed; a missing audio branch is reported, not fatal.
				return timing, nil
			}
			return timing, err
		}

		var env struct {
			Type     protocol.MessageType `json:"type"`
			TurnID   string               `json:"turn_id"`
			Fallback bool                 `json:"fallback"`
			Final    bool                 `json:"final"`
			Code     string               `json:"code"`
			Detail   string               `json:"detail"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case protocol.TypeAssistantMessage:
			timing.textMS = float64(time.Since(start).Milliseconds())
			turnID = env.TurnID
			gotText = true
			if env.Fallback {
				// No audio follows a fallback reply.
				return timing, nil
			}
		case protocol.TypeAssistantAudioChunk:
			if env.Final && env.TurnID == turnID {
				timing.audioMS = float64(time.Since(start).Milliseconds())
			}
		case protocol.TypeErrorEvent:
			return timing, fmt.Errorf("%s: %s", env.Code, env.Detail)
		}
	}
}

func report(timings []turnTiming, audio bool) {
	text := make([]float64, 0, len(timings))
	audioMS := make([]float64, 0, len(timings))
	for _, t := range timings {
		text = append(text, t.textMS)
		if t.audioMS > 0 {
			audioMS = append(audioMS, t.audioMS)
		}
	}

	fmt.Printf("turns: %d\n", len(timings))
	fmt.Printf("text:  p50 %.0fms p95 %.0fms\n", percentile(text, 0.50), percentile(text, 0.95))
	if audio {
		if len(audioMS) == 0 {
			fmt.Printf("audio: no completed audio branches\n")
		} else {
			fmt.Printf("audio: p50 %.0fms p95 %.0fms (%d/%d turns)\n",
				percentile(audioMS, 0.50), percentile(audioMS, 0.95), len(audioMS), len(timings))
		}
	}
}

func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
