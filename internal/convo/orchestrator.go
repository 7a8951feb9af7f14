package convo

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiazzi/clara/internal/archive"
	"github.com/ppiazzi/clara/internal/brain"
	"github.com/ppiazzi/clara/internal/observability"
	"github.com/ppiazzi/clara/internal/playback"
	"github.com/ppiazzi/clara/internal/protocol"
	"github.com/ppiazzi/clara/internal/session"
	"github.com/ppiazzi/clara/internal/synth"
)

// ErrEmptyMessage rejects blank user input before any backend call.
var ErrEmptyMessage = errors.New("message text is empty")

const archiveSaveTimeout = 2 * time.Second

// Options tunes one orchestrator instance.
type Options struct {
	ReplyTimeout time.Duration
	SynthTimeout time.Duration
	DefaultVoice string
	AudioEnabled bool
}

// TurnResult is the outcome of the text branch of one turn.
type TurnResult struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Reply     string `json:"reply"`
	Fallback  bool   `json:"fallback"`
	Appended  bool   `json:"appended"`
}

// Orchestrator coordinates one turn's two branches: the awaited reply
// (text) branch and the best-effort synthesis (audio) branch. Text is
// shown as soon as it lands; audio may arrive later or not at all.
type Orchestrator struct {
	sessions *session.Store
	adapter  brain.Adapter
	synth    *synth.Client
	player   *playback.Controller
	archive  archive.Store
	metrics  *observability.Metrics
	opts     Options
}

func NewOrchestrator(
	sessions *session.Store,
	adapter brain.Adapter,
	synthClient *synth.Client,
	player *playback.Controller,
	archiveStore archive.Store,
	metrics *observability.Metrics,
	opts Options,
) *Orchestrator {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 60 * time.Second
	}
	if opts.SynthTimeout <= 0 {
		opts.SynthTimeout = 30 * time.Second
	}
	if strings.TrimSpace(opts.DefaultVoice) == "" {
		opts.DefaultVoice = "Kore"
	}
	return &Orchestrator{
		sessions: sessions,
		adapter:  adapter,
		synth:    synthClient,
		player:   player,
		archive:  archiveStore,
		metrics:  metrics,
		opts:     opts,
	}
}

// ChatTurn runs the text branch of one user turn synchronously. The
// REST surface uses it; audio on that surface is client-driven via the
// synthesis endpoints.
func (o *Orchestrator) ChatTurn(ctx context.Context, sessionID, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	sess := o.sessions.Ensure(sessionID)
	gen := sess.Generation

	if err := o.sessions.Append(sess.ID, session.Turn{Role: session.RoleUser, Content: text}); err != nil {
		return TurnResult{}, err
	}
	o.saveTurnBestEffort(sess.ID, session.RoleUser, text)

	reply, fallback := o.requestReply(ctx, sess.ID, text)
	return o.commitAssistantTurn(sess.ID, gen, reply, fallback), nil
}

// StarterTurn opens a conversation with an assistant line and no prior
// user turn.
func (o *Orchestrator) StarterTurn(ctx context.Context, sessionID string) (TurnResult, error) {
	sess := o.sessions.Ensure(sessionID)
	gen := sess.Generation

	starter := o.requestStarter(ctx)
	return o.commitAssistantTurn(sess.ID, gen, starter, false), nil
}

// Clear resets the transcript, bumps the session generation so stale
// in-flight replies are discarded, silences playback, and tells the
// reply backend to drop its copy of the history.
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) error {
	o.sessions.Ensure(sessionID)
	if err := o.sessions.Clear(sessionID); err != nil {
		return err
	}
	o.player.Stop()
	o.metrics.SessionEvents.WithLabelValues("cleared").Inc()

	clearCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := o.adapter.ClearSession(clearCtx, sessionID); err != nil {
		// Backend history cleanup is best-effort; the new generation
		// already isolates the local transcript.
		log.Printf("convo: backend clear failed for session %s: %v", sessionID, err)
	}
	return nil
}

// History returns the transcript snapshot for a session.
func (o *Orchestrator) History(sessionID string) ([]session.Turn, error) {
	return o.sessions.Turns(sessionID)
}

// StopAudio releases the current playback handle, if any.
func (o *Orchestrator) StopAudio() {
	o.player.Stop()
}

// PerfSnapshot exposes the rolling stage latencies.
func (o *Orchestrator) PerfSnapshot() observability.StageSnapshot {
	return o.metrics.Stages.Snapshot()
}

// connState tracks the per-connection presentation flags. Counters, not
// booleans: overlapping turns keep the affordance on until the last one
// finishes.
type connState struct {
	mu           sync.Mutex
	composing    int
	synthesizing int
	audioEnabled bool
}

func (s *connState) snapshot() (composing, synthesizing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composing > 0, s.synthesizing > 0
}

func (s *connState) audio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEnabled
}

func (s *connState) setAudio(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioEnabled = enabled
}

func (s *connState) addComposing(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composing += delta
}

func (s *connState) addSynthesizing(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesizing += delta
}

// RunConnection drives one websocket conversation. Each user turn runs
// in its own goroutine so the loop stays responsive to controls (clear,
// stop_audio) while branches are outstanding.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	state := &connState{audioEnabled: o.opts.AudioEnabled}
	var wg sync.WaitGroup

	o.pushState(outbound, sess.ID, state)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case msg, ok := <-inbound:
			if !ok {
				wg.Wait()
				return nil
			}
			switch m := msg.(type) {
			case protocol.ClientMessage:
				text := strings.TrimSpace(m.Text)
				if text == "" {
					// Rejected locally; no backend sees empty input.
					o.send(outbound, protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: sess.ID,
						Code:      "empty_input",
						Source:    "orchestrator",
						Detail:    "message text is empty",
					})
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					o.runTurn(ctx, sess.ID, text, state, outbound)
				}()
			case protocol.ClientControl:
				o.handleControl(ctx, m, sess.ID, state, outbound, &wg)
			}
		}
	}
}

func (o *Orchestrator) handleControl(ctx context.Context, m protocol.ClientControl, sessionID string, state *connState, outbound chan<- any, wg *sync.WaitGroup) {
	switch m.Action {
	case protocol.ActionClear:
		if err := o.Clear(ctx, sessionID); err != nil {
			o.send(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "clear_failed",
				Source:    "orchestrator",
				Detail:    err.Error(),
			})
			return
		}
		o.pushState(outbound, sessionID, state)
	case protocol.ActionStarter:
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runStarter(ctx, sessionID, state, outbound)
		}()
	case protocol.ActionStopAudio:
		o.player.Stop()
	case protocol.ActionAudioOn:
		state.setAudio(true)
	case protocol.ActionAudioOff:
		state.setAudio(false)
	}
}

// runTurn executes the full pipeline for one user utterance: user turn
// committed, reply awaited, assistant turn committed, then the audio
// branch, which never feeds back into the text result.
func (o *Orchestrator) runTurn(ctx context.Context, sessionID, text string, state *connState, outbound chan<- any) {
	sess := o.sessions.Ensure(sessionID)
	gen := sess.Generation

	if err := o.sessions.Append(sess.ID, session.Turn{Role: session.RoleUser, Content: text}); err != nil {
		log.Printf("convo: append user turn: %v", err)
		return
	}
	o.saveTurnBestEffort(sess.ID, session.RoleUser, text)

	state.addComposing(1)
	o.pushState(outbound, sess.ID, state)

	reply, fallback := o.requestReply(ctx, sess.ID, text)

	result := o.commitAssistantTurn(sess.ID, gen, reply, fallback)
	state.addComposing(-1)
	o.pushState(outbound, sess.ID, state)

	if !result.Appended {
		// The session was cleared while composing; the reply belongs to
		// a dead generation and is dropped on the floor.
		return
	}

	o.send(outbound, protocol.AssistantMessage{
		Type:      protocol.TypeAssistantMessage,
		SessionID: sess.ID,
		TurnID:    result.TurnID,
		Text:      result.Reply,
		Fallback:  result.Fallback,
	})

	if result.Fallback || !state.audio() {
		return
	}
	o.runAudioBranch(ctx, sess.ID, result.TurnID, result.Reply, state, outbound)
}

func (o *Orchestrator) runStarter(ctx context.Context, sessionID string, state *connState, outbound chan<- any) {
	sess := o.sessions.Ensure(sessionID)
	gen := sess.Generation

	state.addComposing(1)
	o.pushState(outbound, sess.ID, state)

	starter := o.requestStarter(ctx)
	result := o.commitAssistantTurn(sess.ID, gen, starter, false)

	state.addComposing(-1)
	o.pushState(outbound, sess.ID, state)

	if !result.Appended {
		return
	}
	o.send(outbound, protocol.AssistantMessage{
		Type:      protocol.TypeAssistantMessage,
		SessionID: sess.ID,
		TurnID:    result.TurnID,
		Text:      result.Reply,
	})
	if state.audio() {
		o.runAudioBranch(ctx, sess.ID, result.TurnID, result.Reply, state, outbound)
	}
}

// runAudioBranch synthesizes the committed assistant text and hands the
// payload to the playback slot. Every failure here is swallowed: logged
// and counted, never surfaced to the text flow.
func (o *Orchestrator) runAudioBranch(ctx context.Context, sessionID, turnID, text string, state *connState, outbound chan<- any) {
	state.addSynthesizing(1)
	o.pushState(outbound, sessionID, state)

	synthCtx, cancel := context.WithTimeout(ctx, o.opts.SynthTimeout)
	start := time.Now()
	result, err := o.synth.Synthesize(synthCtx, synth.Request{
		Text:  text,
		Mode:  synth.ModeVoice,
		Voice: o.opts.DefaultVoice,
	})
	cancel()

	state.addSynthesizing(-1)
	o.pushState(outbound, sessionID, state)

	if err != nil {
		o.metrics.TurnOutcomes.WithLabelValues("audio", "error").Inc()
		o.metrics.ProviderErrors.WithLabelValues("synthesis", synthErrorCode(err)).Inc()
		log.Printf("convo: no audio for turn %s: %v", turnID, err)
		return
	}
	o.metrics.ObserveSynthesisLatency(time.Since(start))

	if _, err := o.player.Play(result.Audio, result.ContentType, o.audioSink(ctx, sessionID, turnID, outbound)); err != nil {
		o.metrics.TurnOutcomes.WithLabelValues("audio", "error").Inc()
		log.Printf("convo: playback start failed for turn %s: %v", turnID, err)
		return
	}
	o.metrics.TurnOutcomes.WithLabelValues("audio", "ok").Inc()
}

// audioSink frames playback chunks as outbound protocol messages. Chunk
// delivery blocks rather than drops; a torn audio stream is worse than
// a late one. Connection teardown cancels it.
func (o *Orchestrator) audioSink(ctx context.Context, sessionID, turnID string, outbound chan<- any) playback.Sink {
	return func(chunk playback.Chunk) error {
		msg := protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudioChunk,
			SessionID:   sessionID,
			TurnID:      turnID,
			HandleID:    chunk.HandleID,
			Seq:         chunk.Seq,
			ContentType: chunk.ContentType,
			AudioBase64: base64.StdEncoding.EncodeToString(chunk.Data),
			Final:       chunk.Final,
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outbound <- msg:
			o.metrics.WSMessages.WithLabelValues("outbound", string(protocol.TypeAssistantAudioChunk)).Inc()
			return nil
		}
	}
}

func (o *Orchestrator) requestReply(ctx context.Context, sessionID, text string) (reply string, fallback bool) {
	replyCtx, cancel := context.WithTimeout(ctx, o.opts.ReplyTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.adapter.Reply(replyCtx, brain.ReplyRequest{SessionID: sessionID, Message: text})
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("brain", brainErrorCode(err)).Inc()
		log.Printf("convo: reply failed for session %s: %v", sessionID, err)
		return brain.Apology, true
	}
	o.metrics.ObserveReplyLatency(time.Since(start))
	return res.Text, false
}

func (o *Orchestrator) requestStarter(ctx context.Context) string {
	starterCtx, cancel := context.WithTimeout(ctx, o.opts.ReplyTimeout)
	defer cancel()

	starter, err := o.adapter.Starter(starterCtx)
	if err != nil || strings.TrimSpace(starter) == "" {
		if err != nil {
			log.Printf("convo: starter failed: %v", err)
		}
		return brain.RandomStarter()
	}
	return starter
}

// commitAssistantTurn appends the assistant turn unless the session
// generation moved on while the reply was in flight.
func (o *Orchestrator) commitAssistantTurn(sessionID string, gen uint64, reply string, fallback bool) TurnResult {
	result := TurnResult{
		SessionID: sessionID,
		TurnID:    uuid.NewString(),
		Reply:     reply,
		Fallback:  fallback,
	}

	appended, err := o.sessions.AppendIfGeneration(sessionID, gen, session.Turn{
		Role:    session.RoleAssistant,
		Content: reply,
	})
	if err != nil {
		log.Printf("convo: append assistant turn: %v", err)
		return result
	}
	result.Appended = appended

	switch {
	case !appended:
		o.metrics.TurnOutcomes.WithLabelValues("text", "stale").Inc()
	case fallback:
		o.metrics.TurnOutcomes.WithLabelValues("text", "fallback").Inc()
	default:
		o.metrics.TurnOutcomes.WithLabelValues("text", "ok").Inc()
	}

	if appended {
		o.saveTurnBestEffort(sessionID, session.RoleAssistant, reply)
	}
	return result
}

func (o *Orchestrator) pushState(outbound chan<- any, sessionID string, state *connState) {
	turns, err := o.sessions.Turns(sessionID)
	if err != nil {
		return
	}
	composing, synthesizing := state.snapshot()
	o.send(outbound, Project(sessionID, turns, composing, synthesizing))
}

// send is non-blocking: state and text events are droppable under a
// saturated outbound queue because the next state push supersedes them.
func (o *Orchestrator) send(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		log.Printf("convo: outbound queue full, dropping %T", msg)
	}
}

func (o *Orchestrator) saveTurnBestEffort(sessionID string, role session.Role, content string) {
	if o.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveSaveTimeout)
		defer cancel()
		if err := o.archive.SaveTurn(ctx, archive.Record{
			SessionID: sessionID,
			Role:      string(role),
			Content:   content,
		}); err != nil {
			log.Printf("convo: archive save failed: %v", err)
		}
	}()
}

func brainErrorCode(err error) string {
	var backendErr *brain.BackendError
	switch {
	case errors.As(err, &backendErr):
		return "backend_error"
	case errors.Is(err, brain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, brain.ErrNetworkUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return "network_unavailable"
	default:
		return "unknown"
	}
}

func synthErrorCode(err error) string {
	var invalidErr *synth.InvalidParamsError
	switch {
	case errors.Is(err, synth.ErrEmptyInput):
		return "empty_input"
	case errors.As(err, &invalidErr):
		return "invalid_parameters"
	case errors.Is(err, synth.ErrProviderUnreachable),
		errors.Is(err, context.DeadlineExceeded):
		return "provider_unreachable"
	default:
		return "unknown"
	}
}
