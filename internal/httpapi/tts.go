package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ppiazzi/clara/internal/synth"
)

type ttsVoiceRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice_name"`
}

type ttsDialogRequest struct {
	Text     string `json:"text"`
	Speaker1 string `json:"speaker1_name"`
	Voice1   string `json:"speaker1_voice"`
	Speaker2 string `json:"speaker2_name"`
	Voice2   string `json:"speaker2_voice"`
}

type ttsLocalRequest struct {
	Text   string   `json:"text"`
	Rate   int      `json:"rate"`
	Volume *float64 `json:"volume"`
}

func (s *Server) handleTTSVoice(w http.ResponseWriter, r *http.Request) {
	var req ttsVoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = s.cfg.DefaultVoice
	}

	s.synthesize(w, r, synth.Request{
		Text:  req.Text,
		Mode:  synth.ModeVoice,
		Voice: req.Voice,
	})
}

func (s *Server) handleTTSDialog(w http.ResponseWriter, r *http.Request) {
	var req ttsDialogRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Speaker1) == "" {
		req.Speaker1 = s.cfg.DefaultSpeaker1
	}
	if strings.TrimSpace(req.Voice1) == "" {
		req.Voice1 = s.cfg.DefaultVoice1
	}
	if strings.TrimSpace(req.Speaker2) == "" {
		req.Speaker2 = s.cfg.DefaultSpeaker2
	}
	if strings.TrimSpace(req.Voice2) == "" {
		req.Voice2 = s.cfg.DefaultVoice2
	}

	s.synthesize(w, r, synth.Request{
		Text: req.Text,
		Mode: synth.ModeDialog,
		Speakers: [2]synth.Speaker{
			{Name: req.Speaker1, Voice: req.Voice1},
			{Name: req.Speaker2, Voice: req.Voice2},
		},
	})
}

func (s *Server) handleTTSLocal(w http.ResponseWriter, r *http.Request) {
	var req ttsLocalRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Rate == 0 {
		req.Rate = s.cfg.LocalTTSRate
	}
	volume := s.cfg.LocalTTSVolume
	if req.Volume != nil {
		volume = *req.Volume
	}

	s.synthesize(w, r, synth.Request{
		Text:   req.Text,
		Mode:   synth.ModeLocal,
		Rate:   req.Rate,
		Volume: volume,
	})
}

// synthesize runs one request through the per-mode dispatch and writes
// the rendered audio bytes, or a JSON error on a non-2xx status.
func (s *Server) synthesize(w http.ResponseWriter, r *http.Request, req synth.Request) {
	result, err := s.synth.Synthesize(r.Context(), req)
	if err != nil {
		status, code := synthStatus(err)
		s.metrics.ProviderErrors.WithLabelValues("synthesis", code).Inc()
		respondError(w, status, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}

func synthStatus(err error) (int, string) {
	var invalidErr *synth.InvalidParamsError
	switch {
	case errors.Is(err, synth.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.As(err, &invalidErr):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, synth.ErrProviderUnreachable):
		return http.StatusServiceUnavailable, "provider_unreachable"
	default:
		return http.StatusBadGateway, "synthesis_failed"
	}
}
