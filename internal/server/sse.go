package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/internal/domain"
)

// handleStreamDebate runs a debate and streams progress as server-sent
// events: one `round` event per completed round (synthesis included as a
// sentinel round), a terminal `transcript` event, then `data: [DONE]`.
// Client disconnection cancels the request context, which stops the
// debate at the next round boundary.
func (s *Server) handleStreamDebate(w http.ResponseWriter, r *http.Request) {
	var req debateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidRequest("Request body is not valid JSON."))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorStatus(w, http.StatusInternalServerError, "internal_error", "Streaming not supported.")
		return
	}
	stream := &sseWriter{w: w, flusher: flusher}

	transcript, err := s.orch.Run(r.Context(), &debate.Request{
		Query:        req.Query,
		Panel:        req.Panel,
		Synthesizer:  req.Synthesizer,
		Rounds:       req.Rounds,
		MaxTokens:    req.MaxTokens,
		PanelContext: req.PanelContext,
		Metadata:     req.Metadata,
		Observer: func(round *domain.DebateRound) error {
			return stream.event("round", round)
		},
	})
	if err != nil {
		AddError(r.Context(), err)
		if !stream.started {
			// Nothing sent yet; answer with a plain error response.
			writeError(w, err)
			return
		}
		_, body := errorBodyOf(err)
		_ = stream.event("error", errorEnvelope{Error: body})
		stream.done()
		return
	}

	if req.GroundTruth != "" {
		s.scoreStored(r, transcript, req.Judge, req.GroundTruth)
	}
	s.store(r, transcript)

	if err := stream.event("transcript", transcript); err != nil {
		AddError(r.Context(), err)
	}
	stream.done()
}

// sseWriter frames server-sent events, deferring headers until the first
// event so early failures can still answer with a JSON status.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (sw *sseWriter) begin() {
	if sw.started {
		return
	}
	sw.w.Header().Set("Content-Type", "text/event-stream")
	sw.w.Header().Set("Cache-Control", "no-cache")
	sw.w.Header().Set("Connection", "keep-alive")
	sw.started = true
}

func (sw *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sw.begin()
	fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, data)
	sw.flusher.Flush()
	return nil
}

func (sw *sseWriter) done() {
	sw.begin()
	fmt.Fprintf(sw.w, "data: [DONE]\n\n")
	sw.flusher.Flush()
}
