package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/internal/domain"
)

// debateRequest is the body for POST /v1/debates and /v1/debates/stream.
// Unset fields fall back to configured defaults.
type debateRequest struct {
	Query        string            `json:"query"`
	Panel        []string          `json:"panel,omitempty"`
	Synthesizer  string            `json:"synthesizer,omitempty"`
	Rounds       int               `json:"rounds,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	PanelContext map[string]string `json:"panel_context,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	GroundTruth  string            `json:"ground_truth,omitempty"`
	Judge        string            `json:"judge,omitempty"`
}

type replayBody struct {
	AdditionalRounds int    `json:"additional_rounds,omitempty"`
	Synthesizer      string `json:"synthesizer,omitempty"`
	MaxTokens        int    `json:"max_tokens,omitempty"`
}

type scoreBody struct {
	GroundTruth string `json:"ground_truth"`
	Judge       string `json:"judge,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// panelMemberView is one row of the panel listing: how the alias would
// route if a debate started now.
type panelMemberView struct {
	Alias         string `json:"alias"`
	ModelID       string `json:"model_id"`
	Mode          string `json:"mode"`
	ViaOpenRouter bool   `json:"via_openrouter"`
	Routable      bool   `json:"routable"`
	Error         string `json:"error,omitempty"`
}

type panelView struct {
	Panel       []panelMemberView `json:"panel"`
	Synthesizer string            `json:"synthesizer"`
	Rounds      int               `json:"rounds"`
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	bound, err := debate.BindPanel(s.cfg, s.cfg.Debate.Panel)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}

	view := panelView{
		Panel:       make([]panelMemberView, len(bound)),
		Synthesizer: s.cfg.Debate.Synthesizer,
		Rounds:      s.cfg.Debate.Rounds,
	}
	for i, p := range bound {
		row := panelMemberView{
			Alias:         p.Alias,
			ModelID:       p.ModelID,
			Mode:          string(p.Routing.Mode),
			ViaOpenRouter: p.Routing.ViaOpenRouter,
			Routable:      p.BindErr == nil,
		}
		if p.BindErr != nil {
			row.Error = p.BindErr.Error()
		}
		view.Panel[i] = row
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListDebates(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, domain.ErrInvalidRequestf("Invalid limit %q.", raw))
			return
		}
		limit = n
	}

	summaries := s.registry.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"debates": summaries,
		"count":   len(summaries),
	})
}

func (s *Server) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	t, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	var req debateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidRequest("Request body is not valid JSON."))
		return
	}

	transcript, err := s.orch.Run(r.Context(), &debate.Request{
		Query:        req.Query,
		Panel:        req.Panel,
		Synthesizer:  req.Synthesizer,
		Rounds:       req.Rounds,
		MaxTokens:    req.MaxTokens,
		PanelContext: req.PanelContext,
		Metadata:     req.Metadata,
	})
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}

	if req.GroundTruth != "" {
		s.scoreStored(r, transcript, req.Judge, req.GroundTruth)
	}

	s.store(r, transcript)
	writeJSON(w, http.StatusCreated, transcript)
}

func (s *Server) handleReplayDebate(w http.ResponseWriter, r *http.Request) {
	source, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body replayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrInvalidRequest("Request body is not valid JSON."))
		return
	}

	transcript, err := s.orch.Replay(r.Context(), &debate.ReplayRequest{
		Source:           source,
		AdditionalRounds: body.AdditionalRounds,
		Synthesizer:      body.Synthesizer,
		MaxTokens:        body.MaxTokens,
	})
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}

	s.store(r, transcript)
	writeJSON(w, http.StatusCreated, transcript)
}

func (s *Server) handleScoreDebate(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body scoreBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrInvalidRequest("Request body is not valid JSON."))
		return
	}

	judge, err := s.bindJudge(body.Judge, transcript)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}

	score, err := s.scorer.Evaluate(r.Context(), transcript, judge, body.GroundTruth)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// bindJudge resolves the judge for scoring, defaulting to the
// transcript's synthesizer.
func (s *Server) bindJudge(alias string, t *domain.DebateTranscript) (domain.PanelMember, error) {
	name := alias
	if name == "" {
		name = t.SynthesizerID
	}
	judge, err := debate.BindMember(s.cfg, s.cfg.Credentials(), name)
	if err != nil {
		return domain.PanelMember{}, err
	}
	if judge.BindErr != nil {
		return domain.PanelMember{}, judge.BindErr
	}
	return judge.PanelMember, nil
}

// scoreStored scores a fresh transcript in-line with debate creation. The
// debate already succeeded, so a scoring failure is logged and the
// transcript returned unscored.
func (s *Server) scoreStored(r *http.Request, t *domain.DebateTranscript, judgeAlias, groundTruth string) {
	judge, err := s.bindJudge(judgeAlias, t)
	if err == nil {
		_, err = s.scorer.Evaluate(r.Context(), t, judge, groundTruth)
	}
	if err != nil {
		AddError(r.Context(), err)
	}
}

// store puts a finished transcript in the registry. Failure to store is a
// log line, not a request failure: the caller already has the transcript.
func (s *Server) store(r *http.Request, t *domain.DebateTranscript) {
	if err := s.registry.Put(t); err != nil {
		AddError(r.Context(), err)
	}
}
