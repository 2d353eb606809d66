// Package handler provides the HTTP surface. Handlers are thin: decode,
// call the engine or store, encode.
package handler

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/interviewd/internal/interview"
	"github.com/hireloop/interviewd/internal/model"
	"github.com/hireloop/interviewd/internal/speech"
	"github.com/hireloop/interviewd/internal/store"
)

// Config holds handler-level settings.
type Config struct {
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	engine      *interview.Engine
	transcriber *speech.Transcriber
	synthesizer *speech.Synthesizer
	config      Config
}

// New creates a new Handler.
func New(s *store.Store, e *interview.Engine, t *speech.Transcriber, syn *speech.Synthesizer, cfg Config) *Handler {
	return &Handler{store: s, engine: e, transcriber: t, synthesizer: syn, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/auth/login", h.handleLogin)
	r.Post("/api/auth/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/templates", h.handleCreateTemplate)
		r.Get("/api/templates", h.handleListTemplates)
		r.Get("/api/templates/{templateID}", h.handleGetTemplate)

		r.Post("/api/sessions", h.handleStartSession)
		r.Get("/api/sessions/{sessionID}", h.handleGetSession)
		r.Get("/api/sessions/{sessionID}/question", h.handleCurrentQuestion)
		r.Post("/api/sessions/{sessionID}/answers", h.handleSubmitAnswer)
		r.Post("/api/sessions/{sessionID}/complete", h.handleComplete)
		r.Post("/api/sessions/{sessionID}/cancel", h.handleCancel)

		r.Post("/api/speech/transcriptions", h.handleTranscribe)
		r.Post("/api/speech/synthesis", h.handleSynthesize)
		r.Post("/api/speech/synthesis/stream", h.handleSynthesizeStream)

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleAdmin))
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Get("/api/admin/users", h.handleListUsers)
			r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUser)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the engine's error taxonomy onto status codes instead of
// collapsing everything into a generic 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, interview.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, interview.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, interview.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, interview.ErrProvider):
		status, kind = http.StatusBadGateway, "provider"
	case errors.Is(err, interview.ErrIntegrity):
		kind = "integrity"
	}
	if status >= 500 {
		slog.Error("request failed", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", interview.ErrValidation, err)
	}
	return nil
}

type generationStatus struct {
	RoundName  string           `json:"round_name"`
	Difficulty model.Difficulty `json:"difficulty"`
	Count      int              `json:"count"`
	Error      string           `json:"error,omitempty"`
}

type createTemplateResponse struct {
	Template   *model.TemplateView `json:"template"`
	Generation []generationStatus  `json:"generation"`
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req interview.CreateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, outcomes, err := h.engine.CreateTemplate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := createTemplateResponse{Template: view}
	for _, o := range outcomes {
		gs := generationStatus{RoundName: o.RoundName, Difficulty: o.Difficulty, Count: o.Count}
		if o.Err != nil {
			gs.Error = o.Err.Error()
		}
		resp.Generation = append(resp.Generation, gs)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates(r.URL.Query().Get("companyId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if templates == nil {
		templates = []model.InterviewTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	view, err := h.store.GetTemplateView(chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, mapNoRows(err, "template"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type startSessionRequest struct {
	TemplateID string `json:"template_id"`
	StudentID  string `json:"student_id"`
	CompanyID  string `json:"company_id"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.engine.StartSession(r.Context(), req.TemplateID, req.StudentID, req.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.store.GetSessionView(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, mapNoRows(err, "session"))
		return
	}
	if view.Answers == nil {
		view.Answers = []model.Answer{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	cur, err := h.engine.ResolveCurrentQuestion(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

type submitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), req.QuestionID, req.AnswerText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Complete(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusCancelled)})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	// Cap the request body slightly above the audio limit so oversized
	// uploads still reach the adapter's own size check.
	r.Body = http.MaxBytesReader(w, r.Body, speech.MaxAudioBytes+1024*1024)
	if err := r.ParseMultipartForm(speech.MaxAudioBytes); err != nil {
		writeError(w, fmt.Errorf("%w: parse multipart form: %v", interview.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, fmt.Errorf("%w: audio file is required", interview.ErrValidation))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("read audio: %w", err))
		return
	}

	text, err := h.transcriber.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		if errors.Is(err, speech.ErrAudioTooLarge) {
			writeError(w, fmt.Errorf("%w: %v", interview.ErrValidation, err))
			return
		}
		writeError(w, &interview.ProviderError{Op: "transcribe audio", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

type synthesizeResponse struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mime_type"`
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Text == "" {
		writeError(w, fmt.Errorf("%w: text is required", interview.ErrValidation))
		return
	}

	audio, err := h.synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		writeError(w, &interview.ProviderError{Op: "synthesize speech", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, synthesizeResponse{
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MIMEType: h.synthesizer.MIMEType(),
	})
}

// handleSynthesizeStream sends synthesized audio chunk by chunk as it is
// produced, flushing after each chunk.
func (h *Handler) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Text == "" {
		writeError(w, fmt.Errorf("%w: text is required", interview.ErrValidation))
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", h.synthesizer.MIMEType())

	err := h.synthesizer.SynthesizeChunks(r.Context(), req.Text, func(audio []byte) error {
		if _, err := w.Write(audio); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are already out; all we can do is log and stop.
		slog.Error("streaming synthesis failed", "error", err)
	}
}

// mapNoRows converts a store-level missing row into the NotFound kind.
func mapNoRows(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", interview.ErrNotFound, entity)
	}
	return err
}
