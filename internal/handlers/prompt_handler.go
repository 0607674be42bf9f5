package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/superfun/draw-backend/internal/transcribe"
)

// PromptImprover is the slice of the generation client the prompt endpoints
// need.
type PromptImprover interface {
	ImprovePrompt(ctx context.Context, basePrompt string) (string, error)
}

// PromptHandler helps users arrive at a good drawing prompt: speech to text
// for spoken ideas, and model-assisted rewording for rough ones.
type PromptHandler struct {
	transcriber *transcribe.PromptTranscriber
	improver    PromptImprover
	validator   *validator.Validate
}

func NewPromptHandler(transcriber *transcribe.PromptTranscriber, improver PromptImprover) *PromptHandler {
	return &PromptHandler{
		transcriber: transcriber,
		improver:    improver,
		validator:   validator.New(),
	}
}

type ImprovePromptRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000" example:"dragon"`
}

// Transcribe converts spoken audio into a drawing prompt
// @Summary Transcribe a spoken prompt
// @Description Convert recorded audio into prompt text
// @Tags prompts
// @Accept json
// @Produce json
// @Param request body transcribe.Request true "Audio payload"
// @Success 200 {object} transcribe.Response "Transcription"
// @Failure 400 {string} string "Invalid request"
// @Failure 500 {string} string "Transcription failed"
// @Router /prompts/transcribe [post]
func (h *PromptHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	email, ok := emailFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	// audio payloads are much bigger than the usual request cap
	maxBytes := 10 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req transcribe.Request
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	req.Normalize()

	start := time.Now()
	prompt, confidence, err := h.transcriber.Transcribe(r.Context(), req)
	if err != nil {
		log.Printf("[TRANSCRIBE] Transcription failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to transcribe audio", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSCRIBE] Transcription for %s, confidence: %.2f", email, confidence)
	sendJSON(w, transcribe.Response{
		Prompt:     prompt,
		Confidence: confidence,
		Duration:   time.Since(start).Seconds(),
	})
}

// Improve rewrites a rough prompt into one that draws well
// @Summary Improve a prompt
// @Description Rewrite a rough prompt into a concrete coloring page prompt
// @Tags prompts
// @Accept json
// @Produce json
// @Param request body ImprovePromptRequest true "Prompt to improve"
// @Success 200 {object} map[string]string "Improved prompt"
// @Failure 400 {string} string "Invalid request"
// @Failure 502 {string} string "Generation API unavailable"
// @Router /prompts/improve [post]
func (h *PromptHandler) Improve(w http.ResponseWriter, r *http.Request) {
	if _, ok := emailFromContext(r.Context()); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ImprovePromptRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	improved, err := h.improver.ImprovePrompt(r.Context(), req.Prompt)
	if err != nil {
		log.Printf("[PROMPT] Improve failed: %v", err)
		SendErrorResponse(w, "Failed to improve prompt", http.StatusBadGateway, nil)
		return
	}

	sendJSON(w, map[string]string{"prompt": improved})
}
