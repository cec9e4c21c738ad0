package studio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"celebSnap/internal/generator"
	"celebSnap/internal/media"
	"celebSnap/internal/prompts"
	"celebSnap/internal/watermark"
)

const (
	// FieldExactCharacter is the optional checkbox asking for real-person likeness.
	FieldExactCharacter = "exact_character"
	// FieldCharacter optionally selects the companion ("billgates" or "joker").
	FieldCharacter      = "character"
	fieldCharacterType  = "character_type"
)

// Error kinds as they appear in JSON payloads.
const (
	KindValidation = "validation"
	KindQuota      = "quota-exceeded"
	KindTimeout    = "upstream-timeout"
	KindUpstream   = "upstream-error"
)

// Generator is the part of Service the handler needs.
type Generator interface {
	Generate(ctx context.Context, session *media.Session, opts Options) (Result, error)
}

// Handler exposes the studio over HTTP.
type Handler struct {
	Studio Generator
	Limits media.Limits
}

type imagePayload struct {
	Scene     prompts.Scene `json:"scene"`
	Label     string        `json:"label"`
	MIME      string        `json:"mime"`
	Data      string        `json:"data"`
	Watermark string        `json:"watermark"`
}

type sceneErrorPayload struct {
	Scene   prompts.Scene `json:"scene"`
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
}

type generateResponse struct {
	RequestID string              `json:"request_id"`
	Status    string              `json:"status"`
	Images    []imagePayload      `json:"images"`
	Errors    []sceneErrorPayload `json:"errors,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Generate handles POST /api/generate.
func (h Handler) Generate(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	if h.Studio == nil {
		writeError(w, http.StatusServiceUnavailable, KindUpstream, "image generation inactive")
		return
	}

	limits := h.Limits
	if limits == (media.Limits{}) {
		limits = media.DefaultLimits()
	}
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBodyBytes())

	session, err := media.ParseUpload(r, limits)
	if err != nil {
		logger.Info().Err(err).Msg("upload rejected")
		status, kind := classify(err)
		writeError(w, status, kind, err.Error())
		return
	}
	defer session.Release()

	character := session.Value(FieldCharacter)
	if character == "" {
		character = session.Value(fieldCharacterType)
	}
	companion, err := prompts.ParseCompanion(character)
	if err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, err.Error())
		return
	}
	opts := Options{
		Likeness:  media.ParseFlag(session.Value(FieldExactCharacter)),
		Companion: companion,
	}
	logger.Info().
		Str("session", session.ID).
		Int("references", session.Len()).
		Bool("likeness", opts.Likeness).
		Str("companion", string(opts.Companion)).
		Msg("generation started")

	result, err := h.Studio.Generate(r.Context(), session, opts)
	if err != nil {
		status, kind := classify(err)
		logger.Warn().Err(err).Str("kind", kind).Msg("generation failed")
		writeError(w, status, kind, err.Error())
		return
	}

	resp := generateResponse{
		RequestID: session.ID,
		Status:    "ok",
		Images:    make([]imagePayload, 0, len(result.Images)),
	}
	if result.Partial() {
		resp.Status = "partial"
	}
	for _, img := range result.Images {
		resp.Images = append(resp.Images, imagePayload{
			Scene:     img.Scene,
			Label:     img.Scene.Label(),
			MIME:      img.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(img.Data),
			Watermark: watermark.DefaultText,
		})
	}
	for _, f := range result.Failures {
		_, kind := classify(f.Err)
		resp.Errors = append(resp.Errors, sceneErrorPayload{Scene: f.Scene, Kind: kind, Message: errorMessage(f.Err)})
	}

	logger.Info().
		Str("session", session.ID).
		Str("status", resp.Status).
		Int("images", len(resp.Images)).
		Msg("generation finished")
	writeJSON(w, http.StatusOK, resp)
}

// Scenes handles GET /api/scenes.
func (h Handler) Scenes(w http.ResponseWriter, _ *http.Request) {
	type scene struct {
		ID    prompts.Scene `json:"id"`
		Label string        `json:"label"`
	}
	scenes := prompts.Scenes()
	out := make([]scene, 0, len(scenes))
	for _, s := range scenes {
		out = append(out, scene{ID: s, Label: s.Label()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": out})
}

// classify maps an error to its HTTP status and payload kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, KindValidation
	case errors.Is(err, media.ErrInvalidInput):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, generator.ErrQuota):
		return http.StatusTooManyRequests, KindQuota
	case errors.Is(err, generator.ErrTimeout):
		return http.StatusGatewayTimeout, KindTimeout
	default:
		return http.StatusBadGateway, KindUpstream
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
