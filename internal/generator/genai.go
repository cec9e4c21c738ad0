package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"celebSnap/internal/media"
)

const defaultImageModel = "gemini-2.5-flash-image"

// GenAIConfig selects the Gemini API or Vertex AI backend.
type GenAIConfig struct {
	APIKey    string
	Model     string
	UseVertex bool
	Project   string
	Location  string
	// BaseURL overrides the API endpoint, e.g. for a regional proxy.
	BaseURL    string
	HTTPClient *http.Client
}

// GenAIBackend renders scenes with Gemini image models through the genai SDK.
// One instance is shared by all requests.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

// NewGenAIBackend constructs the shared genai client.
func NewGenAIBackend(ctx context.Context, cfg GenAIConfig) (*GenAIBackend, error) {
	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/")
	if model == "" {
		model = defaultImageModel
	}

	httpOpts := genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)}
	clientCfg := &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: httpOpts,
	}
	if cfg.UseVertex {
		clientCfg = &genai.ClientConfig{
			Backend:     genai.BackendVertexAI,
			Project:     cfg.Project,
			Location:    cfg.Location,
			HTTPClient:  cfg.HTTPClient,
			HTTPOptions: httpOpts,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("generator: create genai client: %w", err)
	}
	return &GenAIBackend{client: client, model: model}, nil
}

// Model returns the model identifier in use.
func (g *GenAIBackend) Model() string {
	return g.model
}

// Generate sends the references first and the prompt last, and returns the
// first inline image of the first candidate.
func (g *GenAIBackend) Generate(ctx context.Context, refs []media.Reference, prompt string) (Image, error) {
	if g == nil || g.client == nil {
		return Image{}, fmt.Errorf("%w: genai backend unavailable", ErrUpstream)
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		if len(ref.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	if err != nil {
		return Image{}, fmt.Errorf("generate content: %w", err)
	}
	return firstInlineImage(resp)
}

// firstInlineImage returns the first inline image of the first candidate.
// Later candidates are ignored.
func firstInlineImage(resp *genai.GenerateContentResponse) (Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return Image{}, fmt.Errorf("%w (no candidates)", ErrNoImage)
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if strings.TrimSpace(mime) == "" {
				mime = "image/png"
			}
			return Image{Data: part.InlineData.Data, MIMEType: mime}, nil
		}
	}

	if candidate.FinishReason != "" {
		return Image{}, fmt.Errorf("%w (finish reason %s)", ErrNoImage, candidate.FinishReason)
	}
	return Image{}, ErrNoImage
}
