// Package vision is the text-extraction capability boundary: it turns a
// photographed problem into text the pipeline can work with.
package vision

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// Result is the outcome of one extraction.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Extractor converts raw image bytes into problem text.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (Result, error)
}

const extractPrompt = `Transcribe the homework problem in this image exactly.
Write mathematical notation as inline LaTeX. Output only the problem text,
no commentary.`

// GeminiExtractor extracts problem text with a Gemini vision model. Images
// are orientation-normalized before upload so sideways photos still read.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor. model may be empty for the
// default.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, errors.New("vision: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

func (e *GeminiExtractor) ExtractText(ctx context.Context, image []byte) (Result, error) {
	normalized, mimeType := NormalizeOrientation(image)

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: normalized}},
			{Text: extractPrompt},
		},
	}}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return Result{}, err
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	extracted := strings.TrimSpace(text.String())
	if extracted == "" {
		return Result{}, errors.New("vision: model returned no text")
	}
	return Result{Text: extracted, Confidence: 1.0}, nil
}

// StaticExtractor returns a fixed result. Used in local runs without a vision
// key and in tests.
type StaticExtractor struct {
	Text string
}

func (s *StaticExtractor) ExtractText(ctx context.Context, image []byte) (Result, error) {
	return Result{Text: s.Text, Confidence: 1.0}, nil
}
