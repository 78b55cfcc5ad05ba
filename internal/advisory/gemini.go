package advisory

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini generates advisories with the Gemini API.
type Gemini struct {
	Client *genai.Client
	Model  string
}

// NewGemini builds a Gemini API client. baseURL overrides the API endpoint
// and is left empty outside tests.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrDisabled)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{Client: client, Model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, statusCode int) (string, error) {
	return g.Complete(ctx, StatusPrompt(statusCode))
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.Client == nil {
		return "", fmt.Errorf("gemini: %w", ErrDisabled)
	}
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), nil)
	if err != nil {
		if geminiStatus(err) == http.StatusTooManyRequests {
			return "", fmt.Errorf("gemini: %w", ErrRateLimited)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	return clean(resp.Text())
}

// geminiStatus returns the HTTP code carried by an API error, 0 otherwise.
func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
