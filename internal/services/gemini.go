// Gemini implementation of [Generator]
//
// Request/response shapes follow the generative-language REST API:
// https://ai.google.dev/api/generate-content
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"soundshift/internal/shared"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// GeminiService implements [Generator] against the generative-language REST
// endpoint. Single-shot prompt/completion only, no chat state.
type GeminiService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiService creates a Gemini client for the given API key and model.
func NewGeminiService(apiKey, model, baseURL string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", shared.ErrMissingCredentials)
	}
	if model == "" {
		model = "gemini-pro"
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}

	return &GeminiService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}, nil
}

func (g *GeminiService) Name() string {
	return "Gemini"
}

// SetHTTPClient overrides the HTTP client (used by tests).
func (g *GeminiService) SetHTTPClient(client *http.Client) {
	g.httpClient = client
}

// GenerateText sends one prompt and returns the concatenated text of the
// first candidate. The reply is free-form; callers extract structure.
func (g *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: generative API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", shared.ErrAPIRequest)
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
