package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements Provider against Google's generateContent REST API.
// No official Go SDK is used; the v1beta wire format is small enough to
// speak directly.
type Gemini struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

var _ Provider = (*Gemini)(nil)

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, model string, maxTokens int) *Gemini {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gemini{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   geminiDefaultBaseURL,
		client:    http.DefaultClient,
	}
}

func (g *Gemini) Name() string {
	return fmt.Sprintf("Gemini (%s)", g.model)
}

func (g *Gemini) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	body := map[string]any{
		"contents": []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		"systemInstruction": map[string]any{
			"parts": []part{{Text: systemPrompt}},
		},
		// Plans must be reproducible, so sampling is pinned off.
		"generationConfig": map[string]any{
			"temperature":     0.0,
			"maxOutputTokens": g.maxTokens,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", wrapTransportErr("gemini", ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransportErr("gemini", ctx, err)
	}

	if svcErr := serviceErrorFromStatus("gemini", resp.StatusCode, string(respBody)); svcErr != nil {
		return "", svcErr
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("gemini parse error: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no content")
	}

	var text string
	for _, p := range result.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
