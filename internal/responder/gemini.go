package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the generative-language API directly when an API key is
// configured, bypassing the task backend. Failures are reported as literal
// diagnostic replies rather than errors so the conversation keeps flowing.
type GeminiClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &GeminiClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    defaultGeminiBaseURL,
		APIKey:     apiKey,
		Model:      model,
	}
}

// Respond maps the bounded history to Gemini contents (assistant turns as
// "model") with the newest user text last, and extracts the first
// candidate's text. Shape deviations come back as diagnostic reply strings.
func (g *GeminiClient) Respond(ctx context.Context, turns []agent.Turn) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("gemini api key missing")
	}
	request := lastUserText(turns)
	if strings.TrimSpace(request) == "" {
		return "", fmt.Errorf("gemini: no user text in context")
	}

	contents := make([]geminiContent, 0, len(turns))
	for _, t := range turns[:len(turns)-1] {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := "user"
		if t.Role == agent.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: request}}})

	reqBody, _ := json.Marshal(geminiGenerateRequest{
		Contents:         contents,
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: 2048, Temperature: 0.7},
	})
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, url.QueryEscape(g.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Gemini failed: %v. Check network and GEMINI_API_KEY.", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Sprintf("Gemini error (%d): %s. Check API key and model (%s).", resp.StatusCode, string(b), g.Model), nil
	}
	var gr geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "No response from Gemini.", nil
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "No response from Gemini.", nil
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}
