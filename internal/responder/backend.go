package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

// BackendClient forwards the latest user request to the task backend's
// agent-process endpoint. Non-2xx responses and malformed JSON are failures
// so the chain can fall through to the next strategy.
type BackendClient struct {
	HTTPClient *http.Client
	BaseURL    string
}

type processRequest struct {
	Request string `json:"request"`
}

type processResponse struct {
	Response string `json:"response"`
}

func NewBackendClient(baseURL string) *BackendClient {
	return &BackendClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Respond implements agent.Responder.
func (b *BackendClient) Respond(ctx context.Context, turns []agent.Turn) (string, error) {
	if b.BaseURL == "" {
		return "", fmt.Errorf("backend url missing")
	}
	request := lastUserText(turns)
	if strings.TrimSpace(request) == "" {
		return "", fmt.Errorf("backend: no user text in context")
	}

	reqBody, _ := json.Marshal(processRequest{Request: request})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/agent/process", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("backend error: status=%d body=%s", resp.StatusCode, string(body))
	}
	var pr processResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("backend decode: %w", err)
	}
	if strings.TrimSpace(pr.Response) == "" {
		return "", fmt.Errorf("backend: empty response field")
	}
	return pr.Response, nil
}
