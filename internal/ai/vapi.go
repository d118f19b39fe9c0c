package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrVapiNotConfigured = errors.New("vapi: missing API URL or key")

type vapiRequest struct {
	Text string `json:"text"`
}

// VapiProvider posts transcripts to a Vapi voice-agent HTTP endpoint.
type VapiProvider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewVapiProvider builds a provider. A zero timeout means 10s. Missing
// credentials are reported per call so the interpreter can fall back.
func NewVapiProvider(url, apiKey string, timeout time.Duration) *VapiProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VapiProvider{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// ParseUserIntent sends {"text": ...} and decodes the agent JSON reply.
func (p *VapiProvider) ParseUserIntent(ctx context.Context, userMessage string, _ map[string]string) (*IntentResult, error) {
	if p.url == "" || p.apiKey == "" {
		return nil, ErrVapiNotConfigured
	}

	reqBody, err := json.Marshal(vapiRequest{Text: userMessage})
	if err != nil {
		return nil, fmt.Errorf("vapi: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("vapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vapi: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("vapi: request failed: %d %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result IntentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("vapi: unmarshal response: %w", err)
	}
	return &result, nil
}
