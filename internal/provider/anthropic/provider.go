package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "aihub-gateway/0.1"
	apiVersion      = "2023-06-01"

	// The messages API requires max_tokens; applied when the request
	// leaves it unset, matching the original backend's fallback.
	defaultMaxTokens = 512
)

// Provider implements Anthropic messages API interactions.
type Provider struct {
	name         string
	apiKey       string
	defaultModel string
	headers      map[string]string
	client       *http.Client
	messagesURL  string
}

// New constructs an Anthropic adapter.
func New(name string, cfg config.ProviderConfig, defaults provider.Defaults, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(defaults.BaseURL, "/")
	}
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	model := cfg.Model
	if model == "" {
		model = defaults.Model
	}
	if model == "" {
		return nil, errors.New("default model must not be empty")
	}

	return &Provider{
		name:         name,
		apiKey:       cfg.APIKey,
		defaultModel: model,
		headers:      cfg.Headers,
		client:       client,
		messagesURL:  baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Generate issues a messages call and flattens the content blocks.
func (p *Provider) Generate(ctx context.Context, req provider.GenerationRequest) (*provider.GenerationResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotConfigured, p.name)
	}

	payload := buildMessagePayload(p.defaultModel, req)

	httpReq, err := p.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var providerResp messageResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toResult(), nil
}

func (p *Provider) newRequest(ctx context.Context, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type messagePayload struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessagePayload(model string, req provider.GenerationRequest) messagePayload {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return messagePayload{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
}

type messageResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      map[string]any `json:"usage,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (r messageResponse) toResult() *provider.GenerationResult {
	var text strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &provider.GenerationResult{
		Output:       text.String(),
		FinishReason: r.StopReason,
		Usage:        r.Usage,
	}
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("anthropic error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
	}

	return fmt.Errorf("upstream error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
