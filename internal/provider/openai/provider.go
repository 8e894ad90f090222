package openai

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
)

// Provider implements the chat-completions wire format. Besides OpenAI
// itself it serves any compatible upstream (Mistral, Perplexity) when
// constructed with that provider's name, model, and base URL.
type Provider struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	headers      map[string]string
	client       *http.Client
	chatURL      string
}

// New creates a chat-completions adapter for the named provider.
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
		baseURL:      baseURL,
		defaultModel: model,
		headers:      cfg.Headers,
		client:       client,
		chatURL:      baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Generate issues a chat completion and maps it to the canonical result.
func (p *Provider) Generate(ctx context.Context, req provider.GenerationRequest) (*provider.GenerationResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotConfigured, p.name)
	}

	payload := buildChatPayload(p.defaultModel, req)

	httpReq, err := p.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat request failed: %w", p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(p.name, httpResp)
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toResult(p.name)
}

func (p *Provider) newRequest(ctx context.Context, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatPayload(model string, req provider.GenerationRequest) chatPayload {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatPayload{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		v := req.MaxTokens
		payload.MaxTokens = &v
	}
	return payload
}

type chatResponse struct {
	ID      string         `json:"id"`
	Choices []chatChoice   `json:"choices"`
	Usage   map[string]any `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

func (r chatResponse) toResult(providerName string) (*provider.GenerationResult, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("%s response did not include choices", providerName)
	}

	choice := r.Choices[0]
	return &provider.GenerationResult{
		Output:       choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        r.Usage,
	}, nil
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(providerName string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("%s error (%s): %s", providerName, apiErr.Error.Type, apiErr.Error.Message)
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
