package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "aihub-gateway/0.1"
)

// Provider implements the Gemini generateContent API. Gemini authenticates
// via a key query parameter rather than an Authorization header.
type Provider struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	headers      map[string]string
	client       *http.Client
}

// New constructs a Gemini adapter.
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
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Generate issues a generateContent call and flattens candidate parts.
func (p *Provider) Generate(ctx context.Context, req provider.GenerationRequest) (*provider.GenerationResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotConfigured, p.name)
	}

	payload := buildGeneratePayload(req)

	httpReq, err := p.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var providerResp generateResponse
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

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, p.defaultModel, url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type generatePayload struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

func buildGeneratePayload(req provider.GenerationRequest) generatePayload {
	parts := make([]part, 0, 2)
	if req.SystemPrompt != "" {
		parts = append(parts, part{Text: req.SystemPrompt})
	}
	parts = append(parts, part{Text: req.Prompt})

	payload := generatePayload{
		Contents: []content{{Role: "user", Parts: parts}},
	}

	if req.Temperature != nil || req.MaxTokens > 0 {
		payload.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	return payload
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata map[string]any `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

func (r generateResponse) toResult() *provider.GenerationResult {
	var text strings.Builder
	var finishReason string
	if len(r.Candidates) > 0 {
		finishReason = r.Candidates[0].FinishReason
		for _, p := range r.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}

	return &provider.GenerationResult{
		Output:       text.String(),
		FinishReason: finishReason,
		Usage:        r.UsageMetadata,
	}
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("google error (%s): %s", apiErr.Error.Status, apiErr.Error.Message)
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
