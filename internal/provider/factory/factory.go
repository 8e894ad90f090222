package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/provider"
	anthropicProvider "aihub-gateway/internal/provider/anthropic"
	googleProvider "aihub-gateway/internal/provider/google"
	openaiProvider "aihub-gateway/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

var builtinDefaults = map[string]provider.Defaults{
	"openai":     {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
	"anthropic":  {BaseURL: "https://api.anthropic.com", Model: "claude-3-5-sonnet-latest"},
	"google":     {BaseURL: "https://generativelanguage.googleapis.com", Model: "gemini-1.5-pro"},
	"mistral":    {BaseURL: "https://api.mistral.ai/v1", Model: "mistral-large-latest"},
	"perplexity": {BaseURL: "https://api.perplexity.ai", Model: "llama-3.1-sonar-large-128k-online"},
}

// RegisterConfiguredProviders constructs all five adapters and stores them
// in the registry. Adapters without API keys still register; they answer
// each request with a not-configured error record instead.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	client := newHTTPClient(cfg.Server.RequestTimeout())

	openAI, err := openaiProvider.New("openai", cfg.Providers.OpenAI, builtinDefaults["openai"], client)
	if err != nil {
		return fmt.Errorf("initialise openai provider: %w", err)
	}

	anthropic, err := anthropicProvider.New("anthropic", cfg.Providers.Anthropic, builtinDefaults["anthropic"], client)
	if err != nil {
		return fmt.Errorf("initialise anthropic provider: %w", err)
	}

	google, err := googleProvider.New("google", cfg.Providers.Google, builtinDefaults["google"], client)
	if err != nil {
		return fmt.Errorf("initialise google provider: %w", err)
	}

	// Mistral and Perplexity speak the chat-completions wire format, so
	// they delegate to the openai adapter under their own names.
	mistral, err := openaiProvider.New("mistral", cfg.Providers.Mistral, builtinDefaults["mistral"], client)
	if err != nil {
		return fmt.Errorf("initialise mistral provider: %w", err)
	}

	perplexity, err := openaiProvider.New("perplexity", cfg.Providers.Perplexity, builtinDefaults["perplexity"], client)
	if err != nil {
		return fmt.Errorf("initialise perplexity provider: %w", err)
	}

	for _, p := range []provider.Provider{openAI, anthropic, google, mistral, perplexity} {
		if err := registry.Register(p); err != nil {
			return fmt.Errorf("register %s provider: %w", p.Name(), err)
		}
	}

	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
