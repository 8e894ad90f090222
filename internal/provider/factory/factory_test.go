package factory

import (
	"testing"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/provider"
)

func TestRegisterConfiguredProviders(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.RequestTimeoutSeconds = 5

	registry := provider.NewRegistry()
	if err := RegisterConfiguredProviders(cfg, registry); err != nil {
		t.Fatalf("register providers: %v", err)
	}

	want := []string{"openai", "anthropic", "google", "mistral", "perplexity"}
	got := registry.IDs()
	if len(got) != len(want) {
		t.Fatalf("registered %d providers, want %d: %v", len(got), len(want), got)
	}
	for i, id := range want {
		if got[i] != id {
			t.Errorf("provider %d = %q, want %q", i, got[i], id)
		}
	}

	for _, id := range want {
		p, err := registry.Lookup(id)
		if err != nil {
			t.Errorf("lookup %s: %v", id, err)
			continue
		}
		if p.Name() != id {
			t.Errorf("provider name = %q, want %q", p.Name(), id)
		}
	}
}

func TestRegisterRequiresRegistry(t *testing.T) {
	if err := RegisterConfiguredProviders(config.Config{}, nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}
