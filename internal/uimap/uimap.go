// Package uimap holds the fixed translation between the UI's model ids and
// the backend provider ids. The table must stay in sync with the web client
// by convention.
package uimap

import "fmt"

// Table is a validated two-way enumeration of UI and provider ids.
type Table struct {
	toProvider map[string]string
	toUI       map[string]string
}

var pairs = map[string]string{
	"gpt":    "openai",
	"claude": "anthropic",
	"gemini": "google",
	"grok":   "perplexity",
}

// New builds the translation table and verifies it is a bijection: every
// backend id has exactly one UI id and vice versa.
func New() (*Table, error) {
	t := &Table{
		toProvider: make(map[string]string, len(pairs)),
		toUI:       make(map[string]string, len(pairs)),
	}

	for ui, backend := range pairs {
		if existing, ok := t.toProvider[ui]; ok {
			return nil, fmt.Errorf("ui id %q maps to both %q and %q", ui, existing, backend)
		}
		if existing, ok := t.toUI[backend]; ok {
			return nil, fmt.Errorf("provider id %q maps to both %q and %q", backend, existing, ui)
		}
		t.toProvider[ui] = backend
		t.toUI[backend] = ui
	}

	return t, nil
}

// Normalize maps a UI model id to its backend provider id. Ids already in
// backend form, or entirely unknown, pass through untouched so the
// dispatcher can resolve or reject them.
func (t *Table) Normalize(id string) string {
	if backend, ok := t.toProvider[id]; ok {
		return backend
	}
	return id
}

// ToUI maps a backend provider id back to its UI id.
func (t *Table) ToUI(providerID string) (string, bool) {
	ui, ok := t.toUI[providerID]
	return ui, ok
}

// ToProvider maps a UI id to its backend provider id.
func (t *Table) ToProvider(uiID string) (string, bool) {
	backend, ok := t.toProvider[uiID]
	return backend, ok
}

// UIIDs lists the supported UI model ids.
func (t *Table) UIIDs() []string {
	out := make([]string, 0, len(t.toProvider))
	for ui := range t.toProvider {
		out = append(out, ui)
	}
	return out
}
