// Package dispatch fans a canonical chat request out to the selected
// provider adapters and aggregates the settled results.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aihub-gateway/internal/models"
	"aihub-gateway/internal/provider"
	"aihub-gateway/internal/store"
	"aihub-gateway/internal/uimap"
)

// Session prompts carry at most this many prior user turns as context.
const contextWindowMessages = 5

// Dispatcher coordinates concurrent provider calls for one request.
type Dispatcher struct {
	registry *provider.Registry
	table    *uimap.Table
	sessions store.Store
}

// New constructs a dispatcher backed by the registry, id translation table,
// and session store.
func New(registry *provider.Registry, table *uimap.Table, sessions store.Store) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		table:    table,
		sessions: sessions,
	}
}

// Dispatch invokes every requested provider concurrently and waits for all
// of them to settle. It always returns exactly one record per requested
// model, in request order; per-provider failures are reported inline and
// never abort the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.ChatRequest) models.ChatResponse {
	ids := dedupe(req.Models)
	records := make([]models.ModelResponse, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(slot int, requested string) {
			defer wg.Done()
			records[slot] = d.invoke(ctx, requested, req)
		}(i, id)
	}
	wg.Wait()

	return models.ChatResponse{Responses: records}
}

// DispatchToSession validates the session, records the user turn, fans out
// with a context-augmented prompt, and records the assistant turn with the
// per-provider results attached.
func (d *Dispatcher) DispatchToSession(ctx context.Context, sessionID string, req models.AddMessageRequest) (models.ChatResponse, error) {
	session, err := d.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return models.ChatResponse{}, err
	}

	userMsg := models.ChatMessage{
		Role:      "user",
		Content:   req.Prompt,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := d.sessions.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return models.ChatResponse{}, err
	}

	chatReq := req.ChatRequest()
	chatReq.Prompt = buildContextPrompt(session.Messages, req.Prompt)

	resp := d.Dispatch(ctx, chatReq)

	assistantMsg := models.ChatMessage{
		Role:           "assistant",
		Content:        chatReq.Prompt,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		ModelResponses: resp.Responses,
	}
	if err := d.sessions.AppendMessage(ctx, sessionID, assistantMsg); err != nil {
		return models.ChatResponse{}, err
	}

	return resp, nil
}

// invoke resolves and calls a single adapter, converting every failure mode
// into an inline error record. Latency covers the full adapter call,
// failure paths included.
func (d *Dispatcher) invoke(ctx context.Context, requested string, req models.ChatRequest) models.ModelResponse {
	providerID := d.table.Normalize(requested)

	p, err := d.registry.Lookup(providerID)
	if err != nil {
		return models.ModelResponse{
			Model: requested,
			Error: fmt.Sprintf("unknown provider %q", requested),
		}
	}

	start := time.Now()
	result, err := p.Generate(ctx, provider.GenerationRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		slog.Warn("provider call failed",
			"provider", providerID,
			"latency_ms", latency,
			"error", err,
		)
		return models.ModelResponse{
			Model:     requested,
			LatencyMS: latency,
			Error:     err.Error(),
		}
	}

	return models.ModelResponse{
		Model:        requested,
		Output:       result.Output,
		LatencyMS:    latency,
		FinishReason: result.FinishReason,
		Usage:        result.Usage,
	}
}

// buildContextPrompt prefixes the prompt with the session's recent user
// turns. Assistant turns are excluded to avoid echoing aggregated output
// back into every provider.
func buildContextPrompt(history []models.ChatMessage, prompt string) string {
	start := len(history) - contextWindowMessages
	if start < 0 {
		start = 0
	}

	var turns []string
	for _, msg := range history[start:] {
		if msg.Role == "user" {
			turns = append(turns, "User: "+msg.Content)
		}
	}
	if len(turns) == 0 {
		return prompt
	}

	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question: %s",
		strings.Join(turns, "\n\n"), prompt)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
