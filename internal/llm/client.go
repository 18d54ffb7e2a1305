// Package llm provides the single model-calling seam every worker that
// needs a language model goes through: Scribe (test authoring), Medic
// (diagnosis + patch generation), and Gemini (optional screenshot
// analysis). Concrete LLM vendor envelopes are a non-goal of the
// orchestrator itself (§1); this package is the adapter boundary that
// keeps that true, mirroring the teacher's perception.LLMClient shape.
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"kaya/internal/logging"
)

// Client is the model-calling contract every worker depends on.
type Client interface {
	// Complete sends systemPrompt + prompt to the model identified by
	// modelID and returns its raw text response.
	Complete(ctx context.Context, modelID, systemPrompt, prompt string) (string, error)
}

// GenAIClient calls Google's Gemini models via google.golang.org/genai,
// the same SDK the teacher already vendors for embeddings
// (internal/embedding/genai.go).
type GenAIClient struct {
	client *genai.Client
}

// NewGenAIClient creates a Client backed by the GenAI API.
func NewGenAIClient(ctx context.Context, apiKey string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAIClient{client: client}, nil
}

// Complete implements Client.
func (c *GenAIClient) Complete(ctx context.Context, modelID, systemPrompt, prompt string) (string, error) {
	log := logging.Get(logging.CategoryGemini)
	timer := logging.StartTimer(logging.CategoryGemini, "GenAIClient.Complete")
	defer timer.Stop()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, modelID, contents, cfg)
	latency := time.Since(start)
	if err != nil {
		log.Error("genai GenerateContent failed after %v: %v", latency, err)
		return "", fmt.Errorf("genai generate content: %w", err)
	}
	log.Debug("genai GenerateContent completed in %v (model=%s)", latency, modelID)
	return result.Text(), nil
}

// StaticClient is a deterministic, networkless Client used wherever a
// worker needs a model call but none of the real-vendor tiers in the
// Router's policy (cheap-tier, expensive-tier, vision-tier) resolve to a
// configured API key — unit tests and offline operation, in particular.
// It never errors; it returns the fixed response configured for the
// model ID so callers downstream (JSON parsing, confidence floors) behave
// predictably.
type StaticClient struct {
	// Responses, keyed by modelID, holds the reply returned for that tier.
	// A nil map or a missing entry yields an empty string.
	Responses map[string]string
}

// Complete implements Client.
func (c *StaticClient) Complete(ctx context.Context, modelID, systemPrompt, prompt string) (string, error) {
	if c.Responses != nil {
		if r, ok := c.Responses[modelID]; ok {
			return r, nil
		}
	}
	return "", nil
}
