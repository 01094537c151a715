package gcp

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiInvoker sends prompts to the Gemini API with an API key. It is the
// backend for running outside Google Cloud.
type GeminiInvoker struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiInvoker creates an invoker for modelName.
func NewGeminiInvoker(ctx context.Context, apiKey, modelName string) (*GeminiInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = genai.NewUserContent(genai.Text(AnalystSystemPrompt))
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	return &GeminiInvoker{client: client, model: model}, nil
}

// Invoke returns the raw *genai.GenerateContentResponse.
func (g *GeminiInvoker) Invoke(ctx context.Context, prompt string) (any, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return resp, nil
}

// Close releases resources held by the client.
func (g *GeminiInvoker) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
