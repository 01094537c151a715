package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// AnalystSystemPrompt frames both the classification and the processing calls.
const AnalystSystemPrompt = "You are a document analysis assistant for a wealth management firm. You read documents and answer only with the JSON the instructions ask for."

// VertexInvoker sends prompts to a Gemini model on Vertex AI.
type VertexInvoker struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexInvoker creates an invoker for modelName in the given project and region.
func NewVertexInvoker(ctx context.Context, projectID, region, modelName string) (*VertexInvoker, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexInvoker: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnalystSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexInvoker{model: model, baseClient: baseClient}, nil
}

// Invoke returns the raw *genai.GenerateContentResponse.
func (v *VertexInvoker) Invoke(ctx context.Context, prompt string) (any, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("vertex GenerateContent: %w", err)
	}
	return resp, nil
}

func (v *VertexInvoker) Close() error {
	if v.baseClient != nil {
		return v.baseClient.Close()
	}
	return nil
}
