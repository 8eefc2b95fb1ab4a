package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// systemPrompt constrains the model to the retrieved policy context so that
// refusals are detectable rather than hallucinated answers.
const systemPrompt = "You are a policy assistant. Answer ONLY using the provided policy context. " +
	"If the answer is not in the context, say you couldn't find it."

// Gemini is a completion client over the Google Generative AI API.
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini creates a Gemini completion client with the policy-assistant
// system instruction installed.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.SetTemperature(0.2)

	return &Gemini{model: model}, nil
}

// Complete asks the model to answer the question using the given context
// block and returns the plain-text answer.
func (g *Gemini) Complete(ctx context.Context, question, contextBlock string) (string, error) {
	prompt := fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nAnswer concisely:", question, contextBlock)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	return extractText(resp), nil
}

// extractText flattens the first candidate's text parts into a single string.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}
