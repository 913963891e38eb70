package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const meterPrompt = `Transcribe every number visible on this electricity meter photo.
The main register is a row of large digits, sometimes with the last digit on a red or
differently colored drum (that digit is tenths). Output the digits exactly as printed,
one value per line, keeping decimal separators. Output nothing but the numbers.`

const displayPrompt = `Transcribe all text visible on this charging station display photo.
Keep numbers exactly as shown, including decimal separators and units like kWh.`

// Gemini is the primary recognition engine.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini-backed engine.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Recognize sends the photo with a transcription prompt and returns the plain
// text response. Gemini reports no per-word confidence.
func (g *Gemini) Recognize(ctx context.Context, image []byte, hint Hint) (*Text, error) {
	prompt := displayPrompt
	if hint == HintMeter {
		prompt = meterPrompt
	}

	parts := []genai.Part{
		genai.ImageData("jpeg", image),
		genai.Text(prompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
			sb.WriteString("\n")
		}
	}

	return &Text{Text: strings.TrimSpace(sb.String())}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
