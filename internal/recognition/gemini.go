package recognition

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-validator/internal/imaging"
)

// Gemini implements the Recognizer interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel

	mu     sync.RWMutex
	closed bool
}

// NewGemini creates a new Gemini Recognizer instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Name returns the engine name
func (g *Gemini) Name() string { return "gemini" }

// Recognize transcribes a receipt image
func (g *Gemini) Recognize(ctx context.Context, imageData []byte, contentType string) (*Text, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, &Error{Op: "recognize", Err: ErrClosed}
	}
	if len(imageData) == 0 {
		return nil, &Error{Op: "recognize", Err: ErrEmptyImage}
	}

	start := time.Now()

	pngData, err := imaging.PrepareForUpload(imageData, contentType, imaging.DefaultMaxDimension)
	if err != nil {
		return nil, &Error{Op: "prepare image", Err: err}
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", pngData),
		genai.Text(transcriptionPrompt),
	)
	if err != nil {
		return nil, &Error{Op: "generate content", Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Op: "generate content", Err: fmt.Errorf("no response from gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text, err := parseTranscriptionJSON(responseText.String())
	if err != nil {
		return nil, &Error{Op: "parse response", Err: err}
	}
	text.Elapsed = time.Since(start)
	return text, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.client.Close()
}
