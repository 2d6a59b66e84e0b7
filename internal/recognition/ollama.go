package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zombor/receipt-validator/internal/imaging"
)

// Ollama implements the Recognizer interface using a local Ollama vision model
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	closed  atomic.Bool
}

// NewOllama creates a new Ollama Recognizer instance
// Recommended models for receipt transcription:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		// Deadlines come from the caller's context
		client: &http.Client{},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Name returns the engine name
func (o *Ollama) Name() string { return "ollama" }

// Recognize transcribes a receipt image
func (o *Ollama) Recognize(ctx context.Context, imageData []byte, contentType string) (*Text, error) {
	if o.closed.Load() {
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

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts. You transcribe printed text exactly and never invent content.",
			},
			{
				Role:    "user",
				Content: transcriptionPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Op: "marshal request", Err: err}
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &Error{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Op: "call ollama", Err: ctxErr}
		}
		return nil, &Error{Op: "call ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Op: "call ollama", Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &Error{Op: "decode response", Err: err}
	}

	text, err := parseTranscriptionJSON(chatResp.Message.Content)
	if err != nil {
		return nil, &Error{Op: "parse response", Err: err}
	}
	text.Elapsed = time.Since(start)
	return text, nil
}

// Close marks the recognizer closed; the HTTP client holds no engine state
func (o *Ollama) Close() error {
	o.closed.Store(true)
	o.client.CloseIdleConnections()
	return nil
}
