package recognition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// transcriptionPrompt is the shared prompt used by all LLM providers for reading receipts
const transcriptionPrompt = `You are an OCR engine reading a photo or scan of a receipt. Transcribe ALL text printed on the receipt exactly as it appears, top to bottom, one printed line per output line.

Rules:
- Do not summarize, translate, correct or reorder anything
- Keep currency symbols, decimal points, dates and times exactly as printed
- Separate printed lines with "\n"
- Estimate how legible the receipt was as a number between 0 and 1

Return ONLY valid JSON in this exact format:
{
  "text": "FIRST LINE\nSECOND LINE",
  "confidence": 0.0
}

If the image is not a receipt or is unreadable, return the text you can read (possibly empty) and a low confidence.
Do not include any text before or after the JSON. Do not use markdown code blocks.`

type transcription struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseTranscriptionJSON parses the JSON response of an LLM recognizer
func parseTranscriptionJSON(text string) (*Text, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data transcription
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	// Models without a self-assessment get a neutral score
	confidence := 0.5
	if data.Confidence != nil {
		confidence = *data.Confidence
		// Some models answer on a 0-100 scale
		if confidence > 1 {
			confidence /= 100
		}
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Text{
		Raw:        strings.ReplaceAll(data.Text, "\r\n", "\n"),
		Confidence: confidence,
	}, nil
}
