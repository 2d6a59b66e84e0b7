package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Image references the receipt picture submitted with an Input.
// Data takes precedence over URI when both are set.
type Image struct {
	Data        []byte `json:"-"`
	URI         string `json:"uri,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// IsEmpty reports whether the image carries neither bytes nor a URI
func (i Image) IsEmpty() bool {
	return len(i.Data) == 0 && i.URI == ""
}

// Input is the user-declared receipt record being validated
type Input struct {
	Merchant    string          `json:"merchant"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Image       Image           `json:"image"`
}

// Extracted is the best-effort structured guess derived from recognized text.
// Every field is optional; a missing field lowers confidence but is never an error.
type Extracted struct {
	Merchant string           `json:"merchant,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Tax      *decimal.Decimal `json:"tax,omitempty"`
	Date     *time.Time       `json:"date,omitempty"`
	Items    []string         `json:"items,omitempty"`
}

// Amount returns the total if present, else the subtotal
func (e *Extracted) Amount() *decimal.Decimal {
	if e == nil {
		return nil
	}
	if e.Total != nil {
		return e.Total
	}
	return e.Subtotal
}

// Outcome tags how a validation run terminated
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeRecognitionFailed Outcome = "recognition_failed"
	OutcomeErrorCaught       Outcome = "error_caught"
)

// Result is the final verdict of one validation run
type Result struct {
	ID              string     `json:"id"`
	Valid           bool       `json:"isValid"`
	Confidence      float64    `json:"confidence"`
	RiskScore       float64    `json:"riskScore"`
	Flags           []Flag     `json:"flags"`
	Extracted       *Extracted `json:"extractedData,omitempty"`
	Recommendations []string   `json:"recommendations"`
	Outcome         Outcome    `json:"outcome"`
	ValidatedAt     time.Time  `json:"validatedAt"`
}

// HasFlag reports whether a flag with the given code was raised
func (r *Result) HasFlag(code string) bool {
	for _, f := range r.Flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Assessment is the contribution of a single check to a validation run.
// Confidence is a multiplier applied to the running confidence; Risk is added
// to the running risk score.
type Assessment struct {
	Confidence float64
	Risk       float64
	Flags      []Flag
}

// NewAssessment returns a neutral assessment
func NewAssessment() Assessment {
	return Assessment{Confidence: 1}
}

// Raise appends a flag and applies its confidence multiplier and risk
func (a *Assessment) Raise(f Flag, confidence, risk float64) {
	a.Flags = append(a.Flags, f)
	a.Confidence *= confidence
	a.Risk += risk
}

// Merge folds another assessment into this one
func (a *Assessment) Merge(o Assessment) {
	a.Flags = append(a.Flags, o.Flags...)
	a.Confidence *= o.Confidence
	a.Risk += o.Risk
}

// Clamp limits v to the closed interval [0, 1]
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
