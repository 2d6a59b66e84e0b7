// Package validation runs the receipt validation pipeline and serves it over HTTP.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zombor/receipt-validator/internal/checks"
	"github.com/zombor/receipt-validator/internal/extraction"
	"github.com/zombor/receipt-validator/internal/receipt"
	"github.com/zombor/receipt-validator/internal/recognition"
)

const (
	// RiskThreshold is the risk score at or above which a receipt is rejected
	RiskThreshold = 0.7
	// ConfidenceThreshold is the confidence at or below which a receipt is rejected
	ConfidenceThreshold = 0.3

	minTextLength = 10
)

// ErrNoImage is returned when the input carries neither image bytes nor a URI
var ErrNoImage = errors.New("receipt image is required")

// IDGenerator generates unique IDs for validation runs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// DuplicateChecker reports whether an image was submitted before
type DuplicateChecker interface {
	Check(ctx context.Context, data []byte, contentType string) (receipt.Assessment, bool)
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options tunes the pipeline
type Options struct {
	// RecognitionTimeout bounds a single recognizer call; zero disables it
	RecognitionTimeout time.Duration
	// SlowRecognition raises SLOW_PROCESSING when recognition takes longer; zero disables it
	SlowRecognition time.Duration
}

// DefaultOptions returns the options used by the service binary
func DefaultOptions() Options {
	return Options{
		RecognitionTimeout: 30 * time.Second,
		SlowRecognition:    10 * time.Second,
	}
}

// Service validates receipt submissions
type Service struct {
	recognizer  recognition.Recognizer
	duplicates  DuplicateChecker
	loader      receipt.Loader
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(recognizer recognition.Recognizer, duplicates DuplicateChecker, loader receipt.Loader, opts Options) *Service {
	return &Service{
		recognizer:  recognizer,
		duplicates:  duplicates,
		loader:      loader,
		opts:        opts,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(recognizer recognition.Recognizer, duplicates DuplicateChecker, loader receipt.Loader, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		recognizer:  recognizer,
		duplicates:  duplicates,
		loader:      loader,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Validate runs the full pipeline. The only error it returns is ErrNoImage;
// every other failure is reported through the result's flags.
func (s *Service) Validate(ctx context.Context, in receipt.Input) (*receipt.Result, error) {
	if in.Image.IsEmpty() {
		return nil, ErrNoImage
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	logger := slog.With("run_id", id)

	data, contentType, err := s.load(ctx, in.Image)
	var text *recognition.Text
	if err == nil {
		text, err = s.recognize(ctx, data, contentType)
	}
	if err != nil {
		logger.Error("Recognition failed", "error", err, "content_type", contentType, "file_size", len(data))
		result := failure(id, now, receipt.OutcomeRecognitionFailed,
			receipt.Error(receipt.CodeOCRFailed, fmt.Sprintf("Failed to process image with OCR: %v", err), receipt.SeverityHigh))
		logResult(logger, result)
		return result, nil
	}

	result := s.evaluate(ctx, logger, id, now, in, data, contentType, text)
	logResult(logger, result)
	return result, nil
}

// load resolves the image reference into bytes
func (s *Service) load(ctx context.Context, img receipt.Image) ([]byte, string, error) {
	if s.loader == nil {
		if len(img.Data) == 0 {
			return nil, "", recognition.Wrap("load image", fmt.Errorf("cannot resolve %q without a loader", img.URI))
		}
		return img.Data, img.ContentType, nil
	}
	data, contentType, err := s.loader.Load(ctx, img)
	if err != nil {
		return nil, "", recognition.Wrap("load image", err)
	}
	return data, contentType, nil
}

type recognized struct {
	text *recognition.Text
	err  error
}

// recognize calls the recognizer under the configured timeout. The wait is
// bounded even when the recognizer ignores its context.
func (s *Service) recognize(ctx context.Context, data []byte, contentType string) (*recognition.Text, error) {
	if s.opts.RecognitionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RecognitionTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan recognized, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- recognized{err: fmt.Errorf("recognizer panicked: %v", r)}
			}
		}()
		text, err := s.recognizer.Recognize(ctx, data, contentType)
		done <- recognized{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, recognition.Wrap("recognize", out.err)
		}
		if out.text == nil {
			return nil, recognition.Wrap("recognize", errors.New("recognizer returned no text"))
		}
		if out.text.Elapsed == 0 {
			out.text.Elapsed = time.Since(start)
		}
		return out.text, nil
	case <-ctx.Done():
		return nil, recognition.Wrap("recognize", ctx.Err())
	}
}

// evaluate runs stages 2-5. A panic in any of them becomes VALIDATION_ERROR.
func (s *Service) evaluate(ctx context.Context, logger *slog.Logger, id string, now time.Time, in receipt.Input, data []byte, contentType string, text *recognition.Text) (result *receipt.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Validation panicked", "panic", r, "stack", string(debug.Stack()))
			result = failure(id, now, receipt.OutcomeErrorCaught,
				receipt.Error(receipt.CodeValidationError, "Failed to validate receipt", receipt.SeverityHigh))
			result.Recommendations = []string{"Please try uploading the receipt again"}
		}
	}()

	a := receipt.Assessment{Confidence: text.Confidence}

	if s.opts.SlowRecognition > 0 && text.Elapsed > s.opts.SlowRecognition {
		a.Raise(receipt.Warning(receipt.CodeSlowProcessing,
			fmt.Sprintf("OCR processing took %ds", int(text.Elapsed.Round(time.Second)/time.Second)),
			receipt.SeverityLow), 1, 0)
	}

	var extracted *receipt.Extracted
	if utf8.RuneCountInString(strings.TrimSpace(text.Raw)) < minTextLength {
		a.Raise(receipt.Error(receipt.CodeInsufficientText,
			"Could not extract sufficient text from image", receipt.SeverityHigh), 0, 1)
	} else {
		extracted = extraction.Extract(text.Raw)
		a.Merge(checks.Patterns(text.Raw))
		a.Merge(checks.Elements(text.Raw))
	}

	dup, duplicate := s.duplicates.Check(ctx, data, contentType)
	a.Merge(dup)

	if extracted != nil {
		a.Merge(checks.Consistency(in, extracted))
	}
	a.Merge(checks.Fields(in, now))

	risk := a.Risk
	if duplicate {
		risk = 1
	}

	result = &receipt.Result{
		ID:          id,
		Confidence:  receipt.Clamp(a.Confidence),
		RiskScore:   receipt.Clamp(risk),
		Flags:       a.Flags,
		Extracted:   extracted,
		Outcome:     receipt.OutcomeCompleted,
		ValidatedAt: now,
	}
	if result.Flags == nil {
		result.Flags = []receipt.Flag{}
	}
	result.Valid = result.RiskScore < RiskThreshold && result.Confidence > ConfidenceThreshold && !hasError(result.Flags)
	result.Recommendations = Recommendations(result.Flags, result.RiskScore)
	return result
}

// hasError reports whether any flag is an ERROR. An ERROR finding always
// invalidates the receipt, whatever the accumulated scores.
func hasError(flags []receipt.Flag) bool {
	for _, f := range flags {
		if f.Kind == receipt.KindError {
			return true
		}
	}
	return false
}

// failure builds a terminal invalid result carrying a single flag
func failure(id string, now time.Time, outcome receipt.Outcome, flag receipt.Flag) *receipt.Result {
	flags := []receipt.Flag{flag}
	return &receipt.Result{
		ID:              id,
		Valid:           false,
		Confidence:      0,
		RiskScore:       1,
		Flags:           flags,
		Recommendations: Recommendations(flags, 1),
		Outcome:         outcome,
		ValidatedAt:     now,
	}
}

func logResult(logger *slog.Logger, result *receipt.Result) {
	logger.Info("Validated receipt",
		"outcome", result.Outcome,
		"valid", result.Valid,
		"confidence", result.Confidence,
		"risk", result.RiskScore,
		"flags", len(result.Flags),
	)
}
