package duplicate

import (
	"context"
	"log/slog"

	"github.com/zombor/receipt-validator/internal/receipt"
)

// Detector flags images whose fingerprint is already in the store
type Detector struct {
	fingerprinter Fingerprinter
	store         Store
}

// NewDetector creates a Detector
func NewDetector(fingerprinter Fingerprinter, store Store) *Detector {
	return &Detector{
		fingerprinter: fingerprinter,
		store:         store,
	}
}

// Seen fingerprints the image and records it. Failures are *HashingError.
func (d *Detector) Seen(ctx context.Context, data []byte, contentType string) (bool, error) {
	fp, err := d.fingerprinter.Fingerprint(data, contentType)
	if err != nil {
		return false, &HashingError{Err: err}
	}
	seen, err := d.store.CheckAndAdd(ctx, fp)
	if err != nil {
		return false, &HashingError{Err: err}
	}
	return seen, nil
}

// Check runs Seen and converts the outcome into an assessment. The boolean
// reports a duplicate, whose risk the caller must treat as absolute.
// Hashing failures degrade the assessment instead of failing the run.
func (d *Detector) Check(ctx context.Context, data []byte, contentType string) (receipt.Assessment, bool) {
	a := receipt.NewAssessment()

	seen, err := d.Seen(ctx, data, contentType)
	switch {
	case err != nil:
		slog.Warn("duplicate check failed", "error", err)
		a.Raise(receipt.Warning(receipt.CodeHashCalculationFailed,
			"Could not verify receipt uniqueness", receipt.SeverityMedium), 1, 0.3)
	case seen:
		a.Raise(receipt.Error(receipt.CodeDuplicateReceipt,
			"This receipt has already been uploaded", receipt.SeverityHigh), 1, 1)
	default:
		a.Raise(receipt.Info(receipt.CodeUniqueReceipt, "Receipt appears to be unique"), 1, 0)
	}

	return a, seen
}

// Close closes the underlying store
func (d *Detector) Close() error {
	return d.store.Close()
}
