// Package recognition turns receipt images into raw text and a confidence score.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Text is the output of a recognizer
type Text struct {
	Raw        string        `json:"text"`
	Confidence float64       `json:"confidence"` // 0..1
	Elapsed    time.Duration `json:"elapsed"`
}

// Recognizer defines the interface for optical character recognition engines.
// Implementations own a long-lived engine and must be safe for concurrent use.
type Recognizer interface {
	// Name identifies the engine in logs
	Name() string
	// Recognize extracts text from an image. It must honor ctx cancellation.
	Recognize(ctx context.Context, image []byte, contentType string) (*Text, error)
	// Close releases the engine. Later calls to Recognize fail with ErrClosed.
	Close() error
}

var (
	// ErrClosed is returned when Recognize is called after Close
	ErrClosed = errors.New("recognizer is closed")
	// ErrEmptyImage is returned when no image bytes were supplied
	ErrEmptyImage = errors.New("image is empty")
)

// Error reports a failed recognition attempt
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognition %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the recognizer ran out of time
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Wrap converts err into an *Error unless it already is one
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}
