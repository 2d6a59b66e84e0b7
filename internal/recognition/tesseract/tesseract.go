// Package tesseract provides a pooled Tesseract recognizer.
//
// A gosseract client wraps a single TessBaseAPI handle and is not safe for
// concurrent use, so the pool hands each in-flight call its own client and
// recycles clients between calls.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-validator/internal/imaging"
	"github.com/zombor/receipt-validator/internal/recognition"
)

// engine is the subset of *gosseract.Client used by the pool
type engine interface {
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Config configures the Tesseract pool
type Config struct {
	Languages []string
	// PageSegMode is passed to tesseract as-is; zero keeps its default
	PageSegMode int
	// Size bounds the number of concurrent recognitions
	Size int
	// Variables are set on every client, e.g. tessedit_char_whitelist
	Variables map[string]string
}

// Pool implements recognition.Recognizer on top of a bounded set of gosseract clients
type Pool struct {
	factory func() (engine, error)
	slots   chan struct{}
	idle    chan engine

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ recognition.Recognizer = (*Pool)(nil)

// New creates a Tesseract pool. Clients are created lazily.
func New(cfg Config) *Pool {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return newPool(cfg.Size, func() (engine, error) {
		c := gosseract.NewClient()
		if err := c.SetLanguage(langs...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
		if cfg.PageSegMode > 0 {
			if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
				c.Close()
				return nil, fmt.Errorf("set page segmentation mode: %w", err)
			}
		}
		for k, v := range cfg.Variables {
			if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
				c.Close()
				return nil, fmt.Errorf("set variable %s: %w", k, err)
			}
		}
		return c, nil
	})
}

func newPool(size int, factory func() (engine, error)) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		factory: factory,
		slots:   make(chan struct{}, size),
		idle:    make(chan engine, size),
	}
}

func (p *Pool) Name() string { return "tesseract" }

type outcome struct {
	text *recognition.Text
	err  error
}

// Recognize runs OCR on a pooled client. When ctx ends first the call returns
// immediately and the client is recycled once tesseract finishes.
func (p *Pool) Recognize(ctx context.Context, image []byte, contentType string) (*recognition.Text, error) {
	if len(image) == 0 {
		return nil, &recognition.Error{Op: "recognize", Err: recognition.ErrEmptyImage}
	}
	if err := ctx.Err(); err != nil {
		return nil, &recognition.Error{Op: "recognize", Err: err}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &recognition.Error{Op: "recognize", Err: recognition.ErrClosed}
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.wg.Done()
		return nil, &recognition.Error{Op: "acquire client", Err: ctx.Err()}
	}

	c, err := p.acquire()
	if err != nil {
		<-p.slots
		p.wg.Done()
		return nil, &recognition.Error{Op: "acquire client", Err: err}
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		text, err := run(c, image, contentType)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		p.release(c)
		if out.err != nil {
			return nil, &recognition.Error{Op: "recognize", Err: out.err}
		}
		out.text.Elapsed = time.Since(start)
		return out.text, nil
	case <-ctx.Done():
		go func() {
			<-done
			slog.Debug("abandoned tesseract call finished", "elapsed", time.Since(start))
			p.release(c)
		}()
		return nil, &recognition.Error{Op: "recognize", Err: ctx.Err()}
	}
}

func (p *Pool) acquire() (engine, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
		return p.factory()
	}
}

func (p *Pool) release(c engine) {
	defer p.wg.Done()
	defer func() { <-p.slots }()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		c.Close()
		return
	}
	select {
	case p.idle <- c:
	default:
		c.Close()
	}
}

// Close waits for in-flight calls and releases every client
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	for {
		select {
		case c := <-p.idle:
			c.Close()
		default:
			return nil
		}
	}
}

func run(c engine, image []byte, contentType string) (*recognition.Text, error) {
	data, _, err := imaging.ToPNG(image, contentType)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	return &recognition.Text{
		Raw:        strings.TrimSpace(text),
		Confidence: meanConfidence(c),
	}, nil
}

// meanConfidence averages word confidences reported on a 0-100 scale
func meanConfidence(c engine) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
