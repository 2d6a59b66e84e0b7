package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxImageSize caps how many bytes are read for a single receipt image
const MaxImageSize = 50 << 20

// ErrImageTooLarge is returned when an image exceeds MaxImageSize
var ErrImageTooLarge = errors.New("image exceeds maximum size")

// Loader resolves an Image reference into its bytes and content type
type Loader interface {
	Load(ctx context.Context, img Image) ([]byte, string, error)
}

// ImageLoader implements Loader for inline bytes, http(s) URLs and local files
type ImageLoader struct {
	basePath string
	client   *http.Client
}

// NewImageLoader creates an ImageLoader that resolves relative and file:// URIs against basePath
func NewImageLoader(basePath string) (*ImageLoader, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving image directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("checking image directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("image directory %s is not a directory", abs)
	}

	return &ImageLoader{
		basePath: abs,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Load returns the image bytes and its content type
func (l *ImageLoader) Load(ctx context.Context, img Image) ([]byte, string, error) {
	if len(img.Data) > 0 {
		if len(img.Data) > MaxImageSize {
			return nil, "", ErrImageTooLarge
		}
		return img.Data, contentType(img.ContentType, img.Data), nil
	}
	if img.URI == "" {
		return nil, "", errors.New("image has neither data nor uri")
	}

	u, err := url.Parse(img.URI)
	if err != nil {
		return nil, "", fmt.Errorf("parsing image uri: %w", err)
	}

	var (
		data   []byte
		header string
	)
	switch u.Scheme {
	case "http", "https":
		data, header, err = l.fetch(ctx, u.String())
	case "file":
		data, err = l.read(u.Path)
	case "":
		data, err = l.read(img.URI)
	default:
		return nil, "", fmt.Errorf("unsupported image uri scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, "", err
	}

	ct := img.ContentType
	if ct == "" {
		ct = header
	}
	return data, contentType(ct, data), nil
}

func (l *ImageLoader) fetch(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading image body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// read loads a file below basePath. Paths escaping the base directory are rejected.
func (l *ImageLoader) read(path string) ([]byte, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(strings.TrimPrefix(path, "/")))
	rel, err := filepath.Rel(l.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("image path %q escapes image directory", path)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("opening image file: %w", err)
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("reading image file: %w", err)
	}
	return data, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

// contentType normalizes a declared content type and sniffs one when missing
func contentType(declared string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = ct[:i]
		}
	}
	return ct
}
