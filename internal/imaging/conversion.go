// Package imaging normalizes uploaded receipt images into a form the
// recognition engines and fingerprinters can read.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// MimePNG is the content type of every normalized image
const MimePNG = "image/png"

// ErrUnsupportedFormat is returned for payloads no decoder recognizes
var ErrUnsupportedFormat = errors.New("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF)")

// Decode returns the image contained in data. PDFs yield their first page.
func Decode(data []byte, contentType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}

	mimeType := normalizeMime(contentType)
	switch {
	case mimeType == "application/pdf" || isPDF(data):
		return renderPDF(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// ToPNG converts data to PNG. PNG input is returned as-is.
// The boolean reports whether a conversion happened.
func ToPNG(data []byte, contentType string) ([]byte, bool, error) {
	if normalizeMime(contentType) == MimePNG && bytes.HasPrefix(data, pngMagic) {
		return data, false, nil
	}

	img, err := Decode(data, contentType)
	if err != nil {
		return nil, false, err
	}

	out, err := EncodePNG(img)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
	pdfMagic = []byte("%PDF-")
)

// renderPDF renders the first page of a PDF (most receipts are single page)
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func normalizeMime(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
