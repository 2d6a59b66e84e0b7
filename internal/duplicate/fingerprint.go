package duplicate

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/zombor/receipt-validator/internal/imaging"
)

const hashSide = 8

var errEmptyImage = errors.New("empty image")

// Fingerprinter derives a fixed-size digest from image content
type Fingerprinter interface {
	Fingerprint(data []byte, contentType string) (string, error)
}

// ContentFingerprint hashes the raw bytes with BLAKE2b-256. Only byte-identical
// uploads collide.
type ContentFingerprint struct{}

func (ContentFingerprint) Fingerprint(data []byte, _ string) (string, error) {
	if len(data) == 0 {
		return "", errEmptyImage
	}
	sum := blake2b.Sum256(data)
	return "b2:" + hex.EncodeToString(sum[:]), nil
}

// PerceptualFingerprint computes a 64-bit average hash of the decoded image,
// so a re-encoded or re-sized copy of the same picture yields the same value.
type PerceptualFingerprint struct{}

func (PerceptualFingerprint) Fingerprint(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errEmptyImage
	}
	img, err := imaging.Decode(data, contentType)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Thumbnail(img, hashSide, hashSide)

	var sum int
	for _, p := range thumb.Pix {
		sum += int(p)
	}
	mean := sum / len(thumb.Pix)

	var bits uint64
	for i, p := range thumb.Pix {
		if int(p) > mean {
			bits |= 1 << uint(len(thumb.Pix)-1-i)
		}
	}
	return fmt.Sprintf("ah:%016x", bits), nil
}
