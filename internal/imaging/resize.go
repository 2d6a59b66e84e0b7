package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultMaxDimension bounds the longest side of images sent to remote recognizers
const DefaultMaxDimension = 2048

// Fit scales img down so neither side exceeds maxDim, keeping the aspect ratio.
// Images already within bounds are returned unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var nw, nh int
	if w > h {
		nw = maxDim
		nh = max(1, h*maxDim/w)
	} else {
		nh = maxDim
		nw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Thumbnail scales img to exactly w x h grayscale pixels
func Thumbnail(img image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// PrepareForUpload decodes data, fits it within maxDim and re-encodes it as PNG
func PrepareForUpload(data []byte, contentType string, maxDim int) ([]byte, error) {
	img, err := Decode(data, contentType)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Fit(img, maxDim))
}
