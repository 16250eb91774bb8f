// Package snapshot crops, scales and stores face images: enrollment reference photos
// and snapshots of faces nobody recognized.
package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// Decode decodes a JPEG, PNG, BMP or WebP image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// fitWithin returns the size of w x h scaled down to fit maxSize, keeping aspect ratio.
// A non-positive maxSize keeps the size.
func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w > h {
		return maxSize, max(1, int(float64(h)*float64(maxSize)/float64(w)))
	}
	return max(1, int(float64(w)*float64(maxSize)/float64(h))), maxSize
}

// EncodeRegion scales the region r of img to fit within maxSize and encodes it as JPEG.
func EncodeRegion(img image.Image, r image.Rectangle, maxSize int) ([]byte, error) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("empty region %v of image %v", r, img.Bounds())
	}

	w, h := fitWithin(r.Dx(), r.Dy(), maxSize)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Bounds(), img, r, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ResizeImage decodes data and re-encodes it as JPEG fitting within maxSize.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeRegion(img, img.Bounds(), maxSize)
}
