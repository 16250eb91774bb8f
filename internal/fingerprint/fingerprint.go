// Package fingerprint computes perceptual hashes of frames so that a still scene
// is not sent to the face API over and over.
package fingerprint

import (
	"image"
	"math/bits"
	"sync"

	"golang.org/x/image/draw"
)

// DHash computes the 64-bit difference hash of img.
func DHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row
	gray := grayscale(resize(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// grayscale returns luminance indexed [x][y].
func grayscale(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	gray := make([][]float64, b.Dx())
	for x := range gray {
		gray[x] = make([]float64, b.Dy())
		for y := range gray[x] {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return gray
}

// ChangeDetector remembers the hash of the last changed frame.
type ChangeDetector struct {
	maxDistance int

	mu   sync.Mutex
	last uint64
	seen bool
}

// NewChangeDetector treats frames within maxDistance bits of the last changed frame as unchanged.
func NewChangeDetector(maxDistance int) *ChangeDetector {
	return &ChangeDetector{maxDistance: max(maxDistance, 0)}
}

// Changed reports whether img differs from the last frame that was reported changed.
// The first frame is always changed.
func (d *ChangeDetector) Changed(img image.Image) bool {
	hash := DHash(img)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen && HammingDistance(hash, d.last) <= d.maxDistance {
		return false
	}
	d.last = hash
	d.seen = true
	return true
}
