// Package frames detects whether consecutive camera frames show a changed scene.
package frames

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrNotImage is returned for frames that do not decode as an image.
var ErrNotImage = errors.New("frame is not a decodable image")

// DHash computes the 64-bit difference hash of an encoded image.
func DHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return dHash(img), nil
}

// HammingDistance returns the number of differing bits.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// dHash shrinks the image to 9x8 grey pixels and sets one bit per row
// neighbour pair where the left pixel is brighter.
func dHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}
