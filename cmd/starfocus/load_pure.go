//go:build purego || js

package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/tiff"

	sf "starfocus/pkg/starfocus"
)

func loadNonFitsImage(path string) (*sf.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	// 8-bit sources keep their 0..255 scale so the histogram treats them as such.
	bitDepth, shift := 16, uint(0)
	switch img.(type) {
	case *image.Gray, *image.YCbCr, *image.RGBA, *image.NRGBA, *image.Paletted:
		bitDepth, shift = 8, 8
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			pixels[y*w+x] = float64(g.Y >> shift)
		}
	}
	return sf.NewImage(pixels, w, h, bitDepth)
}
