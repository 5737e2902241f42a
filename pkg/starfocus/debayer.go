package starfocus

import (
	"fmt"
	"strings"
)

// bayerOrigin is the (row, col) parity of the red photosite in a 2x2 cell.
type bayerOrigin struct{ row, col int }

var bayerPatterns = map[string]bayerOrigin{
	"RGGB": {0, 0},
	"GRBG": {0, 1},
	"GBRG": {1, 0},
	"BGGR": {1, 1},
}

// DebayerRGGB performs bilinear interpolation on a raw RGGB Bayer-pattern image
// and returns a luminance channel: (R + G + B) / 3 per pixel.
//
// Edge pixels use clamped (replicated) neighbor lookups.
func DebayerRGGB(data []float64, width, height int) []float64 {
	return debayer(data, width, height, bayerPatterns["RGGB"])
}

// DebayerImage converts a one-shot-colour exposure into a luminance Image.
// pattern is a BAYERPAT value such as "RGGB"; empty means RGGB.
func DebayerImage(img *Image, pattern string) (*Image, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if pattern == "" {
		pattern = "RGGB"
	}
	origin, ok := bayerPatterns[strings.ToUpper(pattern)]
	if !ok {
		return nil, fmt.Errorf("unsupported bayer pattern %q", pattern)
	}
	lum := debayer(img.data, img.Width, img.Height, origin)
	return newImageNoCopy(lum, img.Width, img.Height, img.BitDepth), nil
}

func debayer(data []float64, width, height int, red bayerOrigin) []float64 {
	out := make([]float64, width*height)
	px := func(x, y int) float64 {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return data[y*width+x]
	}
	cross := func(x, y int) float64 {
		return (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
	}
	diagonal := func(x, y int) float64 {
		return (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
	}
	horizontal := func(x, y int) float64 { return (px(x-1, y) + px(x+1, y)) / 2 }
	vertical := func(x, y int) float64 { return (px(x, y-1) + px(x, y+1)) / 2 }

	for y := 0; y < height; y++ {
		redRow := y%2 == red.row
		for x := 0; x < width; x++ {
			redCol := x%2 == red.col
			var r, g, b float64
			switch {
			case redRow && redCol:
				r, g, b = px(x, y), cross(x, y), diagonal(x, y)
			case redRow:
				r, g, b = horizontal(x, y), px(x, y), vertical(x, y)
			case redCol:
				r, g, b = vertical(x, y), px(x, y), horizontal(x, y)
			default:
				r, g, b = diagonal(x, y), cross(x, y), px(x, y)
			}
			out[y*width+x] = (r + g + b) / 3
		}
	}
	return out
}
