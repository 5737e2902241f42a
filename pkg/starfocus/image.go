/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package starfocus

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when pixel data does not match the declared size.
	ErrDimensionMismatch = errors.New("pixel data does not match image dimensions")
	// ErrNilImage is returned by operations that were handed no image.
	ErrNilImage = errors.New("nil image")
)

// Image holds one exposure's pixel intensities in ADU, row-major.
// It is read-only once constructed.
type Image struct {
	Width    int
	Height   int
	BitDepth int
	data     []float64
}

// NewImage wraps data (row-major, len == width*height). The slice is copied.
func NewImage(data []float64, width, height, bitDepth int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d: %w", width, height, ErrDimensionMismatch)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("got %d pixels for %dx%d: %w", len(data), width, height, ErrDimensionMismatch)
	}
	owned := make([]float64, len(data))
	copy(owned, data)
	return &Image{Width: width, Height: height, BitDepth: bitDepth, data: owned}, nil
}

// NewImageFromUint16 converts raw camera pixels into an Image without rescaling.
func NewImageFromUint16(pixels []uint16, width, height, bitDepth int) (*Image, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("got %d pixels for %dx%d: %w", len(pixels), width, height, ErrDimensionMismatch)
	}
	data := make([]float64, len(pixels))
	for i, p := range pixels {
		data[i] = float64(p)
	}
	return newImageNoCopy(data, width, height, bitDepth), nil
}

func newImageNoCopy(data []float64, width, height, bitDepth int) *Image {
	return &Image{Width: width, Height: height, BitDepth: bitDepth, data: data}
}

// At returns the pixel at column x, row y. It panics when out of range.
func (img *Image) At(x, y int) float64 {
	return img.data[y*img.Width+x]
}

// Data returns a copy of the row-major pixel buffer.
func (img *Image) Data() []float64 {
	out := make([]float64, len(img.data))
	copy(out, img.data)
	return out
}

// Row returns a read-only view of row y. Callers must not modify it.
func (img *Image) Row(y int) []float64 {
	return img.data[y*img.Width : (y+1)*img.Width]
}

// SubpixelValue bilinearly interpolates the four pixels around (x, y).
// Positions whose integer part touches the outer two-pixel frame yield 0.
// A NaN among the four pixels yields NaN.
func (img *Image) SubpixelValue(x, y float64) float64 {
	xt := int(x)
	yt := int(y)
	if xt <= 0 || xt >= img.Width-2 || yt <= 0 || yt >= img.Height-2 {
		return 0
	}
	xf := x - float64(xt)
	yf := y - float64(yt)

	w := img.Width
	p00 := img.data[yt*w+xt]
	p01 := img.data[yt*w+xt+1]
	p10 := img.data[(yt+1)*w+xt]
	p11 := img.data[(yt+1)*w+xt+1]
	return p00*(1-xf)*(1-yf) + p01*xf*(1-yf) + p10*(1-xf)*yf + p11*xf*yf
}

// maxValue is the top of the valid histogram range for the image bit depth.
func (img *Image) maxValue() int {
	if img.BitDepth == 8 || img.BitDepth == 24 {
		return 255
	}
	return histogramSize
}
