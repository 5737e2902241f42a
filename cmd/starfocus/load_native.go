//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	sf "starfocus/pkg/starfocus"
)

func loadNonFitsImage(path string) (*sf.Image, error) {
	src := gocv.IMRead(path, gocv.IMReadAnyDepth)
	if src.Empty() {
		return nil, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	bitDepth := 16
	if src.Type() == gocv.MatTypeCV8U {
		bitDepth = 8
	}

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	src.ConvertTo(&floatMat, gocv.MatTypeCV32F)
	data, err := floatMat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading pixels of %s: %w", path, err)
	}

	w, h := floatMat.Cols(), floatMat.Rows()
	pixels := make([]float64, w*h)
	for i := range pixels {
		pixels[i] = float64(data[i])
	}
	return sf.NewImage(pixels, w, h, bitDepth)
}
