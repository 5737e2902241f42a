//go:build js && wasm

package main

import (
	"context"
	"math"
	"sync"
	"syscall/js"

	"gonum.org/v1/gonum/stat"

	sf "starfocus/pkg/starfocus"
)

var (
	lastField  *sf.FieldAnalysis
	lastWidth  int
	lastHeight int

	// sweep collects samples across analyzeFITS calls until resetSweep.
	sweep = sf.NewFocusMetricSampleMap(sf.SampleHFD)
)

func main() {
	js.Global().Set("analyzeFITS", js.FuncOf(analyzeFITS))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	js.Global().Set("resetSweep", js.FuncOf(resetSweep))
	select {}
}

// analyzeFITS(fileBytes, options) detects stars in a FITS file. options may
// carry debayer, psf and snrMin. When the header has a focuser position the
// median HFD is added to the running sweep and the current fit returned.
func analyzeFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: analyzeFITS(fileBytes, options)")
	}

	jsBytes := args[0]
	fileBytes := make([]byte, jsBytes.Get("length").Int())
	js.CopyBytesToGo(fileBytes, jsBytes)

	params := sf.DefaultDetectorParams()
	debayer, fitPSF := false, false
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		opts := args[1]
		if v := opts.Get("debayer"); v.Type() == js.TypeBoolean {
			debayer = v.Bool()
		}
		if v := opts.Get("psf"); v.Type() == js.TypeBoolean {
			fitPSF = v.Bool()
		}
		if v := opts.Get("snrMin"); v.Type() == js.TypeNumber {
			params.SNRMin = v.Float()
		}
	}

	fits, err := sf.ReadFitsFromBytes(fileBytes)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	img, err := fits.Image()
	if err != nil {
		return errorResult("FITS image error: " + err.Error())
	}
	if debayer {
		if img, err = sf.DebayerImage(img, fits.Metadata.BayerPattern()); err != nil {
			return errorResult("debayer error: " + err.Error())
		}
	}

	result, err := sf.FindStars(context.Background(), img, params)
	if err != nil {
		return errorResult("Detection error: " + err.Error())
	}
	stars := result.Stars
	if fitPSF {
		var wg sync.WaitGroup
		for i := range stars {
			wg.Add(1)
			go func(s *sf.Star) {
				defer wg.Done()
				if psf, ok := sf.FitPSF(img, *s, sf.DefaultPSFMinRSquared); ok {
					s.PSF = psf
				}
			}(&stars[i])
		}
		wg.Wait()
	}

	hfd := make([]float64, len(stars))
	for i, s := range stars {
		hfd[i] = s.HFD
	}
	medianHFD, _ := sf.MeasureFocusMetric(stars, sf.SampleHFD)
	medianFWHM, _ := sf.MeasureFocusMetric(stars, sf.SampleFWHM)

	field := sf.AnalyzeField(stars, img.Width, img.Height)
	lastField, lastWidth, lastHeight = field, img.Width, img.Height

	jsResult := map[string]interface{}{
		"width":      img.Width,
		"height":     img.Height,
		"background": result.Background.Background,
		"noise":      result.Background.NoiseLevel,
		"medianHFD":  medianHFD,
		"meanHFD":    finite(stat.Mean(hfd, nil)),
		"stddevHFD":  finite(stat.StdDev(hfd, nil)),
		"medianFWHM": medianFWHM,
	}

	jsResult["stars"] = starsToJS(stars)
	if field != nil {
		jsResult["field"] = fieldToJS(field)
	}

	if position, ok := fits.Metadata.FocusPosition(); ok && len(stars) > 0 {
		jsResult["focusPosition"] = position
		if fit, ok := sweep.SampleAt(position, medianHFD); ok {
			jsResult["focus"] = map[string]interface{}{
				"position": fit.Solution.P,
				"minHFD":   fit.Solution.A,
				"error":    fit.Solution.Error,
			}
		}
	}

	return js.ValueOf(jsResult)
}

func starsToJS(stars []sf.Star) []interface{} {
	out := make([]interface{}, len(stars))
	for i, s := range stars {
		star := map[string]interface{}{
			"x":    s.X,
			"y":    s.Y,
			"flux": s.Flux,
			"snr":  s.SNR,
			"hfd":  s.HFD,
			"fwhm": s.FWHM,
		}
		if s.PSF != nil {
			star["psfFWHM"] = s.PSF.FWHMPixels
			star["eccentricity"] = s.PSF.Eccentricity
		}
		out[i] = star
	}
	return out
}

// fieldToJS lists the zones row by row from the top left.
func fieldToJS(field *sf.FieldAnalysis) map[string]interface{} {
	var zones []interface{}
	for pos := sf.ZoneTopLeft; pos <= sf.ZoneBottomRight; pos++ {
		z := field.Zones[pos]
		zones = append(zones, map[string]interface{}{
			"label":      z.Label,
			"medianHFD":  z.MedianHFD,
			"medianFWHM": z.MedianFWHM,
			"starCount":  z.StarCount,
		})
	}
	return map[string]interface{}{
		"zones":       zones,
		"tiltPct":     field.TiltPct,
		"offAxisPct":  field.OffAxisPct,
		"bestCorner":  field.BestCorner,
		"worstCorner": field.WorstCorner,
		"reliable":    field.Reliable,
	}
}

func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastField == nil {
		return js.Null()
	}
	jpegBytes, err := sf.RenderFieldOverlayBytes(lastField, lastWidth, lastHeight)
	if err != nil {
		return js.Null()
	}
	uint8Array := js.Global().Get("Uint8Array").New(len(jpegBytes))
	js.CopyBytesToJS(uint8Array, jpegBytes)
	return uint8Array
}

func resetSweep(this js.Value, args []js.Value) interface{} {
	sweep = sf.NewFocusMetricSampleMap(sf.SampleHFD)
	return js.Undefined()
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}

// finite maps NaN to 0 for JSON consumers.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
