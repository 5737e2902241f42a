package starfocus

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/stat"
)

const (
	overlayWidth   = 800
	overlayQuality = 90
	// stretchSamples bounds the pixels sorted to find the display stretch.
	stretchSamples = 1 << 16
	stretchHigh    = 0.995
)

var (
	errNoField = errors.New("no field analysis data")

	zoneGrid = [3][3]ZonePosition{
		{ZoneTopLeft, ZoneTop, ZoneTopRight},
		{ZoneLeft, ZoneCenter, ZoneRight},
		{ZoneBottomLeft, ZoneBottom, ZoneBottomRight},
	}
)

// RenderFieldOverlay writes a JPEG tilt map of field to outputPath.
func RenderFieldOverlay(field *FieldAnalysis, width, height int, outputPath string) error {
	img, err := renderFieldImage(field, width, height)
	if err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer f.Close()
	return encodeJPEG(f, img)
}

// RenderFieldOverlayBytes returns the JPEG tilt map of field.
func RenderFieldOverlayBytes(field *FieldAnalysis, width, height int) ([]byte, error) {
	img, err := renderFieldImage(field, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeJPEG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderStarOverlay writes a stretched JPEG of img to w with every star
// circled at its 3 HFD occupancy radius.
func RenderStarOverlay(w io.Writer, img *Image, stars []Star) error {
	if img == nil {
		return ErrNilImage
	}
	lo, hi := displayStretch(img)
	scale := 1.0
	if img.Width > overlayWidth {
		scale = float64(overlayWidth) / float64(img.Width)
	}
	outW := max(int(float64(img.Width)*scale), 1)
	outH := max(int(float64(img.Height)*scale), 1)

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		sy := min(int(float64(y)/scale), img.Height-1)
		row := img.Row(sy)
		for x := 0; x < outW; x++ {
			v := row[min(int(float64(x)/scale), img.Width-1)]
			g := uint8(255 * math.Min(math.Max((v-lo)/(hi-lo), 0), 1))
			out.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}

	ring := color.RGBA{80, 255, 80, 255}
	label := color.RGBA{255, 220, 80, 255}
	face := basicfont.Face7x13
	for _, s := range stars {
		cx, cy := int(s.X*scale), int(s.Y*scale)
		r := max(int(maskHFDMultiplier*s.HFD*scale), 3)
		drawCircle(out, cx, cy, r, ring)
		drawText(out, face, fmt.Sprintf("%.2f", s.HFD), cx+r+2, cy+4, label)
	}
	drawText(out, face, fmt.Sprintf("stars: %d", len(stars)), 8, 16, label)
	return encodeJPEG(w, out)
}

// displayStretch maps the median to black and the 99.5% quantile to white.
func displayStretch(img *Image) (lo, hi float64) {
	step := max(len(img.data)/stretchSamples, 1)
	sample := make([]float64, 0, len(img.data)/step+1)
	for i := 0; i < len(img.data); i += step {
		if v := img.data[i]; !math.IsNaN(v) {
			sample = append(sample, v)
		}
	}
	if len(sample) == 0 {
		return 0, 1
	}
	sort.Float64s(sample)
	lo = stat.Quantile(0.5, stat.Empirical, sample, nil)
	hi = stat.Quantile(stretchHigh, stat.Empirical, sample, nil)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func encodeJPEG(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: overlayQuality}); err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}
	return nil
}

// renderFieldImage draws the 3x3 tilt map at 800 px width with a summary strip.
func renderFieldImage(field *FieldAnalysis, width, height int) (*image.RGBA, error) {
	if field == nil {
		return nil, errNoField
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid field size %dx%d", width, height)
	}

	scale := float64(overlayWidth) / float64(width)
	imgW := overlayWidth
	imgH := max(int(float64(height)*scale), 100)
	const summaryH = 60

	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+summaryH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	xLo := int(float64(imgW) * fieldEdgeFraction)
	xHi := int(float64(imgW) * (1.0 - fieldEdgeFraction))
	yLo := int(float64(imgH) * fieldEdgeFraction)
	yHi := int(float64(imgH) * (1.0 - fieldEdgeFraction))
	xBounds := [3][2]int{{0, xLo}, {xLo, xHi}, {xHi, imgW}}
	yBounds := [3][2]int{{0, yLo}, {yLo, yHi}, {yHi, imgH}}

	centerHFD := field.Zones[ZoneCenter].MedianHFD
	if centerHFD <= 0 {
		centerHFD = 1
	}

	face := basicfont.Face7x13
	white := color.RGBA{255, 255, 255, 255}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			zone := field.Zones[zoneGrid[row][col]]
			cell := image.Rect(xBounds[col][0], yBounds[row][0], xBounds[col][1], yBounds[row][1])
			draw.Draw(img, cell, image.NewUniform(hfdColor(zone.MedianHFD, centerHFD)), image.Point{}, draw.Src)

			cx := (cell.Min.X + cell.Max.X) / 2
			cy := (cell.Min.Y + cell.Max.Y) / 2
			if zone.MedianHFD > 0 {
				radius := min(max(int(zone.MedianHFD*scale*maskHFDMultiplier), 3), cell.Dx()/3)
				drawCircle(img, cx, cy, radius, color.RGBA{255, 255, 255, 200})
			}
			drawCenteredText(img, face, zone.Label, cx, cy-14, white)
			drawCenteredText(img, face, fmt.Sprintf("HFD: %.2f", zone.MedianHFD), cx, cy+2, white)
			drawCenteredText(img, face, fmt.Sprintf("n=%d", zone.StarCount), cx, cy+16, white)
		}
	}

	gridColor := color.RGBA{255, 255, 255, 180}
	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, gridColor)
		img.Set(x, yHi, gridColor)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, gridColor)
		img.Set(xHi, y, gridColor)
	}

	if field.WorstCorner != "" && field.BestCorner != "" {
		bestX, bestY := cornerCenter(field.BestCorner, xBounds, yBounds)
		worstX, worstY := cornerCenter(field.WorstCorner, xBounds, yBounds)
		arrowColor := color.RGBA{255, 80, 80, 255}
		drawLine(img, bestX, bestY, worstX, worstY, arrowColor)
		drawArrowHead(img, bestX, bestY, worstX, worstY, arrowColor)
	}

	summaryColor := color.RGBA{220, 220, 220, 255}
	summary := fmt.Sprintf("Tilt: %.1f%%  (worst: %s, best: %s)", field.TiltPct, field.WorstCorner, field.BestCorner)
	offAxis := fmt.Sprintf("Off-axis: %.1f%%", field.OffAxisPct)
	if !field.Reliable {
		offAxis += "  [LOW STAR COUNT - UNRELIABLE]"
	}
	drawText(img, face, summary, 10, imgH+15, summaryColor)
	drawText(img, face, offAxis, 10, imgH+33, summaryColor)
	return img, nil
}

// hfdColor shades a zone from green (like the center) through yellow to red.
func hfdColor(zoneHFD, centerHFD float64) color.RGBA {
	if zoneHFD <= 0 || centerHFD <= 0 {
		return color.RGBA{40, 40, 40, 255}
	}
	ratio := zoneHFD / centerHFD

	var r, g, b uint8
	switch {
	case ratio <= 1.1:
		t := ratio / 1.1
		r, g, b = uint8(t*30), uint8(60+t*40), 20
	case ratio <= 1.3:
		t := (ratio - 1.1) / 0.2
		r, g, b = uint8(30+t*170), uint8(100-t*20), 20
	default:
		t := math.Min((ratio-1.3)/0.3, 1.0)
		r, g, b = uint8(200+t*55), uint8(80-t*60), uint8(20-t*10)
	}
	return color.RGBA{r, g, b, 255}
}

func cornerCenter(label string, xBounds, yBounds [3][2]int) (int, int) {
	var col, row int
	switch label {
	case zoneLabels[ZoneTopLeft]:
		col, row = 0, 0
	case zoneLabels[ZoneTopRight]:
		col, row = 2, 0
	case zoneLabels[ZoneBottomLeft]:
		col, row = 0, 2
	case zoneLabels[ZoneBottomRight]:
		col, row = 2, 2
	default:
		return 0, 0
	}
	return (xBounds[col][0] + xBounds[col][1]) / 2, (yBounds[row][0] + yBounds[row][1]) / 2
}

func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	advance := font.MeasureString(face, s)
	drawText(img, face, s, cx-advance.Round()/2, cy, c)
}

// drawCircle draws a circle outline with the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x, y, err := radius, 0, 0
	for x >= y {
		for _, p := range [8][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}} {
			img.Set(cx+p[0], cy+p[1], c)
		}
		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a 2px Bresenham line.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y0 - y1
	if dy > 0 {
		dy = -dy
	}
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length

	const size, wing = 15.0, 0.4
	px := float64(x1) - dx*size
	py := float64(y1) - dy*size
	drawLine(img, x1, y1, int(px+dy*size*wing), int(py-dx*size*wing), c)
	drawLine(img, x1, y1, int(px-dy*size*wing), int(py+dx*size*wing), c)
}
