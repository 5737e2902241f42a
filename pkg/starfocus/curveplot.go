package starfocus

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderFocusCurve writes a PNG chart of the aggregated samples and, when
// fit is non-nil, the fitted hyperbola with its focus position marked.
func RenderFocusCurve(w io.Writer, points []FocusPoint, fit *FocusFit, kind SampleKind) error {
	if len(points) == 0 {
		return errors.New("no focus points to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s V-curve", kind)
	p.X.Label.Text = "Focuser position"
	p.Y.Label.Text = kind.String()

	pts := make(plotter.XYs, len(points))
	yMax := 0.0
	for i, fp := range points {
		pts[i] = plotter.XY{X: float64(fp.Position), Y: fp.Value}
		yMax = max(yMax, fp.Value)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)
	p.Legend.Add("samples", scatter)

	if fit != nil {
		s := fit.Solution
		curve := plotter.NewFunction(s.ValueAt)
		curve.XMin = float64(fit.MinPosition)
		curve.XMax = float64(fit.MaxPosition)
		curve.Samples = 200
		curve.Color = color.RGBA{R: 220, G: 60, B: 40, A: 255}
		curve.Width = vg.Points(1)
		p.Add(curve)
		p.Legend.Add(fmt.Sprintf("fit (error %.4f)", s.Error), curve)

		focus, err := plotter.NewLine(plotter.XYs{{X: s.P, Y: 0}, {X: s.P, Y: max(yMax, s.A)}})
		if err != nil {
			return fmt.Errorf("failed to create focus line: %w", err)
		}
		focus.Color = color.RGBA{R: 40, G: 160, B: 60, A: 255}
		focus.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(focus)
		p.Legend.Add(fmt.Sprintf("focus %.0f", s.P), focus)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render focus curve: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write focus curve: %w", err)
	}
	return nil
}
