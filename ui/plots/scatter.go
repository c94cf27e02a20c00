package plots

import (
	"fmt"
	"image/color"

	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// scatterPalette cycles over the classes of a scatter plot.
var scatterPalette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
}

// ScatterPNG draws the points as a 2D scatter plot and saves it as a PNG to
// filePath.
//
// classes optionally assigns a non-negative class label to each point, in
// which case each class gets its own color and a legend entry. Pass nil for
// unlabeled data.
func ScatterPNG(title, xLabel, yLabel string, xs, ys []float64, classes []int, filePath string) error {
	if len(xs) == 0 || len(xs) != len(ys) {
		return errors.Errorf("scatter plot needs matching coordinates, got %d x and %d y values", len(xs), len(ys))
	}
	if classes != nil && len(classes) != len(xs) {
		return errors.Errorf("scatter plot got %d class labels for %d points", len(classes), len(xs))
	}
	perClass := make(map[int]plotter.XYs)
	for ii := range xs {
		class := 0
		if classes != nil {
			class = classes[ii]
			if class < 0 {
				return errors.Errorf("scatter plot class labels must be non-negative, got %d", class)
			}
		}
		perClass[class] = append(perClass[class], plotter.XY{X: xs[ii], Y: ys[ii]})
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	for _, class := range xslices.SortedKeys(perClass) {
		scatter, err := plotter.NewScatter(perClass[class])
		if err != nil {
			return errors.Wrapf(err, "failed to build scatter series for class %d", class)
		}
		scatter.GlyphStyle.Radius = vg.Length(1)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Color = scatterPalette[class%len(scatterPalette)]
		p.Add(scatter)
		if classes != nil {
			p.Legend.Add(fmt.Sprintf("%d", class), scatter)
		}
	}
	if classes != nil {
		p.Legend.Top = true
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save scatter plot to %q", filePath)
	}
	return nil
}
