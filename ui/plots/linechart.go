package plots

import (
	"bytes"
	"os"

	mg "github.com/erkkah/margaid"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"
)

// LineChartSVG renders the points as an SVG line chart, one line per metric
// name, the global step on the x-axis. It returns the SVG text.
//
// The y-axis is labeled with the points' metric type. Use [Points.Filter]
// first if only a subset of the metrics should be plotted.
func LineChartSVG(points []Point, width, height int, title string) (string, error) {
	if len(points) == 0 {
		return "", errors.New("no points to plot")
	}
	perName := make(map[string]*mg.Series)
	allPoints := mg.NewSeries()
	for _, pt := range points {
		s, found := perName[pt.MetricName]
		if !found {
			s = mg.NewSeries(mg.Titled(pt.MetricName))
			perName[pt.MetricName] = s
		}
		mgValue := mg.MakeValue(pt.Step, pt.Value)
		s.Add(mgValue)
		allPoints.Add(mgValue)
	}
	allSeries := make([]*mg.Series, 0, len(perName))
	for _, key := range xslices.SortedKeys(perName) {
		allSeries = append(allSeries, perName[key])
	}
	diagram := mg.New(width, height,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithProjection(mg.XAxis, mg.Lin),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithProjection(mg.YAxis, mg.Lin),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Steps")
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 3, 10), true, points[0].MetricType)
	diagram.Frame()
	if title != "" {
		diagram.Title(title)
	}
	if len(allSeries) > 1 {
		diagram.Legend(mg.BottomLeft)
	}
	buf := bytes.NewBuffer(nil)
	if err := diagram.Render(buf); err != nil {
		return "", errors.Wrapf(err, "failed to render line chart %q", title)
	}
	return buf.String(), nil
}

// LineChartSVGFile renders the points with LineChartSVG and writes the result
// to filePath.
func LineChartSVGFile(points []Point, width, height int, title, filePath string) error {
	svg, err := LineChartSVG(points, width, height, title)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, []byte(svg), 0644); err != nil {
		return errors.Wrapf(err, "failed to write line chart to %q", filePath)
	}
	return nil
}
