package plots

import (
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/MetalBlueberry/go-plotly/pkg/offline"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"
)

// PlotlyFig builds an interactive plotly figure from the points, one scatter
// trace per metric name, the global step on the x-axis.
func PlotlyFig(points []Point, title string) (*grob.Fig, error) {
	if len(points) == 0 {
		return nil, errors.New("no points to plot")
	}
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(title),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
				Type:     grob.LayoutXaxisTypeLinear,
			},
			Yaxis: &grob.LayoutYaxis{
				Showgrid: ptypes.B(true),
				Type:     grob.LayoutYaxisTypeLinear,
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	perName := make(map[string][]Point)
	for _, pt := range points {
		perName[pt.MetricName] = append(perName[pt.MetricName], pt)
	}
	for _, name := range xslices.SortedKeys(perName) {
		group := perName[name]
		Xs := make([]float64, 0, len(group))
		Ys := make([]float64, 0, len(group))
		for _, pt := range group {
			Xs = append(Xs, pt.Step)
			Ys = append(Ys, pt.Value)
		}
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(name),
			Line: &grob.ScatterLine{
				Shape: grob.ScatterLineShapeLinear,
			},
			Mode: "lines+markers",
			X:    ptypes.DataArray(Xs),
			Y:    ptypes.DataArray(Ys),
		})
	}
	return fig, nil
}

// PlotlyHTMLFile writes the points as a standalone interactive HTML page,
// with one scatter trace per metric name.
func PlotlyHTMLFile(points []Point, title, filePath string) error {
	fig, err := PlotlyFig(points, title)
	if err != nil {
		return err
	}
	// offline.ToHtml doesn't report errors, so check the file was created.
	offline.ToHtml(fig, filePath)
	if _, err := os.Stat(filePath); err != nil {
		return errors.Wrapf(err, "failed to write plotly chart to %q", filePath)
	}
	return nil
}
