/*
 *	Copyright 2025 The GoMLX Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package experiments

import (
	"fmt"
	"math"
	"os"
	"path"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/avb"
	"github.com/gomlx/avb/models"
	"github.com/gomlx/avb/ui/plots"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	chartWidth  = 1024
	chartHeight = 480
	gridScale   = 4

	// evalQueryBatchSize caps how many replicated rows Reconstruct and Infer
	// evaluate per device call.
	evalQueryBatchSize = 1000

	// maxScatterPoints bounds how many sample rows a scatter plot draws;
	// larger sample sets are strided down evenly.
	maxScatterPoints = 20000
)

// persistOutputs evaluates the trained model and writes every artifact of
// the run: the checkpoint, the NumPy sample files, the training history and
// the plots.
func persistOutputs(trained *models.TrainedModel, hyper Hyperparameters, exp experimentData, outputDir string) error {
	if err := trained.Save(path.Join(outputDir, CheckpointDirName)); err != nil {
		return err
	}

	evalBatch := min(evalQueryBatchSize, exp.evalData.Shape().Dimensions[0])
	recon, err := trained.Reconstruct(exp.evalData, hyper.SamplingSize, evalBatch)
	if err != nil {
		return err
	}
	latents, err := trained.Infer(exp.evalData, hyper.SamplingSize, evalBatch)
	if err != nil {
		return err
	}
	generated, err := trained.Generate(numGenerated, generationBatchSize)
	if err != nil {
		return err
	}
	for fileName, t := range map[string]*tensors.Tensor{
		ReconstructionsFileName: recon,
		LatentsFileName:         latents,
		GenerationsFileName:     generated,
	} {
		dims := t.Shape().Dimensions
		if err := plots.SaveNPY(tensorToFloat64(t), dims[0], dims[1], path.Join(outputDir, fileName)); err != nil {
			return err
		}
	}

	history := trained.History()
	if len(history) == 0 {
		klog.Warning("No training history recorded, skipping the loss curves")
	} else {
		if err := plots.SavePoints(history, path.Join(outputDir, plots.TrainingPlotFileName)); err != nil {
			return errors.WithMessage(err, "saving training history")
		}
		if err := plots.LineChartSVGFile(history, chartWidth, chartHeight,
			"Training losses", path.Join(outputDir, "losses.svg")); err != nil {
			return err
		}
		if err := plots.PlotlyHTMLFile(history, "Training losses",
			path.Join(outputDir, "losses.html")); err != nil {
			return err
		}
		if err := writeMetricsCSV(history, path.Join(outputDir, MetricsFileName)); err != nil {
			return err
		}
	}

	if hyper.Spec.LatentDim == 2 {
		if err := scatterSamples("Latent space", "z0", "z1",
			latents, exp.evalClasses, hyper.SamplingSize, path.Join(outputDir, "latent_scatter.png")); err != nil {
			return err
		}
	}
	if exp.imageWidth > 0 {
		if err := reconstructionGrid(exp, recon, hyper.SamplingSize,
			path.Join(outputDir, "reconstruction_grid.png")); err != nil {
			return err
		}
		if err := generationGrid(exp, generated, path.Join(outputDir, "generation_grid.png")); err != nil {
			return err
		}
	} else {
		if err := scatterSamples("Reconstructions", "x0", "x1",
			recon, exp.evalClasses, hyper.SamplingSize, path.Join(outputDir, "reconstruction_scatter.png")); err != nil {
			return err
		}
	}
	return nil
}

// tensorToFloat64 flattens a float32 tensor into float64 values for
// persistence.
func tensorToFloat64(t *tensors.Tensor) []float64 {
	flat32 := tensors.CopyFlatData[float32](t)
	flat := make([]float64, len(flat32))
	for i, v := range flat32 {
		flat[i] = float64(v)
	}
	return flat
}

// scatterSamples plots the first two columns of the sample rows, colored by
// the class of the input that produced each row. Row i*samplingSize+k came
// from input i. At most maxScatterPoints rows are drawn, strided evenly over
// the whole set.
func scatterSamples(title, xLabel, yLabel string, samples *tensors.Tensor,
	classes []int, samplingSize int, filePath string) error {
	dims := samples.Shape().Dimensions
	flat := tensorToFloat64(samples)
	stride := max(1, (dims[0]+maxScatterPoints-1)/maxScatterPoints)
	numPoints := (dims[0] + stride - 1) / stride
	xs := make([]float64, numPoints)
	ys := make([]float64, numPoints)
	var rowClasses []int
	if classes != nil {
		rowClasses = make([]int, numPoints)
	}
	for i := range numPoints {
		row := i * stride
		xs[i] = flat[row*dims[1]]
		ys[i] = flat[row*dims[1]+1]
		if classes != nil {
			rowClasses[i] = classes[row/samplingSize]
		}
	}
	return plots.ScatterPNG(title, xLabel, yLabel, xs, ys, rowClasses, filePath)
}

// reconstructionGrid draws one column per evaluated digit: the original in
// the top row, reconstruction samples below it.
func reconstructionGrid(exp experimentData, recon *tensors.Tensor, samplingSize int, filePath string) error {
	const gridCols = 10
	const samplesPerDigit = 7
	numQueries := exp.evalData.Shape().Dimensions[0]
	dataDim := exp.evalData.Shape().Dimensions[1]
	cols := min(gridCols, numQueries)
	sampleRows := min(samplesPerDigit, samplingSize)

	originals := tensorToFloat64(exp.evalData)
	reconFlat := tensorToFloat64(recon)
	images := make([][]float64, 0, (1+sampleRows)*cols)
	for c := 0; c < cols; c++ {
		images = append(images, originals[c*dataDim:(c+1)*dataDim])
	}
	for r := 0; r < sampleRows; r++ {
		for c := 0; c < cols; c++ {
			row := c*samplingSize + r
			images = append(images, reconFlat[row*dataDim:(row+1)*dataDim])
		}
	}
	return plots.ImageGridPNG(images, exp.imageWidth, exp.imageHeight, cols, gridScale, filePath)
}

// generationGrid draws the decoded prior samples on a grid.
func generationGrid(exp experimentData, generated *tensors.Tensor, filePath string) error {
	dims := generated.Shape().Dimensions
	flat := tensorToFloat64(generated)
	images := make([][]float64, dims[0])
	for i := range images {
		images[i] = flat[i*dims[1] : (i+1)*dims[1]]
	}
	return plots.ImageGridPNG(images, exp.imageWidth, exp.imageHeight, 10, gridScale, filePath)
}

// writeMetricsCSV stores the training history as a wide CSV, the step column
// followed by one column per metric, and prints a statistics summary table.
func writeMetricsCSV(history []plots.Point, filePath string) error {
	perShort := make(map[string]map[float64]float64)
	stepSet := make(map[float64]bool)
	for _, pt := range history {
		m, found := perShort[pt.Short]
		if !found {
			m = make(map[float64]float64)
			perShort[pt.Short] = m
		}
		m[pt.Step] = pt.Value
		stepSet[pt.Step] = true
	}
	steps := xslices.SortedKeys(stepSet)
	columns := []series.Series{series.New(steps, series.Float, "step")}
	for _, short := range xslices.SortedKeys(perShort) {
		values := make([]float64, len(steps))
		for i, step := range steps {
			v, found := perShort[short][step]
			if !found {
				v = math.NaN()
			}
			values[i] = v
		}
		columns = append(columns, series.New(values, series.Float, short))
	}
	df := dataframe.New(columns...)
	if df.Err != nil {
		return errors.Wrapf(df.Err, "building metrics dataframe")
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(avb.ErrIO, "creating %q: %v", filePath, err)
	}
	if err := df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(avb.ErrIO, "writing %q: %v", filePath, err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(avb.ErrIO, "writing %q: %v", filePath, err)
	}

	describe := df.Describe()
	if records := describe.Records(); len(records) > 0 {
		fmt.Println(plots.RenderTable(records[0], records[1:]))
	}
	return nil
}
