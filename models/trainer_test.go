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

package models

import (
	"math"
	"math/rand"
	"path"
	"testing"

	"github.com/gomlx/avb"
	"github.com/gomlx/avb/networks"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

const (
	testNumExamples = 32
	testBatchSize   = 16
)

func testSpec() networks.Spec {
	return networks.Spec{
		DataDim:      4,
		NoiseDim:     2,
		LatentDim:    2,
		Architecture: networks.ArchSynthetic,
	}
}

func testTrainConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.BatchSize = testBatchSize
	cfg.Epochs = 2
	cfg.LogEverySteps = 1
	return cfg
}

// testDataset builds a small random dataset of values in [0, 1].
func testDataset(t *testing.T, backend backends.Backend, spec networks.Spec) train.Dataset {
	rng := rand.New(rand.NewSource(42))
	flat := make([]float32, testNumExamples*spec.DataDim)
	for ii := range flat {
		flat[ii] = float32(rng.Float64())
	}
	x := tensors.FromFlatDataAndDimensions(flat, testNumExamples, spec.DataDim)
	ds, err := data.InMemoryFromData(backend, "random", []any{x}, nil)
	require.NoError(t, err)
	return ds.Shuffle().BatchSize(testBatchSize, true)
}

// checkTrainedModel exercises the inference operations shared by all model
// types.
func checkTrainedModel(t *testing.T, model *TrainedModel) {
	spec := model.Spec()
	// batchSize below numQueries*samplingSize forces chunked evaluation,
	// with a smaller trailing chunk.
	const numQueries, samplingSize, batchSize = 3, 5, 10
	queries := randomQueries(numQueries, spec.DataDim)

	recon, err := model.Reconstruct(queries, samplingSize, batchSize)
	require.NoError(t, err)
	assert.Equal(t, []int{numQueries * samplingSize, spec.DataDim}, recon.Shape().Dimensions)
	for _, v := range tensors.CopyFlatData[float32](recon) {
		require.False(t, math.IsNaN(float64(v)))
		require.True(t, v >= 0 && v <= 1, "reconstruction %g outside [0, 1]", v)
	}

	latents, err := model.Infer(queries, samplingSize, batchSize)
	require.NoError(t, err)
	assert.Equal(t, []int{numQueries * samplingSize, spec.LatentDim}, latents.Shape().Dimensions)

	// Generation in batches smaller than the total.
	generated, err := model.Generate(7, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{7, spec.DataDim}, generated.Shape().Dimensions)
}

func randomQueries(rows, cols int) *tensors.Tensor {
	rng := rand.New(rand.NewSource(17))
	flat := make([]float32, rows*cols)
	for ii := range flat {
		flat[ii] = float32(rng.Float64())
	}
	return tensors.FromFlatDataAndDimensions(flat, rows, cols)
}

func TestTrainerVAE(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	spec := testSpec()
	trainer, err := NewTrainer(backend, VAE, spec, testTrainConfig())
	require.NoError(t, err)
	trainer.SetSeed(42)
	assert.Equal(t, Configured, trainer.State())

	ds := testDataset(t, backend, spec)
	model, err := trainer.Train(ds, testNumExamples/testBatchSize)
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, Trained, trainer.State())
	assert.Equal(t, VAE, model.ModelType())

	history := model.History()
	require.NotEmpty(t, history)
	for _, pt := range history {
		assert.Equal(t, "loss", pt.MetricType)
		assert.False(t, math.IsNaN(pt.Value))
	}

	checkTrainedModel(t, model)

	// The trainer is single use.
	_, err = trainer.Train(ds, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}

func TestTrainerAVB(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	spec := testSpec()
	trainer, err := NewTrainer(backend, AVB, spec, testTrainConfig())
	require.NoError(t, err)
	trainer.SetSeed(42)

	ds := testDataset(t, backend, spec)
	model, err := trainer.Train(ds, testNumExamples/testBatchSize)
	require.NoError(t, err)

	// Both adversarial losses are recorded.
	shorts := make(map[string]bool)
	for _, pt := range model.History() {
		shorts[pt.Short] = true
		assert.False(t, math.IsNaN(pt.Value))
	}
	assert.True(t, shorts["disc"])
	assert.True(t, shorts["encdec"])

	checkTrainedModel(t, model)
}

func TestTrainerAdaptiveContrast(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	spec := testSpec()
	spec.NoiseBasisDim = 4
	trainer, err := NewTrainer(backend, AVBAdaptiveContrast, spec, testTrainConfig())
	require.NoError(t, err)
	trainer.SetSeed(42)

	ds := testDataset(t, backend, spec)
	model, err := trainer.Train(ds, testNumExamples/testBatchSize)
	require.NoError(t, err)
	checkTrainedModel(t, model)
}

// A saved checkpoint warm-starts a fresh trainer of the same model type,
// which continues training from the stored weights.
func TestSaveAndWarmStart(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	spec := testSpec()
	trainer, err := NewTrainer(backend, AVB, spec, testTrainConfig())
	require.NoError(t, err)
	trainer.SetSeed(42)
	ds := testDataset(t, backend, spec)
	model, err := trainer.Train(ds, 0)
	require.NoError(t, err)

	dir := path.Join(t.TempDir(), "avb")
	require.NoError(t, model.Save(dir))

	warm, err := NewTrainer(backend, AVB, spec, testTrainConfig())
	require.NoError(t, err)
	require.NoError(t, warm.InitFromCheckpoint(dir))
	warm.SetSeed(43)
	resumed, err := warm.Train(testDataset(t, backend, spec), 0)
	require.NoError(t, err)
	checkTrainedModel(t, resumed)
}

func TestInitFromCheckpointEmptyDir(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	trainer, err := NewTrainer(backend, AVB, testSpec(), testTrainConfig())
	require.NoError(t, err)
	err = trainer.InitFromCheckpoint(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}

func TestTrainedModelQueryValidation(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	spec := testSpec()
	trainer, err := NewTrainer(backend, VAE, spec, testTrainConfig())
	require.NoError(t, err)
	trainer.SetSeed(42)
	model, err := trainer.Train(testDataset(t, backend, spec), 0)
	require.NoError(t, err)

	queries := randomQueries(3, spec.DataDim)
	for name, call := range map[string]func() error{
		"nil data": func() error {
			_, err := model.Reconstruct(nil, 10, 10)
			return err
		},
		"wrong data dimension": func() error {
			_, err := model.Reconstruct(randomQueries(3, spec.DataDim+1), 10, 10)
			return err
		},
		"zero sampling size": func() error {
			_, err := model.Infer(queries, 0, 10)
			return err
		},
		"zero query batch": func() error {
			_, err := model.Reconstruct(queries, 10, 0)
			return err
		},
		"zero generation batch": func() error {
			_, err := model.Generate(10, 0)
			return err
		},
		"negative samples": func() error {
			_, err := model.Generate(-1, 10)
			return err
		},
	} {
		err := call()
		require.Errorf(t, err, "case %q", name)
		assert.True(t, errors.Is(err, avb.ErrConfiguration), "case %q", name)
	}
}
