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
	"github.com/gomlx/avb"
	"github.com/gomlx/avb/networks"
	"github.com/gomlx/avb/ui/plots"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainedModel holds the weights of a finished training run and answers
// queries: reconstructions, posterior samples and prior generations. Queries
// are stochastic, repeated calls sample fresh noise.
type TrainedModel struct {
	backend   backends.Backend
	ctx       *context.Context
	modelType ModelType
	netSpec   networks.Spec

	reparametrised *networks.ReparametrisedEncoder
	encoder        *networks.Encoder
	decoder        *networks.Decoder

	history []plots.Point
}

func newTrainedModel(t *Trainer) *TrainedModel {
	return &TrainedModel{
		backend:        t.backend,
		ctx:            t.ctx,
		modelType:      t.modelType,
		netSpec:        t.netSpec,
		reparametrised: t.reparametrised,
		encoder:        t.encoder,
		decoder:        t.decoder,
		history:        t.history,
	}
}

// ModelType returns the objective the model was trained with.
func (m *TrainedModel) ModelType() ModelType { return m.modelType }

// Spec returns the network shape parameters.
func (m *TrainedModel) Spec() networks.Spec { return m.netSpec }

// Context returns the context holding the trained variables.
func (m *TrainedModel) Context() *context.Context { return m.ctx }

// History returns the loss curve recorded during training, one point per
// logged step and metric.
func (m *TrainedModel) History() []plots.Point { return m.history }

// sampleLatent draws one posterior sample per row of x.
func (m *TrainedModel) sampleLatent(ctx *context.Context, x *Node) *Node {
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]
	if m.modelType == VAE {
		noise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, m.netSpec.LatentDim))
		return m.reparametrised.EncodeForInference(ctx, x, noise)
	}
	noise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, m.netSpec.NoiseDim))
	return m.encoder.Encode(ctx, x, noise)
}

// replicateRows repeats each row of x samplingSize times, in order: the
// outputs for input row i occupy rows [i*samplingSize, (i+1)*samplingSize).
func replicateRows(x *Node, samplingSize int) *Node {
	numRows := x.Shape().Dimensions[0]
	dim := x.Shape().Dimensions[1]
	x = InsertAxes(x, 1)
	x = BroadcastToDims(x, numRows, samplingSize, dim)
	return Reshape(x, numRows*samplingSize, dim)
}

func (m *TrainedModel) checkQuery(data *tensors.Tensor, samplingSize, batchSize int) error {
	if data == nil {
		return errors.Wrap(avb.ErrConfiguration, "query requires data, got nil")
	}
	dims := data.Shape().Dimensions
	if data.Shape().Rank() != 2 || dims[1] != m.netSpec.DataDim || data.DType() != dtypes.Float32 {
		return errors.Wrapf(avb.ErrConfiguration,
			"query data must be float32 shaped [numExamples, %d], got %s", m.netSpec.DataDim, data.Shape())
	}
	if samplingSize <= 0 || batchSize <= 0 {
		return errors.Wrapf(avb.ErrConfiguration,
			"query requires samplingSize > 0 and batchSize > 0, got %d and %d", samplingSize, batchSize)
	}
	return nil
}

// sampleQuery runs body over the rows of data, each row replicated
// samplingSize times with fresh noise. Inputs are fed in chunks so that one
// device call evaluates about batchSize replicated rows.
func (m *TrainedModel) sampleQuery(data *tensors.Tensor, samplingSize, batchSize, outDim int,
	body func(ctx *context.Context, x *Node) *Node) (*tensors.Tensor, error) {
	numInputs := data.Shape().Dimensions[0]
	dataDim := data.Shape().Dimensions[1]
	inputsPerCall := max(1, batchSize/samplingSize)
	flatIn := tensors.CopyFlatData[float32](data)
	flat := make([]float32, 0, numInputs*samplingSize*outDim)
	err := exceptions.TryCatch[error](func() {
		exec := context.NewExec(m.backend, m.ctx.Reuse(), func(ctx *context.Context, x *Node) *Node {
			x = replicateRows(x, samplingSize)
			return body(ctx, x)
		})
		for start := 0; start < numInputs; start += inputsPerCall {
			n := min(inputsPerCall, numInputs-start)
			chunk := tensors.FromFlatDataAndDimensions(flatIn[start*dataDim:(start+n)*dataDim], n, dataDim)
			flat = append(flat, tensors.CopyFlatData[float32](exec.Call(chunk)[0])...)
		}
	})
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(flat, numInputs*samplingSize, outDim), nil
}

// Reconstruct encodes and decodes every row of data samplingSize times with
// fresh posterior noise, batchSize replicated rows per device call. data is
// shaped [numExamples, DataDim]; the result is shaped
// [numExamples*samplingSize, DataDim], reconstructions of row i at rows
// [i*samplingSize, (i+1)*samplingSize), holding Bernoulli probabilities.
func (m *TrainedModel) Reconstruct(data *tensors.Tensor, samplingSize, batchSize int) (*tensors.Tensor, error) {
	if err := m.checkQuery(data, samplingSize, batchSize); err != nil {
		return nil, err
	}
	return m.sampleQuery(data, samplingSize, batchSize, m.netSpec.DataDim,
		func(ctx *context.Context, x *Node) *Node {
			return m.decoder.Decode(ctx, m.sampleLatent(ctx, x))
		})
}

// Infer samples the posterior latent of every row of data samplingSize times,
// batchSize replicated rows per device call. The result is shaped
// [numExamples*samplingSize, LatentDim], ordered like Reconstruct.
func (m *TrainedModel) Infer(data *tensors.Tensor, samplingSize, batchSize int) (*tensors.Tensor, error) {
	if err := m.checkQuery(data, samplingSize, batchSize); err != nil {
		return nil, err
	}
	return m.sampleQuery(data, samplingSize, batchSize, m.netSpec.LatentDim, m.sampleLatent)
}

// Generate decodes numSamples latent codes drawn from the N(0, I) prior,
// batchSize at a time. The result is shaped [numSamples, DataDim].
func (m *TrainedModel) Generate(numSamples, batchSize int) (*tensors.Tensor, error) {
	if numSamples <= 0 || batchSize <= 0 {
		return nil, errors.Wrapf(avb.ErrConfiguration,
			"generation requires numSamples > 0 and batchSize > 0, got %d and %d", numSamples, batchSize)
	}
	flat := make([]float32, 0, numSamples*m.netSpec.DataDim)
	err := exceptions.TryCatch[error](func() {
		exec := context.NewExec(m.backend, m.ctx.Reuse(), func(ctx *context.Context, g *Graph) *Node {
			prior := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, m.netSpec.LatentDim))
			return m.decoder.Decode(ctx, prior)
		})
		for generated := 0; generated < numSamples; generated += batchSize {
			batch := tensors.CopyFlatData[float32](exec.Call()[0])
			take := min(batchSize, numSamples-generated)
			flat = append(flat, batch[:take*m.netSpec.DataDim]...)
		}
	})
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(flat, numSamples, m.netSpec.DataDim), nil
}

// Save writes a checkpoint with the model weights under dir, creating it if
// needed. The checkpoint can seed another trainer through
// Trainer.InitFromCheckpoint.
func (m *TrainedModel) Save(dir string) error {
	handler, err := checkpoints.Build(m.ctx).Dir(dir).Keep(1).Done()
	if err != nil {
		return errors.Wrapf(avb.ErrIO, "preparing checkpoint directory %q: %v", dir, err)
	}
	if err = handler.Save(); err != nil {
		return errors.Wrapf(avb.ErrIO, "saving checkpoint to %q: %v", dir, err)
	}
	klog.V(1).Infof("Saved %s model to %q", m.modelType, handler.Dir())
	return nil
}
