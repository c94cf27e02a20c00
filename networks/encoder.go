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

package networks

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// Encoder maps a data point and a noise sample to a latent code. It is the
// implicit posterior of the adversarial models: the posterior distribution is
// whatever distribution the pushed-forward noise ends up with.
type Encoder struct {
	spec    Spec
	graphFn encoderGraphFn
}

// NewEncoder creates an encoder for the spec's architecture.
func NewEncoder(spec Spec) (*Encoder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graphFn, err := encoderFor(spec.Architecture)
	if err != nil {
		return nil, err
	}
	return &Encoder{spec: spec, graphFn: graphFn}, nil
}

// Spec returns the shape parameters the encoder was built for.
func (e *Encoder) Spec() Spec { return e.spec }

// Encode builds the encoding graph. data is shaped [batch, DataDim] and noise
// [batch, NoiseDim]; the returned latent is shaped [batch, LatentDim].
// Variables live under ScopeEncoder of ctx.
func (e *Encoder) Encode(ctx *context.Context, data, noise *Node) *Node {
	return e.graphFn(ctx.In(ScopeEncoder), data, noise, e.spec)
}

// MomentEncoder estimates the aggregate posterior moments of an Encoder. It
// builds its graph under the same ScopeEncoder, so the moments are those of
// the encoder actually being trained, not of a separate network.
type MomentEncoder struct {
	spec    Spec
	graphFn encoderGraphFn
}

// NewMomentEncoder creates a moment estimation encoder for the spec's
// architecture.
func NewMomentEncoder(spec Spec) (*MomentEncoder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graphFn, err := encoderFor(spec.Architecture)
	if err != nil {
		return nil, err
	}
	return &MomentEncoder{spec: spec, graphFn: graphFn}, nil
}

// Spec returns the shape parameters the encoder was built for.
func (e *MomentEncoder) Spec() Spec { return e.spec }

// EstimateMoments encodes a sample of (data, noise) pairs and reduces the
// latent codes to their empirical mean and variance. data is shaped
// [sampleSize, DataDim] and samplingNoise [sampleSize, NoiseDim]; mean and
// variance are each shaped [LatentDim]. The sample axis is the batch axis, so
// the estimate sharpens as the sample grows.
func (e *MomentEncoder) EstimateMoments(ctx *context.Context, data, samplingNoise *Node) (mean, variance *Node) {
	latent := e.graphFn(ctx.In(ScopeEncoder), data, samplingNoise, e.spec)
	mean = ReduceMean(latent, 0)
	variance = ReduceVariance(latent, 0)
	return
}

// ReparametrisedEncoder is a Gaussian posterior encoder: it predicts a mean
// and log-variance per data point and samples the latent with the
// reparametrisation trick.
type ReparametrisedEncoder struct {
	spec    Spec
	graphFn gaussianGraphFn
}

// NewReparametrisedEncoder creates a reparametrised Gaussian encoder for the
// spec's architecture.
func NewReparametrisedEncoder(spec Spec) (*ReparametrisedEncoder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graphFn, err := gaussianFor(spec.Architecture)
	if err != nil {
		return nil, err
	}
	return &ReparametrisedEncoder{spec: spec, graphFn: graphFn}, nil
}

// Spec returns the shape parameters the encoder was built for.
func (e *ReparametrisedEncoder) Spec() Spec { return e.spec }

// EncodeForTraining builds the training graph, returning the sampled latent
// along with the posterior moments the loss needs. data is shaped
// [batch, DataDim] and noise [batch, LatentDim], a standard normal sample.
// With zero noise the latent collapses to the posterior mean.
func (e *ReparametrisedEncoder) EncodeForTraining(ctx *context.Context, data, noise *Node) (latent, mean, logVar *Node) {
	mean, logVar = e.graphFn(ctx.In(ScopeEncoder), data, e.spec)
	stdDev := Exp(MulScalar(logVar, 0.5))
	latent = Add(mean, Mul(stdDev, noise))
	return
}

// EncodeForInference builds the sampling graph, returning only the latent.
func (e *ReparametrisedEncoder) EncodeForInference(ctx *context.Context, data, noise *Node) *Node {
	latent, _, _ := e.EncodeForTraining(ctx, data, noise)
	return latent
}
