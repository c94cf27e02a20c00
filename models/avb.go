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
	"fmt"
	"io"

	"github.com/gomlx/avb/networks"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/schollz/progressbar/v3"
)

// Adversarial training alternates two trainers over a shared context: the
// discriminator learns to tell posterior samples (label 1) from prior samples
// (label 0), while encoder and decoder learn from the ELBO with the
// discriminator's logit standing in for the KL term. Freezing a side is done
// by flipping Variable.Trainable before its opponent's gradients are taken;
// both graphs flip all scopes, so correctness does not depend on which graph
// is built first.

func setScopeTrainable(ctx *context.Context, scope string, trainable bool) {
	ctx.In(scope).EnumerateVariablesInScope(func(v *context.Variable) {
		v.Trainable = trainable
	})
}

// adaptiveMoments estimates the aggregate posterior moments of the current
// batch, under stop gradient: the moments parameterise the normalization, but
// no gradient flows through the estimate. Returns mean and variance shaped
// [1, LatentDim], ready to broadcast against [batch, LatentDim] latents. The
// variance carries a small epsilon so its square root and log stay finite
// even if the posterior momentarily collapses.
func (t *Trainer) adaptiveMoments(ctx *context.Context, x *Node) (mean, variance *Node) {
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]
	momentNoise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, t.netSpec.NoiseDim))
	mean, variance = t.momentEncoder.EstimateMoments(ctx, x, momentNoise)
	mean = InsertAxes(StopGradient(mean), 0)
	variance = AddScalar(InsertAxes(StopGradient(variance), 0), 1e-8)
	return
}

// encoderDecoderGraph builds the reconstruction plus density-ratio loss that
// updates encoder and decoder. The discriminator participates frozen.
//
// With adaptive contrast the discriminator scores the moment-normalized
// latent, and the loss adds back the analytic part of the KL divergence that
// the normalization took out of the discriminator's estimate:
// 0.5 * sum(z^2 - zNorm^2 - log(variance)).
func (t *Trainer) encoderDecoderGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	x := inputs[0]
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]

	noise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, t.netSpec.NoiseDim))
	latent := t.encoder.Encode(ctx, x, noise)
	logits := t.decoder.DecodeLogits(ctx, latent)
	recon := reconstructionNLL(logits, x)

	var ratio *Node
	if t.modelType == AVBAdaptiveContrast {
		mean, variance := t.adaptiveMoments(ctx, x)
		normalized := Div(Sub(latent, mean), Sqrt(variance))
		score := t.discriminator.Discriminate(ctx, x, normalized)
		ratio = Reshape(score, batchSize)
		analytic := MulScalar(ReduceSum(Sub(Square(latent), Add(Square(normalized), Log(variance))), -1), 0.5)
		ratio = Add(ratio, analytic)
	} else {
		score := t.discriminator.Discriminate(ctx, x, latent)
		ratio = Reshape(score, batchSize)
	}
	loss := ReduceAllMean(Add(recon, ratio))

	setScopeTrainable(ctx, networks.ScopeEncoder, true)
	setScopeTrainable(ctx, networks.ScopeDecoder, true)
	setScopeTrainable(ctx, networks.ScopeDiscriminator, false)
	return []*Node{logits, loss}
}

// discriminatorGraph builds the sigmoid cross entropy loss that updates the
// discriminator: posterior samples labeled 1, prior samples labeled 0. The
// encoder only provides samples, it participates frozen and under stop
// gradient.
func (t *Trainer) discriminatorGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	x := inputs[0]
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]

	noise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, t.netSpec.NoiseDim))
	latent := t.encoder.Encode(ctx, x, noise)
	posterior := latent
	if t.modelType == AVBAdaptiveContrast {
		mean, variance := t.adaptiveMoments(ctx, x)
		posterior = Div(Sub(latent, mean), Sqrt(variance))
	}
	posterior = StopGradient(posterior)
	prior := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, t.netSpec.LatentDim))

	posteriorScore := t.discriminator.Discriminate(ctx, x, posterior)
	priorScore := t.discriminator.Discriminate(ctx, x, prior)
	loss := Add(
		ReduceAllMean(Softplus(Neg(posteriorScore))),
		ReduceAllMean(Softplus(priorScore)))

	setScopeTrainable(ctx, networks.ScopeEncoder, false)
	setScopeTrainable(ctx, networks.ScopeDecoder, false)
	setScopeTrainable(ctx, networks.ScopeDiscriminator, true)
	return []*Node{posteriorScore, loss}
}

func (t *Trainer) trainAdversarial(ds train.Dataset, stepsPerEpoch int) error {
	lossFn := func(labels, predictions []*Node) *Node { return predictions[1] }
	encDecOptimizer := optimizers.Adam().
		Scope("adam_encdec").
		LearningRate(t.config.LearningRate).
		Betas(t.config.AdamBeta1, 0.999).
		Done()
	discOptimizer := optimizers.Adam().
		Scope("adam_discriminator").
		LearningRate(t.config.DiscriminatorLearningRate).
		Betas(t.config.AdamBeta1, 0.999).
		Done()
	// The two training graphs overlap on the encoder and discriminator
	// variables: whichever graph builds second reuses variables created by the
	// first while still creating its own optimizer slots, so variable
	// checking must be disabled.
	ctx := t.ctx.Checked(false)
	encDecTrainer := train.NewTrainer(t.backend, ctx, t.encoderDecoderGraph, lossFn, encDecOptimizer,
		[]metrics.Interface{}, []metrics.Interface{})
	discTrainer := train.NewTrainer(t.backend, ctx, t.discriminatorGraph, lossFn, discOptimizer,
		[]metrics.Interface{}, []metrics.Interface{})

	totalSteps := -1
	if stepsPerEpoch > 0 {
		totalSteps = stepsPerEpoch * t.config.Epochs
	}
	bar := progressbar.NewOptions(totalSteps,
		progressbar.OptionSetDescription("adversarial training"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII))

	step := 0
	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		if epoch > 0 {
			ds.Reset()
		}
		for {
			dsSpec, batchInputs, batchLabels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			discMetrics := discTrainer.TrainStep(dsSpec, batchInputs, batchLabels)
			encDecMetrics := encDecTrainer.TrainStep(dsSpec, batchInputs, batchLabels)
			step++
			_ = bar.Add(1)
			if t.config.LogEverySteps > 0 && step%t.config.LogEverySteps == 0 {
				t.recordPoint("Discriminator Loss", "disc", float64(step), float64(discMetrics[0].Value().(float32)))
				t.recordPoint("Encoder/Decoder Loss", "encdec", float64(step), float64(encDecMetrics[0].Value().(float32)))
			}
		}
	}
	_ = bar.Finish()
	fmt.Println()
	return nil
}
