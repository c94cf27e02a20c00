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
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gopjrt/dtypes"
)

// reconstructionNLL is the negative log likelihood of x under the Bernoulli
// distribution parameterised by the decoder logits, summed over the data
// dimensions. Returns one value per example, shaped [batch].
//
// Uses the identity -log p(x|logits) = softplus(logits) - logits*x, summed
// elementwise, which is stable for logits of either sign.
func reconstructionNLL(logits, x *Node) *Node {
	return ReduceSum(Sub(Softplus(logits), Mul(logits, x)), -1)
}

// vaeGraph builds the VAE forward pass and its negated ELBO. Returns the
// reconstruction logits and the scalar loss; the trainer's loss function
// picks the latter.
func (t *Trainer) vaeGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	x := inputs[0]
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]

	noise := ctx.RandomNormal(g, shapes.Make(dtypes.Float32, batchSize, t.netSpec.LatentDim))
	latent, mean, logVar := t.reparametrised.EncodeForTraining(ctx, x, noise)
	logits := t.decoder.DecodeLogits(ctx, latent)

	recon := reconstructionNLL(logits, x)
	// KL(q(z|x) || N(0, I)) = -0.5 * sum(1 + logVar - mean^2 - exp(logVar)).
	kl := MulScalar(ReduceSum(Sub(AddScalar(logVar, 1), Add(Square(mean), Exp(logVar))), -1), -0.5)
	loss := ReduceAllMean(Add(recon, kl))
	return []*Node{logits, loss}
}

func (t *Trainer) trainVAE(ds train.Dataset) error {
	optimizer := optimizers.Adam().
		LearningRate(t.config.LearningRate).
		Betas(t.config.AdamBeta1, 0.999).
		Done()
	lossFn := func(labels, predictions []*Node) *Node { return predictions[1] }
	trainer := train.NewTrainer(t.backend, t.ctx, t.vaeGraph, lossFn, optimizer,
		[]metrics.Interface{}, // trainMetrics
		[]metrics.Interface{}) // evalMetrics
	if optimizers.GetGlobalStep(t.ctx) > 0 {
		// Variables were restored from a checkpoint.
		trainer.SetContext(t.ctx.Reuse())
	}

	loop := train.NewLoop(trainer)
	commandline.AttachProgressBar(loop)
	loop.OnStep("training-history", 100, func(loop *train.Loop, stepMetrics []*tensors.Tensor) error {
		if t.config.LogEverySteps > 0 && loop.LoopStep%t.config.LogEverySteps == 0 {
			t.recordPoint("Training Loss", "loss", float64(loop.LoopStep), float64(stepMetrics[0].Value().(float32)))
		}
		return nil
	})
	_, err := loop.RunEpochs(ds, t.config.Epochs)
	return err
}
