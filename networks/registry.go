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
	"fmt"

	"github.com/gomlx/avb"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/pkg/errors"
)

// Graph building functions selected by the registry, one signature per role.
// The context passed in is already scoped to the network's variable scope.
type (
	encoderGraphFn       func(ctx *context.Context, data, noise *Node, spec Spec) *Node
	gaussianGraphFn      func(ctx *context.Context, data *Node, spec Spec) (mean, logVar *Node)
	decoderGraphFn       func(ctx *context.Context, latent *Node, spec Spec) *Node
	discriminatorGraphFn func(ctx *context.Context, data, latent *Node, spec Spec) *Node
)

// encoderFor returns the encoder body for the architecture.
func encoderFor(arch Architecture) (encoderGraphFn, error) {
	switch arch {
	case ArchSynthetic:
		return syntheticEncoder, nil
	case ArchMNIST:
		return mnistEncoder, nil
	case ArchMNISTConv:
		return mnistConvEncoder, nil
	}
	return nil, errors.Wrapf(avb.ErrConfiguration, "no encoder registered for architecture %q", arch)
}

// gaussianFor returns the reparametrised (Gaussian posterior) encoder body
// for the architecture.
func gaussianFor(arch Architecture) (gaussianGraphFn, error) {
	switch arch {
	case ArchSynthetic:
		return syntheticGaussian, nil
	case ArchMNIST:
		return mnistGaussian, nil
	case ArchMNISTConv:
		return mnistConvGaussian, nil
	}
	return nil, errors.Wrapf(avb.ErrConfiguration, "no reparametrised encoder registered for architecture %q", arch)
}

// decoderFor returns the decoder body for the architecture.
func decoderFor(arch Architecture) (decoderGraphFn, error) {
	switch arch {
	case ArchSynthetic:
		return syntheticDecoder, nil
	case ArchMNIST:
		return mnistDecoder, nil
	case ArchMNISTConv:
		return mnistConvDecoder, nil
	}
	return nil, errors.Wrapf(avb.ErrConfiguration, "no decoder registered for architecture %q", arch)
}

// discriminatorFor returns the discriminator body for the architecture.
func discriminatorFor(arch Architecture) (discriminatorGraphFn, error) {
	switch arch {
	case ArchSynthetic:
		return syntheticDiscriminator, nil
	case ArchMNIST:
		return mnistDiscriminator, nil
	case ArchMNISTConv:
		return mnistConvDiscriminator, nil
	}
	return nil, errors.Wrapf(avb.ErrConfiguration, "no discriminator registered for architecture %q", arch)
}

// mlp applies a stack of Dense+ReLU layers, one numbered scope per layer.
func mlp(ctx *context.Context, x *Node, hidden ...int) *Node {
	for ii, units := range hidden {
		x = layers.Dense(ctx.In(fmt.Sprintf("%03d_dense", ii)), x, true, units)
		x = activations.Relu(x)
	}
	return x
}

// withNoise passes the noise through the learned basis, if one is configured,
// and concatenates it to x along the feature axis. A nil noise returns x
// unchanged, which is how the inference graphs of the deterministic encoders
// drop their stochastic input.
func withNoise(ctx *context.Context, x, noise *Node, spec Spec) *Node {
	if noise == nil {
		return x
	}
	if spec.NoiseBasisDim > 0 {
		noise = layers.Dense(ctx.In("noise_basis"), noise, true, spec.NoiseBasisDim)
		noise = Tanh(noise)
	}
	return Concatenate([]*Node{x, noise}, -1)
}

// convStem is the shared convolutional feature extractor of the mnist_conv
// architecture. It reshapes the flat pixels back to their 28x28 geometry and
// returns flattened features.
func convStem(ctx *context.Context, data *Node) *Node {
	batchSize := data.Shape().Dimensions[0]
	x := Reshape(data, batchSize, 28, 28, 1)
	x = layers.Convolution(ctx.In("conv0"), x).Filters(32).KernelSize(3).PadSame().Done()
	x = activations.Relu(x)
	x = MaxPool(x).Window(2).Done()
	x = layers.Convolution(ctx.In("conv1"), x).Filters(64).KernelSize(3).PadSame().Done()
	x = activations.Relu(x)
	x = MaxPool(x).Window(2).Done()
	return Reshape(x, batchSize, -1)
}

// Synthetic: small MLPs for the low dimensional datasets.

func syntheticEncoder(ctx *context.Context, data, noise *Node, spec Spec) *Node {
	x := withNoise(ctx, data, noise, spec)
	x = mlp(ctx, x, 256, 256)
	return layers.Dense(ctx.In("latent"), x, true, spec.LatentDim)
}

func syntheticGaussian(ctx *context.Context, data *Node, spec Spec) (mean, logVar *Node) {
	x := mlp(ctx, data, 256, 256)
	mean = layers.Dense(ctx.In("mean"), x, true, spec.LatentDim)
	logVar = layers.Dense(ctx.In("log_var"), x, true, spec.LatentDim)
	return
}

func syntheticDecoder(ctx *context.Context, latent *Node, spec Spec) *Node {
	x := mlp(ctx, latent, 256, 256)
	return layers.Dense(ctx.In("logits"), x, true, spec.DataDim)
}

func syntheticDiscriminator(ctx *context.Context, data, latent *Node, spec Spec) *Node {
	x := Concatenate([]*Node{data, latent}, -1)
	x = mlp(ctx, x, 256, 256)
	return layers.Dense(ctx.In("logit"), x, true, 1)
}

// MNIST: wider MLPs for flattened 28x28 images.

func mnistEncoder(ctx *context.Context, data, noise *Node, spec Spec) *Node {
	x := withNoise(ctx, data, noise, spec)
	x = mlp(ctx, x, 512, 512)
	return layers.Dense(ctx.In("latent"), x, true, spec.LatentDim)
}

func mnistGaussian(ctx *context.Context, data *Node, spec Spec) (mean, logVar *Node) {
	x := mlp(ctx, data, 512, 512)
	mean = layers.Dense(ctx.In("mean"), x, true, spec.LatentDim)
	logVar = layers.Dense(ctx.In("log_var"), x, true, spec.LatentDim)
	return
}

func mnistDecoder(ctx *context.Context, latent *Node, spec Spec) *Node {
	x := mlp(ctx, latent, 512, 512)
	return layers.Dense(ctx.In("logits"), x, true, spec.DataDim)
}

func mnistDiscriminator(ctx *context.Context, data, latent *Node, spec Spec) *Node {
	x := Concatenate([]*Node{data, latent}, -1)
	x = mlp(ctx, x, 512, 512)
	return layers.Dense(ctx.In("logit"), x, true, 1)
}

// MNIST convolutional: conv stem for readers of pixels, transposed geometry
// for the decoder. The noise joins at the dense head, after the stem.

func mnistConvEncoder(ctx *context.Context, data, noise *Node, spec Spec) *Node {
	x := convStem(ctx, data)
	x = withNoise(ctx, x, noise, spec)
	x = layers.Dense(ctx.In("head"), x, true, 512)
	x = activations.Relu(x)
	return layers.Dense(ctx.In("latent"), x, true, spec.LatentDim)
}

func mnistConvGaussian(ctx *context.Context, data *Node, spec Spec) (mean, logVar *Node) {
	x := convStem(ctx, data)
	x = layers.Dense(ctx.In("head"), x, true, 512)
	x = activations.Relu(x)
	mean = layers.Dense(ctx.In("mean"), x, true, spec.LatentDim)
	logVar = layers.Dense(ctx.In("log_var"), x, true, spec.LatentDim)
	return
}

func mnistConvDecoder(ctx *context.Context, latent *Node, spec Spec) *Node {
	batchSize := latent.Shape().Dimensions[0]
	x := layers.Dense(ctx.In("project"), latent, true, 7*7*64)
	x = activations.Relu(x)
	x = Reshape(x, batchSize, 7, 7, 64)
	x = Interpolate(x, -1, 14, 14, -1).Bilinear().Done()
	x = layers.Convolution(ctx.In("conv0"), x).Filters(32).KernelSize(3).PadSame().Done()
	x = activations.Relu(x)
	x = Interpolate(x, -1, 28, 28, -1).Bilinear().Done()
	x = layers.Convolution(ctx.In("conv1"), x).Filters(1).KernelSize(3).PadSame().Done()
	return Reshape(x, batchSize, spec.DataDim)
}

func mnistConvDiscriminator(ctx *context.Context, data, latent *Node, spec Spec) *Node {
	x := convStem(ctx, data)
	x = Concatenate([]*Node{x, latent}, -1)
	x = layers.Dense(ctx.In("head"), x, true, 512)
	x = activations.Relu(x)
	return layers.Dense(ctx.In("logit"), x, true, 1)
}
