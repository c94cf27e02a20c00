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
	"github.com/gomlx/avb"
	"github.com/gomlx/avb/datasets"
	"github.com/gomlx/avb/models"
	"github.com/gomlx/avb/networks"
	"github.com/pkg/errors"
)

// Hyperparameters bundle everything that defines one experiment's training
// setup: the network shapes, the optimization settings and how many
// posterior samples the evaluation draws per input.
type Hyperparameters struct {
	Spec         networks.Spec
	Train        models.TrainConfig
	SamplingSize int
}

// SyntheticHyperparameters returns the training setup of the 4-points
// experiment for the given model type.
//
// The shapes and rates follow the paper's generative experiments: a 2D
// latent space over 4-dimensional one-hot data, small enough that the
// learned posteriors can be plotted directly.
func SyntheticHyperparameters(model models.ModelType) (Hyperparameters, error) {
	spec := networks.Spec{
		DataDim:      4,
		LatentDim:    2,
		Architecture: networks.ArchSynthetic,
	}
	train := models.DefaultTrainConfig()
	train.BatchSize = 400
	train.Epochs = 200
	switch model {
	case models.VAE:
		train.LearningRate = 1e-3
		train.AdamBeta1 = 0.9
		train.DiscriminatorLearningRate = 0 // no discriminator
	case models.AVB:
		spec.NoiseDim = 4
		train.LearningRate = 8e-4
		train.DiscriminatorLearningRate = 8e-4
		train.AdamBeta1 = 0.5
	case models.AVBAdaptiveContrast:
		spec.NoiseDim = 4
		spec.NoiseBasisDim = 8
		train.LearningRate = 5e-4
		train.DiscriminatorLearningRate = 7e-4
		train.AdamBeta1 = 0.5
	default:
		return Hyperparameters{}, errors.Wrapf(avb.ErrConfiguration, "unknown model type %d", model)
	}
	return Hyperparameters{Spec: spec, Train: train, SamplingSize: 1000}, nil
}

// MNISTHyperparameters returns the training setup of the binarized MNIST
// experiment for the given model type.
func MNISTHyperparameters(model models.ModelType) (Hyperparameters, error) {
	spec := networks.Spec{
		DataDim:      datasets.MNISTDim,
		LatentDim:    8,
		Architecture: networks.ArchMNIST,
	}
	train := models.DefaultTrainConfig()
	train.BatchSize = 64
	train.Epochs = 1
	switch model {
	case models.VAE:
		train.LearningRate = 1e-3
		train.AdamBeta1 = 0.9
		train.DiscriminatorLearningRate = 0 // no discriminator
	case models.AVB:
		spec.NoiseDim = 16
		train.LearningRate = 1e-3
		train.DiscriminatorLearningRate = 1e-3
		train.AdamBeta1 = 0.5
	case models.AVBAdaptiveContrast:
		spec.NoiseDim = 16
		spec.NoiseBasisDim = 32
		train.LearningRate = 1e-4
		train.DiscriminatorLearningRate = 2e-4
		train.AdamBeta1 = 0.5
	default:
		return Hyperparameters{}, errors.Wrapf(avb.ErrConfiguration, "unknown model type %d", model)
	}
	return Hyperparameters{Spec: spec, Train: train, SamplingSize: 100}, nil
}
