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

// Package models trains variational autoencoders, both the classic VAE with a
// Gaussian reparametrised posterior and the adversarial variant (AVB) that
// replaces the analytic KL term with a discriminator estimating the log ratio
// between posterior and prior. See "Adversarial Variational Bayes: Unifying
// Variational Autoencoders and Generative Adversarial Networks", Mescheder et
// al. (https://arxiv.org/abs/1701.04722).
//
// A Trainer is configured with a ModelType, a networks.Spec and a TrainConfig
// and moves through the states Configured -> Training -> Trained. Training
// yields a TrainedModel able to reconstruct inputs, sample latent codes and
// generate new data from the prior.
package models

import (
	"github.com/gomlx/avb"
	"github.com/pkg/errors"
)

// ModelType selects the training objective.
type ModelType int

const (
	// VAE maximizes the classic evidence lower bound with an analytic KL
	// term, using the reparametrised Gaussian encoder.
	VAE ModelType = iota

	// AVB trains encoder and decoder against a discriminator that
	// estimates the KL term adversarially.
	AVB

	// AVBAdaptiveContrast is AVB with the adaptive contrast technique: the
	// discriminator compares a moment-matched normalization of the
	// posterior against a unit Gaussian, which keeps the density ratio it
	// has to estimate close to one.
	AVBAdaptiveContrast
)

// String implements fmt.Stringer.
func (m ModelType) String() string {
	switch m {
	case VAE:
		return "vae"
	case AVB:
		return "avb"
	case AVBAdaptiveContrast:
		return "avb_ac"
	}
	return "unknown"
}

// ModelTypeByName parses a model type name, the inverse of ModelType.String.
func ModelTypeByName(name string) (ModelType, error) {
	switch name {
	case "vae":
		return VAE, nil
	case "avb":
		return AVB, nil
	case "avb_ac":
		return AVBAdaptiveContrast, nil
	}
	return 0, errors.Wrapf(avb.ErrConfiguration,
		"unknown model type %q, supported are `vae`, `avb` and `avb_ac`", name)
}

// Adversarial reports whether the model type trains a discriminator.
func (m ModelType) Adversarial() bool {
	return m == AVB || m == AVBAdaptiveContrast
}

// TrainerState tracks the life cycle of a Trainer.
type TrainerState int

const (
	// Configured means the trainer holds validated networks and
	// hyperparameters but no learned weights yet.
	Configured TrainerState = iota

	// Training means Train is running.
	Training

	// Trained means Train finished and the weights are final.
	Trained
)

// String implements fmt.Stringer.
func (s TrainerState) String() string {
	switch s {
	case Configured:
		return "configured"
	case Training:
		return "training"
	case Trained:
		return "trained"
	}
	return "unknown"
}
