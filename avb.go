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

// Package avb implements Adversarial Variational Bayes (AVB) and plain
// Variational Autoencoder (VAE) training on top of GoMLX.
//
// It is organized as a small research framework:
//
//   - datasets: MNIST and synthetic datasets, with binarization and one-hot
//     encoding options.
//   - networks: encoder, decoder and discriminator graph builders, selected
//     from a closed registry of architectures.
//   - models: the VAE and AVB trainers (the latter optionally with Adaptive
//     Contrast) and the read-only queries of a trained model.
//   - experiments: pre-configured synthetic and MNIST experiments that train
//     a model and persist samples, metrics and plots.
//
// The root package holds the shared configuration and the error taxonomy used
// across the sub-packages.
//
// The reference for the algorithm is "Adversarial Variational Bayes: Unifying
// Variational Autoencoders and Generative Adversarial Networks", Mescheder et
// al., 2017 (https://arxiv.org/abs/1701.04722).
package avb

import (
	"github.com/pkg/errors"
)

// Error classes used throughout the framework. Errors returned by the public
// APIs wrap one of these, so callers can test them with errors.Is.
var (
	// ErrConfiguration indicates an invalid or unknown configuration value,
	// like an unsupported model type or architecture name. It always denotes
	// a programming or setup mistake, never a transient condition.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDataUnavailable indicates a dataset could not be loaded nor fetched
	// from any of its sources.
	ErrDataUnavailable = errors.New("dataset unavailable")

	// ErrIO indicates a filesystem failure: a missing path, an unwritable
	// directory, or an output directory that already exists when overwriting
	// was not requested.
	ErrIO = errors.New("i/o failure")
)
