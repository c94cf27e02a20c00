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

// Package networks builds the encoder, decoder and discriminator computation
// graphs used by the AVB and VAE models.
//
// Networks are selected from a closed registry of architectures (see
// Architecture); the registry is consulted at construction time, so an
// unsupported (role, architecture) combination fails before any graph is
// built. All networks of a model share one context; each network owns a fixed
// variable scope (ScopeEncoder, ScopeDecoder, ScopeDiscriminator), which is
// what lets learning-mode and inference-mode graphs share weights, and lets
// the trainers freeze one component while updating another.
package networks

import (
	"github.com/gomlx/avb"
	"github.com/pkg/errors"
)

// Variable scopes owned by each network role. The trainers rely on these to
// freeze and restore components during the adversarial updates.
const (
	ScopeEncoder       = "encoder"
	ScopeDecoder       = "decoder"
	ScopeDiscriminator = "discriminator"
)

// Role of a network inside the model. Used by the registry to select a
// builder.
type Role int

const (
	RoleEncoder Role = iota
	RoleMomentEncoder
	RoleReparametrisedEncoder
	RoleDecoder
	RoleDiscriminator
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleEncoder:
		return "encoder"
	case RoleMomentEncoder:
		return "moment_estimation_encoder"
	case RoleReparametrisedEncoder:
		return "reparametrised_encoder"
	case RoleDecoder:
		return "decoder"
	case RoleDiscriminator:
		return "discriminator"
	}
	return "unknown"
}

// Architecture selects the network bodies used for every role of a model.
type Architecture int

const (
	// ArchSynthetic is a small MLP for the low dimensional synthetic
	// datasets.
	ArchSynthetic Architecture = iota

	// ArchMNIST is an MLP sized for flattened 28x28 images.
	ArchMNIST

	// ArchMNISTConv uses a small convolutional stem for the encoder and
	// discriminator and a matching up-sampling decoder.
	ArchMNISTConv
)

// String implements fmt.Stringer.
func (a Architecture) String() string {
	switch a {
	case ArchSynthetic:
		return "synthetic"
	case ArchMNIST:
		return "mnist"
	case ArchMNISTConv:
		return "mnist_conv"
	}
	return "unknown"
}

// ArchitectureByName parses an architecture name, the inverse of
// Architecture.String.
func ArchitectureByName(name string) (Architecture, error) {
	switch name {
	case "synthetic":
		return ArchSynthetic, nil
	case "mnist":
		return ArchMNIST, nil
	case "mnist_conv":
		return ArchMNISTConv, nil
	}
	return 0, errors.Wrapf(avb.ErrConfiguration,
		"unknown architecture %q, supported are `synthetic`, `mnist` and `mnist_conv`", name)
}

// Spec holds the shape parameters of a model's networks. It is immutable once
// a network is constructed from it.
type Spec struct {
	// DataDim is the flattened data space dimensionality.
	DataDim int

	// NoiseDim is the dimensionality of the noise concatenated to the data
	// by the (non-reparametrised) encoders. The reparametrised encoder
	// ignores it, its base Gaussian sample is LatentDim sized.
	NoiseDim int

	// NoiseBasisDim, when non-zero, passes the encoder noise through a
	// learned basis of this width before concatenation. Used by the
	// Adaptive Contrast models.
	NoiseBasisDim int

	// LatentDim is the latent space dimensionality.
	LatentDim int

	// Architecture selects the network bodies.
	Architecture Architecture
}

// Validate checks the dimensions required by every role.
func (s Spec) Validate() error {
	if s.DataDim <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "network spec requires DataDim > 0, got %d", s.DataDim)
	}
	if s.LatentDim <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "network spec requires LatentDim > 0, got %d", s.LatentDim)
	}
	if s.NoiseDim < 0 || s.NoiseBasisDim < 0 {
		return errors.Wrapf(avb.ErrConfiguration,
			"network spec noise dimensions must not be negative, got NoiseDim=%d, NoiseBasisDim=%d",
			s.NoiseDim, s.NoiseBasisDim)
	}
	return nil
}
