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

// Decoder maps latent codes back to the data space. Its outputs parameterise
// a per-dimension Bernoulli distribution, so reconstructions and generations
// live in [0, 1].
type Decoder struct {
	spec    Spec
	graphFn decoderGraphFn
}

// NewDecoder creates a decoder for the spec's architecture.
func NewDecoder(spec Spec) (*Decoder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graphFn, err := decoderFor(spec.Architecture)
	if err != nil {
		return nil, err
	}
	return &Decoder{spec: spec, graphFn: graphFn}, nil
}

// Spec returns the shape parameters the decoder was built for.
func (d *Decoder) Spec() Spec { return d.spec }

// DecodeLogits builds the decoding graph up to the Bernoulli logits, the form
// the reconstruction loss consumes. latent is shaped [batch, LatentDim], the
// output [batch, DataDim]. Variables live under ScopeDecoder of ctx.
func (d *Decoder) DecodeLogits(ctx *context.Context, latent *Node) *Node {
	return d.graphFn(ctx.In(ScopeDecoder), latent, d.spec)
}

// Decode builds the decoding graph, returning per-dimension Bernoulli
// probabilities in [0, 1].
func (d *Decoder) Decode(ctx *context.Context, latent *Node) *Node {
	return Sigmoid(d.DecodeLogits(ctx, latent))
}
