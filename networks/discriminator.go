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

// Discriminator scores (data, latent) pairs. Trained to tell posterior
// samples from prior samples, its logit converges to the log density ratio
// log q(z|x) - log p(z), which is what the adversarial models substitute for
// the intractable KL term.
type Discriminator struct {
	spec    Spec
	graphFn discriminatorGraphFn
}

// NewDiscriminator creates a discriminator for the spec's architecture.
func NewDiscriminator(spec Spec) (*Discriminator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graphFn, err := discriminatorFor(spec.Architecture)
	if err != nil {
		return nil, err
	}
	return &Discriminator{spec: spec, graphFn: graphFn}, nil
}

// Spec returns the shape parameters the discriminator was built for.
func (d *Discriminator) Spec() Spec { return d.spec }

// Discriminate builds the scoring graph. data is shaped [batch, DataDim] and
// latent [batch, LatentDim]; the returned logits are shaped [batch, 1].
// Variables live under ScopeDiscriminator of ctx.
func (d *Discriminator) Discriminate(ctx *context.Context, data, latent *Node) *Node {
	return d.graphFn(ctx.In(ScopeDiscriminator), data, latent, d.spec)
}
