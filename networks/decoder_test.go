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
	"math/rand"
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// Runs the full encoder, decoder and discriminator chain of every
// architecture and checks the shapes agree with the spec. Also checks the
// decoder probabilities are proper probabilities.
func TestNetworksForward(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	testCases := []struct {
		spec      Spec
		batchSize int
	}{
		{Spec{DataDim: 4, NoiseDim: 4, LatentDim: 2, Architecture: ArchSynthetic}, 8},
		{Spec{DataDim: 784, NoiseDim: 16, LatentDim: 8, Architecture: ArchMNIST}, 4},
		{Spec{DataDim: 784, NoiseDim: 16, LatentDim: 8, Architecture: ArchMNISTConv}, 4},
	}
	for _, testCase := range testCases {
		spec := testCase.spec
		t.Run(spec.Architecture.String(), func(t *testing.T) {
			ctx := context.New()
			ctx.RngStateFromSeed(42)
			encoder, err := NewEncoder(spec)
			require.NoError(t, err)
			decoder, err := NewDecoder(spec)
			require.NoError(t, err)
			discriminator, err := NewDiscriminator(spec)
			require.NoError(t, err)

			rng := rand.New(rand.NewSource(17))
			data := randomTensor(rng, testCase.batchSize, spec.DataDim)
			noise := randomTensor(rng, testCase.batchSize, spec.NoiseDim)

			exec := context.NewExec(backend, ctx, func(ctx *context.Context, data, noise *Node) []*Node {
				latent := encoder.Encode(ctx, data, noise)
				probs := decoder.Decode(ctx, latent)
				score := discriminator.Discriminate(ctx, data, latent)
				return []*Node{latent, probs, score}
			})
			results := exec.Call(data, noise)
			assert.Equal(t, []int{testCase.batchSize, spec.LatentDim}, results[0].Shape().Dimensions)
			assert.Equal(t, []int{testCase.batchSize, spec.DataDim}, results[1].Shape().Dimensions)
			assert.Equal(t, []int{testCase.batchSize, 1}, results[2].Shape().Dimensions)

			probs := tensors.CopyFlatData[float32](results[1])
			for ii, p := range probs {
				if p < 0 || p > 1 {
					t.Fatalf("decoded probability #%d out of range: %g", ii, p)
				}
			}
		})
	}
}

// Decoding logits then applying Sigmoid must agree with Decode, so the
// training losses (on logits) and the persisted outputs (probabilities) refer
// to the same network.
func TestDecodeLogitsConsistency(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	spec := Spec{DataDim: 4, LatentDim: 2, Architecture: ArchSynthetic}
	decoder, err := NewDecoder(spec)
	require.NoError(t, err)

	const batchSize = 8
	rng := rand.New(rand.NewSource(17))
	latent := randomTensor(rng, batchSize, spec.LatentDim)

	exec := context.NewExec(backend, ctx, func(ctx *context.Context, latent *Node) []*Node {
		fromLogits := Sigmoid(decoder.DecodeLogits(ctx, latent))
		probs := decoder.Decode(ctx.Reuse(), latent)
		return []*Node{fromLogits, probs}
	})
	results := exec.Call(latent)
	fromLogits := tensors.CopyFlatData[float32](results[0])
	probs := tensors.CopyFlatData[float32](results[1])
	require.InDeltaSlice(t, fromLogits, probs, 1e-6)
}

// Variables of each network must stay under its own scope: that is what the
// adversarial trainers rely on to freeze one side at a time.
func TestNetworkScopes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	spec := Spec{DataDim: 4, NoiseDim: 4, LatentDim: 2, Architecture: ArchSynthetic}
	encoder, err := NewEncoder(spec)
	require.NoError(t, err)
	decoder, err := NewDecoder(spec)
	require.NoError(t, err)
	discriminator, err := NewDiscriminator(spec)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(17))
	data := randomTensor(rng, 2, spec.DataDim)
	noise := randomTensor(rng, 2, spec.NoiseDim)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, data, noise *Node) *Node {
		latent := encoder.Encode(ctx, data, noise)
		probs := decoder.Decode(ctx, latent)
		score := discriminator.Discriminate(ctx, data, latent)
		return Add(ReduceAllSum(probs), ReduceAllSum(score))
	})
	_ = exec.Call(data, noise)

	scopes := map[string]bool{}
	ctx.EnumerateVariables(func(v *context.Variable) {
		if v.Scope() == context.RootScope {
			// The context rng state is the only root level variable.
			return
		}
		scopes[v.Scope()] = true
	})
	for scope := range scopes {
		prefixed := false
		for _, want := range []string{ScopeEncoder, ScopeDecoder, ScopeDiscriminator} {
			if len(scope) > len(want) && scope[1:len(want)+1] == want {
				prefixed = true
				break
			}
		}
		assert.True(t, prefixed, "variable scope %q outside the network scopes", scope)
	}
	for _, want := range []string{ScopeEncoder, ScopeDecoder, ScopeDiscriminator} {
		found := false
		for scope := range scopes {
			if len(scope) > len(want) && scope[1:len(want)+1] == want {
				found = true
				break
			}
		}
		assert.True(t, found, fmt.Sprintf("no variables under scope %q", want))
	}
}
