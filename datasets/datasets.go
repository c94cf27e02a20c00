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

// Package datasets loads the datasets used by the AVB experiments into
// in-memory tensors: MNIST (fetched on demand) and the synthetic n-points
// dataset, plus the classic 8-schools arrays.
//
// Each loader returns one or more Split values, a pair of (data, target)
// tensors with a consistent number of rows. Splits convert to GoMLX
// train.Dataset implementations with Split.InMemory, which supports batching,
// shuffling, and infinite iteration for the training loops.
package datasets

import (
	"github.com/gomlx/avb"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
)

// Split is a dataset split held in memory: data shaped [numExamples, dataDim]
// (float32) and targets shaped either [numExamples] (class labels) or
// [numExamples, numClasses] (one-hot, float32).
type Split struct {
	Data   *tensors.Tensor
	Target *tensors.Tensor
}

// NewSplit wraps the given tensors into a Split, checking that data and
// target agree on the number of examples.
func NewSplit(dataT, targetT *tensors.Tensor) (*Split, error) {
	if dataT.Rank() != 2 {
		return nil, errors.Wrapf(avb.ErrConfiguration, "split data must be rank 2, got shape %s", dataT.Shape())
	}
	if n, m := dataT.Shape().Dimensions[0], targetT.Shape().Dimensions[0]; n != m {
		return nil, errors.Wrapf(avb.ErrConfiguration,
			"split data has %d examples but target has %d", n, m)
	}
	return &Split{Data: dataT, Target: targetT}, nil
}

// NumExamples in this split.
func (s *Split) NumExamples() int {
	return s.Data.Shape().Dimensions[0]
}

// DataDim is the number of features per example.
func (s *Split) DataDim() int {
	return s.Data.Shape().Dimensions[1]
}

// First returns a new Split with only the first n examples. The underlying
// data is copied, the receiver is unchanged.
func (s *Split) First(n int) (*Split, error) {
	if err := s.checkSliceSize(n); err != nil {
		return nil, err
	}
	return s.slice(0, n), nil
}

// Last returns a new Split with only the last n examples. The underlying
// data is copied, the receiver is unchanged.
func (s *Split) Last(n int) (*Split, error) {
	if err := s.checkSliceSize(n); err != nil {
		return nil, err
	}
	return s.slice(s.NumExamples()-n, n), nil
}

func (s *Split) checkSliceSize(n int) error {
	if total := s.NumExamples(); n <= 0 || n > total {
		return errors.Wrapf(avb.ErrConfiguration, "cannot slice %d examples of a split with %d", n, total)
	}
	return nil
}

func (s *Split) slice(start, n int) *Split {
	dataT := sliceRows[float32](s.Data, start, n)
	var targetT *tensors.Tensor
	if s.Target.Rank() == 2 {
		targetT = sliceRows[float32](s.Target, start, n)
	} else {
		targetT = sliceRows[int8](s.Target, start, n)
	}
	return &Split{Data: dataT, Target: targetT}
}

// sliceRows copies n rows of a rank-1 or rank-2 tensor starting at start.
func sliceRows[T float32 | int8](t *tensors.Tensor, start, n int) *tensors.Tensor {
	dims := t.Shape().Dimensions
	rowSize := 1
	if len(dims) > 1 {
		rowSize = dims[1]
	}
	flat := tensors.CopyFlatData[T](t)
	rows := flat[start*rowSize : (start+n)*rowSize]
	if len(dims) > 1 {
		return tensors.FromFlatDataAndDimensions(rows, n, rowSize)
	}
	return tensors.FromFlatDataAndDimensions(rows, n)
}

// Concat returns a new Split with the examples of s followed by those of
// other. The splits must agree on feature count and target layout.
func (s *Split) Concat(other *Split) (*Split, error) {
	if s.DataDim() != other.DataDim() {
		return nil, errors.Wrapf(avb.ErrConfiguration,
			"cannot concatenate splits with %d and %d features", s.DataDim(), other.DataDim())
	}
	if s.Target.Rank() != other.Target.Rank() ||
		(s.Target.Rank() == 2 && s.Target.Shape().Dimensions[1] != other.Target.Shape().Dimensions[1]) {
		return nil, errors.Wrapf(avb.ErrConfiguration,
			"cannot concatenate splits with target shapes %s and %s", s.Target.Shape(), other.Target.Shape())
	}
	numExamples := s.NumExamples() + other.NumExamples()
	data := append(tensors.CopyFlatData[float32](s.Data), tensors.CopyFlatData[float32](other.Data)...)
	dataT := tensors.FromFlatDataAndDimensions(data, numExamples, s.DataDim())
	var targetT *tensors.Tensor
	if s.Target.Rank() == 2 {
		target := append(tensors.CopyFlatData[float32](s.Target), tensors.CopyFlatData[float32](other.Target)...)
		targetT = tensors.FromFlatDataAndDimensions(target, numExamples, s.Target.Shape().Dimensions[1])
	} else {
		target := append(tensors.CopyFlatData[int8](s.Target), tensors.CopyFlatData[int8](other.Target)...)
		targetT = tensors.FromFlatDataAndDimensions(target, numExamples)
	}
	return &Split{Data: dataT, Target: targetT}, nil
}

// ClassLabels returns the per-example class index, decoding one-hot targets
// if needed. Used to color the latent-space plots.
func (s *Split) ClassLabels() []int {
	if s.Target.Rank() == 1 {
		flat := tensors.CopyFlatData[int8](s.Target)
		labels := make([]int, len(flat))
		for i, v := range flat {
			labels[i] = int(v)
		}
		return labels
	}
	numClasses := s.Target.Shape().Dimensions[1]
	flat := tensors.CopyFlatData[float32](s.Target)
	labels := make([]int, s.NumExamples())
	for i := range labels {
		row := flat[i*numClasses : (i+1)*numClasses]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		labels[i] = best
	}
	return labels
}

// InMemory wraps the split into a GoMLX in-memory dataset, ready for
// batching and shuffling. The target tensor is yielded as the label.
func (s *Split) InMemory(backend backends.Backend, name string) (*data.InMemoryDataset, error) {
	ds, err := data.InMemoryFromData(backend, name, []any{s.Data}, []any{s.Target})
	if err != nil {
		return nil, errors.WithMessagef(err, "creating in-memory dataset %q", name)
	}
	return ds, nil
}
