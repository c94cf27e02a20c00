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

package datasets

import (
	"github.com/gomlx/avb"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
)

// PointsPerClass is how many copies of each one-hot point LoadNPoints emits.
const PointsPerClass = 512

// LoadNPoints builds the synthetic dataset from the "Generative models"
// experiments section of the AVB paper (Mescheder et al., 2017), generalized
// to n points: the rows of the n-by-n identity, each repeated PointsPerClass
// times consecutively, with the point index as target.
func LoadNPoints(n int) (*Split, error) {
	if n <= 0 {
		return nil, errors.Wrapf(avb.ErrConfiguration, "LoadNPoints requires n > 0, got %d", n)
	}
	numExamples := n * PointsPerClass
	points := make([]float32, numExamples*n)
	targets := make([]int8, numExamples)
	for class := range n {
		for k := range PointsPerClass {
			row := class*PointsPerClass + k
			points[row*n+class] = 1
			targets[row] = int8(class)
		}
	}
	return NewSplit(
		tensors.FromFlatDataAndDimensions(points, numExamples, n),
		tensors.FromFlatDataAndDimensions(targets, numExamples))
}

// EightSchools holds the per-school estimated treatment effects and their
// standard errors from "Estimation in parallel randomized experiments"
// (Donald B. Rubin, 1981).
type EightSchools struct {
	Effects []float64
	StdErrs []float64
}

// LoadEightSchools returns the eight-schools arrays.
func LoadEightSchools() EightSchools {
	return EightSchools{
		Effects: []float64{28.39, 7.74, -2.75, 6.82, -0.64, 0.63, 18.01, 12.16},
		StdErrs: []float64{14.9, 10.2, 16.3, 11.0, 9.4, 11.4, 10.4, 17.6},
	}
}
