package datasets

import (
	"testing"

	"github.com/gomlx/avb"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNPoints(t *testing.T) {
	const n = 4
	split, err := LoadNPoints(n)
	require.NoError(t, err)
	require.Equal(t, n*PointsPerClass, split.NumExamples())
	require.Equal(t, n, split.DataDim())

	points := tensors.CopyFlatData[float32](split.Data)
	labels := split.ClassLabels()
	for row := 0; row < n*PointsPerClass; row++ {
		class := row / PointsPerClass
		assert.Equal(t, class, labels[row])
		for col := 0; col < n; col++ {
			want := float32(0)
			if col == class {
				want = 1
			}
			if points[row*n+col] != want {
				t.Fatalf("row %d is not identity row %d", row, class)
			}
		}
	}
}

func TestLoadNPointsInvalid(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := LoadNPoints(n)
		require.Error(t, err)
		assert.True(t, errors.Is(err, avb.ErrConfiguration))
	}
}

func TestLoadEightSchools(t *testing.T) {
	schools := LoadEightSchools()
	require.Len(t, schools.Effects, 8)
	require.Len(t, schools.StdErrs, 8)
	assert.Equal(t, 28.39, schools.Effects[0])
	assert.Equal(t, 7.74, schools.Effects[1])
	assert.Equal(t, 17.6, schools.StdErrs[7])
}

func TestSplitLast(t *testing.T) {
	split, err := LoadNPoints(3)
	require.NoError(t, err)

	last, err := split.Last(PointsPerClass)
	require.NoError(t, err)
	assert.Equal(t, PointsPerClass, last.NumExamples())
	for _, label := range last.ClassLabels() {
		assert.Equal(t, 2, label)
	}

	_, err = split.Last(0)
	require.Error(t, err)
	_, err = split.Last(split.NumExamples() + 1)
	require.Error(t, err)
}

func TestSplitFirst(t *testing.T) {
	split, err := LoadNPoints(3)
	require.NoError(t, err)

	first, err := split.First(PointsPerClass)
	require.NoError(t, err)
	assert.Equal(t, PointsPerClass, first.NumExamples())
	for _, label := range first.ClassLabels() {
		assert.Equal(t, 0, label)
	}

	_, err = split.First(-1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}

func TestSplitConcat(t *testing.T) {
	split, err := LoadNPoints(2)
	require.NoError(t, err)
	a, err := split.First(10)
	require.NoError(t, err)
	b, err := split.Last(20)
	require.NoError(t, err)

	joined, err := a.Concat(b)
	require.NoError(t, err)
	require.Equal(t, 30, joined.NumExamples())
	assert.Equal(t, split.DataDim(), joined.DataDim())
	labels := joined.ClassLabels()
	for i := range 10 {
		assert.Equal(t, 0, labels[i])
	}
	for i := 10; i < 30; i++ {
		assert.Equal(t, 1, labels[i])
	}
	// The tail of the joined split matches b.
	tail, err := joined.Last(20)
	require.NoError(t, err)
	assert.Equal(t, tensors.CopyFlatData[float32](b.Data), tensors.CopyFlatData[float32](tail.Data))

	other, err := LoadNPoints(3)
	require.NoError(t, err)
	_, err = a.Concat(other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}

func TestNewSplitChecksRows(t *testing.T) {
	dataT := tensors.FromFlatDataAndDimensions(make([]float32, 6), 3, 2)
	targetT := tensors.FromFlatDataAndDimensions(make([]int8, 2), 2)
	_, err := NewSplit(dataT, targetT)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}
