package datasets

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math/rand"
	"os"
	"path"
	"testing"

	"github.com/gomlx/avb"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIDXImageFile writes a gzip-compressed IDX image file with the given
// images, each a slice of MNISTDim pixel bytes.
func writeIDXImageFile(t *testing.T, filePath string, images [][]byte) {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	header := mnistImageHeader{
		Magic:     mnistImageMagic,
		NumImages: int32(len(images)),
		Height:    MNISTHeight,
		Width:     MNISTWidth,
	}
	require.NoError(t, binary.Write(w, binary.BigEndian, &header))
	for _, img := range images {
		require.Len(t, img, MNISTDim)
		_, err := w.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0644))
}

// writeIDXLabelFile writes a gzip-compressed IDX label file.
func writeIDXLabelFile(t *testing.T, filePath string, labels []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	header := mnistLabelHeader{Magic: mnistLabelMagic, NumLabels: int32(len(labels))}
	require.NoError(t, binary.Write(w, binary.BigEndian, &header))
	_, err := w.Write(labels)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0644))
}

// fakeMNIST creates a complete fake MNIST cache in a temporary directory, so
// LoadMNIST finds all files present and never touches the network.
func fakeMNIST(t *testing.T, trainImages [][]byte, trainLabels []byte, testImages [][]byte, testLabels []byte) string {
	t.Helper()
	dir := t.TempDir()
	writeIDXImageFile(t, path.Join(dir, mnistTrainImagesFile), trainImages)
	writeIDXLabelFile(t, path.Join(dir, mnistTrainLabelsFile), trainLabels)
	writeIDXImageFile(t, path.Join(dir, mnistTestImagesFile), testImages)
	writeIDXLabelFile(t, path.Join(dir, mnistTestLabelsFile), testLabels)
	return dir
}

// grayImage returns an image with every pixel set to the given byte.
func grayImage(value byte) []byte {
	img := make([]byte, MNISTDim)
	for i := range img {
		img[i] = value
	}
	return img
}

func TestLoadMNIST(t *testing.T) {
	// Train: one image at intensity 255 (scales to 1.0) and one at 51
	// (scales to 0.2); test: a single black image.
	dir := fakeMNIST(t,
		[][]byte{grayImage(255), grayImage(51)}, []byte{3, 7},
		[][]byte{grayImage(0)}, []byte{5})

	trainSplit, testSplit, err := LoadMNIST(&MNISTConfig{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, trainSplit.NumExamples())
	assert.Equal(t, MNISTDim, trainSplit.DataDim())
	assert.Equal(t, 1, testSplit.NumExamples())

	pixels := tensors.CopyFlatData[float32](trainSplit.Data)
	assert.InDelta(t, 1.0, pixels[0], 1e-6)
	assert.InDelta(t, 0.2, pixels[MNISTDim], 1e-6)
	assert.Equal(t, []int{3, 7}, trainSplit.ClassLabels())
	assert.Equal(t, []int{5}, testSplit.ClassLabels())
}

func TestLoadMNISTBinarizeThreshold(t *testing.T) {
	// Intensities 0.8 (204/255) and 0.2 (51/255): with threshold 0.2 the
	// first becomes 1, the second 0 (strictly above the threshold).
	dir := fakeMNIST(t,
		[][]byte{grayImage(204), grayImage(51)}, []byte{0, 1},
		[][]byte{grayImage(204)}, []byte{2})

	trainSplit, _, err := LoadMNIST(&MNISTConfig{
		DataDir:   dir,
		Binarize:  BinarizeThreshold,
		Threshold: 0.2,
	})
	require.NoError(t, err)

	pixels := tensors.CopyFlatData[float32](trainSplit.Data)
	for i, p := range pixels {
		assert.True(t, p == 0 || p == 1, "pixel %d is %f, want 0 or 1", i, p)
	}
	assert.Equal(t, float32(1), pixels[0])
	assert.Equal(t, float32(0), pixels[MNISTDim])
}

func TestLoadMNISTBinarizeSampling(t *testing.T) {
	dir := fakeMNIST(t,
		[][]byte{grayImage(128)}, []byte{0},
		[][]byte{grayImage(128)}, []byte{1})

	trainSplit, _, err := LoadMNIST(&MNISTConfig{
		DataDir:  dir,
		Binarize: BinarizeSampling,
		Rand:     rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)

	pixels := tensors.CopyFlatData[float32](trainSplit.Data)
	ones := 0
	for i, p := range pixels {
		require.True(t, p == 0 || p == 1, "pixel %d is %f, want 0 or 1", i, p)
		if p == 1 {
			ones++
		}
	}
	// Bernoulli(~0.5) per pixel: with 784 draws the count of ones stays far
	// from both extremes.
	assert.Greater(t, ones, MNISTDim/4)
	assert.Less(t, ones, 3*MNISTDim/4)
}

func TestLoadMNISTOneHot(t *testing.T) {
	dir := fakeMNIST(t,
		[][]byte{grayImage(1), grayImage(2), grayImage(3)}, []byte{0, 9, 4},
		[][]byte{grayImage(4)}, []byte{1})

	trainSplit, _, err := LoadMNIST(&MNISTConfig{DataDir: dir, OneHot: true})
	require.NoError(t, err)
	require.Equal(t, []int{3, MNISTClasses}, trainSplit.Target.Shape().Dimensions)

	encoded := tensors.CopyFlatData[float32](trainSplit.Target)
	for row := range 3 {
		sum := float32(0)
		for _, v := range encoded[row*MNISTClasses : (row+1)*MNISTClasses] {
			sum += v
		}
		assert.Equal(t, float32(1), sum, "one-hot row %d must sum to exactly 1", row)
	}
	assert.Equal(t, []int{0, 9, 4}, trainSplit.ClassLabels())
}

func TestReadIDXErrors(t *testing.T) {
	// Wrong magic number.
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &mnistImageHeader{
		Magic: -0x21524111 /* 0xdeadbeef as int32 */, NumImages: 1, Height: MNISTHeight, Width: MNISTWidth}))
	_, err := readIDXImages(&buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrDataUnavailable))

	// Truncated pixel data.
	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &mnistImageHeader{
		Magic: mnistImageMagic, NumImages: 2, Height: MNISTHeight, Width: MNISTWidth}))
	buf.Write(make([]byte, MNISTDim)) // Only one of the two images.
	_, err = readIDXImages(&buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrDataUnavailable))

	// Label header magic.
	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &mnistLabelHeader{Magic: 0x1, NumLabels: 1}))
	_, err = readIDXLabels(&buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrDataUnavailable))
}

func TestLoadMNISTRequiresDataDir(t *testing.T) {
	_, _, err := LoadMNIST(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))

	_, _, err = LoadMNIST(&MNISTConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, avb.ErrConfiguration))
}

func TestOneHot(t *testing.T) {
	encoded := oneHot([]int8{2, 0}, 4)
	assert.Equal(t, []float32{0, 0, 1, 0, 1, 0, 0, 0}, encoded)
}
