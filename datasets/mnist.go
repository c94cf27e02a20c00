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
	"compress/gzip"
	"encoding/binary"
	"io"
	"math/rand"
	"net/url"
	"os"
	"path"

	"github.com/gomlx/avb"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// mnistURL is the primary download source, mnistFallbackURL is tried for
	// any file the primary fails to serve.
	mnistURL         = "https://storage.googleapis.com/cvdf-datasets/mnist"
	mnistFallbackURL = "https://ossci-datasets.s3.amazonaws.com/mnist"

	mnistTrainImagesFile = "train-images-idx3-ubyte.gz"
	mnistTrainLabelsFile = "train-labels-idx1-ubyte.gz"
	mnistTestImagesFile  = "t10k-images-idx3-ubyte.gz"
	mnistTestLabelsFile  = "t10k-labels-idx1-ubyte.gz"

	// MNISTWidth and MNISTHeight are the image dimensions; MNISTDim is the
	// flattened size used by the models.
	MNISTWidth  = 28
	MNISTHeight = 28
	MNISTDim    = MNISTWidth * MNISTHeight

	// MNISTClasses is the number of digit classes.
	MNISTClasses = 10

	// IDX file magic numbers, stored big-endian at the head of each file.
	mnistImageMagic = 0x00000803
	mnistLabelMagic = 0x00000801
)

var mnistFiles = []string{
	mnistTrainImagesFile, mnistTrainLabelsFile, mnistTestImagesFile, mnistTestLabelsFile}

type mnistImageHeader struct {
	Magic     int32
	NumImages int32
	Height    int32
	Width     int32
}

type mnistLabelHeader struct {
	Magic     int32
	NumLabels int32
}

// Binarization selects how pixel intensities in [0, 1] are mapped to {0, 1}.
type Binarization int

const (
	// NoBinarization keeps the gray-scale intensities.
	NoBinarization Binarization = iota

	// BinarizeThreshold maps pixels above MNISTConfig.Threshold to 1, the
	// rest to 0.
	BinarizeThreshold

	// BinarizeSampling draws each pixel from Bernoulli(intensity).
	BinarizeSampling
)

// String implements fmt.Stringer.
func (b Binarization) String() string {
	switch b {
	case NoBinarization:
		return "none"
	case BinarizeThreshold:
		return "threshold"
	case BinarizeSampling:
		return "sampling"
	}
	return "unknown"
}

// MNISTConfig configures LoadMNIST.
type MNISTConfig struct {
	// DataDir is where the IDX files are cached. Downloaded on first use.
	DataDir string

	// Binarize selects the pixel binarization mode, default is none.
	Binarize Binarization

	// Threshold for BinarizeThreshold. Defaults to 0.3 if unset.
	Threshold float32

	// OneHot converts the digit labels to one-hot rows of length
	// MNISTClasses.
	OneHot bool

	// Rand is used by BinarizeSampling. Defaults to a generator seeded
	// with 42, so loads are reproducible.
	Rand *rand.Rand
}

// LoadMNIST loads the train and test splits of MNIST, downloading the IDX
// files into cfg.DataDir if they are not cached there yet. Pixels are scaled
// to [0, 1] and optionally binarized; data is shaped [numExamples, 784].
func LoadMNIST(cfg *MNISTConfig) (trainSplit, testSplit *Split, err error) {
	if cfg == nil || cfg.DataDir == "" {
		return nil, nil, errors.Wrap(avb.ErrConfiguration, "LoadMNIST requires a data directory")
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.3
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(42))
	}
	baseDir := data.ReplaceTildeInDir(cfg.DataDir)
	if err = DownloadMNIST(baseDir); err != nil {
		return nil, nil, err
	}

	trainSplit, err = loadMNISTSplit(baseDir, mnistTrainImagesFile, mnistTrainLabelsFile, cfg)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "loading MNIST train split")
	}
	testSplit, err = loadMNISTSplit(baseDir, mnistTestImagesFile, mnistTestLabelsFile, cfg)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "loading MNIST test split")
	}
	return
}

// DownloadMNIST fetches any of the four MNIST IDX files missing from baseDir.
// Each file is tried first from the primary source and then from the fallback
// source; only if both fail the download errors out.
func DownloadMNIST(baseDir string) error {
	baseDir = data.ReplaceTildeInDir(baseDir)
	if err := os.MkdirAll(baseDir, 0777); err != nil {
		return errors.Wrapf(avb.ErrIO, "creating data directory %q: %v", baseDir, err)
	}
	for _, file := range mnistFiles {
		filePath := path.Join(baseDir, file)
		primary, _ := url.JoinPath(mnistURL, file)
		err := data.DownloadIfMissing(primary, filePath, "")
		if err == nil {
			continue
		}
		klog.Warningf("MNIST download of %s from primary source failed (%v), trying fallback", file, err)
		_ = os.Remove(filePath) // Discard partial downloads.
		fallback, _ := url.JoinPath(mnistFallbackURL, file)
		if err2 := data.DownloadIfMissing(fallback, filePath, ""); err2 != nil {
			return errors.Wrapf(avb.ErrDataUnavailable,
				"fetching %s failed from %s (%v) and from %s (%v)", file, primary, err, fallback, err2)
		}
	}
	return nil
}

func loadMNISTSplit(baseDir, imagesFile, labelsFile string, cfg *MNISTConfig) (*Split, error) {
	pixels, err := loadMNISTImages(path.Join(baseDir, imagesFile))
	if err != nil {
		return nil, err
	}
	labels, err := loadMNISTLabels(path.Join(baseDir, labelsFile))
	if err != nil {
		return nil, err
	}

	switch cfg.Binarize {
	case BinarizeThreshold:
		binarizeThreshold(pixels, cfg.Threshold)
	case BinarizeSampling:
		binarizeSampling(pixels, cfg.Rand)
	}

	dataT := tensors.FromFlatDataAndDimensions(pixels, len(labels), MNISTDim)
	var targetT *tensors.Tensor
	if cfg.OneHot {
		targetT = tensors.FromFlatDataAndDimensions(oneHot(labels, MNISTClasses), len(labels), MNISTClasses)
	} else {
		targetT = tensors.FromFlatDataAndDimensions(labels, len(labels))
	}
	return NewSplit(dataT, targetT)
}

// loadMNISTImages parses a gzip-compressed IDX image file into flat pixel
// intensities in [0, 1].
func loadMNISTImages(filePath string) ([]float32, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrIO, "opening %q: %v", filePath, err)
	}
	defer func() { _ = f.Close() }()
	reader, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "%q is not gzip-compressed: %v", filePath, err)
	}
	defer func() { _ = reader.Close() }()
	pixels, err := readIDXImages(reader)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %q", filePath)
	}
	return pixels, nil
}

// loadMNISTLabels parses a gzip-compressed IDX label file.
func loadMNISTLabels(filePath string) ([]int8, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrIO, "opening %q: %v", filePath, err)
	}
	defer func() { _ = f.Close() }()
	reader, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "%q is not gzip-compressed: %v", filePath, err)
	}
	defer func() { _ = reader.Close() }()
	labels, err := readIDXLabels(reader)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %q", filePath)
	}
	return labels, nil
}

// readIDXImages decodes the IDX image format: a big-endian header
// (magic, count, height, width) followed by count*height*width raw bytes.
// Pixel bytes are scaled from [0, 255] to [0, 1].
func readIDXImages(r io.Reader) ([]float32, error) {
	var header mnistImageHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "reading IDX image header: %v", err)
	}
	if header.Magic != mnistImageMagic || header.Width != MNISTWidth || header.Height != MNISTHeight {
		return nil, errors.Wrapf(avb.ErrDataUnavailable,
			"invalid IDX image header (magic=0x%08x, %dx%d)", header.Magic, header.Height, header.Width)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "reading IDX image data: %v", err)
	}
	want := int(header.NumImages) * MNISTDim
	if len(raw) != want {
		return nil, errors.Wrapf(avb.ErrDataUnavailable,
			"IDX image file truncated: got %d pixel bytes, want %d", len(raw), want)
	}
	pixels := make([]float32, len(raw))
	for i, b := range raw {
		pixels[i] = float32(b) / 255
	}
	return pixels, nil
}

// readIDXLabels decodes the IDX label format: a big-endian header
// (magic, count) followed by count raw label bytes.
func readIDXLabels(r io.Reader) ([]int8, error) {
	var header mnistLabelHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "reading IDX label header: %v", err)
	}
	if header.Magic != mnistLabelMagic {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "invalid IDX label header (magic=0x%08x)", header.Magic)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(avb.ErrDataUnavailable, "reading IDX label data: %v", err)
	}
	if len(raw) != int(header.NumLabels) {
		return nil, errors.Wrapf(avb.ErrDataUnavailable,
			"IDX label file truncated: got %d labels, want %d", len(raw), header.NumLabels)
	}
	labels := make([]int8, len(raw))
	for i, b := range raw {
		labels[i] = int8(b)
	}
	return labels, nil
}

// binarizeThreshold maps pixels above the threshold to 1 and the rest to 0,
// in place.
func binarizeThreshold(pixels []float32, threshold float32) {
	for i, p := range pixels {
		if p > threshold {
			pixels[i] = 1
		} else {
			pixels[i] = 0
		}
	}
}

// binarizeSampling draws each pixel from a Bernoulli distribution with the
// pixel intensity as probability, in place.
func binarizeSampling(pixels []float32, rng *rand.Rand) {
	for i, p := range pixels {
		if rng.Float32() < p {
			pixels[i] = 1
		} else {
			pixels[i] = 0
		}
	}
}

// oneHot expands class labels into one-hot rows.
func oneHot(labels []int8, numClasses int) []float32 {
	encoded := make([]float32, len(labels)*numClasses)
	for i, label := range labels {
		encoded[i*numClasses+int(label)] = 1
	}
	return encoded
}
