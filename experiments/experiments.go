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

// Package experiments launches the end-to-end runs of the framework: the
// 4-points synthetic experiment and binarized MNIST, each trainable with any
// of the model types. A run trains the model, evaluates it and leaves a
// self-contained output directory with the checkpoint, NumPy sample files,
// the training history and rendered plots.
//
// A backend must be registered before launching, usually by importing
// github.com/gomlx/gomlx/backends/default for its side effects in the main
// package.
package experiments

import (
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/avb"
	"github.com/gomlx/avb/datasets"
	"github.com/gomlx/avb/models"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	// Names of the files every run leaves in its output directory, fixed so
	// analysis scripts can rely on them.
	CheckpointDirName       = "final"
	ReconstructionsFileName = "reconstructed_samples.npy"
	LatentsFileName         = "latent_samples.npy"
	GenerationsFileName     = "generated_samples.npy"
	MetricsFileName         = "metrics.csv"
	MetadataFileName        = "experiment.yaml"

	// Every run decodes this many prior samples, in batches.
	numGenerated        = 100
	generationBatchSize = 100

	// mnistEvalExamples is how many trailing digits are held out of MNIST
	// training and reconstructed after it.
	mnistEvalExamples = 100
)

// RunOptions are the optional launcher settings shared by all experiments.
type RunOptions struct {
	// PretrainedDir warm-starts training from a checkpoint saved by a
	// previous run of the same model type and experiment, continuing from
	// its weights. Empty means training from scratch.
	PretrainedDir string

	// Overwrite allows reusing an existing output directory. Without it a
	// run fails instead of touching previous results.
	Overwrite bool
}

// RunMetadata is saved as experiment.yaml next to the outputs of a run.
type RunMetadata struct {
	RunID                     string  `yaml:"run_id"`
	Model                     string  `yaml:"model"`
	Experiment                string  `yaml:"experiment"`
	Seed                      int64   `yaml:"seed"`
	CreatedAt                 string  `yaml:"created_at"`
	Architecture              string  `yaml:"architecture"`
	DataDim                   int     `yaml:"data_dim"`
	LatentDim                 int     `yaml:"latent_dim"`
	NoiseDim                  int     `yaml:"noise_dim,omitempty"`
	NoiseBasisDim             int     `yaml:"noise_basis_dim,omitempty"`
	BatchSize                 int     `yaml:"batch_size"`
	Epochs                    int     `yaml:"epochs"`
	LearningRate              float64 `yaml:"learning_rate"`
	DiscriminatorLearningRate float64 `yaml:"discriminator_learning_rate,omitempty"`
	AdamBeta1                 float64 `yaml:"adam_beta1"`
	SamplingSize              int     `yaml:"sampling_size"`
	PretrainedDir             string  `yaml:"pretrained_dir,omitempty"`
}

// experimentData is what a concrete experiment feeds the shared pipeline.
type experimentData struct {
	name        string // names the output sub-directory and the dataset
	trainSplit  *datasets.Split
	evalData    *tensors.Tensor // queries for Reconstruct and Infer
	evalClasses []int           // class per query, colors plots and grids
	imageWidth  int             // set only when data rows are images
	imageHeight int
}

// RunSynthetic trains the given model type on the 4-points dataset and
// persists the outputs under cfg.OutputDir. Evaluation reconstructs every
// training point. It returns the run's output directory.
func RunSynthetic(cfg *avb.Config, model models.ModelType, opts RunOptions) (string, error) {
	if err := validateConfig(cfg); err != nil {
		return "", err
	}
	hyper, err := SyntheticHyperparameters(model)
	if err != nil {
		return "", err
	}
	trainSplit, err := datasets.LoadNPoints(hyper.Spec.DataDim)
	if err != nil {
		return "", err
	}
	return run(cfg, model, opts, hyper, experimentData{
		name:        "synthetic",
		trainSplit:  trainSplit,
		evalData:    trainSplit.Data,
		evalClasses: trainSplit.ClassLabels(),
	})
}

// RunMNIST trains the given model type on binarized MNIST, downloading the
// IDX files into cfg.DataDir on first use. Train and test digits are pooled;
// the last digits are held out of training and reconstructed afterwards. It
// returns the run's output directory.
func RunMNIST(cfg *avb.Config, model models.ModelType, opts RunOptions) (string, error) {
	if err := validateConfig(cfg); err != nil {
		return "", err
	}
	hyper, err := MNISTHyperparameters(model)
	if err != nil {
		return "", err
	}
	trainSplit, testSplit, err := datasets.LoadMNIST(&datasets.MNISTConfig{
		DataDir:   cfg.DataDir,
		Binarize:  datasets.BinarizeThreshold,
		Threshold: 0.2,
	})
	if err != nil {
		return "", err
	}
	pooled, err := trainSplit.Concat(testSplit)
	if err != nil {
		return "", err
	}
	heldIn, err := pooled.First(pooled.NumExamples() - mnistEvalExamples)
	if err != nil {
		return "", err
	}
	evalSplit, err := pooled.Last(mnistEvalExamples)
	if err != nil {
		return "", err
	}
	return run(cfg, model, opts, hyper, experimentData{
		name:        "mnist",
		trainSplit:  heldIn,
		evalData:    evalSplit.Data,
		evalClasses: evalSplit.ClassLabels(),
		imageWidth:  datasets.MNISTWidth,
		imageHeight: datasets.MNISTHeight,
	})
}

// run is the pipeline shared by all experiments: train, evaluate, persist.
func run(cfg *avb.Config, model models.ModelType, opts RunOptions, hyper Hyperparameters, exp experimentData) (string, error) {
	outputDir, err := prepareOutputDir(cfg, model, exp.name, opts.Overwrite)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	klog.Infof("Experiment %s/%s run %s: %s training examples",
		model, exp.name, runID, humanize.Comma(int64(exp.trainSplit.NumExamples())))

	backend := backends.MustNew()
	defer backend.Finalize()

	trainer, err := models.NewTrainer(backend, model, hyper.Spec, hyper.Train)
	if err != nil {
		return "", err
	}
	trainer.SetSeed(cfg.Seed)
	if opts.PretrainedDir != "" {
		if err := trainer.InitFromCheckpoint(opts.PretrainedDir); err != nil {
			return "", err
		}
	}

	ds, err := exp.trainSplit.InMemory(backend, exp.name)
	if err != nil {
		return "", err
	}
	stepsPerEpoch := exp.trainSplit.NumExamples() / hyper.Train.BatchSize
	trained, err := trainer.Train(ds.Shuffle().BatchSize(hyper.Train.BatchSize, true), stepsPerEpoch)
	if err != nil {
		return "", err
	}
	klog.Infof("Trained %s parameters (%s)",
		humanize.Comma(int64(trained.Context().NumParameters())),
		humanize.Bytes(uint64(trained.Context().Memory())))

	if err := persistOutputs(trained, hyper, exp, outputDir); err != nil {
		return "", err
	}
	if err := writeMetadata(cfg, model, opts, hyper, exp, runID, outputDir); err != nil {
		return "", err
	}
	klog.Infof("Experiment outputs in %s", outputDir)
	return outputDir, nil
}

func validateConfig(cfg *avb.Config) error {
	if cfg == nil {
		return errors.Wrap(avb.ErrConfiguration, "experiment requires a non-nil Config")
	}
	return cfg.Validate()
}

// prepareOutputDir creates <output>/<model>/<experiment>. An existing
// directory fails the run unless overwrite is set, in which case it is
// removed first, leftovers of a partial run included.
func prepareOutputDir(cfg *avb.Config, model models.ModelType, experiment string, overwrite bool) (string, error) {
	outputDir := path.Join(data.ReplaceTildeInDir(cfg.OutputDir), model.String(), experiment)
	if _, err := os.Stat(outputDir); err == nil {
		if !overwrite {
			return "", errors.Wrapf(avb.ErrIO,
				"output directory %q already exists, set Overwrite to replace it", outputDir)
		}
		if err := os.RemoveAll(outputDir); err != nil {
			return "", errors.Wrapf(avb.ErrIO, "removing output directory %q: %v", outputDir, err)
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Wrapf(avb.ErrIO, "checking output directory %q: %v", outputDir, err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrapf(avb.ErrIO, "creating output directory %q: %v", outputDir, err)
	}
	return outputDir, nil
}

func writeMetadata(cfg *avb.Config, model models.ModelType, opts RunOptions, hyper Hyperparameters,
	exp experimentData, runID, outputDir string) error {
	meta := RunMetadata{
		RunID:                     runID,
		Model:                     model.String(),
		Experiment:                exp.name,
		Seed:                      cfg.Seed,
		CreatedAt:                 time.Now().Format(time.RFC3339),
		Architecture:              hyper.Spec.Architecture.String(),
		DataDim:                   hyper.Spec.DataDim,
		LatentDim:                 hyper.Spec.LatentDim,
		NoiseDim:                  hyper.Spec.NoiseDim,
		NoiseBasisDim:             hyper.Spec.NoiseBasisDim,
		BatchSize:                 hyper.Train.BatchSize,
		Epochs:                    hyper.Train.Epochs,
		LearningRate:              hyper.Train.LearningRate,
		DiscriminatorLearningRate: hyper.Train.DiscriminatorLearningRate,
		AdamBeta1:                 hyper.Train.AdamBeta1,
		SamplingSize:              hyper.SamplingSize,
		PretrainedDir:             opts.PretrainedDir,
	}
	contents, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.Wrapf(err, "marshalling run metadata")
	}
	filePath := path.Join(outputDir, MetadataFileName)
	if err := os.WriteFile(filePath, contents, 0644); err != nil {
		return errors.Wrapf(avb.ErrIO, "writing %q: %v", filePath, err)
	}
	return nil
}
