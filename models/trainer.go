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

package models

import (
	"github.com/gomlx/avb"
	"github.com/gomlx/avb/networks"
	"github.com/gomlx/avb/ui/plots"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainConfig holds the hyperparameters of a training run. Zero values are
// not filled in automatically, start from DefaultTrainConfig.
type TrainConfig struct {
	// BatchSize of the training batches. The adversarial models also draw
	// their prior samples in batches of this size.
	BatchSize int

	// Epochs to train for.
	Epochs int

	// LearningRate of the Adam optimizer updating encoder and decoder.
	LearningRate float64

	// DiscriminatorLearningRate of the Adam optimizer updating the
	// discriminator. Ignored by the VAE.
	DiscriminatorLearningRate float64

	// AdamBeta1 is the first moment decay used by every optimizer of the
	// run. The adversarial models typically lower it to 0.5.
	AdamBeta1 float64

	// LogEverySteps is the cadence, in global steps, at which losses are
	// recorded to the training history. Zero disables recording.
	LogEverySteps int
}

// DefaultTrainConfig returns a config with sensible defaults. Experiments
// override the fields their datasets require.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		BatchSize:                 64,
		Epochs:                    10,
		LearningRate:              1e-3,
		DiscriminatorLearningRate: 1e-3,
		AdamBeta1:                 0.5,
		LogEverySteps:             10,
	}
}

// Validate checks the config for the given model type.
func (c TrainConfig) Validate(modelType ModelType) error {
	if c.BatchSize <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "training requires BatchSize > 0, got %d", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "training requires Epochs > 0, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "training requires LearningRate > 0, got %g", c.LearningRate)
	}
	if modelType.Adversarial() && c.DiscriminatorLearningRate <= 0 {
		return errors.Wrapf(avb.ErrConfiguration,
			"adversarial training requires DiscriminatorLearningRate > 0, got %g", c.DiscriminatorLearningRate)
	}
	if c.AdamBeta1 < 0 || c.AdamBeta1 >= 1 {
		return errors.Wrapf(avb.ErrConfiguration, "AdamBeta1 must be in [0, 1), got %g", c.AdamBeta1)
	}
	if c.LogEverySteps <= 0 {
		return errors.Wrapf(avb.ErrConfiguration, "training requires LogEverySteps > 0, got %d", c.LogEverySteps)
	}
	return nil
}

// Trainer assembles the networks of one model and trains them. It is single
// use: once Train finished, further training attempts fail and the learned
// weights live on in the returned TrainedModel.
type Trainer struct {
	backend   backends.Backend
	ctx       *context.Context
	modelType ModelType
	netSpec   networks.Spec
	config    TrainConfig
	state     TrainerState

	reparametrised *networks.ReparametrisedEncoder
	encoder        *networks.Encoder
	momentEncoder  *networks.MomentEncoder
	decoder        *networks.Decoder
	discriminator  *networks.Discriminator

	history []plots.Point
}

// NewTrainer creates a trainer in the Configured state. It validates the
// hyperparameters and instantiates every network the model type needs, so an
// unsupported configuration fails here and not halfway through training.
func NewTrainer(backend backends.Backend, modelType ModelType, netSpec networks.Spec, config TrainConfig) (*Trainer, error) {
	if err := config.Validate(modelType); err != nil {
		return nil, err
	}
	t := &Trainer{
		backend:   backend,
		ctx:       context.New(),
		modelType: modelType,
		netSpec:   netSpec,
		config:    config,
		state:     Configured,
	}
	var err error
	t.decoder, err = networks.NewDecoder(netSpec)
	if err != nil {
		return nil, err
	}
	switch modelType {
	case VAE:
		t.reparametrised, err = networks.NewReparametrisedEncoder(netSpec)
	case AVB, AVBAdaptiveContrast:
		t.encoder, err = networks.NewEncoder(netSpec)
		if err == nil {
			t.discriminator, err = networks.NewDiscriminator(netSpec)
		}
		if err == nil && modelType == AVBAdaptiveContrast {
			t.momentEncoder, err = networks.NewMomentEncoder(netSpec)
		}
	default:
		return nil, errors.Wrapf(avb.ErrConfiguration, "unknown model type %d", modelType)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// State returns the trainer's position in its life cycle.
func (t *Trainer) State() TrainerState { return t.state }

// ModelType returns the training objective.
func (t *Trainer) ModelType() ModelType { return t.modelType }

// Spec returns the network shape parameters.
func (t *Trainer) Spec() networks.Spec { return t.netSpec }

// Config returns the hyperparameters.
func (t *Trainer) Config() TrainConfig { return t.config }

// Context returns the context holding the model variables. Shared by all the
// trainer's networks.
func (t *Trainer) Context() *context.Context { return t.ctx }

// SetSeed resets the random state used for noise and prior sampling, making
// runs reproducible.
func (t *Trainer) SetSeed(seed int64) { t.ctx.RngStateFromSeed(seed) }

// InitFromCheckpoint loads previously saved weights into the trainer before
// training starts, resuming from a checkpoint written by TrainedModel.Save.
// Saved values are bound as the graphs create their variables, so the
// checkpoint must come from a run with the same model type and network
// shapes. Variables absent from the checkpoint keep their fresh
// initialization.
func (t *Trainer) InitFromCheckpoint(dir string) error {
	if t.state != Configured {
		return errors.Wrapf(avb.ErrConfiguration, "cannot load pretrained weights in state %q", t.state)
	}
	handler, err := checkpoints.Build(t.ctx).Dir(dir).Done()
	if err != nil {
		return errors.Wrapf(avb.ErrIO, "loading pretrained model from %q: %v", dir, err)
	}
	saved, err := handler.ListCheckpoints()
	if err != nil {
		return errors.Wrapf(avb.ErrIO, "listing checkpoints in %q: %v", dir, err)
	}
	if len(saved) == 0 {
		return errors.Wrapf(avb.ErrConfiguration, "no checkpoint found in %q", dir)
	}
	klog.V(1).Infof("Loaded pretrained weights from %q", handler.Dir())
	return nil
}

// Train runs the configured number of epochs over ds and returns the trained
// model. ds must be finite, shuffled and batched; each Yield feeds one
// training step (two for the adversarial models: discriminator first, then
// encoder and decoder on the same batch). Because batches are reused across
// the two steps, ds must retain ownership of the tensors it yields, as
// data.InMemoryDataset does.
//
// stepsPerEpoch sizes the progress reporting of the adversarial loop; pass 0
// if unknown.
func (t *Trainer) Train(ds train.Dataset, stepsPerEpoch int) (*TrainedModel, error) {
	if t.state != Configured {
		return nil, errors.Wrapf(avb.ErrConfiguration, "trainer in state %q, create a new one to train again", t.state)
	}
	t.state = Training
	klog.Infof("Training %s (%s) for %d epochs on %q", t.modelType, t.netSpec.Architecture, t.config.Epochs, ds.Name())
	var err error
	switch t.modelType {
	case VAE:
		err = t.trainVAE(ds)
	default:
		err = t.trainAdversarial(ds, stepsPerEpoch)
	}
	if err != nil {
		return nil, err
	}
	t.state = Trained
	klog.V(1).Infof("Training done (global_step=%d)", optimizers.GetGlobalStep(t.ctx))
	return newTrainedModel(t), nil
}

// recordPoint appends one loss value to the training history.
func (t *Trainer) recordPoint(name, short string, step, value float64) {
	t.history = append(t.history, plots.Point{
		MetricName: name,
		Short:      short,
		MetricType: "loss",
		Step:       step,
		Value:      value,
	})
}
