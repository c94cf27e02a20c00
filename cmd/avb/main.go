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

// avb trains and evaluates the generative models of the repository.
//
// Pick an experiment and a model:
//
//	avb --experiment=synthetic --model=avb
//	avb --experiment=mnist --model=avb_ac --data=~/work/avb
//
// Each run writes its checkpoint, sample files and plots under
// <output>/<model>/<experiment>.
package main

import (
	"flag"

	"github.com/gomlx/avb"
	"github.com/gomlx/avb/experiments"
	"github.com/gomlx/avb/models"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagConfig     = flag.String("config", "", "YAML configuration file. Flags override its values.")
	flagDataDir    = flag.String("data", "", "Directory to cache downloaded datasets, overrides the configuration.")
	flagOutputDir  = flag.String("output", "", "Base directory for experiment outputs, overrides the configuration.")
	flagSeed       = flag.Int64("seed", -1, "Random seed, overrides the configuration when non-negative.")
	flagExperiment = flag.String("experiment", "synthetic", "Experiment to run: `synthetic` or `mnist`.")
	flagModel      = flag.String("model", "avb", "Model to train: `vae`, `avb` or `avb_ac`.")
	flagPretrained = flag.String("pretrained", "", "Checkpoint directory to warm start matching network weights from.")
	flagOverwrite  = flag.Bool("overwrite", false, "Replace the experiment output directory if it already exists.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](func() {
		cfg := avb.NewConfig()
		if *flagConfig != "" {
			cfg = must.M1(avb.LoadConfig(*flagConfig))
		}
		if *flagDataDir != "" {
			cfg.DataDir = *flagDataDir
		}
		if *flagOutputDir != "" {
			cfg.OutputDir = *flagOutputDir
		}
		if *flagSeed >= 0 {
			cfg.Seed = *flagSeed
		}
		model := must.M1(models.ModelTypeByName(*flagModel))
		opts := experiments.RunOptions{
			PretrainedDir: *flagPretrained,
			Overwrite:     *flagOverwrite,
		}

		var outputDir string
		switch *flagExperiment {
		case "synthetic":
			outputDir = must.M1(experiments.RunSynthetic(cfg, model, opts))
		case "mnist":
			outputDir = must.M1(experiments.RunMNIST(cfg, model, opts))
		default:
			exceptions.Panicf("unknown experiment %q, supported are `synthetic` and `mnist`", *flagExperiment)
		}
		klog.Infof("Done, outputs in %s", outputDir)
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
