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

package avb

import (
	"os"

	"github.com/gomlx/gomlx/ml/data"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the process-wide settings of an experiment run. It is passed
// explicitly to the launchers, there is no global state.
type Config struct {
	// DataDir is where datasets are downloaded to and cached. A leading "~"
	// is expanded to the user's home directory.
	DataDir string `yaml:"data_dir"`

	// OutputDir is the base directory under which each experiment creates
	// its own output sub-directory.
	OutputDir string `yaml:"output_dir"`

	// Seed for the random number generators, both the host-side ones
	// (shuffling, sampling binarization) and the graph-side one (noise and
	// prior sampling). The same seed and backend reproduce a run.
	Seed int64 `yaml:"seed"`
}

// NewConfig returns a Config with the default settings: data under
// "~/work/avb", outputs under "output" and seed 42.
func NewConfig() *Config {
	return &Config{
		DataDir:   "~/work/avb",
		OutputDir: "output",
		Seed:      42,
	}
}

// LoadConfig reads a YAML configuration file into a Config. Fields not set in
// the file keep their defaults from NewConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	contents, err := os.ReadFile(data.ReplaceTildeInDir(path))
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "reading configuration from %q: %v", path, err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "parsing configuration from %q: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.Wrap(ErrConfiguration, "data_dir must not be empty")
	}
	if c.OutputDir == "" {
		return errors.Wrap(ErrConfiguration, "output_dir must not be empty")
	}
	return nil
}

// Save writes the configuration as YAML to the given path.
func (c *Config) Save(path string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "marshalling configuration")
	}
	if err := os.WriteFile(data.ReplaceTildeInDir(path), contents, 0644); err != nil {
		return errors.Wrapf(ErrIO, "writing configuration to %q: %v", path, err)
	}
	return nil
}
