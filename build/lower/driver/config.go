// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driver

import (
	"github.com/google/uuid"
	"github.com/gx-org/fhelinalg/api/options"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRounds is the maximum number of rounds if no option is given.
const DefaultMaxRounds = 8

// PassName is the name of the pass for options.
const PassName = "fhelinalg-to-linalg"

// Config of the driver.
type Config struct {
	MaxRounds   int
	Parallel    bool
	Workers     int
	VerifyNests bool
	Logger      *logrus.Entry
}

// NewConfig processes options into a configuration.
// Options specific to other passes are ignored.
func NewConfig(pass string, opts []options.PassOption) (*Config, error) {
	cfg := &Config{MaxRounds: DefaultMaxRounds}
	for _, opt := range opts {
		if p := opt.Pass(); p != options.AllPasses && p != pass {
			continue
		}
		switch optT := opt.(type) {
		case options.MaxRounds:
			if optT.N <= 0 {
				return nil, errors.Errorf("invalid maximum number of rounds: %d", optT.N)
			}
			cfg.MaxRounds = optT.N
		case options.Parallel:
			cfg.Parallel = true
			cfg.Workers = optT.Workers
		case options.VerifyNests:
			cfg.VerifyNests = true
		case options.Logger:
			cfg.Logger = optT.Entry
		default:
			return nil, errors.Errorf("option of type %T not supported by pass %s", optT, pass)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg.Logger = cfg.Logger.WithFields(logrus.Fields{
		"pass": pass,
		"run":  uuid.Must(uuid.NewV7()).String(),
	})
	return cfg, nil
}
