// Copyright 2026 Blink Labs Software
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


// Package models provides the stock block behaviors offered to remote units
package models

import (
	"errors"

	"github.com/blinklabs-io/remoteblock/block"
)

const (
	ModelCopy       = "copy"
	ModelSum        = "sum"
	ModelHysteresis = "hysteresis"
)

var ErrNoValidInputs = errors.New("no valid inputs")

var stockModels = []struct {
	name        string
	constructor block.Constructor
}{
	{ModelCopy, NewCopy},
	{ModelSum, NewSum},
	{ModelHysteresis, NewHysteresis},
}

// RegisterAll adds every stock model to the registry
func RegisterAll(registry *block.Registry) error {
	var errs []error
	for _, model := range stockModels {
		if err := registry.Register(model.name, model.constructor); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
