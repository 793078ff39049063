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


package models

import (
	"github.com/blinklabs-io/remoteblock/block"
)

// Sum writes the sum of the valid inputs to output 0, using the unit of the first
// valid input. The evaluation fails when no input is valid
type Sum struct{}

func NewSum() block.Behavior {
	return &Sum{}
}

func (s *Sum) Evaluate(b *block.Block) (block.Result, error) {
	out := b.Output(0)
	if out == nil {
		return block.Periodic(), nil
	}
	var total float64
	unit := block.UnitNone
	found := false
	for _, in := range b.Inputs() {
		in.CheckLiveness()
		if !in.Valid() {
			continue
		}
		v, _ := in.Raw()
		if !found {
			unit = in.Unit()
			found = true
		}
		total += v
	}
	if !found {
		return block.Periodic(), ErrNoValidInputs
	}
	out.SetValue(total, unit)
	return block.Periodic(), nil
}
