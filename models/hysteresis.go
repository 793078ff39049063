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
	"errors"

	"github.com/blinklabs-io/remoteblock/block"
)

const (
	hysteresisMeasure = iota
	hysteresisSetpoint
	hysteresisBand
)

var ErrMissingSetpoint = errors.New("measure and setpoint inputs are required")

// Hysteresis is a two-position controller. Output 0 switches on (1) when the measure
// (input 0) falls below the setpoint (input 1) minus half the band (input 2), and off
// (0) when it rises above the setpoint plus half the band. The band defaults to zero.
// Output 0 is the default output and falls back to off
type Hysteresis struct {
	on bool
}

func NewHysteresis() block.Behavior {
	return &Hysteresis{}
}

func (h *Hysteresis) Evaluate(b *block.Block) (block.Result, error) {
	out := b.Output(0)
	if out == nil {
		return block.Periodic(), nil
	}
	out.SetDefaultValue(0)
	out.MakeDefaultOutput()
	measure, setpoint := b.Input(hysteresisMeasure), b.Input(hysteresisSetpoint)
	if measure == nil || setpoint == nil {
		return block.Periodic(), ErrMissingSetpoint
	}
	m := measure.Value(0)
	sp := setpoint.Value(0)
	if !measure.Valid() || !setpoint.Valid() {
		h.on = false
		return block.Periodic(), ErrMissingSetpoint
	}
	band := 0.0
	if in := b.Input(hysteresisBand); in != nil {
		band = in.Value(0)
		if band < 0 {
			band = -band
		}
	}
	switch {
	case m < sp-band/2:
		h.on = true
	case m > sp+band/2:
		h.on = false
	}
	if h.on {
		out.SetValue(1, block.UnitNone)
	} else {
		out.SetValue(0, block.UnitNone)
	}
	return block.Periodic(), nil
}
