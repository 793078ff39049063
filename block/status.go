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

package block

import (
	"math"
	"time"
)

// PointStatus is a snapshot of one IOPoint
type PointStatus struct {
	Index   int       `json:"index"             cbor:"0,keyasint"`
	Value   *float64  `json:"value"             cbor:"1,keyasint"`
	Unit    uint8     `json:"unit"              cbor:"2,keyasint"`
	Default *float64  `json:"default,omitempty" cbor:"3,keyasint,omitempty"`
	Stale   bool      `json:"stale"             cbor:"4,keyasint"`
	Updated time.Time `json:"updated"           cbor:"5,keyasint"`
}

// Status is a snapshot of one Block
type Status struct {
	LocalId        uint16        `json:"localId"        cbor:"0,keyasint"`
	RemoteInstance uint16        `json:"remoteInstance" cbor:"1,keyasint"`
	Model          string        `json:"model"          cbor:"2,keyasint"`
	Name           string        `json:"name"           cbor:"3,keyasint"`
	Error          bool          `json:"error"          cbor:"4,keyasint"`
	DefaultOutput  uint8         `json:"defaultOutput"  cbor:"5,keyasint"`
	EvalPeriod     time.Duration `json:"evalPeriod"     cbor:"6,keyasint"`
	NextEvaluation time.Time     `json:"nextEvaluation" cbor:"7,keyasint"`
	Inputs         []PointStatus `json:"inputs"         cbor:"8,keyasint"`
	Outputs        []PointStatus `json:"outputs"        cbor:"9,keyasint"`
}

// Status returns a snapshot of the block. It does not trigger liveness handling
func (b *Block) Status() Status {
	return Status{
		LocalId:        b.localId,
		RemoteInstance: b.remoteInstance,
		Model:          b.model,
		Name:           b.name,
		Error:          b.errorFlag,
		DefaultOutput:  b.IndexOfDefaultOutput(),
		EvalPeriod:     b.evalPeriod,
		NextEvaluation: b.nextEval,
		Inputs:         pointStatuses(b.inputs),
		Outputs:        pointStatuses(b.outputs),
	}
}

func pointStatuses(points []*IOPoint) []PointStatus {
	ret := make([]PointStatus, 0, len(points))
	for _, p := range points {
		status := PointStatus{
			Index:   p.index,
			Unit:    p.unit,
			Stale:   p.watchdog.Expired(p.block.table.now()),
			Updated: p.updated,
		}
		// NaN and infinities have no JSON form and are reported as null
		if p.valid && !math.IsNaN(p.value) && !math.IsInf(p.value, 0) {
			v := p.value
			status.Value = &v
		}
		if p.hasDefault {
			v := p.defaultValue
			status.Default = &v
		}
		ret = append(ret, status)
	}
	return ret
}
