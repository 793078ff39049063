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

// UnitNone is the unit code of a point without a unit. It is also what a
// disconnected point carries on the wire.
const UnitNone uint8 = 0xFF

// Kind distinguishes inputs from outputs
type Kind uint8

const (
	KindInput Kind = iota
	KindOutput
)

func (k Kind) String() string {
	if k == KindOutput {
		return "output"
	}
	return "input"
}

// IOPoint is one input or output slot of a Block
type IOPoint struct {
	block        *Block
	kind         Kind
	index        int
	value        float64
	valid        bool
	unit         uint8
	minValue     float64
	maxValue     float64
	hasMin       bool
	hasMax       bool
	defaultValue float64
	hasDefault   bool
	updated      time.Time
	watchdog     Watchdog
}

func newIOPoint(b *Block, kind Kind, index int) *IOPoint {
	return &IOPoint{
		block:    b,
		kind:     kind,
		index:    index,
		unit:     UnitNone,
		watchdog: NewWatchdog(b.table.config.IOTimeout, b.table.now()),
	}
}

func (p *IOPoint) Block() *Block {
	return p.block
}

func (p *IOPoint) Index() int {
	return p.index
}

func (p *IOPoint) Kind() Kind {
	return p.kind
}

func (p *IOPoint) IsInput() bool {
	return p.kind == KindInput
}

func (p *IOPoint) IsOutput() bool {
	return p.kind == KindOutput
}

// Next returns the point following this one in its block, or nil
func (p *IOPoint) Next() *IOPoint {
	if p.IsInput() {
		return p.block.Input(p.index + 1)
	}
	return p.block.Output(p.index + 1)
}

// SetValue stores v, clamped into the configured bounds, with the given unit
func (p *IOPoint) SetValue(v float64, unit uint8) {
	p.set(v, true, unit)
}

// SetNull marks the point as disconnected
func (p *IOPoint) SetNull() {
	p.set(0, false, UnitNone)
}

// SetFrom copies the value and unit of another point
func (p *IOPoint) SetFrom(other *IOPoint) {
	if other == nil {
		return
	}
	if v, ok := other.Raw(); ok {
		p.SetValue(v, other.Unit())
	} else {
		p.SetNull()
	}
}

func (p *IOPoint) set(v float64, valid bool, unit uint8) {
	now := p.block.table.now()
	if valid {
		v = p.clamp(v)
	} else {
		v = 0
	}
	if valid != p.valid || !sameValue(v, p.value) || unit != p.unit {
		p.value = v
		p.valid = valid
		p.unit = unit
		p.updated = now
		p.notifyUpdate()
	}
	p.watchdog.Reset(now)
	if p.IsInput() {
		p.block.resetWatchdog(now)
	}
}

// sameValue treats NaN as equal to itself
func sameValue(a float64, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func (p *IOPoint) clamp(v float64) float64 {
	if p.hasMin && v < p.minValue {
		v = p.minValue
	}
	if p.hasMax && v > p.maxValue {
		v = p.maxValue
	}
	return v
}

func (p *IOPoint) notifyUpdate() {
	if p.IsInput() {
		p.block.signalInputUpdate()
	} else {
		p.block.signalOutputUpdate()
	}
}

// reapply runs the stored value through the bounds again
func (p *IOPoint) reapply() {
	if p.valid {
		p.set(p.value, true, p.unit)
	}
}

func (p *IOPoint) SetMin(v float64) {
	p.minValue = v
	p.hasMin = true
	p.reapply()
}

func (p *IOPoint) SetMax(v float64) {
	p.maxValue = v
	p.hasMax = true
	p.reapply()
}

func (p *IOPoint) SetMinMax(vmin float64, vmax float64) {
	p.minValue, p.hasMin = vmin, true
	p.maxValue, p.hasMax = vmax, true
	p.reapply()
}

// ClearBounds removes both bounds. The stored value is left as is
func (p *IOPoint) ClearBounds() {
	p.hasMin = false
	p.hasMax = false
}

// Bounds returns the configured bounds and whether each one is set
func (p *IOPoint) Bounds() (vmin float64, hasMin bool, vmax float64, hasMax bool) {
	return p.minValue, p.hasMin, p.maxValue, p.hasMax
}

// Value returns the stored value, or fallback if the point holds no value or its
// watchdog has expired
func (p *IOPoint) Value(fallback float64) float64 {
	p.CheckLiveness()
	if p.Valid() {
		return p.value
	}
	return fallback
}

// Raw returns the stored value regardless of liveness
func (p *IOPoint) Raw() (float64, bool) {
	return p.value, p.valid
}

// Valid reports whether the point holds a value that is not stale
func (p *IOPoint) Valid() bool {
	return p.valid && !p.watchdog.Expired(p.block.table.now())
}

func (p *IOPoint) Unit() uint8 {
	return p.unit
}

// UpdatedAt returns the time of the last value or unit change
func (p *IOPoint) UpdatedAt() time.Time {
	return p.updated
}

// Age returns the time elapsed since the last value or unit change
func (p *IOPoint) Age() time.Duration {
	return p.block.table.now().Sub(p.updated)
}

// CheckLiveness reports a stale point once per expiry. Outputs take their default
// value, if they have one, but stay stale until they are set again
func (p *IOPoint) CheckLiveness() {
	if !p.watchdog.Pending(p.block.table.now()) {
		return
	}
	p.block.logger.Warn(
		"watchdog expired",
		"kind", p.kind.String(),
		"index", p.index,
	)
	if p.IsOutput() && p.hasDefault {
		now := p.block.table.now()
		if !p.valid || !sameValue(p.value, p.defaultValue) {
			p.value = p.defaultValue
			p.valid = true
			p.updated = now
			p.notifyUpdate()
		}
	}
}

// DefaultValue returns the default value and whether one is set
func (p *IOPoint) DefaultValue() (float64, bool) {
	return p.defaultValue, p.hasDefault
}

func (p *IOPoint) SetDefaultValue(v float64) {
	p.setDefault(v, true)
}

func (p *IOPoint) ResetDefaultValue() {
	p.setDefault(0, false)
}

func (p *IOPoint) setDefault(v float64, ok bool) {
	if ok == p.hasDefault && v == p.defaultValue {
		return
	}
	p.defaultValue = v
	p.hasDefault = ok
	if p.IsOutput() {
		p.block.signalDefaultOutputUpdate()
	}
}

// MakeDefaultOutput designates this output as the block's default output
func (p *IOPoint) MakeDefaultOutput() {
	if p.IsOutput() {
		p.block.SetIndexOfDefaultOutput(p.index)
	}
}
