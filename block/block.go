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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RemoteInstanceUnset is the remote instance of a block that has not been declared yet
const RemoteInstanceUnset uint16 = 0xFFFF

// NoDefaultOutput is the wire index used when the block has no default output
const NoDefaultOutput uint8 = 0xFF

var ErrEvaluationPanic = errors.New("block evaluation panicked")

// Dispatcher sends block state to the remote unit that owns the block
type Dispatcher interface {
	SendBlockOutputs(b *Block) error
	SendBlockDefaultOutputs(b *Block) error
}

// Block is a server-side instance of a model, attached to one channel
//
// Blocks are driven from the scheduling loop through Table.Tick and are not safe for
// concurrent use.
type Block struct {
	table                *Table
	behavior             Behavior
	logger               *slog.Logger
	localId              uint16
	remoteInstance       uint16
	model                string
	name                 string
	inputs               []*IOPoint
	outputs              []*IOPoint
	indexOfDefaultOutput int
	evalPeriod           time.Duration
	nextEval             time.Time
	inputUpdate          bool
	outputUpdate         bool
	defaultUpdate        bool
	errorFlag            bool
	inhibitUntil         time.Time
	forcedDispatchAt     time.Time
	watchdog             Watchdog
	dead                 bool
	disposed             bool
}

func newBlock(t *Table, localId uint16, model string, behavior Behavior) *Block {
	now := t.now()
	b := &Block{
		table:                t,
		behavior:             behavior,
		localId:              localId,
		remoteInstance:       RemoteInstanceUnset,
		model:                model,
		name:                 fmt.Sprintf("%s:%s%d", t.name, model, localId),
		indexOfDefaultOutput: 0,
		evalPeriod:           t.config.EvalPeriod,
		nextEval:             now,
		forcedDispatchAt:     now.Add(t.config.DispatchInterval),
		watchdog:             NewWatchdog(t.config.Timeout, now),
	}
	b.logger = t.logger.With("block", b.name)
	return b
}

func (b *Block) LocalId() uint16 {
	return b.localId
}

func (b *Block) RemoteInstance() uint16 {
	return b.remoteInstance
}

func (b *Block) Model() string {
	return b.model
}

// IsModel reports whether the block runs the named model, ignoring case
func (b *Block) IsModel(model string) bool {
	return strings.EqualFold(b.model, model)
}

// Name returns "<channel>:<model><local id>"
func (b *Block) Name() string {
	return b.name
}

func (b *Block) String() string {
	return b.name
}

// Logger returns a logger carrying the block name
func (b *Block) Logger() *slog.Logger {
	return b.logger
}

// Behavior returns the model logic attached to the block
func (b *Block) Behavior() Behavior {
	return b.behavior
}

// Now returns the current time of the clock driving the block
func (b *Block) Now() time.Time {
	return b.table.now()
}

func (b *Block) InputCount() int {
	return len(b.inputs)
}

func (b *Block) OutputCount() int {
	return len(b.outputs)
}

// Input returns the input at index, or nil when out of range
func (b *Block) Input(index int) *IOPoint {
	if index < 0 || index >= len(b.inputs) {
		return nil
	}
	return b.inputs[index]
}

// Output returns the output at index, or nil when out of range
func (b *Block) Output(index int) *IOPoint {
	if index < 0 || index >= len(b.outputs) {
		return nil
	}
	return b.outputs[index]
}

// Inputs returns the input points in index order
func (b *Block) Inputs() []*IOPoint {
	return b.inputs
}

// Outputs returns the output points in index order
func (b *Block) Outputs() []*IOPoint {
	return b.outputs
}

// InputValue returns the value of an input, or fallback if the input does not exist
// or holds no live value
func (b *Block) InputValue(index int, fallback float64) float64 {
	if p := b.Input(index); p != nil {
		return p.Value(fallback)
	}
	return fallback
}

// OutputValue returns the value of an output, or fallback if the output does not
// exist or holds no live value
func (b *Block) OutputValue(index int, fallback float64) float64 {
	if p := b.Output(index); p != nil {
		return p.Value(fallback)
	}
	return fallback
}

// AreInputsValid reports whether every input holds a live value
func (b *Block) AreInputsValid() bool {
	for _, p := range b.inputs {
		p.CheckLiveness()
		if !p.Valid() {
			return false
		}
	}
	return true
}

// SetInputCount resizes the inputs. Surviving inputs keep their state
func (b *Block) SetInputCount(count int) {
	b.inputs = b.resize(b.inputs, KindInput, count, b.table.config.MaxInputs)
}

// SetOutputCount resizes the outputs. Surviving outputs keep their state
func (b *Block) SetOutputCount(count int) {
	b.outputs = b.resize(b.outputs, KindOutput, count, b.table.config.MaxOutputs)
}

func (b *Block) resize(points []*IOPoint, kind Kind, count int, limit int) []*IOPoint {
	if count < 0 {
		count = 0
	}
	if count > limit {
		b.logger.Warn(
			"requested point count exceeds limit",
			"kind", kind.String(),
			"requested", count,
			"limit", limit,
		)
		count = limit
	}
	if count <= len(points) {
		for i := count; i < len(points); i++ {
			points[i] = nil
		}
		return points[:count]
	}
	for i := len(points); i < count; i++ {
		points = append(points, newIOPoint(b, kind, i))
	}
	return points
}

// IndexOfDefaultOutput returns the wire index of the default output, or
// NoDefaultOutput when none is assigned
func (b *Block) IndexOfDefaultOutput() uint8 {
	if b.indexOfDefaultOutput < 0 || b.indexOfDefaultOutput >= len(b.outputs) {
		return NoDefaultOutput
	}
	return uint8(b.indexOfDefaultOutput) // #nosec G115
}

// SetIndexOfDefaultOutput designates the default output. An out of range index
// clears the designation
func (b *Block) SetIndexOfDefaultOutput(index int) {
	if index < 0 || index >= len(b.outputs) {
		index = -1
	}
	if index != b.indexOfDefaultOutput {
		b.indexOfDefaultOutput = index
		// The index travels with block-outputs
		b.signalOutputUpdate()
	}
}

// ApplyDefaultOutputValues sets every output that has a default value to it
func (b *Block) ApplyDefaultOutputValues() {
	for _, p := range b.outputs {
		if v, ok := p.DefaultValue(); ok {
			p.SetValue(v, p.Unit())
		}
	}
}

func (b *Block) EvalPeriod() time.Duration {
	return b.evalPeriod
}

// SetEvalPeriod changes the periodic evaluation interval and forces an evaluation
// on the next tick
func (b *Block) SetEvalPeriod(period time.Duration) {
	if period <= 0 {
		period = b.table.config.EvalPeriod
	}
	b.evalPeriod = period
	b.nextEval = b.table.now()
}

// NextEvaluation returns the time at which the block is next evaluated
func (b *Block) NextEvaluation() time.Time {
	return b.nextEval
}

// SignalError marks the current evaluation as failed
func (b *Block) SignalError() {
	b.errorFlag = true
}

// IsError reports whether the last evaluation failed
func (b *Block) IsError() bool {
	return b.errorFlag
}

// IsDead reports whether the block watchdog has expired
func (b *Block) IsDead() bool {
	return b.dead
}

func (b *Block) signalInputUpdate() {
	b.inputUpdate = true
}

func (b *Block) signalOutputUpdate() {
	b.outputUpdate = true
}

func (b *Block) signalDefaultOutputUpdate() {
	b.defaultUpdate = true
}

func (b *Block) resetWatchdog(now time.Time) {
	b.watchdog.Reset(now)
}

func (b *Block) init() {
	initializer, ok := b.behavior.(Initializer)
	if !ok {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrEvaluationPanic, r)
			}
		}()
		return initializer.Init(b)
	}()
	if err != nil {
		b.logger.Error("block init failed", "error", err)
	}
}

func (b *Block) dispose() {
	if b.disposed {
		return
	}
	b.disposed = true
	disposer, ok := b.behavior.(Disposer)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("block dispose panicked", "error", r)
		}
	}()
	disposer.Dispose(b)
}

// tick runs one scheduling step for the block
func (b *Block) tick(now time.Time) {
	if b.watchdog.Pending(now) {
		b.logger.Warn("block watchdog expired")
	}
	if b.watchdog.Expired(now) {
		b.dead = true
		return
	}
	if b.inputUpdate || !now.Before(b.nextEval) {
		b.inputUpdate = false
		b.evaluate(now)
	}
	if b.defaultUpdate {
		if err := b.table.dispatcher.SendBlockDefaultOutputs(b); err != nil {
			b.logger.Warn("failed to send default outputs", "error", err)
		} else {
			b.defaultUpdate = false
		}
	}
	if (b.outputUpdate || !now.Before(b.forcedDispatchAt)) && !now.Before(b.inhibitUntil) {
		if err := b.table.dispatcher.SendBlockOutputs(b); err != nil {
			b.logger.Warn("failed to send outputs", "error", err)
			return
		}
		b.outputUpdate = false
		b.inhibitUntil = now.Add(b.table.config.DispatchInhibit)
		b.forcedDispatchAt = now.Add(b.table.config.DispatchInterval)
	}
}

func (b *Block) evaluate(now time.Time) {
	b.errorFlag = false
	res, err := b.safeEvaluate()
	if err != nil {
		b.errorFlag = true
		b.logger.Error("block evaluation failed", "error", err)
	}
	b.table.metrics.Evaluation(b.errorFlag)
	if b.errorFlag {
		b.ApplyDefaultOutputValues()
		b.nextEval = now.Add(b.table.config.ErrorRetryDelay)
		return
	}
	switch res.kind {
	case resultImmediate:
		b.nextEval = now.Add(b.table.config.ImmediateDelay)
	case resultDelay:
		b.nextEval = now.Add(res.delay)
	default:
		b.nextEval = now.Add(b.evalPeriod)
	}
}

func (b *Block) safeEvaluate() (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEvaluationPanic, r)
		}
	}()
	return b.behavior.Evaluate(b)
}
