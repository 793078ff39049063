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

package block_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/blinklabs-io/remoteblock/block"
	"github.com/blinklabs-io/remoteblock/internal/test"
	"github.com/blinklabs-io/remoteblock/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	outputs  int
	defaults int
	err      error
}

func (d *recordingDispatcher) SendBlockOutputs(b *block.Block) error {
	if d.err != nil {
		return d.err
	}
	d.outputs++
	return nil
}

func (d *recordingDispatcher) SendBlockDefaultOutputs(b *block.Block) error {
	if d.err != nil {
		return d.err
	}
	d.defaults++
	return nil
}

type disposingBehavior struct {
	initCalls    int
	disposeCalls int
}

func (d *disposingBehavior) Init(b *block.Block) error {
	d.initCalls++
	return nil
}

func (d *disposingBehavior) Evaluate(b *block.Block) (block.Result, error) {
	return block.Periodic(), nil
}

func (d *disposingBehavior) Dispose(b *block.Block) {
	d.disposeCalls++
}

func copyBehavior() block.Behavior {
	return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
		for i, in := range b.Inputs() {
			if out := b.Output(i); out != nil {
				out.SetFrom(in)
			}
		}
		return block.Periodic(), nil
	})
}

func idleBehavior() block.Behavior {
	return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
		return block.Periodic(), nil
	})
}

type fixture struct {
	clock      *test.Clock
	registry   *block.Registry
	dispatcher *recordingDispatcher
	metrics    *metrics.Metrics
	table      *block.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:      test.NewClock(),
		registry:   block.NewRegistry(),
		dispatcher: &recordingDispatcher{},
		metrics:    metrics.New(),
	}
	require.NoError(t, f.registry.Register("idle", idleBehavior))
	require.NoError(t, f.registry.Register("copy", copyBehavior))
	f.table = block.NewTable(
		"10.0.0.1",
		f.registry,
		f.dispatcher,
		block.WithClock(f.clock.Now),
		block.WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) declare(t *testing.T, model string, lid uint16, inputs int, outputs int) *block.Block {
	t.Helper()
	b, err := f.table.Declare(model, lid, 1, inputs, outputs)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func TestBlockName(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "IDLE", 7, 0, 1)
	assert.Equal(t, "10.0.0.1:idle7", b.Name())
	assert.Equal(t, "idle", b.Model())
	assert.True(t, b.IsModel("Idle"))
}

func TestIOPointClamp(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 0, 1)
	out := b.Output(0)
	out.SetMinMax(0, 10)
	out.SetValue(15, 3)
	v, ok := out.Raw()
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
	assert.Equal(t, uint8(3), out.Unit())
	out.SetValue(-2, 3)
	assert.Equal(t, 0.0, out.Value(-1))
	// Tightening a bound re-applies it to the stored value
	out.SetValue(3, 3)
	out.SetMin(5)
	assert.Equal(t, 5.0, out.Value(-1))
	out.ClearBounds()
	out.SetValue(100, 3)
	assert.Equal(t, 100.0, out.Value(-1))
}

func TestIOPointNull(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 1, 0)
	in := b.Input(0)
	assert.False(t, in.Valid())
	assert.Equal(t, block.UnitNone, in.Unit())
	in.SetValue(1, 0)
	assert.True(t, in.Valid())
	in.SetNull()
	assert.False(t, in.Valid())
	assert.Equal(t, 42.0, in.Value(42))
	assert.Nil(t, in.Next())
	assert.Nil(t, b.Input(1))
	assert.Nil(t, b.Output(0))
}

func TestInputStaleFallback(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 2, 0)
	b.Input(0).SetValue(7, 1)
	b.Input(1).SetValue(8, 1)
	assert.True(t, b.AreInputsValid())
	f.clock.Advance(59 * time.Second)
	assert.Equal(t, 7.0, b.InputValue(0, -1))
	f.clock.Advance(time.Second)
	assert.Equal(t, -1.0, b.InputValue(0, -1))
	assert.False(t, b.AreInputsValid())
	// Refreshing the value makes it live again
	b.Input(0).SetValue(7, 1)
	assert.Equal(t, 7.0, b.InputValue(0, -1))
	assert.Equal(t, -3.0, b.InputValue(5, -3))
}

func TestOutputStaleUsesDefault(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 0, 1)
	out := b.Output(0)
	out.SetDefaultValue(3)
	out.SetValue(9, 2)
	f.clock.Advance(61 * time.Second)
	// The default is substituted but the output stays stale
	assert.Equal(t, -1.0, out.Value(-1))
	assert.False(t, out.Valid())
	v, ok := out.Raw()
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	// Setting the output makes it live again
	out.SetValue(4, 2)
	assert.Equal(t, 4.0, out.Value(-1))
}

func TestBlockEviction(t *testing.T) {
	f := newFixture(t)
	var behavior *disposingBehavior
	require.NoError(t, f.registry.Register("disp", func() block.Behavior {
		behavior = &disposingBehavior{}
		return behavior
	}))
	f.declare(t, "disp", 3, 1, 1)
	require.NotNil(t, behavior)
	assert.Equal(t, 1, behavior.initCalls)
	f.clock.Advance(179 * time.Second)
	f.table.Tick()
	assert.Equal(t, 1, f.table.Len())
	f.clock.Advance(time.Second)
	f.table.Tick()
	assert.Equal(t, 0, f.table.Len())
	assert.Equal(t, 1, behavior.disposeCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlocksEvicted))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.BlocksActive))
}

func TestInputRefreshKeepsBlockAlive(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 3, 1, 0)
	for i := 0; i < 5; i++ {
		f.clock.Advance(100 * time.Second)
		b.Input(0).SetValue(float64(i), 0)
		f.table.Tick()
	}
	assert.Equal(t, 1, f.table.Len())
}

func TestEvaluationErrorAppliesDefaults(t *testing.T) {
	testDefs := []struct {
		name     string
		behavior block.BehaviorFunc
	}{
		{
			name: "error",
			behavior: func(b *block.Block) (block.Result, error) {
				return block.Periodic(), errors.New("boom")
			},
		},
		{
			name: "panic",
			behavior: func(b *block.Block) (block.Result, error) {
				panic("boom")
			},
		},
		{
			name: "signal",
			behavior: func(b *block.Block) (block.Result, error) {
				b.Output(0).SetValue(50, 0)
				b.SignalError()
				return block.Periodic(), nil
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			f := newFixture(t)
			behavior := testDef.behavior
			require.NoError(t, f.registry.Register("fail", func() block.Behavior { return behavior }))
			b := f.declare(t, "fail", 1, 0, 1)
			b.Output(0).SetDefaultValue(4)
			start := f.clock.Now()
			f.table.Tick()
			assert.True(t, b.IsError())
			assert.Equal(t, 4.0, b.OutputValue(0, -1))
			assert.Equal(t, start.Add(2*time.Second), b.NextEvaluation())
			assert.Equal(t, 1, f.dispatcher.outputs)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvaluationErrors))
		})
	}
}

func TestErrorClearsOnSuccess(t *testing.T) {
	f := newFixture(t)
	fail := true
	require.NoError(t, f.registry.Register("flaky", func() block.Behavior {
		return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
			if fail {
				return block.Periodic(), errors.New("not yet")
			}
			return block.Periodic(), nil
		})
	}))
	b := f.declare(t, "flaky", 1, 0, 0)
	f.table.Tick()
	assert.True(t, b.IsError())
	fail = false
	f.clock.Advance(2 * time.Second)
	f.table.Tick()
	assert.False(t, b.IsError())
	assert.Equal(t, f.clock.Now().Add(5*time.Second), b.NextEvaluation())
}

func TestResultScheduling(t *testing.T) {
	testDefs := []struct {
		name   string
		result block.Result
		delay  time.Duration
	}{
		{name: "periodic", result: block.Periodic(), delay: 5 * time.Second},
		{name: "zero", result: block.Result{}, delay: 5 * time.Second},
		{name: "immediate", result: block.Immediate(), delay: 100 * time.Millisecond},
		{name: "after", result: block.After(3 * time.Second), delay: 3 * time.Second},
		{name: "after negative", result: block.After(-time.Second), delay: 5 * time.Second},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			f := newFixture(t)
			result := testDef.result
			require.NoError(t, f.registry.Register("sched", func() block.Behavior {
				return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
					return result, nil
				})
			}))
			b := f.declare(t, "sched", 1, 0, 0)
			f.table.Tick()
			assert.Equal(t, f.clock.Now().Add(testDef.delay), b.NextEvaluation())
		})
	}
}

func TestSetEvalPeriod(t *testing.T) {
	f := newFixture(t)
	evaluations := 0
	require.NoError(t, f.registry.Register("count", func() block.Behavior {
		return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
			evaluations++
			return block.Periodic(), nil
		})
	}))
	b := f.declare(t, "count", 1, 0, 0)
	f.table.Tick()
	assert.Equal(t, 1, evaluations)
	f.clock.Advance(time.Second)
	f.table.Tick()
	assert.Equal(t, 1, evaluations)
	b.SetEvalPeriod(time.Second)
	f.table.Tick()
	assert.Equal(t, 2, evaluations)
	assert.Equal(t, f.clock.Now().Add(time.Second), b.NextEvaluation())
	assert.Equal(t, time.Second, b.EvalPeriod())
}

func TestInputUpdateTriggersEvaluation(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "copy", 1, 1, 1)
	f.table.Tick()
	b.Input(0).SetValue(12.5, 4)
	f.clock.Advance(10 * time.Millisecond)
	f.table.Tick()
	v, ok := b.Output(0).Raw()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	assert.Equal(t, uint8(4), b.Output(0).Unit())
}

func TestDispatchThrottling(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "copy", 1, 1, 1)
	// Declaring always schedules both dispatches
	f.table.Tick()
	assert.Equal(t, 1, f.dispatcher.outputs)
	assert.Equal(t, 1, f.dispatcher.defaults)
	// Changes inside the inhibit window are coalesced
	b.Input(0).SetValue(1, 0)
	f.table.Tick()
	f.clock.Advance(100 * time.Millisecond)
	b.Input(0).SetValue(2, 0)
	f.table.Tick()
	assert.Equal(t, 1, f.dispatcher.outputs)
	f.clock.Advance(400 * time.Millisecond)
	f.table.Tick()
	assert.Equal(t, 2, f.dispatcher.outputs)
	// Unchanged outputs are still sent every dispatch interval
	f.clock.Advance(19900 * time.Millisecond)
	b.Input(0).SetValue(2, 0)
	f.table.Tick()
	assert.Equal(t, 2, f.dispatcher.outputs)
	f.clock.Advance(100 * time.Millisecond)
	f.table.Tick()
	assert.Equal(t, 3, f.dispatcher.outputs)
}

func TestDispatchRetriedAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("write failed")
	f.declare(t, "idle", 1, 0, 1)
	f.table.Tick()
	assert.Equal(t, 0, f.dispatcher.outputs)
	f.dispatcher.err = nil
	f.clock.Advance(10 * time.Millisecond)
	f.table.Tick()
	assert.Equal(t, 1, f.dispatcher.outputs)
	assert.Equal(t, 1, f.dispatcher.defaults)
}

func TestDefaultOutputIndex(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 0, 2)
	assert.Equal(t, uint8(0), b.IndexOfDefaultOutput())
	b.Output(1).MakeDefaultOutput()
	assert.Equal(t, uint8(1), b.IndexOfDefaultOutput())
	b.SetIndexOfDefaultOutput(9)
	assert.Equal(t, block.NoDefaultOutput, b.IndexOfDefaultOutput())
	b.Output(1).MakeDefaultOutput()
	b.SetOutputCount(1)
	assert.Equal(t, block.NoDefaultOutput, b.IndexOfDefaultOutput())
}

func TestDefaultOutputIndexNewBlock(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 0, 0)
	// No outputs yet, so the index has nothing to point at
	assert.Equal(t, block.NoDefaultOutput, b.IndexOfDefaultOutput())
	b.SetOutputCount(3)
	assert.Equal(t, uint8(0), b.IndexOfDefaultOutput())
}

func TestDefaultOutputIndexChangeIsDispatched(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 0, 2)
	f.table.Tick()
	assert.Equal(t, 1, f.dispatcher.outputs)
	f.clock.Advance(time.Second)
	f.table.Tick()
	assert.Equal(t, 1, f.dispatcher.outputs)
	b.Output(1).MakeDefaultOutput()
	f.table.Tick()
	assert.Equal(t, 2, f.dispatcher.outputs)
	assert.Equal(t, 1, f.dispatcher.defaults)
	// Setting the same index again is not a change
	f.clock.Advance(time.Second)
	b.Output(1).MakeDefaultOutput()
	f.table.Tick()
	assert.Equal(t, 2, f.dispatcher.outputs)
}

func TestNaNInputIsNotAnUpdate(t *testing.T) {
	f := newFixture(t)
	evaluations := 0
	require.NoError(t, f.registry.Register("count", func() block.Behavior {
		return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
			evaluations++
			return block.Periodic(), nil
		})
	}))
	b := f.declare(t, "count", 1, 1, 0)
	b.Input(0).SetValue(math.NaN(), 0)
	f.table.Tick()
	assert.Equal(t, 1, evaluations)
	updated := b.Input(0).UpdatedAt()
	f.clock.Advance(10 * time.Millisecond)
	b.Input(0).SetValue(math.NaN(), 0)
	f.table.Tick()
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, updated, b.Input(0).UpdatedAt())
	// The watchdog is still refreshed
	assert.True(t, b.Input(0).Valid())
}

// closingDispatcher closes its table from inside the first dispatch
type closingDispatcher struct {
	table *block.Table
	calls int
}

func (d *closingDispatcher) SendBlockOutputs(b *block.Block) error {
	d.calls++
	d.table.Close()
	return nil
}

func (d *closingDispatcher) SendBlockDefaultOutputs(b *block.Block) error {
	d.calls++
	d.table.Close()
	return nil
}

func TestTableTickStopsWhenClosed(t *testing.T) {
	clock := test.NewClock()
	registry := block.NewRegistry()
	evaluations := 0
	require.NoError(t, registry.Register("count", func() block.Behavior {
		return block.BehaviorFunc(func(b *block.Block) (block.Result, error) {
			evaluations++
			return block.Periodic(), nil
		})
	}))
	dispatcher := &closingDispatcher{}
	table := block.NewTable("10.0.0.1", registry, dispatcher, block.WithClock(clock.Now))
	dispatcher.table = table
	_, err := table.Declare("count", 1, 1, 0, 1)
	require.NoError(t, err)
	_, err = table.Declare("count", 2, 1, 0, 1)
	require.NoError(t, err)
	table.Tick()
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, 0, table.Len())
	table.Tick()
	assert.Equal(t, 1, evaluations)
}

func TestDeclareIdempotent(t *testing.T) {
	f := newFixture(t)
	var behaviors []*disposingBehavior
	require.NoError(t, f.registry.Register("disp", func() block.Behavior {
		behavior := &disposingBehavior{}
		behaviors = append(behaviors, behavior)
		return behavior
	}))
	first := f.declare(t, "disp", 5, 2, 1)
	first.Input(1).SetValue(3, 0)
	second, err := f.table.Declare("DISP", 5, 9, 2, 1)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, uint16(9), second.RemoteInstance())
	assert.Equal(t, 3.0, second.InputValue(1, -1))
	assert.Len(t, behaviors, 1)
	// Shrinking keeps surviving points
	third, err := f.table.Declare("disp", 5, 9, 1, 1)
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, 1, third.InputCount())
	// A different model replaces the block
	replaced, err := f.table.Declare("idle", 5, 9, 1, 1)
	require.NoError(t, err)
	assert.NotSame(t, first, replaced)
	assert.Equal(t, 1, behaviors[0].disposeCalls)
	assert.Equal(t, 1, f.table.Len())
	assert.Same(t, replaced, f.table.Block(5))
}

func TestDeclareUnknownModel(t *testing.T) {
	f := newFixture(t)
	_, err := f.table.Declare("nope", 1, 1, 1, 1)
	assert.ErrorIs(t, err, block.ErrUnknownModel)
	assert.Equal(t, 0, f.table.Len())
}

func TestDeclareClampsCounts(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "idle", 1, 20, 17)
	assert.Equal(t, 16, b.InputCount())
	assert.Equal(t, 16, b.OutputCount())
	b = f.declare(t, "idle", 1, 0, 0)
	assert.Equal(t, 0, b.InputCount())
	assert.Equal(t, 0, b.OutputCount())
}

func TestTableBlocksOrdered(t *testing.T) {
	f := newFixture(t)
	f.declare(t, "idle", 9, 0, 0)
	f.declare(t, "idle", 2, 0, 0)
	f.declare(t, "idle", 5, 0, 0)
	var ids []uint16
	for _, b := range f.table.Blocks() {
		ids = append(ids, b.LocalId())
	}
	assert.Equal(t, []uint16{2, 5, 9}, ids)
	assert.True(t, f.table.Remove(5))
	assert.False(t, f.table.Remove(5))
	assert.Len(t, f.table.Status(), 2)
}

func TestTableClose(t *testing.T) {
	f := newFixture(t)
	var behavior *disposingBehavior
	require.NoError(t, f.registry.Register("disp", func() block.Behavior {
		behavior = &disposingBehavior{}
		return behavior
	}))
	f.declare(t, "disp", 1, 0, 0)
	f.declare(t, "idle", 2, 0, 0)
	f.table.Close()
	f.table.Close()
	assert.Equal(t, 0, f.table.Len())
	assert.Equal(t, 1, behavior.disposeCalls)
	_, err := f.table.Declare("idle", 3, 1, 0, 0)
	assert.ErrorIs(t, err, block.ErrTableClosed)
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t)
	b := f.declare(t, "copy", 4, 1, 1)
	b.Input(0).SetValue(2, 7)
	b.Output(0).SetDefaultValue(1)
	status := b.Status()
	assert.Equal(t, uint16(4), status.LocalId)
	assert.Equal(t, uint16(1), status.RemoteInstance)
	assert.Equal(t, "copy", status.Model)
	require.Len(t, status.Inputs, 1)
	require.NotNil(t, status.Inputs[0].Value)
	assert.Equal(t, 2.0, *status.Inputs[0].Value)
	assert.Equal(t, uint8(7), status.Inputs[0].Unit)
	require.Len(t, status.Outputs, 1)
	assert.Nil(t, status.Outputs[0].Value)
	require.NotNil(t, status.Outputs[0].Default)
	assert.Equal(t, 1.0, *status.Outputs[0].Default)
}
