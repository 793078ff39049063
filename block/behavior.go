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

import "time"

// Behavior is the application logic of a block model
type Behavior interface {
	// Evaluate computes outputs from inputs. A returned error, a panic, or a call to
	// Block.SignalError marks the evaluation as failed
	Evaluate(b *Block) (Result, error)
}

// Initializer is implemented by behaviors that need setup after the block is created
type Initializer interface {
	Init(b *Block) error
}

// Disposer is implemented by behaviors that need cleanup when the block is removed
type Disposer interface {
	Dispose(b *Block)
}

// Constructor creates a fresh Behavior for a new block
type Constructor func() Behavior

// BehaviorFunc adapts a plain function to the Behavior interface
type BehaviorFunc func(b *Block) (Result, error)

func (f BehaviorFunc) Evaluate(b *Block) (Result, error) {
	return f(b)
}

type resultKind uint8

const (
	resultPeriodic resultKind = iota
	resultImmediate
	resultDelay
)

// Result tells the scheduler when to evaluate the block next. The zero value
// schedules the next evaluation one eval period away
type Result struct {
	kind  resultKind
	delay time.Duration
}

// Periodic schedules the next evaluation one eval period away
func Periodic() Result {
	return Result{kind: resultPeriodic}
}

// Immediate schedules the next evaluation after the short immediate delay
func Immediate() Result {
	return Result{kind: resultImmediate}
}

// After schedules the next evaluation after d. A non-positive d behaves like Periodic
func After(d time.Duration) Result {
	if d <= 0 {
		return Periodic()
	}
	return Result{kind: resultDelay, delay: d}
}
