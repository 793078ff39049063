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
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blinklabs-io/remoteblock/config"
	"github.com/blinklabs-io/remoteblock/metrics"
)

var ErrTableClosed = errors.New("block table is closed")

// Table holds the blocks of one channel, keyed by local id
type Table struct {
	name        string
	registry    *Registry
	dispatcher  Dispatcher
	config      config.BlockConfig
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	blocksMutex sync.Mutex
	blocks      map[uint16]*Block
	closed      bool
}

type TableOptionFunc func(*Table)

// WithConfig specifies the block sizing and timing
func WithConfig(cfg config.BlockConfig) TableOptionFunc {
	return func(t *Table) {
		t.config = cfg
	}
}

// WithClock specifies the time source used for all block timers
func WithClock(now func() time.Time) TableOptionFunc {
	return func(t *Table) {
		t.now = now
	}
}

// WithLogger specifies the logger used for the table and its blocks
func WithLogger(logger *slog.Logger) TableOptionFunc {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithMetrics specifies the metrics to record block activity to
func WithMetrics(m *metrics.Metrics) TableOptionFunc {
	return func(t *Table) {
		t.metrics = m
	}
}

// NewTable returns an empty table. Blocks are named after the table name
func NewTable(name string, registry *Registry, dispatcher Dispatcher, options ...TableOptionFunc) *Table {
	t := &Table{
		name:       name,
		registry:   registry,
		dispatcher: dispatcher,
		config:     config.DefaultBlockConfig(),
		now:        time.Now,
		blocks:     make(map[uint16]*Block),
	}
	for _, option := range options {
		option(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "block")
	return t
}

func (t *Table) Name() string {
	return t.name
}

// Declare creates or refreshes the block at localId. A block already running the
// same model keeps its state; a different model replaces it
func (t *Table) Declare(model string, localId uint16, remoteInstance uint16, inputCount int, outputCount int) (*Block, error) {
	t.blocksMutex.Lock()
	if t.closed {
		t.blocksMutex.Unlock()
		return nil, ErrTableClosed
	}
	existing := t.blocks[localId]
	t.blocksMutex.Unlock()
	blk := existing
	if existing != nil && !existing.IsModel(model) {
		t.logger.Info(
			"replacing block with new model",
			"block", existing.Name(),
			"model", model,
		)
		t.remove(existing, false)
		blk = nil
	}
	if blk == nil {
		name, behavior, err := t.registry.New(model)
		if err != nil {
			return nil, err
		}
		blk = newBlock(t, localId, name, behavior)
		t.blocksMutex.Lock()
		t.blocks[localId] = blk
		t.blocksMutex.Unlock()
		t.metrics.BlockAdded()
		blk.logger.Debug("created block")
		blk.init()
	} else {
		blk.resetWatchdog(t.now())
	}
	blk.remoteInstance = remoteInstance
	blk.SetInputCount(inputCount)
	blk.SetOutputCount(outputCount)
	if blk.InputCount() == 0 && blk.OutputCount() == 0 {
		blk.logger.Warn("block declared without inputs or outputs")
	}
	blk.signalDefaultOutputUpdate()
	blk.signalOutputUpdate()
	return blk, nil
}

// Block returns the block at localId, or nil
func (t *Table) Block(localId uint16) *Block {
	t.blocksMutex.Lock()
	defer t.blocksMutex.Unlock()
	return t.blocks[localId]
}

// Blocks returns all blocks ordered by local id
func (t *Table) Blocks() []*Block {
	t.blocksMutex.Lock()
	ret := make([]*Block, 0, len(t.blocks))
	for _, blk := range t.blocks {
		ret = append(ret, blk)
	}
	t.blocksMutex.Unlock()
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].localId < ret[j].localId
	})
	return ret
}

func (t *Table) Len() int {
	t.blocksMutex.Lock()
	defer t.blocksMutex.Unlock()
	return len(t.blocks)
}

// Remove disposes of the block at localId. It returns false if there was none
func (t *Table) Remove(localId uint16) bool {
	blk := t.Block(localId)
	if blk == nil {
		return false
	}
	t.remove(blk, false)
	return true
}

func (t *Table) remove(blk *Block, evicted bool) {
	t.blocksMutex.Lock()
	current, ok := t.blocks[blk.localId]
	if !ok || current != blk {
		t.blocksMutex.Unlock()
		return
	}
	delete(t.blocks, blk.localId)
	t.blocksMutex.Unlock()
	blk.dispose()
	t.metrics.BlockRemoved(evicted)
	blk.logger.Debug("removed block", "evicted", evicted)
}

// Tick runs one scheduling step for every block and evicts blocks whose watchdog
// has expired. It stops early if the table is closed by a dispatch
func (t *Table) Tick() {
	now := t.now()
	for _, blk := range t.Blocks() {
		if t.isClosed() {
			return
		}
		if blk.disposed {
			continue
		}
		blk.tick(now)
		if blk.IsDead() {
			blk.logger.Info("evicting block")
			t.remove(blk, true)
		}
	}
}

func (t *Table) isClosed() bool {
	t.blocksMutex.Lock()
	defer t.blocksMutex.Unlock()
	return t.closed
}

// Close disposes of every block. It is safe to call more than once
func (t *Table) Close() {
	t.blocksMutex.Lock()
	if t.closed {
		t.blocksMutex.Unlock()
		return
	}
	t.closed = true
	t.blocksMutex.Unlock()
	for _, blk := range t.Blocks() {
		t.remove(blk, false)
	}
}

// Status returns a snapshot of every block in the table
func (t *Table) Status() []Status {
	blocks := t.Blocks()
	ret := make([]Status, 0, len(blocks))
	for _, blk := range blocks {
		ret = append(ret, blk.Status())
	}
	return ret
}
