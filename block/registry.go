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
	"sort"
	"strings"
	"sync"

	"github.com/blinklabs-io/remoteblock/config"
)

var (
	ErrUnknownModel     = errors.New("unknown block model")
	ErrDuplicateModel   = errors.New("block model already registered")
	ErrInvalidModelName = errors.New("invalid block model name")
	ErrNilConstructor   = errors.New("nil block constructor")
	ErrModelNameTooLong = errors.New("block model name too long")
)

type registryEntry struct {
	name        string
	constructor Constructor
}

// Registry maps model names, case-insensitively, to behavior constructors
type Registry struct {
	mutex         sync.RWMutex
	models        map[string]registryEntry
	maxNameLength int
}

type RegistryOptionFunc func(*Registry)

// WithMaxModelNameLength sets the longest model name the registry accepts
func WithMaxModelNameLength(length int) RegistryOptionFunc {
	return func(r *Registry) {
		r.maxNameLength = length
	}
}

func NewRegistry(options ...RegistryOptionFunc) *Registry {
	r := &Registry{
		models:        make(map[string]registryEntry),
		maxNameLength: config.DefaultModelNameLength,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Register adds a model. Names must be non-empty ASCII without spaces and fit the
// fixed-width wire field
func (r *Registry) Register(model string, constructor Constructor) error {
	if constructor == nil {
		return ErrNilConstructor
	}
	if model == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModelName)
	}
	for i := 0; i < len(model); i++ {
		if model[i] > 0x7e || model[i] < 0x21 {
			return fmt.Errorf("%w: %q", ErrInvalidModelName, model)
		}
	}
	if len(model) > r.maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrModelNameTooLong, model, r.maxNameLength)
	}
	key := strings.ToLower(model)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.models[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, model)
	}
	r.models[key] = registryEntry{name: model, constructor: constructor}
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(model string, constructor Constructor) {
	if err := r.Register(model, constructor); err != nil {
		panic(err)
	}
}

// Lookup returns the registered spelling of a model and its constructor
func (r *Registry) Lookup(model string) (string, Constructor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entry, ok := r.models[strings.ToLower(model)]
	if !ok {
		return "", nil, false
	}
	return entry.name, entry.constructor, true
}

// New creates a behavior for the named model
func (r *Registry) New(model string) (string, Behavior, error) {
	name, constructor, ok := r.Lookup(model)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	behavior := constructor()
	if behavior == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrNilConstructor, model)
	}
	return name, behavior, nil
}

// Models returns the registered model names in sorted order
func (r *Registry) Models() []string {
	r.mutex.RLock()
	ret := make([]string, 0, len(r.models))
	for _, entry := range r.models {
		ret = append(ret, entry.name)
	}
	r.mutex.RUnlock()
	sort.Strings(ret)
	return ret
}
