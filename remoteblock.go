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

// Package remoteblock implements a server that hosts the logic of function blocks
// declared by remote I/O units.
//
// A remote unit connects over TCP, declares its blocks and streams their input values.
// The server instantiates a behavior for each declared block from a Registry of models,
// evaluates it periodically or when inputs change, and sends the resulting outputs back
// to the unit. A single scheduling loop drives all evaluation and protocol handling.
//
// The block, protocol and framing packages can be used on their own, for example to
// emulate a remote unit.
package remoteblock

import "errors"

var (
	ErrChannelClosed    = errors.New("channel is closed")
	ErrServerStopped    = errors.New("server is stopped")
	ErrServerNotRunning = errors.New("server is not running")
)
