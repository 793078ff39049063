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

// Copy mirrors each input onto the output with the same index
type Copy struct{}

func NewCopy() block.Behavior {
	return &Copy{}
}

func (c *Copy) Evaluate(b *block.Block) (block.Result, error) {
	for _, in := range b.Inputs() {
		out := b.Output(in.Index())
		if out == nil {
			break
		}
		out.SetFrom(in)
	}
	return block.Periodic(), nil
}
