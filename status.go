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

package remoteblock

import (
	"time"

	"github.com/blinklabs-io/remoteblock/block"
)

// ChannelStatus is a snapshot of one connected remote unit
type ChannelStatus struct {
	Id          string         `json:"id"          cbor:"0,keyasint"`
	Name        string         `json:"name"        cbor:"1,keyasint"`
	RemoteAddr  string         `json:"remoteAddr"  cbor:"2,keyasint"`
	ConnectedAt time.Time      `json:"connectedAt" cbor:"3,keyasint"`
	Blocks      []block.Status `json:"blocks"      cbor:"4,keyasint"`
}

// Status is a snapshot of the whole server
type Status struct {
	Address   string          `json:"address"   cbor:"0,keyasint"`
	StartedAt time.Time       `json:"startedAt" cbor:"1,keyasint"`
	Models    []string        `json:"models"    cbor:"2,keyasint"`
	Channels  []ChannelStatus `json:"channels"  cbor:"3,keyasint"`
}

// BlockCount returns the number of blocks across all channels
func (s Status) BlockCount() int {
	ret := 0
	for _, c := range s.Channels {
		ret += len(c.Blocks)
	}
	return ret
}
