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

package mockunit

import (
	"github.com/blinklabs-io/remoteblock/protocol"
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is one step of a scripted exchange. Input entries are messages the
// mock expects from the server, output entries are messages the mock sends
type ConversationEntry struct {
	Type             EntryType
	OutputMessages   []protocol.Message
	InputMessage     protocol.Message
	InputMessageType uint8
}

// ConversationEntrySync matches the sync message a server sends to a new unit
var ConversationEntrySync = ConversationEntry{
	Type:             EntryTypeInput,
	InputMessageType: protocol.MessageTypeSync,
}

// ConversationEntryClose closes the unit side of the connection
var ConversationEntryClose = ConversationEntry{
	Type: EntryTypeClose,
}

// NewConversationEntryDeclare returns an output entry declaring a block
func NewConversationEntryDeclare(localId uint16, remoteInstance uint16, model string, inputCount uint8, outputCount uint8) ConversationEntry {
	return ConversationEntry{
		Type: EntryTypeOutput,
		OutputMessages: []protocol.Message{
			protocol.NewMsgDeclareBlock(localId, remoteInstance, model, inputCount, outputCount),
		},
	}
}

// NewConversationEntryInputs returns an output entry sending block inputs
func NewConversationEntryInputs(localId uint16, remoteInstance uint16, inputs ...protocol.InputValue) ConversationEntry {
	return ConversationEntry{
		Type: EntryTypeOutput,
		OutputMessages: []protocol.Message{
			protocol.NewMsgBlockInputs(localId, remoteInstance, inputs),
		},
	}
}
