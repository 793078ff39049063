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

package protocol

import (
	"fmt"

	"github.com/blinklabs-io/remoteblock/framing"
)

// Message types
const (
	MessageTypePing                = 1
	MessageTypePong                = 2
	MessageTypeSync                = 3
	MessageTypeDeclareBlock        = 4
	MessageTypeBlockInputs         = 5
	MessageTypeBlockOutputs        = 6
	MessageTypeBlockDefaultOutputs = 7
)

// ModelNameLength is the width of the fixed model name field of declare-block
const ModelNameLength = 10

// Sizes of the repeated records in the block messages
const (
	inputRecordLength         = 6
	outputRecordLength        = 5
	defaultOutputRecordLength = 5
)

var messageTypeNames = map[uint8]string{
	MessageTypePing:                "ping",
	MessageTypePong:                "pong",
	MessageTypeSync:                "sync",
	MessageTypeDeclareBlock:        "declare-block",
	MessageTypeBlockInputs:         "block-inputs",
	MessageTypeBlockOutputs:        "block-outputs",
	MessageTypeBlockDefaultOutputs: "block-default-outputs",
}

// MessageTypeName returns the name of a message type, or "unknown"
func MessageTypeName(msgType uint8) string {
	if name, ok := messageTypeNames[msgType]; ok {
		return name
	}
	return "unknown"
}

// Message is a decoded protocol message
type Message interface {
	Type() uint8
	encode(w *framing.Writer)
}

type MessageBase struct {
	MessageType uint8
}

func (m *MessageBase) Type() uint8 {
	return m.MessageType
}

// NewMsgFromPayload decodes the payload of a message of the given type. It returns
// nil and no error for an unknown type
func NewMsgFromPayload(msgType uint8, payload []byte) (Message, error) {
	r := framing.NewReader(payload)
	var ret Message
	switch msgType {
	case MessageTypePing:
		ret = NewMsgPing()
	case MessageTypePong:
		ret = NewMsgPong()
	case MessageTypeSync:
		ret = NewMsgSync()
	case MessageTypeDeclareBlock:
		ret = decodeDeclareBlock(r)
	case MessageTypeBlockInputs:
		ret = decodeBlockInputs(r)
	case MessageTypeBlockOutputs:
		ret = decodeBlockOutputs(r)
	case MessageTypeBlockDefaultOutputs:
		ret = decodeBlockDefaultOutputs(r)
	default:
		return nil, nil
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return ret, nil
}

type MsgPing struct {
	MessageBase
}

func NewMsgPing() *MsgPing {
	return &MsgPing{
		MessageBase: MessageBase{
			MessageType: MessageTypePing,
		},
	}
}

func (m *MsgPing) encode(w *framing.Writer) {}

type MsgPong struct {
	MessageBase
}

func NewMsgPong() *MsgPong {
	return &MsgPong{
		MessageBase: MessageBase{
			MessageType: MessageTypePong,
		},
	}
}

func (m *MsgPong) encode(w *framing.Writer) {}

// MsgSync is sent by the server when a remote unit connects. The unit answers by
// declaring its blocks
type MsgSync struct {
	MessageBase
}

func NewMsgSync() *MsgSync {
	return &MsgSync{
		MessageBase: MessageBase{
			MessageType: MessageTypeSync,
		},
	}
}

func (m *MsgSync) encode(w *framing.Writer) {}

type MsgDeclareBlock struct {
	MessageBase
	LocalId        uint16
	RemoteInstance uint16
	Model          string
	InputCount     uint8
	OutputCount    uint8
}

func NewMsgDeclareBlock(localId uint16, remoteInstance uint16, model string, inputCount uint8, outputCount uint8) *MsgDeclareBlock {
	return &MsgDeclareBlock{
		MessageBase: MessageBase{
			MessageType: MessageTypeDeclareBlock,
		},
		LocalId:        localId,
		RemoteInstance: remoteInstance,
		Model:          model,
		InputCount:     inputCount,
		OutputCount:    outputCount,
	}
}

func decodeDeclareBlock(r *framing.Reader) *MsgDeclareBlock {
	return NewMsgDeclareBlock(
		r.ReadUint16(),
		r.ReadUint16(),
		r.ReadFixedString(ModelNameLength),
		r.ReadUint8(),
		r.ReadUint8(),
	)
}

func (m *MsgDeclareBlock) encode(w *framing.Writer) {
	w.WriteUint16(m.LocalId)
	w.WriteUint16(m.RemoteInstance)
	w.WriteFixedString(m.Model, ModelNameLength)
	w.WriteUint8(m.InputCount)
	w.WriteUint8(m.OutputCount)
}

// InputValue is one input record of block-inputs
type InputValue struct {
	Value     float32
	Unit      uint8
	Connected bool
}

type MsgBlockInputs struct {
	MessageBase
	LocalId        uint16
	RemoteInstance uint16
	Inputs         []InputValue
}

func NewMsgBlockInputs(localId uint16, remoteInstance uint16, inputs []InputValue) *MsgBlockInputs {
	return &MsgBlockInputs{
		MessageBase: MessageBase{
			MessageType: MessageTypeBlockInputs,
		},
		LocalId:        localId,
		RemoteInstance: remoteInstance,
		Inputs:         inputs,
	}
}

// Trailing bytes too short for a full record are ignored
func decodeBlockInputs(r *framing.Reader) *MsgBlockInputs {
	m := NewMsgBlockInputs(r.ReadUint16(), r.ReadUint16(), nil)
	for r.Readable(inputRecordLength) {
		m.Inputs = append(m.Inputs, InputValue{
			Value:     r.ReadFloat32(),
			Unit:      r.ReadUint8(),
			Connected: r.ReadBool(),
		})
	}
	return m
}

func (m *MsgBlockInputs) encode(w *framing.Writer) {
	w.WriteUint16(m.LocalId)
	w.WriteUint16(m.RemoteInstance)
	for _, input := range m.Inputs {
		w.WriteFloat32(input.Value)
		w.WriteUint8(input.Unit)
		w.WriteBool(input.Connected)
	}
}

// OutputValue is one output record of block-outputs
type OutputValue struct {
	Value float32
	Unit  uint8
}

type MsgBlockOutputs struct {
	MessageBase
	LocalId            uint16
	RemoteInstance     uint16
	IsError            bool
	DefaultOutputIndex uint8
	Outputs            []OutputValue
}

func NewMsgBlockOutputs(localId uint16, remoteInstance uint16, isError bool, defaultOutputIndex uint8, outputs []OutputValue) *MsgBlockOutputs {
	return &MsgBlockOutputs{
		MessageBase: MessageBase{
			MessageType: MessageTypeBlockOutputs,
		},
		LocalId:            localId,
		RemoteInstance:     remoteInstance,
		IsError:            isError,
		DefaultOutputIndex: defaultOutputIndex,
		Outputs:            outputs,
	}
}

func decodeBlockOutputs(r *framing.Reader) *MsgBlockOutputs {
	m := NewMsgBlockOutputs(r.ReadUint16(), r.ReadUint16(), r.ReadBool(), r.ReadUint8(), nil)
	for r.Readable(outputRecordLength) {
		m.Outputs = append(m.Outputs, OutputValue{
			Value: r.ReadFloat32(),
			Unit:  r.ReadUint8(),
		})
	}
	return m
}

func (m *MsgBlockOutputs) encode(w *framing.Writer) {
	w.WriteUint16(m.LocalId)
	w.WriteUint16(m.RemoteInstance)
	w.WriteBool(m.IsError)
	w.WriteUint8(m.DefaultOutputIndex)
	for _, output := range m.Outputs {
		w.WriteFloat32(output.Value)
		w.WriteUint8(output.Unit)
	}
}

// DefaultOutputValue is one record of block-default-outputs
type DefaultOutputValue struct {
	HasDefault bool
	Value      float32
}

type MsgBlockDefaultOutputs struct {
	MessageBase
	LocalId        uint16
	RemoteInstance uint16
	Defaults       []DefaultOutputValue
}

func NewMsgBlockDefaultOutputs(localId uint16, remoteInstance uint16, defaults []DefaultOutputValue) *MsgBlockDefaultOutputs {
	return &MsgBlockDefaultOutputs{
		MessageBase: MessageBase{
			MessageType: MessageTypeBlockDefaultOutputs,
		},
		LocalId:        localId,
		RemoteInstance: remoteInstance,
		Defaults:       defaults,
	}
}

func decodeBlockDefaultOutputs(r *framing.Reader) *MsgBlockDefaultOutputs {
	m := NewMsgBlockDefaultOutputs(r.ReadUint16(), r.ReadUint16(), nil)
	for r.Readable(defaultOutputRecordLength) {
		m.Defaults = append(m.Defaults, DefaultOutputValue{
			HasDefault: r.ReadBool(),
			Value:      r.ReadFloat32(),
		})
	}
	return m
}

func (m *MsgBlockDefaultOutputs) encode(w *framing.Writer) {
	w.WriteUint16(m.LocalId)
	w.WriteUint16(m.RemoteInstance)
	for _, d := range m.Defaults {
		w.WriteBool(d.HasDefault)
		w.WriteFloat32(d.Value)
	}
}
