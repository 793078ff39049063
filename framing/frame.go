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

// Package framing implements the length-prefixed, checksummed frame format used to
// carry remote block messages over a byte stream.
//
// A frame consists of a start byte, a category byte, a subtype byte, a big-endian
// payload length, the payload itself and a CRC-16 trailer computed over everything
// between the start byte and the trailer.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// StartByte marks the beginning of every frame
	StartByte byte = 0xA5

	// HeaderLength is the number of bytes preceding the payload
	HeaderLength = 5
	// TrailerLength is the size of the checksum following the payload
	TrailerLength = 2

	// MaxPayloadLength is the largest payload accepted by the decoder
	MaxPayloadLength = 1024
)

var (
	ErrBadStartByte    = errors.New("framing: bad start byte")
	ErrPayloadTooLarge = errors.New("framing: payload too large")
	ErrChecksum        = errors.New("framing: checksum mismatch")
)

// FrameHeader describes the routing fields of a frame
type FrameHeader struct {
	Category      uint8
	Subtype       uint8
	PayloadLength uint16
}

// Frame is a single decoded frame
type Frame struct {
	FrameHeader
	Payload []byte
}

// NewFrame returns a frame for the given category and subtype carrying payload
func NewFrame(category uint8, subtype uint8, payload []byte) *Frame {
	return &Frame{
		FrameHeader: FrameHeader{
			Category:      category,
			Subtype:       subtype,
			PayloadLength: uint16(len(payload)), // #nosec G115
		},
		Payload: payload,
	}
}

// Bytes returns the wire encoding of the frame
func (f *Frame) Bytes() ([]byte, error) {
	if len(f.Payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, 0, HeaderLength+len(f.Payload)+TrailerLength)
	buf = append(buf, StartByte, f.Category, f.Subtype)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Payload))) // #nosec G115
	buf = append(buf, f.Payload...)
	crc := Checksum(buf[1:])
	buf = binary.LittleEndian.AppendUint16(buf, crc)
	return buf, nil
}

// Checksum computes the CRC-16/MODBUS value of data
func Checksum(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if (crc & 0x0001) != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
