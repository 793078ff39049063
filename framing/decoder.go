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

package framing

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FrameHandlerFunc is called for every complete frame produced by a Decoder
type FrameHandlerFunc func(*Frame) error

// Decoder reassembles frames from a byte stream that may arrive in arbitrary chunks
type Decoder struct {
	recvBuffer *bytes.Buffer
}

func NewDecoder() *Decoder {
	return &Decoder{
		recvBuffer: bytes.NewBuffer(nil),
	}
}

// Buffered returns the number of bytes waiting for the rest of their frame
func (d *Decoder) Buffered() int {
	return d.recvBuffer.Len()
}

// Reset discards any partially received frame
func (d *Decoder) Reset() {
	d.recvBuffer.Reset()
}

// Feed appends data to the receive buffer and calls handlerFunc, in order, for each
// complete frame. Decoding stops at the first framing error or handler error, which
// is returned. Bytes belonging to an incomplete frame are kept for the next call.
func (d *Decoder) Feed(data []byte, handlerFunc FrameHandlerFunc) error {
	d.recvBuffer.Write(data)
	for {
		buf := d.recvBuffer.Bytes()
		if len(buf) < HeaderLength {
			return nil
		}
		if buf[0] != StartByte {
			d.recvBuffer.Reset()
			return fmt.Errorf("%w: 0x%02x", ErrBadStartByte, buf[0])
		}
		payloadLength := int(binary.BigEndian.Uint16(buf[3:5]))
		if payloadLength > MaxPayloadLength {
			d.recvBuffer.Reset()
			return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLength)
		}
		frameLength := HeaderLength + payloadLength + TrailerLength
		if len(buf) < frameLength {
			// Wait for the rest of the frame
			return nil
		}
		expected := binary.LittleEndian.Uint16(buf[frameLength-TrailerLength : frameLength])
		if actual := Checksum(buf[1 : frameLength-TrailerLength]); actual != expected {
			d.recvBuffer.Reset()
			return fmt.Errorf("%w: got 0x%04x, expected 0x%04x", ErrChecksum, actual, expected)
		}
		// Copy the payload out, since the buffer is reused
		payload := make([]byte, payloadLength)
		copy(payload, buf[HeaderLength:HeaderLength+payloadLength])
		frame := &Frame{
			FrameHeader: FrameHeader{
				Category:      buf[1],
				Subtype:       buf[2],
				PayloadLength: uint16(payloadLength), // #nosec G115
			},
			Payload: payload,
		}
		d.recvBuffer.Next(frameLength)
		if err := handlerFunc(frame); err != nil {
			return err
		}
	}
}
