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
	"errors"
	"fmt"
)

// Protocol violation errors cause connection termination
var (
	ErrRemoteInstanceMismatch = errors.New(
		"protocol violation: remote instance mismatch",
	)
	ErrInvalidMessage = errors.New(
		"protocol violation: invalid message received",
	)
)

// ProtocolError wraps any error caused by the remote end not following the protocol.
// A connection that produces one must be closed
type ProtocolError struct {
	MessageType uint8
	Err         error
}

func NewProtocolError(msgType uint8, err error) *ProtocolError {
	return &ProtocolError{
		MessageType: msgType,
		Err:         err,
	}
}

func (e *ProtocolError) Error() string {
	if e.MessageType == 0 {
		return fmt.Sprintf("%s: %s", ProtocolName, e.Err)
	}
	return fmt.Sprintf(
		"%s: %s: %s",
		ProtocolName,
		MessageTypeName(e.MessageType),
		e.Err,
	)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is, or wraps, a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
