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

// Package mockunit provides a net.Conn whose far end plays a scripted remote unit
package mockunit

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"time"

	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/blinklabs-io/remoteblock/unit"
)

// DefaultInputTimeout bounds the wait for each expected message
const DefaultInputTimeout = 5 * time.Second

// Connection mocks a remote unit connection. The embedded net.Conn is the server side
type Connection struct {
	net.Conn
	mockConn     net.Conn
	client       *unit.Client
	conversation []ConversationEntry
	doneChan     chan error
}

// NewConnection returns a new Connection that plays the provided conversation entries
func NewConnection(conversation []ConversationEntry) *Connection {
	c := &Connection{
		conversation: conversation,
		doneChan:     make(chan error, 1),
	}
	c.Conn, c.mockConn = net.Pipe()
	client, err := unit.NewClient(
		unit.WithConnection(c.mockConn),
		unit.WithWriteTimeout(DefaultInputTimeout),
	)
	if err != nil {
		panic(fmt.Sprintf("mock client: %s", err))
	}
	c.client = client
	// Start async conversation handler
	go c.asyncLoop()
	return c
}

// Client returns the unit side client, for steps beyond the scripted conversation
func (c *Connection) Client() *unit.Client {
	return c.client
}

// Close closes both sides of the connection
func (c *Connection) Close() error {
	err := c.Conn.Close()
	if clientErr := c.client.Close(); err == nil {
		err = clientErr
	}
	return err
}

// Wait returns the result of the conversation once every entry has been processed
func (c *Connection) Wait(timeout time.Duration) error {
	select {
	case err := <-c.doneChan:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("conversation did not finish within %s", timeout)
	}
}

func (c *Connection) asyncLoop() {
	for _, entry := range c.conversation {
		var err error
		switch entry.Type {
		case EntryTypeInput:
			err = c.processInputEntry(entry)
		case EntryTypeOutput:
			err = c.client.Send(entry.OutputMessages...)
		case EntryTypeClose:
			err = c.client.Close()
		default:
			err = fmt.Errorf("unknown conversation entry type: %d: %#v", entry.Type, entry)
		}
		if err != nil {
			c.doneChan <- err
			return
		}
	}
	c.doneChan <- nil
}

func (c *Connection) processInputEntry(entry ConversationEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultInputTimeout)
	defer cancel()
	msg, err := c.client.Receive(ctx)
	if err != nil {
		return fmt.Errorf("waiting for input message: %w", err)
	}
	if entry.InputMessage != nil {
		if !reflect.DeepEqual(msg, entry.InputMessage) {
			return fmt.Errorf(
				"parsed message does not match expected value: got %#v, expected %#v",
				msg,
				entry.InputMessage,
			)
		}
		return nil
	}
	if msg.Type() != entry.InputMessageType {
		return fmt.Errorf(
			"input message is not of expected type: expected %s, got %s",
			protocol.MessageTypeName(entry.InputMessageType),
			protocol.MessageTypeName(msg.Type()),
		)
	}
	return nil
}
