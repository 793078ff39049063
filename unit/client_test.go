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

package unit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/remoteblock/protocol"
	"github.com/blinklabs-io/remoteblock/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// serverPeer decodes everything written by the client on the other end of a pipe
type serverPeer struct {
	conn    net.Conn
	msgChan chan protocol.Message
}

func newServerPeer(conn net.Conn) *serverPeer {
	p := &serverPeer{
		conn:    conn,
		msgChan: make(chan protocol.Message, 16),
	}
	codec := protocol.NewCodec(
		protocol.NewConfig(
			protocol.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			protocol.WithMessageFunc(func(msg protocol.Message) error {
				p.msgChan <- msg
				return nil
			}),
		),
	)
	go func() {
		defer close(p.msgChan)
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if err := codec.Feed(buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

func (p *serverPeer) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	_, err = p.conn.Write(data)
	require.NoError(t, err)
}

func (p *serverPeer) receive(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-p.msgChan:
		require.True(t, ok, "peer connection closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func newTestClient(t *testing.T, options ...unit.ClientOptionFunc) (*unit.Client, *serverPeer) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })
	options = append(
		[]unit.ClientOptionFunc{
			unit.WithConnection(clientConn),
			unit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		},
		options...,
	)
	client, err := unit.NewClient(options...)
	require.NoError(t, err)
	return client, newServerPeer(serverConn)
}

func TestClientRequiresConnection(t *testing.T) {
	_, err := unit.NewClient()
	assert.Error(t, err)
}

func TestClientSendsMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, peer := newTestClient(t)
	defer client.Close()
	require.NoError(t, client.Declare(5, 9, "sum", 2, 1))
	inputs := []protocol.InputValue{
		{Value: 1, Unit: 2, Connected: true},
		{},
	}
	require.NoError(t, client.SendInputs(5, 9, inputs))
	assert.Equal(t, protocol.NewMsgDeclareBlock(5, 9, "sum", 2, 1), peer.receive(t))
	assert.Equal(t, protocol.NewMsgBlockInputs(5, 9, inputs), peer.receive(t))
}

func TestClientAutoPong(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, peer := newTestClient(t)
	defer client.Close()
	peer.send(t, protocol.NewMsgPing())
	assert.Equal(t, protocol.MessageTypePong, peer.receive(t).Type())
	// The ping is still delivered to the reader
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypePing, msg.Type())
}

func TestClientWaitFor(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, peer := newTestClient(t, unit.WithAutoPong(false))
	defer client.Close()
	go func() {
		for _, msg := range []protocol.Message{
			protocol.NewMsgPing(),
			protocol.NewMsgSync(),
			protocol.NewMsgBlockOutputs(1, 2, false, 0xFF, []protocol.OutputValue{{Value: 4, Unit: 1}}),
		} {
			data, _ := protocol.Encode(msg)
			if _, err := peer.conn.Write(data); err != nil {
				return
			}
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := client.WaitFor(ctx, protocol.MessageTypeBlockOutputs)
	require.NoError(t, err)
	outputs := msg.(*protocol.MsgBlockOutputs)
	assert.Equal(t, uint16(2), outputs.RemoteInstance)
	assert.Equal(t, []protocol.OutputValue{{Value: 4, Unit: 1}}, outputs.Outputs)
}

func TestClientRemoteClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, peer := newTestClient(t)
	defer client.Close()
	require.NoError(t, peer.conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Receive(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestClientClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _ := newTestClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send(protocol.NewMsgPing()), unit.ErrClientClosed)
	_, ok := <-client.Messages()
	assert.False(t, ok)
}
