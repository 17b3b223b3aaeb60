// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package gateway carries signalling PDUs between the CU-CP and its peers.
// The SCTP server and client frame PDUs with a protocol codec; the local
// connector links two in-process endpoints without a socket.
package gateway

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrConnectionRefused = errors.New("connection refused by peer")

// Codec converts the PDUs of one protocol to SCTP payloads.
type Codec[T any] interface {
	Encode(pdu T) ([]byte, error)
	Decode(b []byte) (T, error)
	// PPID returns the payload protocol identifier in host byte order.
	PPID() uint32
}

// MessageNotifier receives the PDUs of one direction of an association.
type MessageNotifier[T any] interface {
	OnNewMessage(pdu T)
}

// RxNotifier receives the PDUs sent by the peer and the loss of the
// association. No message is delivered after OnConnectionLoss.
type RxNotifier[T any] interface {
	MessageNotifier[T]
	OnConnectionLoss()
}

// ConnectionHandler admits new associations on a server. Returning nil
// refuses the association, which is then closed.
type ConnectionHandler[T any] interface {
	HandleNewConnection(tx MessageNotifier[T]) RxNotifier[T]
}

// Connector opens client associations. The returned notifier sends PDUs to
// the peer.
type Connector[T any] interface {
	Connect(rx RxNotifier[T]) (MessageNotifier[T], error)
}

// LocalConnector connects client endpoints directly to a connection
// handler living in the same process.
type LocalConnector[T any] struct {
	handler ConnectionHandler[T]
}

func NewLocalConnector[T any](handler ConnectionHandler[T]) *LocalConnector[T] {
	return &LocalConnector[T]{handler: handler}
}

func (c *LocalConnector[T]) Connect(rx RxNotifier[T]) (MessageNotifier[T], error) {
	client := &localEndpoint[T]{peer: rx}
	serverRx := c.handler.HandleNewConnection(client)
	if serverRx == nil {
		return nil, ErrConnectionRefused
	}
	return &localClient[T]{localEndpoint: localEndpoint[T]{peer: serverRx}, reverse: client}, nil
}

type localEndpoint[T any] struct {
	mu     sync.Mutex
	peer   RxNotifier[T]
	closed bool
}

func (e *localEndpoint[T]) OnNewMessage(pdu T) {
	e.mu.Lock()
	peer, closed := e.peer, e.closed
	e.mu.Unlock()
	if !closed {
		peer.OnNewMessage(pdu)
	}
}

// disconnect stops the delivery and signals the loss to the peer once.
func (e *localEndpoint[T]) disconnect() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	peer := e.peer
	e.mu.Unlock()
	peer.OnConnectionLoss()
}

type localClient[T any] struct {
	localEndpoint[T]
	reverse *localEndpoint[T]
}

// Close tears the association down from the client side. The server is
// notified of the loss and stops sending to the client.
func (c *localClient[T]) Close() error {
	c.reverse.mu.Lock()
	c.reverse.closed = true
	c.reverse.mu.Unlock()
	c.disconnect()
	return nil
}
