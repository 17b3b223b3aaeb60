// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ishidawataru/sctp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringCodec struct{}

func (stringCodec) Encode(pdu string) ([]byte, error) { return []byte(pdu), nil }
func (stringCodec) Decode(b []byte) (string, error)   { return string(b), nil }
func (stringCodec) PPID() uint32                      { return 62 }

type recorder struct {
	mu   sync.Mutex
	msgs []string
	rx   chan string
	lost chan struct{}
}

func newRecorder() *recorder {
	return &recorder{rx: make(chan string, 16), lost: make(chan struct{})}
}

func (r *recorder) OnNewMessage(pdu string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, pdu)
	r.mu.Unlock()
	r.rx <- pdu
}

func (r *recorder) OnConnectionLoss() { close(r.lost) }

// echoHandler answers every message with the same message and refuses
// connections beyond limit.
type echoHandler struct {
	mu    sync.Mutex
	limit int
	conns int
	lost  chan struct{}
}

type echoSession struct {
	h  *echoHandler
	tx MessageNotifier[string]
}

func (s *echoSession) OnNewMessage(pdu string) { s.tx.OnNewMessage("echo " + pdu) }

func (s *echoSession) OnConnectionLoss() {
	s.h.mu.Lock()
	s.h.conns--
	s.h.mu.Unlock()
	s.h.lost <- struct{}{}
}

func (h *echoHandler) HandleNewConnection(tx MessageNotifier[string]) RxNotifier[string] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns >= h.limit {
		return nil
	}
	h.conns++
	return &echoSession{h: h, tx: tx}
}

func TestLocalConnectorRoundTrip(t *testing.T) {
	h := &echoHandler{limit: 1, lost: make(chan struct{}, 4)}
	c := NewLocalConnector[string](h)

	rx := newRecorder()
	tx, err := c.Connect(rx)
	require.NoError(t, err)
	tx.OnNewMessage("hello")
	assert.Equal(t, []string{"echo hello"}, rx.msgs)

	_, err = c.Connect(newRecorder())
	assert.Equal(t, ErrConnectionRefused, errors.Cause(err))

	require.NoError(t, tx.(interface{ Close() error }).Close())
	<-h.lost
	tx.OnNewMessage("dropped")
	assert.Len(t, rx.msgs, 1)

	_, err = c.Connect(newRecorder())
	assert.NoError(t, err)
}

func TestSctpServerAndClient(t *testing.T) {
	h := &echoHandler{limit: 1, lost: make(chan struct{}, 4)}
	srv := NewServer[string](Config{Name: "test", Addresses: []string{"127.0.0.1"}}, stringCodec{}, h)
	if err := srv.Listen(); err != nil {
		t.Skipf("SCTP not available: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	addr, ok := srv.Addr().(*sctp.SCTPAddr)
	require.True(t, ok)

	client := NewClient[string](Config{}, Config{Name: "test-client", Addresses: []string{"127.0.0.1"}, Port: addr.Port}, stringCodec{})
	defer client.Close()

	rx := newRecorder()
	tx, err := client.Connect(rx)
	require.NoError(t, err)
	tx.OnNewMessage("ping")
	select {
	case got := <-rx.rx:
		assert.Equal(t, "echo ping", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no answer from server")
	}

	// the second association is accepted and then closed by the server
	refused := newRecorder()
	_, err = client.Connect(refused)
	require.NoError(t, err)
	select {
	case <-refused.lost:
	case <-time.After(2 * time.Second):
		t.Fatal("refused association was not closed")
	}
}

func TestClosingSctpAssociationFreesServerSlot(t *testing.T) {
	h := &echoHandler{limit: 1, lost: make(chan struct{}, 4)}
	srv := NewServer[string](Config{Name: "test", Addresses: []string{"127.0.0.1"}}, stringCodec{}, h)
	if err := srv.Listen(); err != nil {
		t.Skipf("SCTP not available: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	addr, ok := srv.Addr().(*sctp.SCTPAddr)
	require.True(t, ok)
	client := NewClient[string](Config{}, Config{Name: "test-client", Addresses: []string{"127.0.0.1"}, Port: addr.Port}, stringCodec{})
	defer client.Close()

	rx := newRecorder()
	tx, err := client.Connect(rx)
	require.NoError(t, err)
	closer, ok := tx.(io.Closer)
	require.True(t, ok, "SCTP associations are closable")
	require.NoError(t, closer.Close())
	assert.NoError(t, closer.Close())

	for name, ch := range map[string]<-chan struct{}{"server": h.lost, "client": rx.lost} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not see the connection loss", name)
		}
	}

	again := newRecorder()
	tx, err = client.Connect(again)
	require.NoError(t, err)
	tx.OnNewMessage("ping")
	select {
	case got := <-again.rx:
		assert.Equal(t, "echo ping", got)
	case <-time.After(2 * time.Second):
		t.Fatal("slot of the closed association was not freed")
	}
}
