// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"io"
	"math/bits"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ishidawataru/sctp"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/pcap"
	"github.com/omec-project/gnb/util"
	"github.com/pkg/errors"
)

const (
	maxBufMsgLen   = 65535
	dialRetries    = 3
	dialRetryDelay = time.Second
)

// Config describes one SCTP endpoint.
type Config struct {
	Name      string
	Addresses []string
	Port      int
	Streams   uint16
	Pcap      *pcap.Writer
}

// ResolveAddr builds a multi-homed SCTP address.
func ResolveAddr(addresses []string, port int) (*sctp.SCTPAddr, error) {
	if len(addresses) == 0 {
		return &sctp.SCTPAddr{Port: port}, nil
	}
	return sctp.ResolveSCTPAddr("sctp", strings.Join(addresses, "/")+":"+strconv.Itoa(port))
}

func initMsg(streams uint16) sctp.InitMsg {
	return sctp.InitMsg{NumOstreams: streams, MaxInstreams: streams}
}

// association sends the PDUs of one SCTP connection.
type association[T any] struct {
	name  string
	conn  *sctp.SCTPConn
	codec Codec[T]
	pcap  *pcap.Writer
	mu    sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ io.Closer = (*association[int])(nil)

func newAssociation[T any](name string, conn *sctp.SCTPConn, codec Codec[T], w *pcap.Writer) (*association[T], error) {
	info, err := conn.GetDefaultSentParam()
	if err != nil {
		return nil, errors.Wrap(err, "GetDefaultSentParam")
	}
	// the kernel expects the PPID in network byte order
	info.PPID = bits.ReverseBytes32(codec.PPID())
	if err = conn.SetDefaultSentParam(info); err != nil {
		return nil, errors.Wrap(err, "SetDefaultSentParam")
	}
	if err = conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO); err != nil {
		return nil, errors.Wrap(err, "SubscribeEvents")
	}
	return &association[T]{name: name, conn: conn, codec: codec, pcap: w}, nil
}

func (a *association[T]) OnNewMessage(pdu T) {
	b, err := a.codec.Encode(pdu)
	if err != nil {
		logger.SctpLog.Errorf("%s: encode PDU failed: %+v", a.name, err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.conn.Write(b)
	if err != nil {
		logger.SctpLog.Errorf("%s: write to SCTP socket failed: %+v", a.name, err)
		return
	}
	logger.SctpLog.Debugf("%s: wrote %d bytes", a.name, n)
	a.pcap.PushSctp(b, a.codec.PPID(), a.conn.LocalAddr(), a.conn.RemoteAddr())
}

// Close shuts the association down. The peer sees the connection loss and
// so does the local receiver once its pending read returns.
func (a *association[T]) Close() error {
	a.closeOnce.Do(func() {
		if a.conn == nil {
			return
		}
		if err := a.conn.Close(); err != nil {
			a.closeErr = errors.Wrapf(err, "%s: close", a.name)
		}
	})
	return a.closeErr
}

func (a *association[T]) close() {
	if err := a.Close(); err != nil {
		logger.SctpLog.Debugf("%+v", err)
	}
}

// serve reads PDUs until the association ends and then reports the loss.
func (a *association[T]) serve(rx RxNotifier[T]) {
	defer util.RecoverWithLog(logger.SctpLog)
	defer rx.OnConnectionLoss()

	data := make([]byte, maxBufMsgLen)
	for {
		n, info, err := a.conn.SCTPRead(data)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				logger.SctpLog.Warnf("%s: peer %s closed the connection", a.name, a.conn.RemoteAddr())
			} else {
				logger.SctpLog.Errorf("%s: read from SCTP connection failed: %+v", a.name, err)
			}
			a.close()
			return
		}
		logger.SctpLog.Debugf("%s: read %d bytes", a.name, n)

		if info == nil || bits.ReverseBytes32(info.PPID) != a.codec.PPID() {
			logger.SctpLog.Warnf("%s: received SCTP PPID != %d", a.name, a.codec.PPID())
			continue
		}
		a.pcap.PushSctp(data[:n], a.codec.PPID(), a.conn.RemoteAddr(), a.conn.LocalAddr())

		pdu, err := a.codec.Decode(data[:n])
		if err != nil {
			logger.SctpLog.Errorf("%s: decode error: %+v", a.name, err)
			continue
		}
		rx.OnNewMessage(pdu)
	}
}

// Server accepts SCTP associations and hands them to a ConnectionHandler.
type Server[T any] struct {
	cfg      Config
	codec    Codec[T]
	handler  ConnectionHandler[T]
	listener *sctp.SCTPListener
	mu       sync.Mutex
	conns    map[*association[T]]struct{}
	wg       sync.WaitGroup
}

func NewServer[T any](cfg Config, codec Codec[T], handler ConnectionHandler[T]) *Server[T] {
	return &Server[T]{
		cfg:     cfg,
		codec:   codec,
		handler: handler,
		conns:   make(map[*association[T]]struct{}),
	}
}

// Listen binds the server socket.
func (s *Server[T]) Listen() error {
	addr, err := ResolveAddr(s.cfg.Addresses, s.cfg.Port)
	if err != nil {
		return errors.Wrapf(err, "%s: resolve bind address", s.cfg.Name)
	}
	s.listener, err = sctp.ListenSCTPExt("sctp", addr, initMsg(s.cfg.Streams))
	if err != nil {
		return errors.Wrapf(err, "%s: listen on %s", s.cfg.Name, addr)
	}
	logger.SctpLog.Infof("%s: listening on %s", s.cfg.Name, s.listener.Addr())
	return nil
}

// Addr returns the bound address, including the port picked by the
// kernel when the configured port was zero.
func (s *Server[T]) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts associations until ctx ends or the listener is closed.
func (s *Server[T]) Serve(ctx context.Context) error {
	defer util.RecoverWithLog(logger.SctpLog)

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.AcceptSCTP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "%s: accept", s.cfg.Name)
		}
		assoc, err := newAssociation(s.cfg.Name, conn, s.codec, s.cfg.Pcap)
		if err != nil {
			logger.SctpLog.Errorf("%s: setup association: %+v", s.cfg.Name, err)
			conn.Close()
			continue
		}
		rx := s.handler.HandleNewConnection(assoc)
		if rx == nil {
			logger.SctpLog.Warnf("%s: connection from %s refused", s.cfg.Name, conn.RemoteAddr())
			assoc.close()
			continue
		}
		logger.SctpLog.Infof("%s: accepted connection from %s", s.cfg.Name, conn.RemoteAddr())

		s.mu.Lock()
		s.conns[assoc] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			assoc.serve(rx)
			s.mu.Lock()
			delete(s.conns, assoc)
			s.mu.Unlock()
		}()
	}
}

// Close stops accepting and shuts every open association down.
func (s *Server[T]) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for assoc := range s.conns {
		assoc.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// Client dials an SCTP peer.
type Client[T any] struct {
	local  Config
	remote Config
	codec  Codec[T]
	mu     sync.Mutex
	assocs []*association[T]
}

func NewClient[T any](local, remote Config, codec Codec[T]) *Client[T] {
	return &Client[T]{local: local, remote: remote, codec: codec}
}

// Connect dials the peer, retrying a few times, and starts the receiver.
func (c *Client[T]) Connect(rx RxNotifier[T]) (MessageNotifier[T], error) {
	var localAddr *sctp.SCTPAddr
	if len(c.local.Addresses) > 0 || c.local.Port != 0 {
		var err error
		if localAddr, err = ResolveAddr(c.local.Addresses, c.local.Port); err != nil {
			return nil, errors.Wrapf(err, "%s: resolve local address", c.remote.Name)
		}
	}
	remoteAddr, err := ResolveAddr(c.remote.Addresses, c.remote.Port)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: resolve remote address", c.remote.Name)
	}

	var conn *sctp.SCTPConn
	for i := range dialRetries {
		conn, err = sctp.DialSCTPExt("sctp", localAddr, remoteAddr, initMsg(c.remote.Streams))
		if err == nil {
			break
		}
		logger.SctpLog.Errorf("%s: dial SCTP: %+v", c.remote.Name, err)
		if i == dialRetries-1 {
			return nil, errors.Wrapf(err, "%s: connect to %s", c.remote.Name, remoteAddr)
		}
		logger.SctpLog.Infof("%s: retry to connect after %v", c.remote.Name, dialRetryDelay)
		time.Sleep(dialRetryDelay)
	}

	assoc, err := newAssociation(c.remote.Name, conn, c.codec, c.remote.Pcap)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, c.remote.Name)
	}
	c.mu.Lock()
	c.assocs = append(c.assocs, assoc)
	c.mu.Unlock()

	logger.SctpLog.Infof("%s: connected to %s", c.remote.Name, conn.RemoteAddr())
	go assoc.serve(rx)
	return assoc, nil
}

// Close shuts every association opened by the client down.
func (c *Client[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, assoc := range c.assocs {
		assoc.close()
	}
	c.assocs = nil
}
