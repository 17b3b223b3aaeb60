// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/pcap"
	"github.com/omec-project/gnb/util"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	maxDatagramSize = 9000
	rcvBufSize      = 4 << 20
	autoValue       = "auto"
)

// DatagramHandler consumes received datagrams. The buffer is reused after the
// call returns.
type DatagramHandler interface {
	HandleDatagram(b []byte, src net.Addr)
}

// UdpGateway is one GTP-U UDP endpoint (N3 or F1-U).
type UdpGateway struct {
	name    string
	cfg     factory.NetworkInterfaceConfig
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	extAddr string
	handler DatagramHandler
	pcap    *pcap.Writer
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func setSockOpts(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufSize); err != nil {
				logger.GtpuLog.Warnf("set SO_RCVBUF: %+v", err)
			}
			if iface != "" && iface != autoValue {
				if err := unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface); err != nil {
					logger.GtpuLog.Warnf("bind to device %s: %+v", iface, err)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// interfaceAddress returns the first IPv4 address of the named link.
func interfaceAddress(name string) (string, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return "", errors.Wrapf(err, "find interface %s", name)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return "", errors.Wrapf(err, "list addresses of %s", name)
	}
	if len(addrs) == 0 {
		return "", errors.Errorf("interface %s has no IPv4 address", name)
	}
	return addrs[0].IP.String(), nil
}

// resolveExtAddress picks the address advertised to peers for this endpoint.
func resolveExtAddress(cfg factory.NetworkInterfaceConfig, bound *net.UDPAddr) string {
	if cfg.ExtAddress != "" && cfg.ExtAddress != autoValue {
		return cfg.ExtAddress
	}
	if cfg.BindInterface != "" && cfg.BindInterface != autoValue {
		addr, err := interfaceAddress(cfg.BindInterface)
		if err == nil {
			return addr
		}
		logger.GtpuLog.Warnf("resolve external address: %+v", err)
	}
	return bound.IP.String()
}

// NewUdpGateway binds the socket described by cfg. Datagrams are handed to h
// once ListenAndServe runs.
func NewUdpGateway(name string, cfg factory.NetworkInterfaceConfig, h DatagramHandler, capture *pcap.Writer) (*UdpGateway, error) {
	lc := net.ListenConfig{Control: setSockOpts(cfg.BindInterface)}
	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.BindPort))
	pconn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		logger.GtpuLog.Errorf("listen on %s failed: %+v", addr, err)
		return nil, errors.Wrapf(err, "%s bind %s", name, addr)
	}
	conn := pconn.(*net.UDPConn)
	g := &UdpGateway{
		name:    name,
		cfg:     cfg,
		conn:    conn,
		pc:      ipv4.NewPacketConn(conn),
		handler: h,
		pcap:    capture,
	}
	g.extAddr = resolveExtAddress(cfg, g.LocalAddr())
	logger.GtpuLog.Infof("%s GTP-U gateway bound to %s, external address %s", name, conn.LocalAddr(), g.extAddr)
	return g, nil
}

func (g *UdpGateway) LocalAddr() *net.UDPAddr {
	return g.conn.LocalAddr().(*net.UDPAddr)
}

// BindPort returns the port the socket is bound to.
func (g *UdpGateway) BindPort() int {
	return g.LocalAddr().Port
}

// ExtAddress returns the address peers must send to.
func (g *UdpGateway) ExtAddress() string {
	return g.extAddr
}

// ListenAndServe starts the receive loop.
func (g *UdpGateway) ListenAndServe(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.receive(ctx)
}

func (g *UdpGateway) receive(ctx context.Context) {
	defer g.wg.Done()
	defer util.RecoverWithLog(logger.GtpuLog)

	n := g.cfg.RxMaxMmsg
	if n < 1 {
		n = 1
	}
	msgs := make([]ipv4.Message, n)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxDatagramSize)}
	}

	for {
		nofMsgs, err := g.pc.ReadBatch(msgs, 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.GtpuLog.Errorf("%s read batch: %+v", g.name, err)
			continue
		}
		logger.GtpuLog.Debugf("%s read %d datagrams", g.name, nofMsgs)
		for i := 0; i < nofMsgs; i++ {
			b := msgs[i].Buffers[0][:msgs[i].N]
			if g.pcap.Enabled() {
				g.pcap.PushUdp(append([]byte(nil), b...), msgs[i].Addr, g.LocalAddr())
			}
			g.handler.HandleDatagram(b, msgs[i].Addr)
		}
	}
}

// Send writes one datagram to dst.
func (g *UdpGateway) Send(b []byte, dst net.Addr) error {
	if g.pcap.Enabled() {
		g.pcap.PushUdp(append([]byte(nil), b...), g.LocalAddr(), dst)
	}
	if _, err := g.conn.WriteTo(b, dst); err != nil {
		return errors.Wrapf(err, "%s send to %v", g.name, dst)
	}
	return nil
}

// Close stops the receive loop and releases the socket.
func (g *UdpGateway) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	err := g.conn.Close()
	g.wg.Wait()
	return err
}
