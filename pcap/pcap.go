// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package pcap writes per-interface packet captures. Signalling PDUs are
// wrapped in synthetic IPv4/SCTP headers carrying the protocol PPID and
// GTP-U datagrams in IPv4/UDP headers, so the captures open directly in
// Wireshark.
package pcap

import (
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/ishidawataru/sctp"
	"github.com/lestrrat-go/strftime"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/util"
	"github.com/pkg/errors"
)

// SCTP payload protocol identifiers [TS 38.412, 38.472, 38.462].
const (
	PpidNgap uint32 = 60
	PpidF1ap uint32 = 62
	PpidE1ap uint32 = 64
)

const (
	snapLen   = 65535
	queueSize = 1024
)

type record struct {
	ts   time.Time
	data []byte
}

// Writer is a capture file fed by a background goroutine. A nil *Writer is
// valid and discards everything.
type Writer struct {
	name    string
	file    *os.File
	w       *pcapgo.Writer
	queue   chan record
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	tsn     atomic.Uint32
	dropped atomic.Uint64
}

// Open creates the capture file. pattern may contain strftime conversions.
func Open(name, pattern string) (*Writer, error) {
	path, err := strftime.Format(pattern, time.Now())
	if err != nil {
		return nil, errors.Wrapf(err, "expand pcap file name %s", pattern)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create pcap file %s", path)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeIPv4); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "write pcap header to %s", path)
	}
	p := &Writer{
		name:  name,
		file:  f,
		w:     w,
		queue: make(chan record, queueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	logger.PcapLog.Infof("opened %s capture %s", name, path)
	return p, nil
}

func (p *Writer) run() {
	defer close(p.done)
	defer util.RecoverWithLog(logger.PcapLog)
	for r := range p.queue {
		ci := gopacket.CaptureInfo{Timestamp: r.ts, CaptureLength: len(r.data), Length: len(r.data)}
		if err := p.w.WritePacket(ci, r.data); err != nil {
			logger.PcapLog.Errorf("%s capture write: %+v", p.name, err)
		}
	}
}

// Enabled reports whether pushed PDUs are recorded.
func (p *Writer) Enabled() bool {
	return p != nil
}

func (p *Writer) push(data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- record{ts: time.Now(), data: data}:
	default:
		if p.dropped.Add(1) == 1 {
			logger.PcapLog.Warnf("%s capture queue full, dropping records", p.name)
		}
	}
}

// Dropped returns how many records were lost to a full queue.
func (p *Writer) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

func endpoint(a net.Addr) (net.IP, uint16) {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP, uint16(v.Port)
	case *sctp.SCTPAddr:
		if len(v.IPAddrs) > 0 {
			return v.IPAddrs[0].IP, uint16(v.Port)
		}
		return net.IPv4zero, uint16(v.Port)
	case nil:
		return net.IPv4zero, 0
	}
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return net.IPv4zero, 0
	}
	n, _ := strconv.Atoi(port)
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	return ip, uint16(n)
}

func ipv4Layer(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	if src.To4() == nil {
		src = net.IPv4zero
	}
	if dst.To4() == nil {
		dst = net.IPv4zero
	}
	return &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: src.To4(), DstIP: dst.To4()}
}

// PushSctp records a signalling PDU sent from src to dst.
func (p *Writer) PushSctp(payload []byte, ppid uint32, src, dst net.Addr) {
	if p == nil {
		return
	}
	srcIP, srcPort := endpoint(src)
	dstIP, dstPort := endpoint(dst)
	ip := ipv4Layer(srcIP, dstIP, layers.IPProtocolSCTP)
	sctpHdr := &layers.SCTP{SrcPort: layers.SCTPPort(srcPort), DstPort: layers.SCTPPort(dstPort)}
	data := &layers.SCTPData{
		SCTPChunk:       layers.SCTPChunk{Type: layers.SCTPChunkTypeData, Flags: 0x03},
		BeginFragment:   true,
		EndFragment:     true,
		TSN:             p.tsn.Add(1),
		PayloadProtocol: layers.SCTPPayloadProtocol(ppid),
	}
	p.serialize(ip, sctpHdr, data, gopacket.Payload(payload))
}

// PushUdp records a GTP-U datagram sent from src to dst.
func (p *Writer) PushUdp(payload []byte, src, dst net.Addr) {
	if p == nil {
		return
	}
	srcIP, srcPort := endpoint(src)
	dstIP, dstPort := endpoint(dst)
	ip := ipv4Layer(srcIP, dstIP, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		logger.PcapLog.Debugf("%s capture checksum: %+v", p.name, err)
	}
	p.serialize(ip, udp, gopacket.Payload(payload))
}

func (p *Writer) serialize(ls ...gopacket.SerializableLayer) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		logger.PcapLog.Errorf("%s capture serialize: %+v", p.name, err)
		return
	}
	p.push(buf.Bytes())
}

// Close flushes queued records and closes the file.
func (p *Writer) Close() error {
	if p == nil {
		return nil
	}
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		<-p.done
		err = p.file.Close()
		logger.PcapLog.Infof("closed %s capture", p.name)
	})
	return err
}
