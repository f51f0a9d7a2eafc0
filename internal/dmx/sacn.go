package dmx

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/FountainCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// E1.31 (streaming ACN) data packet layout for a full 512-slot universe.
const (
	SACNPort = 5568

	sacnPacketLen     = 638
	sacnRootVector    = 0x00000004
	sacnFrameVector   = 0x00000002
	sacnDMPVector     = 0x02
	sacnAddrDataType  = 0xA1
	sacnSourceNameLen = 64
	sacnFlags         = 0x7000

	rootLayerOffset    = 16
	framingLayerOffset = 38
	dmpLayerOffset     = 115
	slotsOffset        = 126
)

var acnPacketID = [12]byte{'A', 'S', 'C', '-', 'E', '1', '.', '1', '7', 0, 0, 0}

// FilterMode selects which channels the network sink forwards.
type FilterMode string

const (
	AllLights FilterMode = "all"
	// Code900Only forwards channels 500..511 and zeroes the rest.
	Code900Only FilterMode = "code900"
)

const (
	code900First = 500
	code900Last  = 511
)

// ParseFilterMode accepts the config spelling of a filter.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(s)) {
	case AllLights, "":
		return AllLights, nil
	case Code900Only:
		return Code900Only, nil
	}
	return "", fmt.Errorf("%w: unknown sacn filter %q", types.ErrConfig, s)
}

// Apply returns f with the filter applied.
func (m FilterMode) Apply(f Frame) Frame {
	if m != Code900Only {
		return f
	}
	var out Frame
	copy(out[code900First-1:code900Last], f[code900First-1:code900Last])
	return out
}

type packetHeader struct {
	cid        [16]byte
	sourceName string
	priority   uint8
	universe   uint16
}

func (h packetHeader) encode(seq uint8, f Frame) []byte {
	pkt := make([]byte, sacnPacketLen)

	// Root layer
	binary.BigEndian.PutUint16(pkt[0:2], 0x0010)
	binary.BigEndian.PutUint16(pkt[2:4], 0x0000)
	copy(pkt[4:16], acnPacketID[:])
	binary.BigEndian.PutUint16(pkt[16:18], sacnFlags|uint16(sacnPacketLen-rootLayerOffset))
	binary.BigEndian.PutUint32(pkt[18:22], sacnRootVector)
	copy(pkt[22:38], h.cid[:])

	// Framing layer
	binary.BigEndian.PutUint16(pkt[38:40], sacnFlags|uint16(sacnPacketLen-framingLayerOffset))
	binary.BigEndian.PutUint32(pkt[40:44], sacnFrameVector)
	copy(pkt[44:44+sacnSourceNameLen-1], h.sourceName)
	pkt[108] = h.priority
	binary.BigEndian.PutUint16(pkt[109:111], 0) // sync address
	pkt[111] = seq
	pkt[112] = 0 // options
	binary.BigEndian.PutUint16(pkt[113:115], h.universe)

	// DMP layer
	binary.BigEndian.PutUint16(pkt[115:117], sacnFlags|uint16(sacnPacketLen-dmpLayerOffset))
	pkt[117] = sacnDMPVector
	pkt[118] = sacnAddrDataType
	binary.BigEndian.PutUint16(pkt[119:121], 0) // first property address
	binary.BigEndian.PutUint16(pkt[121:123], 1) // address increment
	binary.BigEndian.PutUint16(pkt[123:125], Channels+1)
	pkt[125] = dmxStartCode
	copy(pkt[slotsOffset:], f[:])

	return pkt
}

// MulticastAddr is the E1.31 multicast group for a universe.
func MulticastAddr(universe uint16) string {
	return net.JoinHostPort(fmt.Sprintf("239.255.%d.%d", universe>>8, universe&0xFF), strconv.Itoa(SACNPort))
}

type NetworkOptions struct {
	Universe uint16
	// Destination is host or host:port; empty means the universe's
	// multicast group.
	Destination       string
	SourceName        string
	CID               string
	Priority          uint8
	Filter            FilterMode
	KeepAliveInterval time.Duration
}

type NetworkSink struct {
	opts   NetworkOptions
	header packetHeader
	conn   net.Conn
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	seq      uint8
	last     Frame
	hasLast  bool
	lastSent time.Time
	sent     uint64
	failed   bool
	closed   bool
}

// NewNetworkSink opens the UDP socket for the configured universe.
func NewNetworkSink(opts NetworkOptions, logger *zap.Logger) (*NetworkSink, error) {
	cid, err := parseCID(opts.CID)
	if err != nil {
		return nil, err
	}

	dest := opts.Destination
	if dest == "" {
		dest = MulticastAddr(opts.Universe)
	} else if _, _, err := net.SplitHostPort(dest); err != nil {
		dest = net.JoinHostPort(dest, strconv.Itoa(SACNPort))
	}

	conn, err := net.Dial("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", types.ErrNetwork, dest, err)
	}

	if opts.Filter == "" {
		opts.Filter = AllLights
	}

	logger.Info("Network DMX sink ready",
		zap.String("destination", dest),
		zap.Uint16("universe", opts.Universe),
		zap.String("filter", string(opts.Filter)),
		zap.String("cid", uuid.UUID(cid).String()))

	return &NetworkSink{
		opts: opts,
		header: packetHeader{
			cid:        cid,
			sourceName: opts.SourceName,
			priority:   opts.Priority,
			universe:   opts.Universe,
		},
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}, nil
}

func parseCID(s string) ([16]byte, error) {
	if s == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("%w: invalid sacn cid %q: %v", types.ErrConfig, s, err)
	}
	return id, nil
}

func (n *NetworkSink) Name() string {
	return "sacn"
}

// Send transmits f when it differs from the last frame handed to the
// sink. A failed frame is not retried until the buffer changes again.
func (n *NetworkSink) Send(f Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	f = n.opts.Filter.Apply(f)
	now := n.now()

	if n.hasLast && f == n.last {
		if n.opts.KeepAliveInterval <= 0 || now.Sub(n.lastSent) < n.opts.KeepAliveInterval {
			return nil
		}
	}

	n.last = f
	n.hasLast = true
	return n.transmitLocked(f, now)
}

func (n *NetworkSink) transmitLocked(f Frame, now time.Time) error {
	pkt := n.header.encode(n.seq, f)
	n.seq++
	n.lastSent = now

	if _, err := n.conn.Write(pkt); err != nil {
		if !n.failed {
			n.logger.Warn("Network DMX send failed", zap.Error(err))
		}
		n.failed = true
		return fmt.Errorf("%w: sacn send: %v", types.ErrNetwork, err)
	}

	if n.failed {
		n.logger.Info("Network DMX send recovered")
	}
	n.failed = false
	n.sent++
	return nil
}

// Close sends one all-zero frame and releases the socket.
func (n *NetworkSink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	if err := n.transmitLocked(Frame{}, n.now()); err != nil {
		n.logger.Warn("Failed to send blackout frame", zap.Error(err))
	}

	return n.conn.Close()
}

// Sent reports the number of packets written successfully.
func (n *NetworkSink) Sent() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

func (n *NetworkSink) Status() SinkStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	return SinkStatus{
		Name:      n.Name(),
		Connected: !n.closed && !n.failed,
		Frames:    n.sent,
	}
}
