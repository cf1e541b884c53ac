// Package receiver reads UDP datagrams and queues them for formatting.
package receiver

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/queue"
)

// scratchSize holds the largest possible UDP payload so the kernel never
// truncates silently; the packet keeps the first types.MaxPayloadSize bytes.
const scratchSize = 64 * 1024

// State is the receiver lifecycle position.
type State int32

const (
	StateCreated State = iota
	StateBound
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var ErrNotBound = stderrors.New("receiver is not bound")

// Stats are the receiver's cumulative counters.
type Stats struct {
	PacketsReceived    uint64
	BytesReceived      uint64
	PacketsTruncated   uint64
	PacketsRateLimited uint64
}

// Receiver owns the UDP socket and is the only producer of its queue.
type Receiver struct {
	cfg     *config.ReceiverConfig
	out     queue.Producer[types.ReceivedPacket]
	logger  logger.Logger
	sampled *logger.SampledLogger
	limiter *rate.Limiter

	conn  *net.UDPConn
	state atomic.Int32

	packets     atomic.Uint64
	bytes       atomic.Uint64
	truncated   atomic.Uint64
	rateLimited atomic.Uint64

	now func() time.Time
}

// New creates a receiver in the Created state.
func New(cfg *config.ReceiverConfig, out queue.Producer[types.ReceivedPacket], log logger.Logger) *Receiver {
	l := logger.WithComponent(log, "receiver")
	r := &Receiver{
		cfg:     cfg,
		out:     out,
		logger:  l,
		sampled: logger.NewPipelineLogger(l),
		now:     time.Now,
	}
	if cfg.MaxPacketsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPacketsPerSecond), cfg.MaxPacketsPerSecond)
	}
	return r
}

// Bind opens the socket. For a multicast group address the wildcard address
// of the same family is bound and the group joined.
func (r *Receiver) Bind(ctx context.Context) error {
	if r.State() != StateCreated {
		return errors.NewInternalError("receiver already bound")
	}

	ip := net.ParseIP(r.cfg.Address)
	if ip == nil {
		return errors.NewConfigError("invalid listen address: " + r.cfg.Address)
	}

	network := "udp6"
	bindIP := ip
	if ip.To4() != nil {
		network = "udp4"
	}
	multicast := ip.IsMulticast()
	if multicast {
		if network == "udp4" {
			bindIP = net.IPv4zero
		} else {
			bindIP = net.IPv6unspecified
		}
	}

	lc := net.ListenConfig{}
	if r.cfg.ReuseAddress {
		lc.Control = reuseAddrControl
	}

	addr := net.JoinHostPort(bindIP.String(), strconv.Itoa(r.cfg.Port))
	pc, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return errors.WrapResourceError(err, "failed to bind "+addr)
	}
	conn := pc.(*net.UDPConn)

	if r.cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(r.cfg.ReadBuffer); err != nil {
			r.logger.WithError(err).Warn("Failed to set UDP read buffer size")
		}
	}

	if multicast {
		if err := joinGroup(conn, ip, r.cfg.Interface); err != nil {
			conn.Close()
			return errors.WrapResourceError(err, "failed to join multicast group "+ip.String())
		}
	}

	r.conn = conn
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateBound)) {
		conn.Close()
		return errors.NewInternalError("receiver stopped during bind")
	}

	r.logger.WithFields(map[string]interface{}{
		"address":   conn.LocalAddr().String(),
		"multicast": multicast,
		"rate_cap":  r.cfg.MaxPacketsPerSecond,
	}).Info("UDP receiver bound")

	return nil
}

// Run reads datagrams until Stop closes the socket, in which case it returns
// nil. Any other read failure is returned and the receiver stops for good.
func (r *Receiver) Run() error {
	if !r.state.CompareAndSwap(int32(StateBound), int32(StateRunning)) {
		if s := r.State(); s == StateStopping || s == StateStopped {
			r.state.Store(int32(StateStopped))
			return nil
		}
		return ErrNotBound
	}

	scratch := make([]byte, scratchSize)
	var addrBuf [64]byte
	var pkt types.ReceivedPacket

	for {
		n, from, err := r.conn.ReadFromUDPAddrPort(scratch)
		if err != nil {
			if r.State() == StateStopping {
				r.state.Store(int32(StateStopped))
				r.logger.Info("UDP receiver stopped")
				return nil
			}
			r.state.Store(int32(StateStopped))
			r.conn.Close()
			return errors.WrapIOError(err, "UDP read failed")
		}

		r.packets.Add(1)
		r.bytes.Add(uint64(n))

		if r.limiter != nil && !r.limiter.Allow() {
			r.rateLimited.Add(1)
			r.sampled.Warn(logger.CategoryRateLimit, "Ingress rate cap exceeded, shedding packet", map[string]interface{}{
				"limit": r.cfg.MaxPacketsPerSecond,
			})
			continue
		}

		addr := from.Addr().Unmap().AppendTo(addrBuf[:0])
		if pkt.Fill(r.now(), addr, scratch[:n]) {
			r.truncated.Add(1)
			r.sampled.Warn(logger.CategoryTruncation, "Datagram truncated", map[string]interface{}{
				"size":  n,
				"limit": types.MaxPayloadSize,
				"from":  string(addr),
			})
		}

		if !r.out.Push(pkt) {
			r.sampled.Warn(logger.CategoryInboundDrop, "Inbound queue full, dropping packet", map[string]interface{}{
				"queue": "inbound",
			})
		}
	}
}

// Stop unblocks Run by closing the socket. It is safe to call more than once
// and from any goroutine.
func (r *Receiver) Stop() {
	for {
		s := r.State()
		switch s {
		case StateCreated:
			if r.state.CompareAndSwap(int32(s), int32(StateStopped)) {
				return
			}
		case StateBound, StateRunning:
			if r.state.CompareAndSwap(int32(s), int32(StateStopping)) {
				r.conn.Close()
				if s == StateBound {
					r.state.Store(int32(StateStopped))
				}
				return
			}
		default:
			return
		}
	}
}

func (r *Receiver) State() State {
	return State(r.state.Load())
}

// LocalAddr returns the bound address, nil before Bind.
func (r *Receiver) LocalAddr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived:    r.packets.Load(),
		BytesReceived:      r.bytes.Load(),
		PacketsTruncated:   r.truncated.Load(),
		PacketsRateLimited: r.rateLimited.Load(),
	}
}
