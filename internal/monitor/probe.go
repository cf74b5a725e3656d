package monitor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"devicemonitor/internal/logger"
	"devicemonitor/internal/models"
)

const (
	defaultProbeTimeout = 2 * time.Second
	defaultFallbackPort = 80
	maxReplySize        = 1500
	protocolICMP        = 1
	protocolICMPv6      = 58
)

var (
	errEmptyAddress  = errors.New("empty address")
	errNoAddress     = errors.New("no address found for host")
	errNoICMPSocket  = errors.New("no icmp socket available")
	errEchoTimedOut  = errors.New("echo request timed out")
	echoSeq          atomic.Uint32
	echoPayloadMagic = []byte("devmon")
)

// Prober reports whether a device answers on the network.
type Prober interface {
	Probe(ctx context.Context, addr string) models.Status
}

// PingProber sends a single ICMP echo request per probe. When the process
// cannot open any ICMP socket it falls back to a TCP connect, where either an
// accepted or a refused connection proves the host is up.
//
// Every failure, including an unparsable address, is reported as
// StatusUnreachable.
type PingProber struct {
	timeout      time.Duration
	fallbackPort int
	log          zerolog.Logger

	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
	listen func(network, address string) (*icmp.PacketConn, error)
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ Prober = (*PingProber)(nil)

// ProberOption customises a PingProber.
type ProberOption func(*PingProber)

// WithFallbackPort sets the TCP port used when ICMP is unavailable.
func WithFallbackPort(port int) ProberOption {
	return func(p *PingProber) {
		if port > 0 && port <= 65535 {
			p.fallbackPort = port
		}
	}
}

// WithProberLogger sets the logger used for per-probe diagnostics.
func WithProberLogger(log zerolog.Logger) ProberOption {
	return func(p *PingProber) {
		p.log = logger.WithComponent(log, "probe")
	}
}

// NewPingProber configures a prober with the given per-probe timeout.
func NewPingProber(timeout time.Duration, opts ...ProberOption) *PingProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	p := &PingProber{
		timeout:      timeout,
		fallbackPort: defaultFallbackPort,
		log:          logger.NewTestLogger(),
		lookup:       net.DefaultResolver.LookupIPAddr,
		listen:       icmp.ListenPacket,
		dial:         (&net.Dialer{}).DialContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *PingProber) Probe(ctx context.Context, addr string) models.Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	status, err := p.probe(ctx, addr)
	if err != nil {
		p.log.Debug().
			Str("addr", addr).
			Err(err).
			Dur("elapsed", time.Since(started)).
			Msg("device unreachable")
	}
	return status
}

func (p *PingProber) probe(ctx context.Context, addr string) (models.Status, error) {
	ip, err := p.resolve(ctx, addr)
	if err != nil {
		return models.StatusUnreachable, err
	}

	status, err := p.echo(ctx, ip)
	if errors.Is(err, errNoICMPSocket) {
		p.log.Debug().Str("addr", addr).Err(err).Msg("falling back to tcp probe")
		return p.connect(ctx, ip)
	}
	return status, err
}

func (p *PingProber) resolve(ctx context.Context, addr string) (net.IP, error) {
	host := strings.TrimSpace(addr)
	if host == "" {
		return nil, errEmptyAddress
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := p.lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, fmt.Errorf("resolve %q: %w", host, errNoAddress)
}

type icmpFamily struct {
	unprivileged string
	privileged   string
	listenAddr   string
	protocol     int
	request      icmp.Type
	reply        icmp.Type
}

var (
	icmpV4 = icmpFamily{
		unprivileged: "udp4",
		privileged:   "ip4:icmp",
		listenAddr:   "0.0.0.0",
		protocol:     protocolICMP,
		request:      ipv4.ICMPTypeEcho,
		reply:        ipv4.ICMPTypeEchoReply,
	}
	icmpV6 = icmpFamily{
		unprivileged: "udp6",
		privileged:   "ip6:ipv6-icmp",
		listenAddr:   "::",
		protocol:     protocolICMPv6,
		request:      ipv6.ICMPTypeEchoRequest,
		reply:        ipv6.ICMPTypeEchoReply,
	}
)

func (p *PingProber) openICMP(fam icmpFamily) (*icmp.PacketConn, bool, error) {
	conn, errUnpriv := p.listen(fam.unprivileged, fam.listenAddr)
	if errUnpriv == nil {
		return conn, true, nil
	}
	conn, errPriv := p.listen(fam.privileged, fam.listenAddr)
	if errPriv == nil {
		return conn, false, nil
	}
	return nil, false, fmt.Errorf("%w: %v; %v", errNoICMPSocket, errUnpriv, errPriv)
}

func (p *PingProber) echo(ctx context.Context, ip net.IP) (models.Status, error) {
	fam := icmpV6
	if ip.To4() != nil {
		fam = icmpV4
	}

	conn, datagram, err := p.openICMP(fam)
	if err != nil {
		return models.StatusUnreachable, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return models.StatusUnreachable, fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	// Datagram sockets get their echo id rewritten by the kernel, so replies
	// are matched on sequence number and payload instead.
	seq := int(echoSeq.Add(1) & 0xffff)
	payload := make([]byte, len(echoPayloadMagic)+8)
	copy(payload, echoPayloadMagic)
	binary.BigEndian.PutUint64(payload[len(echoPayloadMagic):], uint64(time.Now().UnixNano()))

	msg := icmp.Message{
		Type: fam.request,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: payload,
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return models.StatusUnreachable, fmt.Errorf("marshal echo: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if datagram {
		dst = &net.UDPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return models.StatusUnreachable, fmt.Errorf("send echo: %w", err)
	}

	buf := make([]byte, maxReplySize)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return models.StatusUnreachable, errEchoTimedOut
			}
			return models.StatusUnreachable, fmt.Errorf("read reply: %w", err)
		}
		if !sameHost(peer, ip) {
			continue
		}

		reply, err := icmp.ParseMessage(fam.protocol, buf[:n])
		if err != nil || reply.Type != fam.reply {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok || body.Seq != seq || !bytes.Equal(body.Data, payload) {
			continue
		}
		return models.StatusReachable, nil
	}
}

func (p *PingProber) connect(ctx context.Context, ip net.IP) (models.Status, error) {
	address := net.JoinHostPort(ip.String(), strconv.Itoa(p.fallbackPort))

	conn, err := p.dial(ctx, "tcp", address)
	if err == nil {
		_ = conn.Close()
		return models.StatusReachable, nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return models.StatusReachable, nil
	}
	return models.StatusUnreachable, fmt.Errorf("tcp connect %s: %w", address, err)
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.IPAddr:
		return a.IP.Equal(ip)
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
