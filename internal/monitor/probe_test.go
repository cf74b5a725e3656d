package monitor

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"

	"devicemonitor/internal/models"
)

var errDenied = errors.New("operation not permitted")

func noICMP(string, string) (*icmp.PacketConn, error) {
	return nil, errDenied
}

func refused() error {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}
}

func TestProbeLoopbackIsReachable(t *testing.T) {
	prober := NewPingProber(time.Second)

	assert.Equal(t, models.StatusReachable, prober.Probe(context.Background(), "127.0.0.1"))
}

func TestProbeInvalidAddressIsUnreachable(t *testing.T) {
	prober := NewPingProber(time.Second)
	prober.lookup = func(context.Context, string) ([]net.IPAddr, error) {
		return nil, &net.DNSError{Err: "no such host", Name: "not-an-ip", IsNotFound: true}
	}

	for _, addr := range []string{"not-an-ip", "999.1.1.1", "", "   "} {
		assert.Equal(t, models.StatusUnreachable, prober.Probe(context.Background(), addr), "addr %q", addr)
	}
}

func TestProbeFallsBackToTCPWhenICMPUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		dialErr error
		want    models.Status
	}{
		{name: "connected", dialErr: nil, want: models.StatusReachable},
		{name: "refused", dialErr: refused(), want: models.StatusReachable},
		{name: "timed out", dialErr: context.DeadlineExceeded, want: models.StatusUnreachable},
		{name: "no route", dialErr: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH}, want: models.StatusUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := NewPingProber(time.Second, WithFallbackPort(7))
			prober.listen = noICMP

			var dialed string
			prober.dial = func(_ context.Context, network, address string) (net.Conn, error) {
				dialed = address
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				client, server := net.Pipe()
				_ = server.Close()
				return client, nil
			}

			assert.Equal(t, tt.want, prober.Probe(context.Background(), "10.0.0.1"))
			assert.Equal(t, "10.0.0.1:7", dialed)
		})
	}
}

func TestProbeResolvesHostnamePreferringIPv4(t *testing.T) {
	prober := NewPingProber(time.Second)
	prober.listen = noICMP
	prober.lookup = func(_ context.Context, host string) ([]net.IPAddr, error) {
		require.Equal(t, "router.lan", host)
		return []net.IPAddr{{IP: net.ParseIP("fd00::1")}, {IP: net.ParseIP("192.168.1.1")}}, nil
	}

	var dialed string
	prober.dial = func(_ context.Context, _, address string) (net.Conn, error) {
		dialed = address
		return nil, refused()
	}

	assert.Equal(t, models.StatusReachable, prober.Probe(context.Background(), "router.lan"))
	assert.Equal(t, "192.168.1.1:80", dialed)
}

func TestProbeHonoursCancelledContext(t *testing.T) {
	prober := NewPingProber(time.Second)
	prober.listen = noICMP
	prober.dial = (&net.Dialer{}).DialContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, models.StatusUnreachable, prober.Probe(ctx, "192.0.2.1"))
}

func TestNewPingProberDefaults(t *testing.T) {
	prober := NewPingProber(0, WithFallbackPort(70000))

	assert.Equal(t, defaultProbeTimeout, prober.timeout)
	assert.Equal(t, defaultFallbackPort, prober.fallbackPort)
}
