// Package transport owns the UDP socket spec.md section 4.2 describes:
// bind, receive into a bounded buffer, hand datagrams to the reactor,
// and fire-and-forget send. Grounded on the teacher's sip.TransportUDP
// (sip/transport_udp.go), trimmed to UDP-only (TCP/TLS/WS are
// non-goals) and rewired so every receive callback fires on the
// reactor goroutine instead of the read goroutine itself.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sipcore/sipreactor/logging"
	"github.com/sipcore/sipreactor/reactor"
	"golang.org/x/sys/unix"
)

// MaxDatagramSize is the fixed receive buffer size - spec.md 6.1: any
// larger datagram is truncated, a documented SIP-over-UDP limit.
const MaxDatagramSize = 2048

// DefaultAddr is the bind address spec.md 4.2/6.1 specifies.
const DefaultAddr = "0.0.0.0:5060"

// OnMessage is invoked on the reactor goroutine with the raw datagram
// bytes (the backing buffer holds a NUL right after the datagram's last
// byte, as the original does) and the sender's address.
type OnMessage func(data []byte, remote string)

// OnEvent is the generic "I/O happened" notification spec.md 4.2 says
// the upper layer may ignore.
type OnEvent func()

type Transport struct {
	reactor *reactor.Reactor

	mu      sync.Mutex
	conn    *net.UDPConn
	started bool

	onMessage OnMessage
	onEvent   OnEvent

	log zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Init creates the transport bound to the given reactor - mirrors
// Transport.init(reactor) in spec.md 4.2.
func Init(r *reactor.Reactor) *Transport {
	return &Transport{
		reactor: r,
		log:     logging.Default().With().Str("component", "transport").Logger(),
	}
}

// SetCallbacks registers the upper-layer sinks - spec.md's
// set_callbacks({on_event, on_msg_recv, ...}).
func (t *Transport) SetCallbacks(onEvent OnEvent, onMessage OnMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = onEvent
	t.onMessage = onMessage
}

// Start binds to addr (0.0.0.0:5060 if empty), sets SO_REUSEADDR, and
// begins reading datagrams on a dedicated goroutine that only ever
// hands work to the reactor - spec.md 4.2's start().
func (t *Transport) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("transport already started")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("resolve %q: %w", addr, err)
	}

	conn, err := listenReuseAddr(udpAddr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("listen %q: %w", addr, err)
	}

	t.conn = conn
	t.started = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	t.log.Info().Str("addr", conn.LocalAddr().String()).Msg("transport listening")
	go t.readLoop(conn, t.stopCh, t.doneCh)
	return nil
}

// Stop ends the read loop and closes the socket; Destroy then zeroes the
// context - spec.md 4.2's stop()/destroy() pair.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	close(t.stopCh)
	if t.conn != nil {
		t.conn.Close()
	}
	<-t.doneCh
	t.started = false
}

func (t *Transport) Destroy() {
	t.Stop()
	t.mu.Lock()
	t.conn = nil
	t.onEvent = nil
	t.onMessage = nil
	t.mu.Unlock()
}

// LocalSocket exposes the bound address so responses can be sent from
// the same source - spec.md's local_socket().
func (t *Transport) LocalSocket() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ""
	}
	return t.conn.LocalAddr().String()
}

// Send issues a sendto and returns without waiting for network
// completion - spec.md's send(addr, port, bytes): reliability is the
// transaction layer's job, not the transport's (spec.md section 3
// invariants).
func (t *Transport) Send(addr string, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not started")
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve destination %q: %w", addr, err)
	}
	_, err = conn.WriteToUDP(data, raddr)
	if err != nil {
		t.log.Error().Err(err).Str("addr", addr).Msg("send failed")
		return err
	}
	return nil
}

// SetDSCP sets IP_TOS = (v<<2)&0xff on the socket - spec.md 4.2/6.1.
func (t *Transport) SetDSCP(v int) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not started")
	}
	tos := (v << 2) & 0xff
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = raw.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
	})
	if err != nil {
		return err
	}
	return setErr
}

func (t *Transport) readLoop(conn *net.UDPConn, stop chan struct{}, done chan struct{}) {
	defer close(done)
	buf := make([]byte, MaxDatagramSize+1)
	for {
		n, remote, err := conn.ReadFromUDP(buf[:MaxDatagramSize])
		select {
		case <-stop:
			return
		default:
		}
		if err != nil {
			t.log.Error().Err(err).Msg("recvfrom error")
			continue
		}
		if n <= 0 {
			continue
		}

		data := make([]byte, n+1) // NUL-terminate, mirroring the teacher's fixed buffer
		copy(data, buf[:n])
		remoteStr := remote.String()

		t.mu.Lock()
		onMessage := t.onMessage
		onEvent := t.onEvent
		t.mu.Unlock()

		t.reactor.PostIO(func() {
			if onEvent != nil {
				onEvent()
			}
			if onMessage != nil {
				onMessage(data[:n], remoteStr)
			}
		})
	}
}
