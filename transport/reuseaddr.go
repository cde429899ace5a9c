package transport

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenReuseAddr binds a UDP socket with SO_REUSEADDR set before bind,
// per spec.md 4.2 ("creates a non-blocking UDP socket, sets
// SO_REUSEADDR"). net.ListenUDP doesn't expose this, so the socket is
// built with raw syscalls (golang.org/x/sys/unix, matching every
// reference repo in this pack that touches socket options directly)
// and handed back to the net package via FileConn.
func listenReuseAddr(addr *net.UDPAddr) (*net.UDPConn, error) {
	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		var a unix.SockaddrInet4
		if ip4 != nil {
			copy(a.Addr[:], ip4)
		}
		a.Port = addr.Port
		sa = &a
	} else {
		domain = unix.AF_INET6
		var a unix.SockaddrInet6
		copy(a.Addr[:], addr.IP.To16())
		a.Port = addr.Port
		sa = &a
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}

	file := os.NewFile(uintptr(fd), "udp")
	defer file.Close()
	conn, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("fileconn: %w", err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected conn type %T", conn)
	}
	return udpConn, nil
}
