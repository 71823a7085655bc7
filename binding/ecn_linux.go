//go:build linux

package binding

import (
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// ECNCodepoint is one of the four ECN codepoints carried in the IP header,
// per RFC 9000 section 13.4 / RFC 3168.
type ECNCodepoint int

const (
	ECNNotECT ECNCodepoint = iota
	ECNECT1
	ECNECT0
	ECNCE
)

// EnableECN marks the bound UDP socket to receive the incoming ECN
// codepoint on each datagram (IP_RECVTOS / IPV6_RECVTCLASS), needed before
// a connection can process ECN feedback per RFC 9000 section 13.4.2.
func EnableECN(conn *net.UDPConn, v6 bool) error {
	fd := netfd.GetFdFromConn(conn)
	if v6 {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVTCLASS, 1)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVTOS, 1)
}

// SetOutgoingECN sets the ECN codepoint this socket marks on packets it
// sends, matching the low two bits of the IP_TOS / IPV6_TCLASS option.
func SetOutgoingECN(conn *net.UDPConn, v6 bool, codepoint ECNCodepoint) error {
	fd := netfd.GetFdFromConn(conn)
	if v6 {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, int(codepoint))
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, int(codepoint))
}
