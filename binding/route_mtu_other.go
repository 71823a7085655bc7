//go:build !linux

package binding

import "net"

// DefaultRouteMTU is the conservative MTU assumed on platforms without a
// kernel route-table query available.
const DefaultRouteMTU = 1500

// RouteMTU returns DefaultRouteMTU outside Linux, where this package has
// no route-table query available; path MTU discovery still probes up from
// there, just without a more accurate starting point.
func RouteMTU(remoteAddr net.IP) int {
	return DefaultRouteMTU
}
