//go:build linux

package binding

import (
	"net"

	"github.com/vishvananda/netlink"
)

// DefaultRouteMTU is the conservative MTU assumed when the kernel route
// table lookup fails, the standard Ethernet MTU most paths satisfy.
const DefaultRouteMTU = 1500

// RouteMTU queries the kernel route table for the outbound link carrying
// traffic to remoteAddr and returns that link's MTU, seeding path MTU
// discovery's upper probe bound the way a real stack would know its
// interface MTU without probing for it first.
func RouteMTU(remoteAddr net.IP) int {
	routes, err := netlink.RouteGet(remoteAddr)
	if err != nil || len(routes) == 0 {
		return DefaultRouteMTU
	}
	link, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return DefaultRouteMTU
	}
	mtu := link.Attrs().MTU
	if mtu <= 0 {
		return DefaultRouteMTU
	}
	return mtu
}
