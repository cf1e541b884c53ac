package receiver

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// joinGroup subscribes conn to group. An empty ifname lets the kernel pick
// the interface.
func joinGroup(conn *net.UDPConn, group net.IP, ifname string) error {
	var ifi *net.Interface
	if ifname != "" {
		var err error
		ifi, err = net.InterfaceByName(ifname)
		if err != nil {
			return err
		}
	}

	addr := &net.UDPAddr{IP: group}
	if group.To4() != nil {
		return ipv4.NewPacketConn(conn).JoinGroup(ifi, addr)
	}
	return ipv6.NewPacketConn(conn).JoinGroup(ifi, addr)
}
