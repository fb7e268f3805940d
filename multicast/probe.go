package multicast

import (
	"net"

	mcastNet "github.com/naist-inet-lab/go-ipv6multicast/net"
)

// AddressProbe enumerates the unicast addresses of this host for the family of
// network (udp4 or udp6). It recognizes datagrams the host sent itself.
type AddressProbe interface {
	LocalAddresses(network string) ([]net.IP, error)
}

type AddressProbeFunc func(network string) ([]net.IP, error)

func (f AddressProbeFunc) LocalAddresses(network string) ([]net.IP, error) {
	return f(network)
}

// InterfaceAddressProbe reads the addresses of the network interfaces of the host.
var InterfaceAddressProbe AddressProbe = AddressProbeFunc(mcastNet.LocalAddresses)
