package net

import (
	"net"
	"strings"
)

// LocalAddresses returns the unicast addresses bound to the interfaces of this host
// which belong to the family of network: udp4 selects IPv4, udp6 selects IPv6 and any
// other value selects both. Multicast addresses are never part of the result.
func LocalAddresses(network string) ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ips = append(ips, filterLocalAddresses(network, ifaceAddrs)...)
	}
	return ips, nil
}

func filterLocalAddresses(network string, ifaceAddrs []net.Addr) []net.IP {
	ips := make([]net.IP, 0, len(ifaceAddrs))
	for _, addr := range ifaceAddrs {
		ip := addrToIP(addr)
		if ip == nil || ip.IsMulticast() {
			continue
		}
		if IsIPv6(ip) && network == "udp4" {
			continue
		}
		if !IsIPv6(ip) && network == "udp6" {
			continue
		}
		ips = append(ips, ip)
	}
	return ips
}

func addrToIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	case *net.UDPAddr:
		return v.IP
	case nil:
		return nil
	}
	addrMask := addr.String()
	host := strings.Split(addrMask, "/")[0]
	host = strings.Split(host, "%")[0]
	return net.ParseIP(host)
}

// ContainsIP reports whether ip is one of ips.
func ContainsIP(ips []net.IP, ip net.IP) bool {
	for _, v := range ips {
		if v.Equal(ip) {
			return true
		}
	}
	return false
}
