package net

import (
	"fmt"
	"net"
	"strconv"
)

// MulticastInterfaces returns the interfaces that are up and multicast capable.
func MulticastInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("cannot get interfaces for multicast connection: %w", err)
	}
	return filterMulticastInterfaces(ifaces), nil
}

func filterMulticastInterfaces(ifaces []net.Interface) []net.Interface {
	filtered := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagUp != net.FlagUp {
			continue
		}
		filtered = append(filtered, iface)
	}
	return filtered
}

// InterfaceByZone resolves an IPv6 zone, given either as interface name or as index.
func InterfaceByZone(zone string) (*net.Interface, error) {
	if idx, err := strconv.Atoi(zone); err == nil {
		iface, err := net.InterfaceByIndex(idx)
		if err != nil {
			return nil, fmt.Errorf("cannot find interface with index %v: %w", idx, err)
		}
		return iface, nil
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return nil, fmt.Errorf("cannot find interface %v: %w", zone, err)
	}
	return iface, nil
}
