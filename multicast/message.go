package multicast

import (
	"fmt"
	"net"
)

// ReceivedMessage is a single inbound datagram.
type ReceivedMessage struct {
	// Payload holds exactly the received bytes, truncated to the buffer size of the receive call.
	Payload    []byte
	Source     net.IP
	SourcePort int
	SourceZone string
	// Group is the key of the group session the datagram arrived on, see Manager.Groups.
	Group     string
	LocalPort int
	// IfIndex is the index of the receiving interface, 0 when the platform doesn't report it.
	IfIndex int
}

// SourceAddr returns the source as udp address.
func (m *ReceivedMessage) SourceAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: m.Source, Port: m.SourcePort, Zone: m.SourceZone}
}

func (m *ReceivedMessage) String() string {
	return fmt.Sprintf("%v bytes from %v on group %v port %v", len(m.Payload), m.SourceAddr(), m.Group, m.LocalPort)
}
