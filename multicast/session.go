package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	mcastNet "github.com/naist-inet-lab/go-ipv6multicast/net"
	"github.com/naist-inet-lab/go-ipv6multicast/pkg/fn"
	"go.uber.org/atomic"
)

// Session is the socket state of one joined group.
type Session struct {
	key       string
	group     *net.UDPAddr
	conn      *mcastNet.UDPConn
	ifaces    []*net.Interface
	localPort int
	receiving atomic.Bool

	teardown  fn.FuncList
	closeOnce sync.Once
	closeErr  error
}

// resolveGroup turns group text (an IP literal with optional zone, optionally in
// brackets, or a host name) into a multicast address.
func resolveGroup(group string) (*net.UDPAddr, error) {
	host := strings.TrimSpace(group)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return nil, fmt.Errorf("%w: empty address", ErrAddressResolution)
	}
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrAddressResolution, group, err)
	}
	if !addr.IP.IsMulticast() {
		return nil, fmt.Errorf("%w: %v is not a multicast address", ErrAddressResolution, addr.IP)
	}
	return &net.UDPAddr{IP: addr.IP, Zone: addr.Zone}, nil
}

// parseGroupLiteral is resolveGroup without name lookups.
func parseGroupLiteral(group string) (*net.UDPAddr, error) {
	host := strings.TrimSpace(group)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host, zone, _ := strings.Cut(host, "%")
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q is not an IP address", ErrAddressResolution, group)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("%w: %v is not a multicast address", ErrAddressResolution, ip)
	}
	if ip.To4() != nil && zone != "" {
		return nil, fmt.Errorf("%w: %q has a zone", ErrAddressResolution, group)
	}
	return &net.UDPAddr{IP: ip, Zone: zone}, nil
}

func groupKey(group *net.UDPAddr) string {
	ipAddr := net.IPAddr{IP: group.IP, Zone: group.Zone}
	return ipAddr.String()
}

func groupInterfaces(group *net.UDPAddr, cfg Config) ([]net.Interface, error) {
	if group.Zone != "" {
		iface, err := mcastNet.InterfaceByZone(group.Zone)
		if err != nil {
			return nil, err
		}
		return []net.Interface{*iface}, nil
	}
	if cfg.Interface != "" {
		iface, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("cannot find interface %v: %w", cfg.Interface, err)
		}
		return []net.Interface{*iface}, nil
	}
	ifaces, err := mcastNet.MulticastInterfaces()
	if err != nil {
		// the system assigned interface is used instead
		cfg.Logger.Warnf("%v", err)
		return nil, nil
	}
	return ifaces, nil
}

// openSession binds a socket on localPort and joins group. On failure everything
// opened so far is released again.
func openSession(key string, group *net.UDPAddr, localPort int, cfg Config) (*Session, error) {
	ifaces, err := groupInterfaces(group, cfg)
	if err != nil {
		return nil, err
	}
	network := mcastNet.NetworkForIP(group.IP)
	conn, err := mcastNet.NewListenUDP(context.Background(), network, net.JoinHostPort("", strconv.Itoa(localPort)),
		mcastNet.WithErrors(func(err error) {
			cfg.Logger.Warnf("%v", err)
		}))
	if err != nil {
		return nil, err
	}
	s := &Session{
		key:       key,
		group:     group,
		conn:      conn,
		localPort: conn.LocalPort(),
		teardown:  fn.FuncList{conn.Close},
	}
	membership := &net.UDPAddr{IP: group.IP}
	joined, err := conn.JoinGroupOnInterfaces(ifaces, membership)
	if err != nil {
		return nil, errors.Join(err, s.teardown.Execute())
	}
	s.ifaces = joined
	s.teardown = append(s.teardown, func() error {
		return conn.LeaveGroupOnInterfaces(joined, membership)
	})
	if joined[0] != nil {
		if err = conn.SetMulticastInterface(joined[0]); err != nil {
			return nil, errors.Join(fmt.Errorf("cannot set multicast interface %v: %w", joined[0].Name, err), s.teardown.Execute())
		}
	}
	if err = conn.SetMulticastHopLimit(cfg.HopLimit); err != nil {
		return nil, errors.Join(fmt.Errorf("cannot set multicast hop limit %v: %w", cfg.HopLimit, err), s.teardown.Execute())
	}
	return s, nil
}

// Group returns the key of the session: the group address including its zone.
func (s *Session) Group() string {
	return s.key
}

// LocalPort returns the port the session socket is bound to.
func (s *Session) LocalPort() int {
	return s.localPort
}

// Interfaces returns the names of the interfaces the group was joined on. It is empty
// when the system assigned interface is used.
func (s *Session) Interfaces() []string {
	names := make([]string, 0, len(s.ifaces))
	for _, iface := range s.ifaces {
		if iface != nil {
			names = append(names, iface.Name)
		}
	}
	return names
}

// ReceiverActive reports whether a background receiver runs on the session.
func (s *Session) ReceiverActive() bool {
	return s.receiving.Load()
}

func (s *Session) send(payload []byte, remotePort int) (int, error) {
	return s.conn.WriteTo(payload, &net.UDPAddr{IP: s.group.IP, Port: remotePort, Zone: s.group.Zone})
}

// accepts drops datagrams the platform reports as addressed to another group. The
// socket is bound to the wildcard address, so it also sees traffic of other groups
// joined on the same port by this host.
func (s *Session) accepts(cm *mcastNet.ControlMessage) bool {
	dst := cm.GetDst()
	if dst == nil || !dst.IsMulticast() {
		return true
	}
	return dst.Equal(s.group.IP)
}

// read blocks until a datagram of the session's group arrives whose source is not one
// of ignore.
func (s *Session) read(buffer []byte, ignore []net.IP) (*ReceivedMessage, error) {
	for {
		var src *net.UDPAddr
		var cm *mcastNet.ControlMessage
		n, err := s.conn.ReadWithOptions(buffer, mcastNet.WithGetRemoteAddr(&src), mcastNet.WithGetControlMessage(&cm))
		if err != nil {
			return nil, err
		}
		if !s.accepts(cm) {
			continue
		}
		if mcastNet.ContainsIP(ignore, src.IP) {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buffer[:n])
		return &ReceivedMessage{
			Payload:    payload,
			Source:     src.IP,
			SourcePort: src.Port,
			SourceZone: src.Zone,
			Group:      s.key,
			LocalPort:  s.localPort,
			IfIndex:    cm.GetIfIndex(),
		}, nil
	}
}

// close leaves the group and closes the socket. A blocked read returns with an error.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.teardown.Execute()
	})
	return s.closeErr
}
