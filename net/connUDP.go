package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// UDPConn is a udp socket bound for multicast reception and transmission.
//
// Multiple goroutines may invoke methods on a UDPConn simultaneously. Close may be
// called while another goroutine is blocked in ReadWithOptions; the read then returns
// an error wrapping net.ErrClosed.
type UDPConn struct {
	packetConn packetConn
	network    string
	connection *net.UDPConn
	errors     func(err error)
	closed     atomic.Bool
}

type ControlMessage struct {
	// Only platforms supporting control messages fill these fields, see SupportsControlMessage.

	Dst     net.IP // destination address of the packet
	Src     net.IP // source address of the packet
	IfIndex int    // interface index, 0 means any interface
}

func (c *ControlMessage) String() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	if c.Dst != nil {
		sb.WriteString(fmt.Sprintf("Dst: %s, ", c.Dst))
	}
	if c.Src != nil {
		sb.WriteString(fmt.Sprintf("Src: %s, ", c.Src))
	}
	if c.IfIndex >= 1 {
		sb.WriteString(fmt.Sprintf("IfIndex: %d, ", c.IfIndex))
	}
	return sb.String()
}

// GetIfIndex returns the interface index of the network interface. 0 means no interface index specified.
func (c *ControlMessage) GetIfIndex() int {
	if c == nil {
		return 0
	}
	return c.IfIndex
}

// GetDst returns the destination address of the packet or nil when it is unknown.
func (c *ControlMessage) GetDst() net.IP {
	if c == nil {
		return nil
	}
	return c.Dst
}

type packetConn interface {
	WriteTo(b []byte, dst net.Addr) (n int, err error)
	ReadFrom(b []byte) (n int, cm *ControlMessage, src net.Addr, err error)
	SetMulticastInterface(ifi *net.Interface) error
	SetMulticastHopLimit(hoplim int) error
	SetMulticastLoopback(on bool) error
	MulticastLoopback() (bool, error)
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	SupportsControlMessage() bool
	IsIPv6() bool
}

type packetConnIPv4 struct {
	packetConn             *ipv4.PacketConn
	supportsControlMessage bool
}

func newPacketConnIPv4(p *ipv4.PacketConn) *packetConnIPv4 {
	if err := p.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface|ipv4.FlagSrc, true); err != nil {
		return &packetConnIPv4{packetConn: p, supportsControlMessage: false}
	}
	return &packetConnIPv4{packetConn: p, supportsControlMessage: true}
}

func (p *packetConnIPv4) SupportsControlMessage() bool {
	return p.supportsControlMessage
}

func (p *packetConnIPv4) IsIPv6() bool {
	return false
}

func (p *packetConnIPv4) SetMulticastInterface(ifi *net.Interface) error {
	return p.packetConn.SetMulticastInterface(ifi)
}

func (p *packetConnIPv4) WriteTo(b []byte, dst net.Addr) (int, error) {
	return p.packetConn.WriteTo(b, nil, dst)
}

func (p *packetConnIPv4) ReadFrom(b []byte) (int, *ControlMessage, net.Addr, error) {
	n, cm, src, err := p.packetConn.ReadFrom(b)
	if err != nil {
		return -1, nil, nil, err
	}
	var controlMessage *ControlMessage
	if p.supportsControlMessage && cm != nil {
		controlMessage = &ControlMessage{
			Dst:     cm.Dst,
			Src:     cm.Src,
			IfIndex: cm.IfIndex,
		}
	}
	return n, controlMessage, src, err
}

func (p *packetConnIPv4) SetMulticastHopLimit(hoplim int) error {
	return p.packetConn.SetMulticastTTL(hoplim)
}

func (p *packetConnIPv4) SetMulticastLoopback(on bool) error {
	return p.packetConn.SetMulticastLoopback(on)
}

func (p *packetConnIPv4) MulticastLoopback() (bool, error) {
	return p.packetConn.MulticastLoopback()
}

func (p *packetConnIPv4) JoinGroup(ifi *net.Interface, group net.Addr) error {
	return p.packetConn.JoinGroup(ifi, group)
}

func (p *packetConnIPv4) LeaveGroup(ifi *net.Interface, group net.Addr) error {
	return p.packetConn.LeaveGroup(ifi, group)
}

type packetConnIPv6 struct {
	packetConn             *ipv6.PacketConn
	supportsControlMessage bool
}

func newPacketConnIPv6(p *ipv6.PacketConn) *packetConnIPv6 {
	if err := p.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface|ipv6.FlagSrc, true); err != nil {
		return &packetConnIPv6{packetConn: p, supportsControlMessage: false}
	}
	return &packetConnIPv6{packetConn: p, supportsControlMessage: true}
}

func (p *packetConnIPv6) SupportsControlMessage() bool {
	return p.supportsControlMessage
}

func (p *packetConnIPv6) IsIPv6() bool {
	return true
}

func (p *packetConnIPv6) SetMulticastInterface(ifi *net.Interface) error {
	return p.packetConn.SetMulticastInterface(ifi)
}

func (p *packetConnIPv6) ReadFrom(b []byte) (int, *ControlMessage, net.Addr, error) {
	n, cm, src, err := p.packetConn.ReadFrom(b)
	if err != nil {
		return -1, nil, nil, err
	}
	var controlMessage *ControlMessage
	if p.supportsControlMessage && cm != nil {
		controlMessage = &ControlMessage{
			Dst:     cm.Dst,
			Src:     cm.Src,
			IfIndex: cm.IfIndex,
		}
	}
	return n, controlMessage, src, err
}

func (p *packetConnIPv6) WriteTo(b []byte, dst net.Addr) (int, error) {
	return p.packetConn.WriteTo(b, nil, dst)
}

func (p *packetConnIPv6) SetMulticastHopLimit(hoplim int) error {
	return p.packetConn.SetMulticastHopLimit(hoplim)
}

func (p *packetConnIPv6) SetMulticastLoopback(on bool) error {
	return p.packetConn.SetMulticastLoopback(on)
}

func (p *packetConnIPv6) MulticastLoopback() (bool, error) {
	return p.packetConn.MulticastLoopback()
}

func (p *packetConnIPv6) JoinGroup(ifi *net.Interface, group net.Addr) error {
	return p.packetConn.JoinGroup(ifi, group)
}

func (p *packetConnIPv6) LeaveGroup(ifi *net.Interface, group net.Addr) error {
	return p.packetConn.LeaveGroup(ifi, group)
}

// IsIPv6 return's true if addr is IPV6.
func IsIPv6(addr net.IP) bool {
	if ip := addr.To16(); ip != nil && ip.To4() == nil {
		return true
	}
	return false
}

// NetworkForIP returns udp6 for IPv6 addresses and udp4 otherwise.
func NetworkForIP(ip net.IP) string {
	if IsIPv6(ip) {
		return "udp6"
	}
	return "udp4"
}

var DefaultUDPConnConfig = UDPConnConfig{
	Errors: func(error) {
		// per interface join failures are expected on hosts with mixed interfaces
	},
}

type UDPConnConfig struct {
	Errors func(err error)
}

// NewListenUDP opens a udp socket on addr with address reuse enabled, so several
// sockets of this host may bind the same multicast port.
func NewListenUDP(ctx context.Context, network, addr string, opts ...UDPOption) (*UDPConn, error) {
	lc := net.ListenConfig{
		Control: controlReuseAddr,
	}
	c, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn, ok := c.(*net.UDPConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("invalid connection type(%T), UDP connection expected", c)
	}
	udpConn, err := NewUDPConn(network, conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return udpConn, nil
}

func newPacketConn(network string, c *net.UDPConn) (packetConn, error) {
	laddr := c.LocalAddr()
	if laddr == nil {
		return nil, errors.New("invalid UDP connection")
	}
	addr, ok := laddr.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("invalid address type(%T), UDP address expected", laddr)
	}
	if network == "udp6" || (network != "udp4" && IsIPv6(addr.IP)) {
		return newPacketConnIPv6(ipv6.NewPacketConn(c)), nil
	}
	return newPacketConnIPv4(ipv4.NewPacketConn(c)), nil
}

// NewUDPConn creates connection over net.UDPConn.
func NewUDPConn(network string, c *net.UDPConn, opts ...UDPOption) (*UDPConn, error) {
	cfg := DefaultUDPConnConfig
	for _, o := range opts {
		o.ApplyUDP(&cfg)
	}
	pc, err := newPacketConn(network, c)
	if err != nil {
		return nil, err
	}

	return &UDPConn{
		network:    network,
		connection: c,
		packetConn: pc,
		errors:     cfg.Errors,
	}, nil
}

// LocalAddr returns the local network address. The Addr returned is shared by all invocations of LocalAddr, so do not modify it.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.connection.LocalAddr()
}

// LocalPort returns the bound port; it resolves the ephemeral port when the socket was opened on port 0.
func (c *UDPConn) LocalPort() int {
	if addr, ok := c.connection.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// Network name of the network (for example, udp4, udp6, udp)
func (c *UDPConn) Network() string {
	return c.network
}

// IsIPv6 reports whether the multicast options of the socket are IPv6 ones.
func (c *UDPConn) IsIPv6() bool {
	return c.packetConn.IsIPv6()
}

// SupportsControlMessage reports whether reads return destination and interface of packets.
func (c *UDPConn) SupportsControlMessage() bool {
	return c.packetConn.SupportsControlMessage()
}

// Close closes the connection. A blocked read returns promptly with an error.
func (c *UDPConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.connection.Close()
}

// IsClosed reports whether Close was called.
func (c *UDPConn) IsClosed() bool {
	return c.closed.Load()
}

// WriteTo sends buffer as a single datagram to raddr.
func (c *UDPConn) WriteTo(buffer []byte, raddr *net.UDPAddr) (int, error) {
	if raddr == nil {
		return -1, errors.New("cannot write: invalid raddr")
	}
	if c.closed.Load() {
		return -1, ErrConnectionIsClosed
	}
	if c.packetConn.IsIPv6() != IsIPv6(raddr.IP) {
		return -1, fmt.Errorf("cannot write: invalid destination address(%v) for %v socket", raddr.IP, c.network)
	}
	n, err := c.packetConn.WriteTo(buffer, raddr)
	if err != nil {
		return n, err
	}
	if n != len(buffer) {
		return n, ErrWriteInterrupted
	}
	return n, nil
}

type UDPReadCfg struct {
	Ctx            context.Context
	RemoteAddr     **net.UDPAddr
	ControlMessage **ControlMessage
}

type UDPReadOption interface {
	ApplyRead(cfg *UDPReadCfg)
}

type UDPReadApplyFunc func(cfg *UDPReadCfg)

func (f UDPReadApplyFunc) ApplyRead(cfg *UDPReadCfg) {
	f(cfg)
}

// WithContext sets the context of the read. The context is checked before blocking; it does not interrupt a blocked read.
func WithContext(ctx context.Context) UDPReadOption {
	return UDPReadApplyFunc(func(cfg *UDPReadCfg) {
		cfg.Ctx = ctx
	})
}

// WithGetRemoteAddr fills the remote address when reading succeeds.
func WithGetRemoteAddr(raddr **net.UDPAddr) UDPReadOption {
	return UDPReadApplyFunc(func(cfg *UDPReadCfg) {
		cfg.RemoteAddr = raddr
	})
}

// WithGetControlMessage fills the control message when reading succeeds. It stays nil when the platform doesn't provide it.
func WithGetControlMessage(cm **ControlMessage) UDPReadOption {
	return UDPReadApplyFunc(func(cfg *UDPReadCfg) {
		cfg.ControlMessage = cm
	})
}

func (c *UDPConn) readWithCfg(buffer []byte, cfg UDPReadCfg) (int, error) {
	select {
	case <-cfg.Ctx.Done():
		return -1, cfg.Ctx.Err()
	default:
	}
	if c.closed.Load() {
		return -1, ErrConnectionIsClosed
	}
	n, cm, srcAddr, err := c.packetConn.ReadFrom(buffer)
	if err != nil {
		return -1, fmt.Errorf("cannot read from udp connection: %w", err)
	}
	if udpAdrr, ok := srcAddr.(*net.UDPAddr); ok {
		if cfg.RemoteAddr != nil {
			*cfg.RemoteAddr = udpAdrr
		}
		if cfg.ControlMessage != nil {
			*cfg.ControlMessage = cm
		}
		return n, nil
	}
	return -1, fmt.Errorf("cannot read from udp connection: invalid srcAddr type %T", srcAddr)
}

// ReadWithOptions blocks until a datagram arrives and copies it into buffer. A datagram
// longer than buffer is truncated. Via opts you can get also the remote address and control message.
func (c *UDPConn) ReadWithOptions(buffer []byte, opts ...UDPReadOption) (int, error) {
	cfg := UDPReadCfg{
		Ctx: context.Background(),
	}
	for _, o := range opts {
		o.ApplyRead(&cfg)
	}
	return c.readWithCfg(buffer, cfg)
}

// SetMulticastLoopback sets whether transmitted multicast packets
// should be copied and send back to the originator.
func (c *UDPConn) SetMulticastLoopback(on bool) error {
	return c.packetConn.SetMulticastLoopback(on)
}

// MulticastLoopback reports whether transmitted multicast packets are looped back.
func (c *UDPConn) MulticastLoopback() (bool, error) {
	return c.packetConn.MulticastLoopback()
}

// SetMulticastHopLimit sets the TTL (IPv4) or hop limit (IPv6) of outgoing multicast packets.
func (c *UDPConn) SetMulticastHopLimit(hoplim int) error {
	return c.packetConn.SetMulticastHopLimit(hoplim)
}

// SetMulticastInterface sets the outgoing interface of multicast packets.
func (c *UDPConn) SetMulticastInterface(ifi *net.Interface) error {
	return c.packetConn.SetMulticastInterface(ifi)
}

// JoinGroup joins the group address group on the interface ifi.
// JoinGroup uses the system assigned multicast interface when ifi is
// nil, although this is not recommended because the assignment
// depends on platforms and sometimes it might require routing
// configuration.
func (c *UDPConn) JoinGroup(ifi *net.Interface, group net.Addr) error {
	return c.packetConn.JoinGroup(ifi, group)
}

// LeaveGroup leaves the group address group on the interface ifi.
func (c *UDPConn) LeaveGroup(ifi *net.Interface, group net.Addr) error {
	return c.packetConn.LeaveGroup(ifi, group)
}

// JoinGroupOnInterfaces joins group on each of ifaces and returns the interfaces that
// accepted the membership. Failures on single interfaces are reported to the errors
// callback of the connection. When no interface accepted the membership, the system
// assigned interface is tried and the result contains a single nil interface.
func (c *UDPConn) JoinGroupOnInterfaces(ifaces []net.Interface, group net.Addr) ([]*net.Interface, error) {
	joined := make([]*net.Interface, 0, len(ifaces))
	for i := range ifaces {
		iface := ifaces[i]
		if err := c.JoinGroup(&iface, group); err != nil {
			c.errors(fmt.Errorf("cannot join group %v on interface %v: %w", group, iface.Name, err))
			continue
		}
		joined = append(joined, &iface)
	}
	if len(joined) > 0 {
		return joined, nil
	}
	if err := c.JoinGroup(nil, group); err != nil {
		return nil, fmt.Errorf("cannot join group %v: %w", group, err)
	}
	return []*net.Interface{nil}, nil
}

// LeaveGroupOnInterfaces leaves group on every interface returned by JoinGroupOnInterfaces.
// All interfaces are attempted, the returned error joins the individual failures.
func (c *UDPConn) LeaveGroupOnInterfaces(ifaces []*net.Interface, group net.Addr) error {
	var errs []error
	for _, iface := range ifaces {
		if err := c.LeaveGroup(iface, group); err != nil {
			name := "<default>"
			if iface != nil {
				name = iface.Name
			}
			errs = append(errs, fmt.Errorf("cannot leave group %v on interface %v: %w", group, name, err))
		}
	}
	return errors.Join(errs...)
}
