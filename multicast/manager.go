package multicast

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	pkgMath "github.com/naist-inet-lab/go-ipv6multicast/pkg/math"
	mcastSync "github.com/naist-inet-lab/go-ipv6multicast/pkg/sync"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Manager joins multicast groups and keeps one Session per joined group.
//
// Join, Leave and LeaveAll are serialized. Send, Receive and the background receivers
// may run concurrently with them and with each other; leaving a group closes its socket,
// which terminates every blocked read on it.
type Manager struct {
	cfg Config

	// mutex serializes changes of the registry and the power lock.
	mutex    sync.Mutex
	registry *mcastSync.Map[string, *Session]
	// latest is the key of the most recently joined group, "" when nothing was joined yet.
	// It is kept after the group was left.
	latest    atomic.String
	receivers sync.WaitGroup
}

// New creates a manager that has not joined any group.
func New(opts ...Option) *Manager {
	cfg := DefaultConfig()
	for _, o := range opts {
		o.ApplyManager(&cfg)
	}
	return &Manager{
		cfg:      cfg,
		registry: mcastSync.NewMap[string, *Session](),
	}
}

func (m *Manager) reportError(err error) {
	m.cfg.Logger.Errorf("%v", err)
	m.cfg.Errors(err)
}

// Join joins group and binds its session socket to localPort; 0 lets the system choose
// the port. Joining a group that is already joined does nothing.
func (m *Manager) Join(group string, localPort int) error {
	addr, err := resolveGroup(group)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGroupJoin, err)
	}
	if _, err = pkgMath.SafeCastTo[uint16](localPort); err != nil {
		return fmt.Errorf("%w: invalid port: %w", ErrGroupJoin, err)
	}
	key := groupKey(addr)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.registry.Contains(key) {
		return nil
	}
	first := m.registry.Length() == 0
	if first {
		if err := m.cfg.PowerLock.EnableOnInterface(m.cfg.PowerLockTag); err != nil {
			return fmt.Errorf("%w %v: cannot enable power lock: %w", ErrGroupJoin, key, err)
		}
	}
	// opened outside the registry lock, m.mutex keeps other joins out
	s, err := openSession(key, addr, localPort, m.cfg)
	if err != nil {
		if first {
			_ = m.disablePowerLock()
		}
		return fmt.Errorf("%w %v: %w", ErrGroupJoin, key, err)
	}
	m.registry.Store(key, s)
	m.latest.Store(key)
	m.cfg.Logger.Debugf("joined group %v on port %v, interfaces %v", key, s.LocalPort(), s.Interfaces())
	return nil
}

// JoinEphemeral joins group on a port chosen by the system.
func (m *Manager) JoinEphemeral(group string) error {
	return m.Join(group, 0)
}

func (m *Manager) disablePowerLock() error {
	if err := m.cfg.PowerLock.Disable(); err != nil {
		err = fmt.Errorf("cannot disable power lock: %w", err)
		m.reportError(err)
		return err
	}
	return nil
}

// Leave leaves group and closes its session. Leaving a group that is not joined is an error.
// The session is removed even when leaving the group on the network fails.
func (m *Manager) Leave(group string) error {
	addr, err := resolveGroup(group)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGroupLeave, err)
	}
	return m.leave(groupKey(addr))
}

// LeaveLatest leaves the most recently joined group.
func (m *Manager) LeaveLatest() error {
	key := m.latest.Load()
	if key == "" {
		return fmt.Errorf("%w: %w", ErrGroupLeave, ErrNotJoined)
	}
	return m.leave(key)
}

func (m *Manager) leave(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.registry.LoadAndDelete(key)
	if !ok {
		return fmt.Errorf("%w %v: %w", ErrGroupLeave, key, ErrNotJoined)
	}
	var errs []error
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	if m.registry.Length() == 0 {
		if err := m.disablePowerLock(); err != nil {
			errs = append(errs, err)
		}
	}
	m.cfg.Logger.Debugf("left group %v", key)
	if len(errs) > 0 {
		return fmt.Errorf("%w %v: %w", ErrGroupLeave, key, errors.Join(errs...))
	}
	return nil
}

// LeaveAll leaves every joined group. Every group is left even when some fail; the
// result joins all failures.
func (m *Manager) LeaveAll() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sessions := m.registry.LoadAndDeleteAll()
	if len(sessions) == 0 {
		return nil
	}
	var errs []error
	for key, s := range sessions {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", key, err))
		}
		m.cfg.Logger.Debugf("left group %v", key)
	}
	if err := m.disablePowerLock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrGroupLeave, errors.Join(errs...))
	}
	return nil
}

// Send sends payload as one datagram to remotePort of every joined group, each through
// the socket of its own session. A group joined on several interfaces is sent to through
// the first of them only. Every group is attempted; when any of them fails, the
// first failure is returned. The result is the number of bytes sent over all groups.
func (m *Manager) Send(payload []byte, remotePort int) (int, error) {
	sessions := m.registry.CopyData()
	if len(sessions) == 0 {
		return 0, fmt.Errorf("%w: %w", ErrSend, ErrNotJoined)
	}
	if port, err := pkgMath.SafeCastTo[uint16](remotePort); err != nil || port == 0 {
		return 0, fmt.Errorf("%w: invalid port %v", ErrSend, remotePort)
	}
	var sent atomic.Int64
	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			n, err := s.send(payload, remotePort)
			if err != nil {
				return fmt.Errorf("group %v: %w", s.key, err)
			}
			sent.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(sent.Load()), fmt.Errorf("%w: %w", ErrSend, err)
	}
	return int(sent.Load()), nil
}

func (m *Manager) ownAddresses(s *Session) []net.IP {
	ips, err := m.cfg.AddressProbe.LocalAddresses(s.conn.Network())
	if err != nil {
		// without own addresses nothing is filtered
		m.cfg.Logger.Warnf("cannot enumerate local addresses of group %v: %v", s.key, err)
		m.cfg.Errors(fmt.Errorf("cannot enumerate local addresses: %w", err))
		return nil
	}
	return ips
}

// Receive blocks until a datagram arrives on the most recently joined group and
// returns at most bufferSize bytes of it. With ignoreOwnSentPackets, datagrams whose
// source is an address of this host are skipped and the wait continues.
func (m *Manager) Receive(bufferSize int, ignoreOwnSentPackets bool) (*ReceivedMessage, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %v", ErrReceive, bufferSize)
	}
	key := m.latest.Load()
	s, ok := m.registry.Load(key)
	if key == "" || !ok {
		return nil, fmt.Errorf("%w: %w", ErrReceive, ErrNotJoined)
	}
	var ignore []net.IP
	if ignoreOwnSentPackets {
		ignore = m.ownAddresses(s)
	}
	msg, err := s.read(make([]byte, bufferSize), ignore)
	if err != nil {
		return nil, fmt.Errorf("%w %v: %w", ErrReceive, key, err)
	}
	return msg, nil
}

// IsJoined reports whether any group is joined.
func (m *Manager) IsJoined() bool {
	return m.registry.Length() > 0
}

// IsJoinedTo reports whether group is joined. group must be an IP literal; host names
// are not resolved and report false.
func (m *Manager) IsJoinedTo(group string) bool {
	addr, err := parseGroupLiteral(group)
	if err != nil {
		return false
	}
	return m.registry.Contains(groupKey(addr))
}

// LatestGroup returns the most recently joined group. It still returns a group after
// the group was left.
func (m *Manager) LatestGroup() (string, bool) {
	key := m.latest.Load()
	return key, key != ""
}

// Groups returns the keys of the joined groups in ascending order.
func (m *Manager) Groups() []string {
	data := m.registry.CopyData()
	groups := make([]string, 0, len(data))
	for key := range data {
		groups = append(groups, key)
	}
	sort.Strings(groups)
	return groups
}

// Session returns the session of group.
func (m *Manager) Session(group string) (*Session, bool) {
	addr, err := resolveGroup(group)
	if err != nil {
		return nil, false
	}
	return m.registry.Load(groupKey(addr))
}
