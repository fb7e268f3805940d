package multicast

import (
	"errors"
	"fmt"
	"net"

	mcastNet "github.com/naist-inet-lab/go-ipv6multicast/net"
)

// StartReceiver starts a goroutine that reads datagrams of the joined group and calls
// callback for each of them, one call at a time. With ignoreOwnSentPackets the
// multicast loopback of the session socket is turned off and datagrams whose source is
// an address of this host are skipped; otherwise loopback is turned on.
//
// The receiver stops when the group is left. A failing read stops it as well; the
// failure is reported to the errors sink of the manager.
func (m *Manager) StartReceiver(group string, bufferSize int, ignoreOwnSentPackets bool, callback func(*ReceivedMessage)) error {
	if callback == nil {
		return fmt.Errorf("%w: invalid callback", ErrReceiveSetup)
	}
	if bufferSize <= 0 {
		return fmt.Errorf("%w: invalid buffer size %v", ErrReceiveSetup, bufferSize)
	}
	addr, err := resolveGroup(group)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReceiveSetup, err)
	}
	key := groupKey(addr)
	s, ok := m.registry.Load(key)
	if !ok {
		return fmt.Errorf("%w %v: %w", ErrReceiveSetup, key, ErrNotJoined)
	}
	if !s.receiving.CompareAndSwap(false, true) {
		return fmt.Errorf("%w %v: %w", ErrReceiveSetup, key, ErrReceiverActive)
	}
	if err := s.conn.SetMulticastLoopback(!ignoreOwnSentPackets); err != nil {
		s.receiving.Store(false)
		return fmt.Errorf("%w %v: cannot set multicast loopback: %w", ErrReceiveSetup, key, err)
	}
	var ignore []net.IP
	if ignoreOwnSentPackets {
		ignore = m.ownAddresses(s)
	}
	m.receivers.Add(1)
	go m.runReceiver(s, make([]byte, bufferSize), ignore, callback)
	m.cfg.Logger.Debugf("receiver of group %v started", key)
	return nil
}

// isCurrent reports whether s is still the registered session of its group.
func (m *Manager) isCurrent(s *Session) bool {
	v, ok := m.registry.Load(s.key)
	return ok && v == s
}

func (m *Manager) runReceiver(s *Session, buffer []byte, ignore []net.IP, callback func(*ReceivedMessage)) {
	defer m.receivers.Done()
	defer s.receiving.Store(false)
	for m.isCurrent(s) {
		msg, err := s.read(buffer, ignore)
		if err != nil {
			if s.conn.IsClosed() || errors.Is(err, net.ErrClosed) || errors.Is(err, mcastNet.ErrConnectionIsClosed) {
				break
			}
			m.reportError(fmt.Errorf("%w %v: receiver stopped: %w", ErrReceive, s.key, err))
			return
		}
		if !m.isCurrent(s) {
			break
		}
		callback(msg)
	}
	m.cfg.Logger.Debugf("receiver of group %v stopped", s.key)
}

// Wait blocks until all receivers started so far have stopped. It must not be called
// concurrently with StartReceiver.
func (m *Manager) Wait() {
	m.receivers.Wait()
}
