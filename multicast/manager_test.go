package multicast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	mcastNet "github.com/naist-inet-lab/go-ipv6multicast/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGroup1 = "239.255.77.1"
	testGroup2 = "239.255.77.2"
	testGroup6 = "ff02::114"
)

var errTest = errors.New("test error")

type fakePowerLock struct {
	mutex      sync.Mutex
	enabled    int
	disabled   int
	tags       []string
	errEnable  error
	errDisable error
}

func (l *fakePowerLock) EnableOnInterface(tag string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.errEnable != nil {
		return l.errEnable
	}
	l.enabled++
	l.tags = append(l.tags, tag)
	return nil
}

func (l *fakePowerLock) Disable() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.disabled++
	return l.errDisable
}

func (l *fakePowerLock) counts() (int, int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.enabled, l.disabled
}

func requireMulticast(t *testing.T) {
	ifaces, err := mcastNet.MulticastInterfaces()
	require.NoError(t, err)
	if len(ifaces) == 0 {
		t.Skip("no multicast capable interface")
	}
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	opts = append([]Option{WithErrors(func(err error) { t.Log(err) })}, opts...)
	m := New(opts...)
	t.Cleanup(func() {
		errL := m.LeaveAll()
		require.NoError(t, errL)
		waitReceivers(t, m)
	})
	return m
}

func waitReceivers(t *testing.T, m *Manager) {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second * 3):
		require.FailNow(t, "receivers did not stop")
	}
}

func localPort(t *testing.T, m *Manager, group string) int {
	s, ok := m.Session(group)
	require.True(t, ok)
	require.NotZero(t, s.LocalPort())
	return s.LocalPort()
}

func receiveMessage(t *testing.T, messages <-chan *ReceivedMessage) *ReceivedMessage {
	select {
	case msg := <-messages:
		return msg
	case <-time.After(time.Second * 3):
		require.FailNow(t, "no message received")
	}
	return nil
}

func requireNoMessage(t *testing.T, messages <-chan *ReceivedMessage, wait time.Duration) {
	select {
	case msg := <-messages:
		require.FailNow(t, "unexpected message", "%v", msg)
	case <-time.After(wait):
	}
}

func collect(messages chan<- *ReceivedMessage) func(*ReceivedMessage) {
	return func(msg *ReceivedMessage) {
		messages <- msg
	}
}

func TestResolveGroup(t *testing.T) {
	tests := []struct {
		name    string
		group   string
		wantKey string
		wantErr bool
	}{
		{
			name:    "ipv4",
			group:   "224.0.1.187",
			wantKey: "224.0.1.187",
		},
		{
			name:    "ipv6 upper case",
			group:   "FF02::1",
			wantKey: "ff02::1",
		},
		{
			name:    "ipv6 in brackets",
			group:   "[ff02::1]",
			wantKey: "ff02::1",
		},
		{
			name:    "ipv6 with zone",
			group:   "ff02::1%eth0",
			wantKey: "ff02::1%eth0",
		},
		{
			name:    "surrounding spaces",
			group:   " 239.255.77.1 ",
			wantKey: "239.255.77.1",
		},
		{
			name:    "empty",
			group:   "",
			wantErr: true,
		},
		{
			name:    "unicast ipv4",
			group:   "192.168.1.1",
			wantErr: true,
		},
		{
			name:    "unicast ipv6",
			group:   "2001:db8::1",
			wantErr: true,
		},
		{
			name:    "malformed name",
			group:   "bad..name",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := resolveGroup(tt.group)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAddressResolution)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantKey, groupKey(addr))
		})
	}
}

func TestManagerJoinInvalid(t *testing.T) {
	lock := &fakePowerLock{}
	m := newTestManager(t, WithPowerLock(lock, "test"))

	for _, group := range []string{"", "10.0.0.1", "bad..name"} {
		err := m.Join(group, 0)
		require.ErrorIs(t, err, ErrGroupJoin)
		require.ErrorIs(t, err, ErrAddressResolution)
	}
	err := m.Join(testGroup1, -1)
	require.ErrorIs(t, err, ErrGroupJoin)
	require.NotErrorIs(t, err, ErrAddressResolution)
	err = m.Join(testGroup1, 70000)
	require.ErrorIs(t, err, ErrGroupJoin)

	require.False(t, m.IsJoined())
	require.Empty(t, m.Groups())
	_, ok := m.LatestGroup()
	require.False(t, ok)
	enabled, _ := lock.counts()
	require.Equal(t, 0, enabled)
}

func TestManagerJoinIdempotent(t *testing.T) {
	requireMulticast(t)
	lock := &fakePowerLock{}
	m := newTestManager(t, WithPowerLock(lock, "chat"))

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	require.NoError(t, m.Join(testGroup1, 0))
	require.Equal(t, []string{testGroup1}, m.Groups())
	require.Equal(t, port, localPort(t, m, testGroup1))
	require.True(t, m.IsJoined())
	require.True(t, m.IsJoinedTo(testGroup1))
	require.False(t, m.IsJoinedTo(testGroup2))
	require.False(t, m.IsJoinedTo("10.0.0.1"))
	require.True(t, m.IsJoinedTo("["+testGroup1+"]"))
	require.True(t, m.IsJoinedTo(" "+testGroup1+" "))
	require.False(t, m.IsJoinedTo("localhost"))

	latest, ok := m.LatestGroup()
	require.True(t, ok)
	require.Equal(t, testGroup1, latest)

	enabled, disabled := lock.counts()
	require.Equal(t, 1, enabled)
	require.Equal(t, 0, disabled)
	require.Equal(t, []string{"chat"}, lock.tags)
}

func TestParseGroupLiteral(t *testing.T) {
	for _, group := range []string{"224.0.1.187", "FF02::1", "[ff02::1]", "ff02::1%eth0", " 239.255.77.1 "} {
		t.Run(group, func(t *testing.T) {
			want, err := resolveGroup(group)
			require.NoError(t, err)
			got, err := parseGroupLiteral(group)
			require.NoError(t, err)
			require.Equal(t, groupKey(want), groupKey(got))
		})
	}
	for _, group := range []string{"", "localhost", "example.com", "192.168.1.1", "2001:db8::1", "239.255.77.1%eth0"} {
		t.Run("invalid "+group, func(t *testing.T) {
			_, err := parseGroupLiteral(group)
			require.ErrorIs(t, err, ErrAddressResolution)
		})
	}
}

func TestManagerJoinWithConcurrentReaders(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)
	require.NoError(t, m.Join(testGroup1, 0))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			assert.True(t, m.IsJoinedTo(testGroup1))
			assert.Contains(t, m.Groups(), testGroup1)
			// a send racing the leave of testGroup2 may fail on its closed socket
			_, _ = m.Send([]byte("x"), 9)
		}
	}()
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Join(testGroup2, 0))
		require.True(t, m.IsJoinedTo(testGroup2))
		require.NoError(t, m.Leave(testGroup2))
		require.False(t, m.IsJoinedTo(testGroup2))
	}
	close(done)
	wg.Wait()
	require.Equal(t, []string{testGroup1}, m.Groups())
}

func TestManagerJoinEphemeral(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.JoinEphemeral(testGroup1))
	localPort(t, m, testGroup1)
}

func TestManagerJoinPowerLockFailure(t *testing.T) {
	lock := &fakePowerLock{errEnable: errTest}
	m := newTestManager(t, WithPowerLock(lock, ""))

	err := m.Join(testGroup1, 0)
	require.ErrorIs(t, err, ErrGroupJoin)
	require.ErrorIs(t, err, errTest)
	require.False(t, m.IsJoined())
}

func TestManagerJoinUnknownInterface(t *testing.T) {
	lock := &fakePowerLock{}
	m := newTestManager(t, WithPowerLock(lock, ""), WithInterface("does-not-exist0"))

	err := m.Join(testGroup1, 0)
	require.ErrorIs(t, err, ErrGroupJoin)
	require.False(t, m.IsJoined())
	_, ok := m.LatestGroup()
	require.False(t, ok)
	// the lock is released again when the first join fails
	enabled, disabled := lock.counts()
	require.Equal(t, 1, enabled)
	require.Equal(t, 1, disabled)
}

func TestManagerLeaveUnknown(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	err := m.Leave(testGroup1)
	require.ErrorIs(t, err, ErrGroupLeave)
	require.ErrorIs(t, err, ErrNotJoined)

	require.NoError(t, m.Join(testGroup1, 0))
	err = m.Leave(testGroup2)
	require.ErrorIs(t, err, ErrGroupLeave)
	require.ErrorIs(t, err, ErrNotJoined)
	require.Equal(t, []string{testGroup1}, m.Groups())

	err = m.Leave("10.0.0.1")
	require.ErrorIs(t, err, ErrGroupLeave)
	require.ErrorIs(t, err, ErrAddressResolution)
	require.Equal(t, []string{testGroup1}, m.Groups())
}

func TestManagerJoinLeave(t *testing.T) {
	requireMulticast(t)
	lock := &fakePowerLock{}
	m := newTestManager(t, WithPowerLock(lock, ""))

	require.NoError(t, m.Join(testGroup1, 0))
	s, ok := m.Session(testGroup1)
	require.True(t, ok)
	require.NoError(t, m.Leave(testGroup1))
	require.False(t, m.IsJoinedTo(testGroup1))
	require.False(t, m.IsJoined())
	require.True(t, s.conn.IsClosed())

	// the latest group is kept after leave, but it can't be used for receiving
	latest, ok := m.LatestGroup()
	require.True(t, ok)
	require.Equal(t, testGroup1, latest)
	_, err := m.Receive(1024, false)
	require.ErrorIs(t, err, ErrReceive)
	require.ErrorIs(t, err, ErrNotJoined)

	enabled, disabled := lock.counts()
	require.Equal(t, 1, enabled)
	require.Equal(t, 1, disabled)

	// join again after leave
	require.NoError(t, m.Join(testGroup1, 0))
	require.True(t, m.IsJoinedTo(testGroup1))
	enabled, _ = lock.counts()
	require.Equal(t, 2, enabled)
}

func TestManagerLeaveLatest(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	err := m.LeaveLatest()
	require.ErrorIs(t, err, ErrGroupLeave)
	require.ErrorIs(t, err, ErrNotJoined)

	require.NoError(t, m.Join(testGroup1, 0))
	require.NoError(t, m.Join(testGroup2, 0))
	require.NoError(t, m.LeaveLatest())
	require.Equal(t, []string{testGroup1}, m.Groups())

	err = m.LeaveLatest()
	require.ErrorIs(t, err, ErrGroupLeave)
	require.Equal(t, []string{testGroup1}, m.Groups())
}

func TestManagerLeaveAll(t *testing.T) {
	requireMulticast(t)
	lock := &fakePowerLock{}
	m := newTestManager(t, WithPowerLock(lock, ""))

	require.NoError(t, m.LeaveAll())
	require.NoError(t, m.Join(testGroup1, 0))
	require.NoError(t, m.Join(testGroup2, 0))
	require.Equal(t, []string{testGroup1, testGroup2}, m.Groups())

	require.NoError(t, m.LeaveAll())
	require.False(t, m.IsJoined())
	require.Empty(t, m.Groups())
	enabled, disabled := lock.counts()
	require.Equal(t, 1, enabled)
	require.Equal(t, 1, disabled)
}

func TestManagerLeaveAllReportsFailures(t *testing.T) {
	requireMulticast(t)
	lock := &fakePowerLock{errDisable: errTest}
	var errs []error
	m := newTestManager(t, WithPowerLock(lock, ""), WithErrors(func(err error) { errs = append(errs, err) }))

	require.NoError(t, m.Join(testGroup1, 0))
	require.NoError(t, m.Join(testGroup2, 0))
	err := m.LeaveAll()
	require.ErrorIs(t, err, ErrGroupLeave)
	require.ErrorIs(t, err, errTest)
	// every group was left despite the failure
	require.False(t, m.IsJoined())
	require.Len(t, errs, 1)
}

func TestManagerSendNotJoined(t *testing.T) {
	m := newTestManager(t)

	n, err := m.Send([]byte("hello"), 5000)
	require.ErrorIs(t, err, ErrSend)
	require.ErrorIs(t, err, ErrNotJoined)
	require.Equal(t, 0, n)
}

func TestManagerSendInvalidPort(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	_, err := m.Send([]byte("hello"), 0)
	require.ErrorIs(t, err, ErrSend)
}

func TestManagerSendStartReceiver(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, collect(messages)))
	s, _ := m.Session(testGroup1)
	require.True(t, s.ReceiverActive())

	payload := []byte("hello group")
	n, err := m.Send(payload, port)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	msg := receiveMessage(t, messages)
	require.Equal(t, payload, msg.Payload)
	require.Equal(t, testGroup1, msg.Group)
	require.Equal(t, port, msg.LocalPort)
	require.Equal(t, port, msg.SourcePort)
	require.NotNil(t, msg.Source)
	require.Equal(t, port, msg.SourceAddr().Port)

	require.NoError(t, m.Leave(testGroup1))
	waitReceivers(t, m)
	require.False(t, s.ReceiverActive())
}

func TestManagerSendToAllJoinedGroups(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	require.NoError(t, m.Join(testGroup2, port))

	messages1 := make(chan *ReceivedMessage, 8)
	messages2 := make(chan *ReceivedMessage, 8)
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, collect(messages1)))
	require.NoError(t, m.StartReceiver(testGroup2, 1024, false, collect(messages2)))

	payload := []byte("to everybody")
	n, err := m.Send(payload, port)
	require.NoError(t, err)
	require.Equal(t, 2*len(payload), n)

	msg := receiveMessage(t, messages1)
	require.Equal(t, payload, msg.Payload)
	require.Equal(t, testGroup1, msg.Group)
	msg = receiveMessage(t, messages2)
	require.Equal(t, payload, msg.Payload)
	require.Equal(t, testGroup2, msg.Group)
}

func TestManagerSendContinuesOnError(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	require.NoError(t, m.Join(testGroup2, port))
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, collect(messages)))

	broken, ok := m.Session(testGroup2)
	require.True(t, ok)
	require.NoError(t, broken.conn.Close())

	payload := []byte("partial")
	n, err := m.Send(payload, port)
	require.ErrorIs(t, err, ErrSend)
	require.ErrorIs(t, err, mcastNet.ErrConnectionIsClosed)
	require.Equal(t, len(payload), n)

	msg := receiveMessage(t, messages)
	require.Equal(t, payload, msg.Payload)
	require.Equal(t, testGroup1, msg.Group)

	// leaving the group of the closed socket fails, but every session is removed
	err = m.LeaveAll()
	require.ErrorIs(t, err, ErrGroupLeave)
	require.False(t, m.IsJoined())
	waitReceivers(t, m)
}

func TestManagerReceive(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	_, err := m.Receive(1024, false)
	require.ErrorIs(t, err, ErrReceive)
	require.ErrorIs(t, err, ErrNotJoined)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	_, err = m.Receive(0, false)
	require.ErrorIs(t, err, ErrReceive)

	_, err = m.Send([]byte("short"), port)
	require.NoError(t, err)
	msg, err := m.Receive(1024, false)
	require.NoError(t, err)
	require.Equal(t, []byte("short"), msg.Payload)
	require.Equal(t, testGroup1, msg.Group)

	_, err = m.Send([]byte("0123456789"), port)
	require.NoError(t, err)
	msg, err = m.Receive(4, false)
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), msg.Payload)
}

func TestManagerReceiveIgnoreOwn(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)

	messages := make(chan *ReceivedMessage, 1)
	errs := make(chan error, 1)
	go func() {
		msg, err := m.Receive(1024, true)
		if err != nil {
			errs <- err
			return
		}
		messages <- msg
	}()
	_, err := m.Send([]byte("own"), port)
	require.NoError(t, err)
	requireNoMessage(t, messages, time.Millisecond*300)

	// leaving unblocks the receive
	require.NoError(t, m.Leave(testGroup1))
	select {
	case err = <-errs:
		require.ErrorIs(t, err, ErrReceive)
	case msg := <-messages:
		require.FailNow(t, "own message delivered", "%v", msg)
	case <-time.After(time.Second * 3):
		require.FailNow(t, "receive was not interrupted by leave")
	}
}

func TestManagerReceiveIgnoreOwnUsesProbe(t *testing.T) {
	requireMulticast(t)
	probed := 0
	probe := AddressProbeFunc(func(network string) ([]net.IP, error) {
		probed++
		require.Equal(t, "udp4", network)
		return []net.IP{net.ParseIP("192.0.2.1")}, nil
	})
	m := newTestManager(t, WithAddressProbe(probe))

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	_, err := m.Send([]byte("not recognized as own"), port)
	require.NoError(t, err)
	msg, err := m.Receive(1024, true)
	require.NoError(t, err)
	require.Equal(t, []byte("not recognized as own"), msg.Payload)
	require.Equal(t, 1, probed)
}

func TestManagerReceiveProbeFailureDegrades(t *testing.T) {
	requireMulticast(t)
	probe := AddressProbeFunc(func(string) ([]net.IP, error) {
		return nil, errTest
	})
	var errs []error
	m := newTestManager(t, WithAddressProbe(probe), WithErrors(func(err error) { errs = append(errs, err) }))

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	_, err := m.Send([]byte("delivered"), port)
	require.NoError(t, err)
	msg, err := m.Receive(1024, true)
	require.NoError(t, err)
	require.Equal(t, []byte("delivered"), msg.Payload)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], errTest)
}

func TestManagerStartReceiverErrors(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)
	noop := func(*ReceivedMessage) {}

	err := m.StartReceiver(testGroup1, 1024, false, noop)
	require.ErrorIs(t, err, ErrReceiveSetup)
	require.ErrorIs(t, err, ErrNotJoined)

	require.NoError(t, m.Join(testGroup1, 0))
	tests := []struct {
		name       string
		group      string
		bufferSize int
		callback   func(*ReceivedMessage)
	}{
		{
			name:       "nil callback",
			group:      testGroup1,
			bufferSize: 1024,
		},
		{
			name:       "invalid buffer size",
			group:      testGroup1,
			bufferSize: 0,
			callback:   noop,
		},
		{
			name:       "invalid group",
			group:      "10.0.0.1",
			bufferSize: 1024,
			callback:   noop,
		},
		{
			name:       "not joined group",
			group:      testGroup2,
			bufferSize: 1024,
			callback:   noop,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.StartReceiver(tt.group, tt.bufferSize, false, tt.callback)
			require.ErrorIs(t, err, ErrReceiveSetup)
		})
	}

	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, noop))
	err = m.StartReceiver(testGroup1, 1024, false, noop)
	require.ErrorIs(t, err, ErrReceiveSetup)
	require.ErrorIs(t, err, ErrReceiverActive)
}

func TestManagerStartReceiverIgnoreOwn(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	port := localPort(t, m, testGroup1)
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, m.StartReceiver(testGroup1, 1024, true, collect(messages)))
	s, _ := m.Session(testGroup1)
	on, err := s.conn.MulticastLoopback()
	require.NoError(t, err)
	require.False(t, on)

	_, err = m.Send([]byte("own"), port)
	require.NoError(t, err)
	requireNoMessage(t, messages, time.Millisecond*300)
}

func TestManagerLeaveStopsBlockedReceiver(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, func(*ReceivedMessage) {}))
	// let the receiver block in read
	time.Sleep(time.Millisecond * 50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errL := m.Leave(testGroup1)
		require.NoError(t, errL)
	}()
	wg.Wait()
	waitReceivers(t, m)
	require.False(t, m.IsJoined())
}

func TestManagerRejoinStopsOldReceiver(t *testing.T) {
	requireMulticast(t)
	m := newTestManager(t)

	require.NoError(t, m.Join(testGroup1, 0))
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, func(*ReceivedMessage) {}))
	require.NoError(t, m.Leave(testGroup1))
	waitReceivers(t, m)

	require.NoError(t, m.Join(testGroup1, 0))
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, m.StartReceiver(testGroup1, 1024, false, collect(messages)))
	_, err := m.Send([]byte("again"), localPort(t, m, testGroup1))
	require.NoError(t, err)
	require.Equal(t, []byte("again"), receiveMessage(t, messages).Payload)
}

func testTwoManagers(t *testing.T, group string, skipOnSendError bool) {
	b := newTestManager(t)
	if err := b.Join(group, 0); err != nil {
		t.Skipf("cannot join %v: %v", group, err)
	}
	port := localPort(t, b, group)
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, b.StartReceiver(group, 1024, false, collect(messages)))

	a := newTestManager(t)
	require.NoError(t, a.Join(group, port))
	_, err := a.Send([]byte("hello"), port)
	if err != nil && skipOnSendError {
		t.Skipf("cannot send to %v: %v", group, err)
	}
	require.NoError(t, err)

	msg := receiveMessage(t, messages)
	require.Equal(t, []byte("hello"), msg.Payload)
	require.Equal(t, group, msg.Group)
	require.Equal(t, port, msg.SourcePort)
	s, _ := a.Session(group)
	own, err := mcastNet.LocalAddresses(s.conn.Network())
	require.NoError(t, err)
	require.True(t, mcastNet.ContainsIP(own, msg.Source), "source %v is not an address of this host", msg.Source)
	requireNoMessage(t, messages, time.Millisecond*200)
}

func TestManagerTwoInstancesIPv4(t *testing.T) {
	requireMulticast(t)
	testTwoManagers(t, testGroup1, false)
}

func TestManagerTwoInstancesIPv6(t *testing.T) {
	requireMulticast(t)
	testTwoManagers(t, testGroup6, true)
}

func TestManagerIgnoreOwnAcrossInstances(t *testing.T) {
	requireMulticast(t)
	b := newTestManager(t)
	require.NoError(t, b.Join(testGroup1, 0))
	port := localPort(t, b, testGroup1)
	messages := make(chan *ReceivedMessage, 8)
	require.NoError(t, b.StartReceiver(testGroup1, 1024, true, collect(messages)))

	// a runs on the same host, so its datagrams are own datagrams of b
	a := newTestManager(t)
	require.NoError(t, a.Join(testGroup1, port))
	_, err := a.Send([]byte("hello"), port)
	require.NoError(t, err)
	requireNoMessage(t, messages, time.Millisecond*300)
}
