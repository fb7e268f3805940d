package multicast

// PowerLock keeps multicast reception alive on platforms that filter multicast to
// save power, for example a WiFi multicast lock on mobile devices.
//
// The manager enables the lock before it opens the first group session and disables
// it after the last session was closed.
type PowerLock interface {
	EnableOnInterface(tag string) error
	Disable() error
}

// NopPowerLock is the PowerLock of platforms that deliver multicast unconditionally.
type NopPowerLock struct{}

func (NopPowerLock) EnableOnInterface(string) error { return nil }

func (NopPowerLock) Disable() error { return nil }
