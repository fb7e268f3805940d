package multicast

import (
	"github.com/pion/logging"
)

type ErrorFunc = func(error)

// Config holds the settings of a Manager, see DefaultConfig.
type Config struct {
	// Errors receives failures that have no synchronous caller, e.g. from background receivers.
	Errors       ErrorFunc
	Logger       logging.LeveledLogger
	PowerLock    PowerLock
	PowerLockTag string
	AddressProbe AddressProbe
	// Interface restricts group membership to the named interface. Empty means all
	// up and multicast capable interfaces; a zone in the group address takes precedence.
	Interface string
	// HopLimit of sent datagrams: the TTL for IPv4 groups, the hop limit for IPv6 groups.
	HopLimit int
}

func DefaultConfig() Config {
	return Config{
		Errors:       func(error) {},
		Logger:       logging.NewDefaultLoggerFactory().NewLogger("multicast"),
		PowerLock:    NopPowerLock{},
		PowerLockTag: "multicast",
		AddressProbe: InterfaceAddressProbe,
		HopLimit:     1,
	}
}

// An Option sets settings of a Manager.
type Option interface {
	ApplyManager(*Config)
}

type ErrorsOpt struct {
	errors ErrorFunc
}

func (o ErrorsOpt) ApplyManager(cfg *Config) {
	if o.errors != nil {
		cfg.Errors = o.errors
	}
}

// WithErrors sets the sink of asynchronous errors.
func WithErrors(errors ErrorFunc) ErrorsOpt {
	return ErrorsOpt{errors: errors}
}

type LoggerOpt struct {
	logger logging.LeveledLogger
}

func (o LoggerOpt) ApplyManager(cfg *Config) {
	if o.logger != nil {
		cfg.Logger = o.logger
	}
}

func WithLogger(logger logging.LeveledLogger) LoggerOpt {
	return LoggerOpt{logger: logger}
}

type PowerLockOpt struct {
	lock PowerLock
	tag  string
}

func (o PowerLockOpt) ApplyManager(cfg *Config) {
	if o.lock != nil {
		cfg.PowerLock = o.lock
	}
	if o.tag != "" {
		cfg.PowerLockTag = o.tag
	}
}

// WithPowerLock sets the lock that brackets the time during which any group is joined.
func WithPowerLock(lock PowerLock, tag string) PowerLockOpt {
	return PowerLockOpt{lock: lock, tag: tag}
}

type AddressProbeOpt struct {
	probe AddressProbe
}

func (o AddressProbeOpt) ApplyManager(cfg *Config) {
	if o.probe != nil {
		cfg.AddressProbe = o.probe
	}
}

// WithAddressProbe sets how own datagrams are recognized.
func WithAddressProbe(probe AddressProbe) AddressProbeOpt {
	return AddressProbeOpt{probe: probe}
}

type InterfaceOpt struct {
	name string
}

func (o InterfaceOpt) ApplyManager(cfg *Config) {
	cfg.Interface = o.name
}

func WithInterface(name string) InterfaceOpt {
	return InterfaceOpt{name: name}
}

type HopLimitOpt struct {
	hopLimit int
}

func (o HopLimitOpt) ApplyManager(cfg *Config) {
	cfg.HopLimit = o.hopLimit
}

func WithHopLimit(hopLimit int) HopLimitOpt {
	return HopLimitOpt{hopLimit: hopLimit}
}
