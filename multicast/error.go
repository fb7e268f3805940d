package multicast

type Error string

func (e Error) Error() string { return string(e) }

// Errors returned by Manager. Every failure wraps one of the operation errors, and
// additionally ErrAddressResolution or ErrNotJoined when that is the cause, so callers
// can distinguish them with errors.Is.
const (
	ErrAddressResolution = Error("cannot resolve multicast group address")
	ErrGroupJoin         = Error("cannot join multicast group")
	ErrGroupLeave        = Error("cannot leave multicast group")
	ErrSend              = Error("cannot send to multicast groups")
	ErrReceive           = Error("cannot receive from multicast group")
	ErrReceiveSetup      = Error("cannot start multicast receiver")
	ErrNotJoined         = Error("multicast group is not joined")
	ErrReceiverActive    = Error("receiver is already running for multicast group")
)
