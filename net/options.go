package net

// A UDPOption sets options of UDPConn such as the errors callback.
type UDPOption interface {
	ApplyUDP(*UDPConnConfig)
}

type ErrorsOpt struct {
	errors func(err error)
}

func (h ErrorsOpt) ApplyUDP(o *UDPConnConfig) {
	if h.errors != nil {
		o.Errors = h.errors
	}
}

// WithErrors sets the callback that receives non fatal errors of the connection.
func WithErrors(v func(err error)) ErrorsOpt {
	return ErrorsOpt{
		errors: v,
	}
}
