package math

import "fmt"

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// SafeCastTo converts from to T. It fails when the value is not representable by T.
func SafeCastTo[T, F Integer](from F) (T, error) {
	to := T(from)
	if F(to) != from || (to < 0) != (from < 0) {
		return 0, fmt.Errorf("value(%v) is out of range of type(%T)", from, to)
	}
	return to, nil
}
