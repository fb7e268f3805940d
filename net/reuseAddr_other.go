//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows

package net

import "syscall"

func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
