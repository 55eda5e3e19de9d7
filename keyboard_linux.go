//go:build linux

package main

import (
	"github.com/go-faster/errors"
	"golang.org/x/sys/unix"
)

// readTimer is set because makeCbreak arms VTIME, so the reader can notice
// a stop request without a key press.
const readTimer = true

// makeCbreak disables line buffering and echo but keeps signals and output
// processing, so Ctrl-C still interrupts and status lines render normally.
func makeCbreak(fd int) (func() error, error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, errors.Wrap(err, "get terminal state")
	}
	t := *old
	t.Lflag &^= unix.ICANON | unix.ECHO
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1 // tenths of a second
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &t); err != nil {
		return nil, errors.Wrap(err, "set terminal state")
	}
	return func() error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, old)
	}, nil
}
