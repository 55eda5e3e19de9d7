//go:build !linux

package main

import (
	"github.com/go-faster/errors"
	"golang.org/x/term"
)

// Raw mode reads block until a key arrives.
const readTimer = false

// makeCbreak falls back to raw mode. Ctrl-C then arrives as a key and is
// mapped to quit.
func makeCbreak(fd int) (func() error, error) {
	st, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errors.Wrap(err, "set raw mode")
	}
	return func() error { return term.Restore(fd, st) }, nil
}
