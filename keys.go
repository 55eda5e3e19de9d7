package main

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"sidberry/log"
	"sidberry/player"
)

const keyHelp = `    space      pause / resume
    w / s      volume up / down
    v          toggle verbose register dump
    r          restart sub-song
    left/right previous / next sub-song
    q / esc    quit`

// escWait is how long a lone escape waits for the rest of a sequence.
const escWait = 50 * time.Millisecond

type keyState byte

const (
	keyIdle keyState = iota
	keyEsc
	keyCSI
)

// keyParser turns terminal input bytes into player commands.
type keyParser struct {
	state keyState
}

func (k *keyParser) feed(b byte) (player.Command, bool) {
	switch k.state {
	case keyEsc:
		if b == '[' || b == 'O' {
			k.state = keyCSI
			return player.CmdNone, false
		}
		k.state = keyIdle
		return player.CmdQuit, true
	case keyCSI:
		// Skip parameters, as in ESC [ 1 ; 5 C.
		if b >= '0' && b <= '9' || b == ';' {
			return player.CmdNone, false
		}
		k.state = keyIdle
		switch b {
		case 'D':
			return player.CmdPrevSong, true
		case 'C':
			return player.CmdNextSong, true
		}
		return player.CmdNone, false
	}

	switch b {
	case ' ':
		return player.CmdPause, true
	case 'w', 'W':
		return player.CmdVolumeUp, true
	case 's', 'S':
		return player.CmdVolumeDown, true
	case 'v', 'V':
		return player.CmdVerbose, true
	case 'r', 'R':
		return player.CmdRestart, true
	case 'q', 'Q', 0x03:
		return player.CmdQuit, true
	case 0x1B:
		k.state = keyEsc
	}
	return player.CmdNone, false
}

// pending reports whether an escape sequence is in progress.
func (k *keyParser) pending() bool { return k.state != keyIdle }

// timeout ends an escape sequence that did not complete. A lone escape
// quits.
func (k *keyParser) timeout() (player.Command, bool) {
	was := k.state
	k.state = keyIdle
	if was == keyEsc {
		return player.CmdQuit, true
	}
	return player.CmdNone, false
}

// keyboard reads single key presses from the controlling terminal.
type keyboard struct {
	restore func() error
	keys    chan byte
	stop    chan struct{}
	stopped sync.Once
}

// startKeyboard puts the terminal in character mode and starts reading
// keys. It returns nil when stdin is not a terminal.
func startKeyboard() *keyboard {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		log.ModKeys.Infof("stdin is not a terminal, keyboard controls disabled")
		return nil
	}
	restore, err := makeCbreak(fd)
	if err != nil {
		log.ModKeys.Warnf("keyboard controls disabled: %v", err)
		return nil
	}
	kb := &keyboard{
		restore: restore,
		keys:    make(chan byte, 16),
		stop:    make(chan struct{}),
	}
	go kb.read()
	return kb
}

func (kb *keyboard) read() {
	defer close(kb.keys)
	buf := make([]byte, 16)
	for {
		select {
		case <-kb.stop:
			return
		default:
		}

		n, err := os.Stdin.Read(buf)
		for _, b := range buf[:n] {
			select {
			case kb.keys <- b:
			case <-kb.stop:
				return
			}
		}
		// With a terminal read timer, idle reads return no data and io.EOF.
		if err != nil && !(readTimer && n == 0 && err == io.EOF) {
			if err != io.EOF {
				log.ModKeys.Warnf("keyboard: %v", err)
			}
			return
		}
	}
}

// dispatch sends decoded commands to cmds until ctx is done.
func (kb *keyboard) dispatch(ctx context.Context, cmds chan<- player.Command) error {
	var (
		kp  keyParser
		esc <-chan time.Time
	)
	for {
		var (
			cmd player.Command
			ok  bool
		)
		select {
		case <-ctx.Done():
			return nil
		case b, open := <-kb.keys:
			if !open {
				return nil
			}
			cmd, ok = kp.feed(b)
			esc = nil
			if kp.pending() {
				esc = time.After(escWait)
			}
		case <-esc:
			esc = nil
			cmd, ok = kp.timeout()
		}
		if !ok {
			continue
		}
		log.ModKeys.Debugf("key command %s", cmd)
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop restores the terminal.
func (kb *keyboard) Stop() {
	kb.stopped.Do(func() {
		close(kb.stop)
		if err := kb.restore(); err != nil {
			log.ModKeys.Warnf("restore terminal: %v", err)
		}
	})
}
