package transport

import (
	"io"

	"github.com/go-faster/errors"

	"sidberry/asid"
	"sidberry/log"
)

// ASID streams register dumps to a MIDI device as ASID sysex messages.
// Writes are batched per frame and sent on Flush.
type ASID struct {
	port      string
	chips     int
	pal       bool
	model6581 bool

	w   io.WriteCloser
	enc *asid.Encoder
}

func NewASID(port string, chips int, pal, model6581 bool) *ASID {
	return &ASID{port: port, chips: chips, pal: pal, model6581: model6581}
}

func (a *ASID) Setup() error {
	if a.w == nil {
		w, err := asid.OpenPort(a.port)
		if err != nil {
			return err
		}
		a.w = w
	}
	a.enc = asid.NewEncoder(a.w, a.chips)
	if err := a.enc.Start(); err != nil {
		return err
	}
	if err := a.enc.Environment(a.pal); err != nil {
		return err
	}
	log.ModTransport.Infof("asid started, %d chip(s), pal=%t", a.enc.Chips(), a.pal)
	return a.enc.ChipType(a.model6581)
}

func (a *ASID) Write(chip int, reg, value byte) error {
	if chip > a.enc.Chips() {
		return errors.Errorf("asid carries %d chip(s), got write for chip %d", a.enc.Chips(), chip)
	}
	return a.enc.Dump(chip, reg, value)
}

func (a *ASID) Read(chip int, reg byte) (byte, error) { return 0, ErrNotSupported }
func (a *ASID) Flush() error                          { return a.enc.Flush() }
func (a *ASID) Mute() error                           { return nil }
func (a *ASID) Unmute() error                         { return nil }
func (a *ASID) Chips() int                            { return asid.MaxChips }

func (a *ASID) Close() error {
	if a.w == nil {
		return nil
	}
	err := a.enc.Stop()
	if cerr := a.w.Close(); err == nil {
		err = cerr
	}
	a.w = nil
	return err
}
