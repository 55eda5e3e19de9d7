package transport

import (
	"github.com/go-faster/errors"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"sidberry/log"
)

// CBus wiring of the FT232H adapter. C0-C4 carry the register address.
const (
	cbusAddrMask = 0x1F
	cbusRES      = 1 << 5
	cbusRW       = 1 << 6
	cbusCS       = 1 << 7

	busOutput = 0xFF
	busInput  = 0x00
)

// byteBus is the byte-wide half of an FT232H used to drive the chip.
type byteBus interface {
	DBus(direction, value byte) error
	DBusRead() (byte, error)
	CBus(direction, value byte) error
}

// FTDI drives a single chip through an FT232H in synchronous bit-bang mode.
// D0-D7 carry data, the CBus carries address and control lines.
type FTDI struct {
	bus byteBus
}

func NewFTDI() *FTDI { return &FTDI{} }

func (f *FTDI) Setup() error {
	if f.bus == nil {
		if _, err := host.Init(); err != nil {
			return errors.Wrap(err, "init host drivers")
		}
		for _, dev := range ftdi.All() {
			if h, ok := dev.(*ftdi.FT232H); ok {
				f.bus = h
				log.ModTransport.Infof("using %s", h)
				break
			}
		}
		if f.bus == nil {
			return errors.New("no FT232H adapter found")
		}
	}
	return f.reset()
}

func (f *FTDI) reset() error {
	if err := f.bus.CBus(busOutput, cbusRW|cbusCS); err != nil {
		return errors.Wrap(err, "assert reset")
	}
	if err := f.bus.CBus(busOutput, cbusRES|cbusRW|cbusCS); err != nil {
		return errors.Wrap(err, "release reset")
	}
	return nil
}

func (f *FTDI) Write(chip int, reg, value byte) error {
	ctrl := reg&cbusAddrMask | cbusRES
	if err := f.bus.DBus(busOutput, value); err != nil {
		return errors.Wrap(err, "set data")
	}
	if err := f.bus.CBus(busOutput, ctrl|cbusCS); err != nil {
		return errors.Wrap(err, "set address")
	}
	if err := f.bus.CBus(busOutput, ctrl); err != nil {
		return errors.Wrap(err, "assert cs")
	}
	if err := f.bus.CBus(busOutput, ctrl|cbusCS); err != nil {
		return errors.Wrap(err, "release cs")
	}
	return nil
}

func (f *FTDI) Read(chip int, reg byte) (byte, error) {
	ctrl := reg&cbusAddrMask | cbusRES | cbusRW
	if err := f.bus.DBus(busInput, 0); err != nil {
		return 0, errors.Wrap(err, "release data")
	}
	if err := f.bus.CBus(busOutput, ctrl|cbusCS); err != nil {
		return 0, errors.Wrap(err, "set address")
	}
	if err := f.bus.CBus(busOutput, ctrl); err != nil {
		return 0, errors.Wrap(err, "assert cs")
	}
	v, err := f.bus.DBusRead()
	if cerr := f.bus.CBus(busOutput, ctrl|cbusCS); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.Wrap(err, "read data")
	}
	return v, nil
}

func (f *FTDI) Flush() error  { return nil }
func (f *FTDI) Mute() error   { return nil }
func (f *FTDI) Unmute() error { return nil }
func (f *FTDI) Chips() int    { return 1 }

func (f *FTDI) Close() error {
	if f.bus == nil {
		return nil
	}
	return f.reset()
}
