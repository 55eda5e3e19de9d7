// Package transport carries sound chip register accesses to real or virtual
// hardware.
package transport

import (
	"github.com/go-faster/errors"

	"sidberry/log"
)

// ErrNotSupported is returned by transports that cannot perform an operation,
// typically register reads on write-only links.
var ErrNotSupported = errors.New("operation not supported by transport")

// A Transport forwards translated register accesses to a sound chip.
//
// reg is the physical register offset computed by address translation:
// (chip-1)*0x20 + register. chip is 1-based.
type Transport interface {
	Setup() error
	Write(chip int, reg, value byte) error
	Read(chip int, reg byte) (byte, error)
	// Flush is called once per frame, after the play routine ran.
	Flush() error
	Mute() error
	Unmute() error
	Close() error
	// Chips reports how many chips the transport can address.
	Chips() int
}

type Kind string

const (
	KindNull   Kind = "null"
	KindUSB    Kind = "usb"
	KindSerial Kind = "serial"
	KindGPIO   Kind = "gpio"
	KindFTDI   Kind = "ftdi"
	KindASID   Kind = "asid"
)

// Kinds lists all transport kinds, in the order shown to users.
var Kinds = []Kind{KindUSB, KindSerial, KindASID, KindGPIO, KindFTDI, KindNull}

// Options selects and configures a transport.
type Options struct {
	Kind   Kind
	Device string // serial device
	Baud   int
	Cycles bool // serial: append cycle delay bytes to every write
	Async  bool // usb: queue writes to a background pump
	MIDI   string
	Pins   PinMap
	// Chips overrides the chip capacity reported by the transport.
	Chips int

	// ASID environment, derived from the tune.
	PAL       bool
	Model6581 bool
	TuneChips int
}

const (
	DefaultSerialDevice = "/dev/ttyAMA5"
	DefaultBaud         = 921600
)

// Open creates the transport described by opts and sets it up.
func Open(opts Options) (Transport, error) {
	var t Transport
	switch opts.Kind {
	case KindNull, "":
		t = &Null{}
	case KindUSB:
		t = NewUSB(opts.Async)
	case KindSerial:
		dev, baud := opts.Device, opts.Baud
		if dev == "" {
			dev = DefaultSerialDevice
		}
		if baud == 0 {
			baud = DefaultBaud
		}
		t = NewSerial(dev, baud, opts.Cycles)
	case KindGPIO:
		t = NewGPIO(opts.Pins)
	case KindFTDI:
		t = NewFTDI()
	case KindASID:
		t = NewASID(opts.MIDI, opts.TuneChips, opts.PAL, opts.Model6581)
	default:
		return nil, errors.Errorf("unknown transport %q", opts.Kind)
	}

	if opts.Chips > 0 {
		t = withChips{Transport: t, chips: opts.Chips}
	}
	if err := t.Setup(); err != nil {
		return nil, errors.Wrapf(err, "%s transport setup", opts.Kind)
	}
	log.ModTransport.WithField("kind", opts.Kind).Infof("transport ready, %d chip(s)", t.Chips())
	return t, nil
}

type withChips struct {
	Transport
	chips int
}

func (w withChips) Chips() int { return w.chips }

// Null discards every access. Reads return 0.
type Null struct {
	Writes uint64
}

func (n *Null) Setup() error { return nil }

func (n *Null) Write(chip int, reg, value byte) error {
	n.Writes++
	return nil
}

func (n *Null) Read(chip int, reg byte) (byte, error) { return 0, nil }
func (n *Null) Flush() error                          { return nil }
func (n *Null) Mute() error                           { return nil }
func (n *Null) Unmute() error                         { return nil }
func (n *Null) Close() error                          { return nil }
func (n *Null) Chips() int                            { return 4 }
