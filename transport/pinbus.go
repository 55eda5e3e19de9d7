package transport

import (
	"time"

	"github.com/go-faster/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"sidberry/log"
)

// PinMap names the host GPIO lines wired to the chip socket.
type PinMap struct {
	Reset   string    `toml:"reset"`
	RW      string    `toml:"rw"`
	CS      string    `toml:"cs"`
	Address [5]string `toml:"address"`
	Data    [8]string `toml:"data"`
}

// DefaultPinMap is the Raspberry Pi wiring used by the sidberry hat.
var DefaultPinMap = PinMap{
	Reset:   "GPIO4",
	RW:      "GPIO17",
	CS:      "GPIO27",
	Address: [5]string{"GPIO22", "GPIO10", "GPIO9", "GPIO11", "GPIO5"},
	Data:    [8]string{"GPIO6", "GPIO13", "GPIO19", "GPIO26", "GPIO14", "GPIO15", "GPIO18", "GPIO23"},
}

// pinBus bit-bangs the chip's parallel bus. CS and RES are active low, RW
// low selects a write.
type pinBus struct {
	res, rw, cs gpio.PinIO
	addr        [5]gpio.PinIO
	data        [8]gpio.PinIO

	// hold is how long CS stays asserted, at least one chip clock cycle.
	hold time.Duration
}

const (
	pinHold   = time.Microsecond
	resetHold = 10 * time.Microsecond
)

func (b *pinBus) reset() error {
	if err := b.res.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "assert reset")
	}
	time.Sleep(resetHold)
	for _, p := range []gpio.PinIO{b.res, b.cs, b.rw} {
		if err := p.Out(gpio.High); err != nil {
			return errors.Wrapf(err, "release %s", p)
		}
	}
	return nil
}

func (b *pinBus) setAddress(reg byte) error {
	for i, p := range b.addr {
		if err := p.Out(gpio.Level(reg&(1<<uint(i)) != 0)); err != nil {
			return errors.Wrapf(err, "address line %d", i)
		}
	}
	return nil
}

func (b *pinBus) strobe(sample func() error) error {
	if err := b.cs.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(b.hold)
	var err error
	if sample != nil {
		err = sample()
	}
	if cerr := b.cs.Out(gpio.High); err == nil {
		err = cerr
	}
	return err
}

func (b *pinBus) write(reg, value byte) error {
	if err := b.setAddress(reg & 0x1F); err != nil {
		return err
	}
	for i, p := range b.data {
		if err := p.Out(gpio.Level(value&(1<<uint(i)) != 0)); err != nil {
			return errors.Wrapf(err, "data line %d", i)
		}
	}
	if err := b.rw.Out(gpio.Low); err != nil {
		return err
	}
	return b.strobe(nil)
}

func (b *pinBus) read(reg byte) (byte, error) {
	if err := b.setAddress(reg & 0x1F); err != nil {
		return 0, err
	}
	for _, p := range b.data {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return 0, errors.Wrapf(err, "switch %s to input", p)
		}
	}
	if err := b.rw.Out(gpio.High); err != nil {
		return 0, err
	}
	var v byte
	err := b.strobe(func() error {
		for i, p := range b.data {
			if p.Read() == gpio.High {
				v |= 1 << uint(i)
			}
		}
		return nil
	})
	return v, err
}

// GPIO drives a single chip wired directly to host GPIO lines.
type GPIO struct {
	pins PinMap
	bus  *pinBus
}

func NewGPIO(pins PinMap) *GPIO {
	if pins.CS == "" {
		pins = DefaultPinMap
	}
	return &GPIO{pins: pins}
}

func (g *GPIO) Setup() error {
	if g.bus == nil {
		if _, err := host.Init(); err != nil {
			return errors.Wrap(err, "init host drivers")
		}
		bus, err := g.pins.resolve()
		if err != nil {
			return err
		}
		g.bus = bus
	}
	log.ModTransport.Debugf("gpio bus cs=%s rw=%s res=%s", g.bus.cs, g.bus.rw, g.bus.res)
	return g.bus.reset()
}

func (m PinMap) resolve() (*pinBus, error) {
	lookup := func(name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, errors.Errorf("unknown gpio pin %q", name)
		}
		return p, nil
	}
	b := &pinBus{hold: pinHold}
	var err error
	if b.res, err = lookup(m.Reset); err != nil {
		return nil, err
	}
	if b.rw, err = lookup(m.RW); err != nil {
		return nil, err
	}
	if b.cs, err = lookup(m.CS); err != nil {
		return nil, err
	}
	for i, name := range m.Address {
		if b.addr[i], err = lookup(name); err != nil {
			return nil, err
		}
	}
	for i, name := range m.Data {
		if b.data[i], err = lookup(name); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Only the low five bits select a register, there is a single socket.
func (g *GPIO) Write(chip int, reg, value byte) error { return g.bus.write(reg, value) }
func (g *GPIO) Read(chip int, reg byte) (byte, error) { return g.bus.read(reg) }
func (g *GPIO) Flush() error                          { return nil }
func (g *GPIO) Mute() error                           { return nil }
func (g *GPIO) Unmute() error                         { return nil }
func (g *GPIO) Chips() int                            { return 1 }

func (g *GPIO) Close() error {
	if g.bus == nil {
		return nil
	}
	return g.bus.reset()
}
