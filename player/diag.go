package player

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// diag prints per-access and per-instruction diagnostics.
type diag struct {
	w io.Writer

	verbose atomic.Bool
	trace   bool
	debug   bool

	frame      *uint32
	lastWrite  time.Time
	lastCycles uint64
	cycles     func() uint64
}

// observe is installed as the bus observer.
func (d *diag) observe(bus *Bus) func(Access) {
	return func(a Access) {
		if !d.verbose.Load() {
			return
		}
		if !d.trace {
			if a.Write {
				d.voiceLine(bus)
			}
			return
		}
		if !a.Write {
			fmt.Fprintf(d.w, "[%d][R]@%02x [D]%02x\n", a.Chip, a.Phy, a.Value)
			return
		}
		now, cyc := time.Now(), d.cycles()
		var us int64
		if !d.lastWrite.IsZero() {
			us = now.Sub(d.lastWrite).Microseconds()
		}
		fmt.Fprintf(d.w, "[%d][W]@%02x [D]%02x [F]%d [C]%d %d\n", a.Chip, a.Phy, a.Value, *d.frame, us, cyc-d.lastCycles)
		d.lastWrite, d.lastCycles = now, cyc
	}
}

// voiceLine prints the first chip's registers.
func (d *diag) voiceLine(bus *Bus) {
	base := bus.routing.Bases[0]
	r := func(i uint16) byte { return bus.Peek(base + i) }
	for v := uint16(0); v < 3; v++ {
		o := v * 7
		fmt.Fprintf(d.w, "Voice %d: $%02X%02X %02X%02X %02X %02X %02X | ",
			v+1, r(o), r(o+1), r(o+2), r(o+3), r(o+4), r(o+5), r(o+6))
	}
	fmt.Fprintf(d.w, "Filter: %02X %02X %02X Vol: %02X\n", r(0x15), r(0x16), r(0x17), r(0x18))
}

// step is installed as the CPU trace hook when debugging.
func (d *diag) step(c *CPU) {
	fmt.Fprintf(d.w, "[C]%4d [PC]%04X [S]%02X [P]%02X [A]%02X [X]%02X [Y]%02X",
		c.Cycles, c.Reg.PC, c.Reg.SP, c.Reg.SavePS(false), c.Reg.A, c.Reg.X, c.Reg.Y)
	if c.bus.wroteChip {
		fmt.Fprintf(d.w, " [W]%04X:%02X", c.bus.lastWrite, c.bus.lastValue)
	}
	if c.bus.readChipBack {
		fmt.Fprintf(d.w, " [R]%04X", c.bus.lastRead)
	}
	fmt.Fprintln(d.w)
}
