package player

import (
	"fmt"
	"io"

	"github.com/beevik/go6502/cpu"
)

const (
	opRTI = 0x40

	vecReset = 0xFFFC
	vecIRQ   = 0xFFFE

	// KERNAL interrupt exits, jumped to by handlers installed at $0314.
	kernalIRQExit  = 0xEA31
	kernalIRQExit2 = 0xEA81

	rasterLo = 0xD012
	rasterHi = 0xD011
)

// CPU runs the tune's code on a 6502 core attached to a Bus.
type CPU struct {
	*cpu.CPU
	bus *Bus

	// Trace, when set, is called after every instruction.
	Trace func(c *CPU)
}

func NewCPU(bus *Bus) *CPU {
	return &CPU{CPU: cpu.NewCPU(cpu.NMOS, bus), bus: bus}
}

// Reset clears the registers, sets the stack pointer to $FF, masks
// interrupts and jumps through the reset vector.
func (c *CPU) Reset() {
	c.Reg.A, c.Reg.X, c.Reg.Y = 0, 0, 0
	c.Reg.SP = 0xFF
	c.Reg.Carry, c.Reg.Zero, c.Reg.Decimal, c.Reg.Overflow, c.Reg.Sign = false, false, false, false, false
	c.Reg.InterruptDisable = true
	c.SetPC(c.bus.LoadAddress(vecReset))
}

func (c *CPU) push(v byte) {
	c.bus.Poke(0x100|uint16(c.Reg.SP), v)
	c.Reg.SP--
}

func (c *CPU) pull() byte {
	c.Reg.SP++
	return c.bus.Peek(0x100 | uint16(c.Reg.SP))
}

// IRQ raises a maskable interrupt. It returns false when interrupts are
// disabled and nothing happened.
func (c *CPU) IRQ() bool {
	if c.Reg.InterruptDisable {
		return false
	}
	c.push(byte(c.Reg.PC >> 8))
	c.push(byte(c.Reg.PC))
	c.push(c.Reg.SavePS(false))
	c.Reg.InterruptDisable = true
	c.SetPC(c.bus.LoadAddress(vecIRQ))
	c.Cycles += 7
	return true
}

// rti returns from an interrupt on behalf of a handler that left through
// the KERNAL, which is not mapped.
func (c *CPU) rti() {
	c.Reg.RestorePS(c.pull())
	lo := c.pull()
	hi := c.pull()
	c.SetPC(uint16(hi)<<8 | uint16(lo))
}

func (c *CPU) step() {
	c.bus.clearLast()
	c.Step()
	c.tickRaster()
	if c.Trace != nil {
		c.Trace(c)
	}
}

// tickRaster advances the raster line counter once per instruction, which
// is enough for tunes that busy-wait on it.
func (c *CPU) tickRaster() {
	line := c.bus.Peek(rasterLo) + 1
	c.bus.Poke(rasterLo, line)
	ctrl := c.bus.Peek(rasterHi)
	if line == 0 || (ctrl&0x80 != 0 && line >= 0x38) {
		c.bus.Poke(rasterHi, ctrl^0x80)
		c.bus.Poke(rasterLo, 0)
	}
}

// RunCycles executes instructions until at least n cycles elapsed.
func (c *CPU) RunCycles(n uint64) {
	end := c.Cycles + n
	for c.Cycles < end {
		c.step()
	}
}

// RunBurst executes the interrupt handler entered by IRQ until it returns
// to the idle loop, or until max cycles elapsed. It returns the cycles used
// and whether the handler returned.
func (c *CPU) RunBurst(max uint64) (uint64, bool) {
	start := c.Cycles
	for c.Cycles-start < max {
		c.step()
		if c.bus.Peek(c.LastPC) == opRTI && inIdleLoop(c.Reg.PC) {
			return c.Cycles - start, true
		}
		if c.bus.Peek(0x01)&0x07 != 0x05 && (c.Reg.PC == kernalIRQExit || c.Reg.PC == kernalIRQExit2) {
			c.rti()
			return c.Cycles - start, true
		}
	}
	return c.Cycles - start, false
}

func inIdleLoop(pc uint16) bool {
	return pc >= idleLoop && pc < idleLoop+3
}

// DumpState prints the last executed instruction and the registers.
func (c *CPU) DumpState(w io.Writer) {
	fmt.Fprintf(w, "PC: %04x OP: %02x A:%02x X:%02x Y:%02x SP:%02x\n",
		c.LastPC, c.bus.Peek(c.LastPC), c.Reg.A, c.Reg.X, c.Reg.Y, c.Reg.SP)
}
