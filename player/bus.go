package player

import (
	"math/rand"

	"sidberry/log"
	"sidberry/transport"
)

// Peeker reads memory without side effects.
type Peeker interface {
	Peek(addr uint16) byte
}

const (
	// Registers whose reads return live chip output: oscillator 3 and
	// envelope 3.
	regOsc3 = 0x1B
	regEnv3 = 0x1C
)

// inSoundRange reports whether addr may hold a chip register window.
func inSoundRange(addr uint16) bool {
	return (addr >= 0xD400 && addr <= 0xD7FF) || addr >= 0xDE00 && addr <= 0xDFFF
}

// Access describes one forwarded register access.
type Access struct {
	Write bool
	Addr  uint16
	Chip  int
	Phy   byte
	Value byte
}

// Bus is the 64K address space seen by the CPU. Writes to chip windows are
// kept in memory and forwarded to the transport.
type Bus struct {
	mem     [0x10000]byte
	routing Routing
	out     transport.Transport

	// RealReads sends oscillator and envelope reads to the device instead
	// of emulating them with random values.
	RealReads bool
	// Observe, when set, sees every forwarded write and device read.
	Observe func(Access)

	rng *rand.Rand

	readFails, writeFails int

	// Last chip access of the current instruction, for tracing.
	lastWrite, lastRead     uint16
	lastValue               byte
	wroteChip, readChipBack bool
}

func NewBus(routing Routing, out transport.Transport) *Bus {
	return &Bus{routing: routing, out: out, rng: rand.New(rand.NewSource(0))}
}

// Reset zeroes memory and reseeds the random source, so every load starts
// from the same state.
func (b *Bus) Reset() {
	b.mem = [0x10000]byte{}
	b.rng.Seed(0)
	b.clearLast()
}

func (b *Bus) Routing() Routing { return b.routing }

// Peek reads memory without going through chip emulation.
func (b *Bus) Peek(addr uint16) byte { return b.mem[addr] }

// Poke writes memory without forwarding.
func (b *Bus) Poke(addr uint16, v byte) { b.mem[addr] = v }

// Copy writes data at addr, clamped at the end of the address space.
func (b *Bus) Copy(addr uint16, data []byte) int {
	return copy(b.mem[addr:], data)
}

// LoadByte implements cpu.Memory.
func (b *Bus) LoadByte(addr uint16) byte {
	if !inSoundRange(addr) {
		return b.mem[addr]
	}
	reg := addr & 0x1F
	if reg != regOsc3 && reg != regEnv3 {
		return b.mem[addr]
	}
	b.lastRead, b.readChipBack = addr, true
	if !b.RealReads {
		return byte(b.rng.Intn(256))
	}
	chip, phy := b.routing.Translate(addr)
	if chip == ChipNone || chip == ChipSkip {
		return b.mem[addr]
	}
	v, err := b.out.Read(chip, phy)
	if err != nil {
		b.readFails++
		logFailure("read", b.readFails, addr, chip, phy, err)
		return b.mem[addr]
	}
	if b.Observe != nil {
		b.Observe(Access{Addr: addr, Chip: chip, Phy: phy, Value: v})
	}
	return v
}

// LoadBytes implements cpu.Memory.
func (b *Bus) LoadBytes(addr uint16, p []byte) {
	for i := range p {
		p[i] = b.LoadByte(addr + uint16(i))
	}
}

// LoadAddress implements cpu.Memory. Vectors and pointers never live in
// chip windows, so they are read directly.
func (b *Bus) LoadAddress(addr uint16) uint16 {
	return uint16(b.mem[addr]) | uint16(b.mem[addr+1])<<8
}

// StoreByte implements cpu.Memory.
func (b *Bus) StoreByte(addr uint16, v byte) {
	b.mem[addr] = v
	if !inSoundRange(addr) {
		return
	}
	b.lastWrite, b.lastValue, b.wroteChip = addr, v, true
	chip, phy := b.routing.Translate(addr)
	if chip == ChipNone || chip == ChipSkip {
		return
	}
	if b.Observe != nil {
		b.Observe(Access{Write: true, Addr: addr, Chip: chip, Phy: phy, Value: v})
	}
	if err := b.out.Write(chip, phy, v); err != nil {
		b.writeFails++
		logFailure("write", b.writeFails, addr, chip, phy, err)
	}
}

// StoreBytes implements cpu.Memory.
func (b *Bus) StoreBytes(addr uint16, p []byte) {
	for i, v := range p {
		b.StoreByte(addr+uint16(i), v)
	}
}

// StoreAddress implements cpu.Memory.
func (b *Bus) StoreAddress(addr uint16, v uint16) {
	b.StoreByte(addr, byte(v))
	b.StoreByte(addr+1, byte(v>>8))
}

// logFailure reports the first transport failure of a kind, then one in
// every failureLogEvery.
func logFailure(op string, n int, addr uint16, chip int, phy byte, err error) {
	if n != 1 && n%failureLogEvery != 0 {
		return
	}
	log.ModBus.WithField("failures", n).Warnf("%s $%04X (chip %d @%02x): %v", op, addr, chip, phy, err)
}

const failureLogEvery = 1000

func (b *Bus) clearLast() {
	b.wroteChip, b.readChipBack = false, false
}
