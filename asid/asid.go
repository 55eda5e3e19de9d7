// Package asid encodes sound chip register dumps as ASID MIDI system
// exclusive messages.
package asid

import (
	"io"

	"github.com/go-faster/errors"

	"sidberry/log"
)

const (
	MaxChips = 4

	// Registers carried per chip: 25 real ones plus three shadow slots
	// holding a second write to a voice control register within a frame.
	Registers = 28

	sysexStart = 0xF0
	sysexEnd   = 0xF7
	manufID    = 0x2D

	cmdStart       = 0x4C
	cmdStop        = 0x4D
	cmdEnvironment = 0x31
	cmdChipType    = 0x32
)

// Message command byte per chip.
var chipCommand = [MaxChips]byte{0x4E, 0x50, 0x51, 0x52}

// regmap is the order in which registers appear in a dump message.
var regmap = [Registers]byte{
	0, 1, 2, 3, 5, 6, 7, 8, 9, 10, 12, 13, 14, 15, 16, 17, 19, 20, 21, 22, 23, 24,
	4, 11, 18, 25, 26, 27,
}

// Voice control registers and the shadow slot taking their second write.
var shadow = map[byte]byte{0x04: 0x19, 0x0B: 0x1A, 0x12: 0x1B}

// Clock rates used to derive the frame delta.
const (
	clockPAL  = 985248
	clockNTSC = 1022727
)

type chipState struct {
	reg   [Registers]byte
	dirty [Registers]bool
}

// Encoder accumulates register writes and emits one dump message per chip
// on Flush.
type Encoder struct {
	w     io.Writer
	chips int
	state [MaxChips]chipState
}

func NewEncoder(w io.Writer, chips int) *Encoder {
	if chips < 1 {
		chips = 1
	}
	if chips > MaxChips {
		chips = MaxChips
	}
	return &Encoder{w: w, chips: chips}
}

func (e *Encoder) Chips() int { return e.chips }

func (e *Encoder) send(msg []byte) error {
	if _, err := e.w.Write(msg); err != nil {
		return errors.Wrap(err, "send sysex")
	}
	return nil
}

// Start switches the receiver to sound chip playback mode.
func (e *Encoder) Start() error {
	return e.send([]byte{sysexStart, manufID, cmdStart, sysexEnd})
}

// Stop ends playback mode.
func (e *Encoder) Stop() error {
	return e.send([]byte{sysexStart, manufID, cmdStop, sysexEnd})
}

// FrameDelta returns the microseconds between two video frames.
func FrameDelta(pal bool) int {
	if pal {
		return 1000000 * 63 * 312 / clockPAL
	}
	return 1000000 * 65 * 263 / clockNTSC
}

// Environment announces the video standard and frame delta. The speed
// field carries the chip count.
func (e *Encoder) Environment(pal bool) error {
	const buffering = false
	settings := byte(e.chips&0x0F) << 1
	if buffering {
		settings |= 1 << 6
	}
	if !pal {
		settings |= 1
	}
	fd := FrameDelta(pal)
	return e.send([]byte{
		sysexStart, manufID, cmdEnvironment,
		settings,
		byte(fd & 0x7F),
		byte(fd >> 7 & 0x7F),
		byte(fd >> 14 & 0x03),
		sysexEnd,
	})
}

// ChipType announces the chip model.
func (e *Encoder) ChipType(model6581 bool) error {
	t := byte(1)
	if model6581 {
		t = 0
	}
	return e.send([]byte{sysexStart, manufID, cmdChipType, 0x00, t, sysexEnd})
}

// Dump records a write to register reg of chip (1-based).
func (e *Encoder) Dump(chip int, reg, value byte) error {
	if chip < 1 || chip > e.chips {
		return errors.Errorf("chip %d out of range 1..%d", chip, e.chips)
	}
	st := &e.state[chip-1]
	reg &= 0x1F
	if int(reg) >= Registers {
		return nil
	}

	if !st.dirty[reg] {
		st.reg[reg] = value
		st.dirty[reg] = true
		return nil
	}

	if slot, ok := shadow[reg]; ok {
		// A third write moves the second one back to the real register.
		if st.dirty[slot] {
			st.reg[reg] = st.reg[slot]
		}
		st.reg[slot] = value
		st.dirty[slot] = true
		return nil
	}

	switch reg {
	case 0x16, 0x17, 0x18:
		// Filter and volume changes must not be merged, send what we have.
		if err := e.Flush(); err != nil {
			return err
		}
		st.reg[reg] = value
		st.dirty[reg] = true
	default:
		st.reg[reg] = value
	}
	return nil
}

// Flush sends the pending writes of every chip and clears the dirty marks.
// Chips without pending writes are skipped.
func (e *Encoder) Flush() error {
	for i := 0; i < e.chips; i++ {
		st := &e.state[i]
		msg, ok := st.message(chipCommand[i])
		if !ok {
			continue
		}
		if err := e.send(msg); err != nil {
			return err
		}
		log.ModASID.Debugf("chip %d: %d byte dump", i+1, len(msg))
		st.dirty = [Registers]bool{}
	}
	return nil
}

func (st *chipState) message(cmd byte) ([]byte, bool) {
	var mask, msb uint32
	for i, r := range regmap {
		if st.dirty[r] {
			mask |= 1 << uint(i)
		}
		if st.reg[r] > 0x7F {
			msb |= 1 << uint(i)
		}
	}
	if mask == 0 {
		return nil, false
	}

	msg := make([]byte, 0, 3+8+Registers+1)
	msg = append(msg, sysexStart, manufID, cmd)
	msg = append(msg, septets(mask)...)
	msg = append(msg, septets(msb)...)
	for _, r := range regmap {
		if st.dirty[r] {
			msg = append(msg, st.reg[r]&0x7F)
		}
	}
	return append(msg, sysexEnd), true
}

func septets(v uint32) []byte {
	return []byte{byte(v & 0x7F), byte(v >> 7 & 0x7F), byte(v >> 14 & 0x7F), byte(v >> 21 & 0x7F)}
}
