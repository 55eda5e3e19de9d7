package psid

// Flags is the v2+ header flags word.
type Flags uint16

// MUSPlayer reports whether the payload is Compute!'s Sidplayer MUS data.
func (f Flags) MUSPlayer() bool { return f&0x01 != 0 }

// PlaySIDSpecific reports whether the tune relies on PlaySID extensions.
func (f Flags) PlaySIDSpecific() bool { return f&0x02 != 0 }

// Clock returns the video standard the tune was written for.
func (f Flags) Clock() Clock { return Clock((f >> 2) & 3) }

// Model returns the chip model required by chip n (1-based).
func (f Flags) Model(n int) Model {
	if n < 1 {
		n = 1
	}
	shift := uint(4 + 2*(n-1))
	return Model((f >> shift) & 3)
}

// Clock is a video standard code. The first four values come from the
// header flags, Drean is only selectable by the user.
type Clock uint8

const (
	ClockUnknown Clock = iota
	ClockPAL
	ClockNTSC
	ClockAny
	ClockDrean
)

var clockNames = [...]string{"Unknown", "PAL", "NTSC", "PAL and NTSC", "DREAN"}

func (c Clock) String() string {
	if int(c) < len(clockNames) {
		return clockNames[c]
	}
	return clockNames[0]
}

// Model is a chip model code.
type Model uint8

const (
	ModelUnknown Model = iota
	Model6581
	Model8580
	ModelAny
)

var modelNames = [...]string{"Unknown", "MOS6581", "MOS8580", "MOS6581 and MOS8580"}

func (m Model) String() string {
	if int(m) < len(modelNames) {
		return modelNames[m]
	}
	return modelNames[0]
}
