package player

const (
	// WindowSize is the size of one chip's register window.
	WindowSize = 0x20

	// ChipNone and OffsetNone are returned for addresses outside every
	// window. ChipSkip marks a probe write that is recorded in memory but
	// never forwarded.
	ChipNone   = 0
	ChipSkip   = 5
	OffsetNone = 0xFE

	// Addresses some tunes probe for an FM expansion.
	probeFM1 = 0xDF40
	probeFM2 = 0xDF50
)

// Routing maps emulated addresses to a chip and a physical register offset.
type Routing struct {
	// Bases holds the window base of chips 1..n.
	Bases []uint16
	// AuxChip receives the FM probe writes, 0 drops them.
	AuxChip int
	// SocketTwo is added to offsets of single chip tunes, moving them to a
	// later socket of a multi-socket device.
	SocketTwo byte
}

// SocketTwoOffset returns the offset that moves a single chip tune to the
// second socket, which holds 1 or 2 chips.
func SocketTwoOffset(socketOneChips int) byte {
	if socketOneChips >= 2 {
		return 0x40
	}
	return 0x20
}

// Translate returns the chip (1-based) and physical register offset for
// addr. The first matching window wins.
func (r Routing) Translate(addr uint16) (chip int, offset byte) {
	if addr == probeFM1 || addr == probeFM2 {
		if r.AuxChip >= 1 && r.AuxChip <= 4 {
			return r.AuxChip, byte((r.AuxChip-1)*WindowSize) + byte(addr&0x1F)
		}
		return ChipSkip, 0x80 | byte(addr&0x1F)
	}
	for i, base := range r.Bases {
		if addr >= base && uint32(addr) < uint32(base)+WindowSize {
			off := byte(i*WindowSize) + byte(addr&0x1F)
			if len(r.Bases) == 1 {
				off += r.SocketTwo
			}
			return i + 1, off
		}
	}
	return ChipNone, OffsetNone
}

// VolumeAddr returns the master volume register of chip n (1-based).
func (r Routing) VolumeAddr(n int) uint16 { return r.Bases[n-1] + 0x18 }
