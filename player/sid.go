package player

// Sid is a snapshot of one chip's write-only registers, taken from memory
// after a frame.
type Sid struct {
	Channel  [3]Voice
	Filt     Filter
	Register [25]byte
	// Period is the frame period in microseconds.
	Period uint16
}

// Voice holds the registers of one voice.
type Voice struct {
	Freq  uint16
	Pulse uint16
	ADSR  uint16
	Wave  uint8
	// Note is the nearest note index, -1 after a gate restart.
	Note int
}

// Filter holds the filter and volume registers.
type Filter struct {
	Type    uint8
	Control uint8
	Cutoff  uint16
}

// Capture reads the chip registers at base.
func (s *Sid) Capture(mem Peeker, base uint16, period int) {
	for i := range s.Register {
		s.Register[i] = mem.Peek(base + uint16(i))
	}
	r := s.Register[:]
	for i := range s.Channel {
		v := r[7*i:]
		s.Channel[i].Freq = uint16(v[0]) | uint16(v[1])<<8
		s.Channel[i].Pulse = (uint16(v[2]) | uint16(v[3])<<8) & 0xFFF
		s.Channel[i].Wave = v[4]
		s.Channel[i].ADSR = uint16(v[5])<<8 | uint16(v[6])
	}
	s.Filt.Cutoff = uint16(r[0x15]&0x07) | uint16(r[0x16])<<3
	s.Filt.Control = r[0x17]
	s.Filt.Type = r[0x18]
	s.Period = uint16(period)
}
