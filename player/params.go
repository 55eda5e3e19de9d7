package player

import (
	"time"

	"sidberry/psid"
)

// Clock rates in Hz, indexed by psid.Clock.
const (
	ClockDefault = 1000000
	ClockPAL     = 985248
	ClockNTSC    = 1022727
	ClockDrean   = 1023440
)

// Frame periods in microseconds, indexed by psid.Clock.
const (
	HertzDefault = 20000
	Hertz50      = 19950
	Hertz60      = 16715
)

var clockSpeed = [...]int{ClockDefault, ClockPAL, ClockNTSC, ClockNTSC, ClockDrean}

var refreshRate = [...]int{HertzDefault, Hertz50, Hertz60, Hertz60, Hertz50}

type raster struct{ lines, cycles int }

var rasters = [...]raster{
	psid.ClockUnknown: {312, 63},
	psid.ClockPAL:     {312, 63},
	psid.ClockNTSC:    {263, 65},
	psid.ClockAny:     {263, 65},
	psid.ClockDrean:   {312, 65},
}

// CIA timer A latch, holding the play interval of CIA paced tunes.
const (
	ciaTimerLo = 0xDC04
	ciaTimerHi = 0xDC05
)

// Overrides replace values derived from the tune header.
type Overrides struct {
	// Standard forces a video standard when ForceStandard is set.
	Standard      psid.Clock
	ForceStandard bool

	// ClockHz and FrameUs are used as is when the matching Manual flag is
	// set. Non positive values select the defaults.
	ClockHz     int
	ManualClock bool
	FrameUs     int
	ManualFrame bool

	// NoCIA ignores the speed bits and always paces by refresh rate.
	NoCIA bool
}

// Params holds the timing of one playback session.
type Params struct {
	Standard      psid.Clock
	ClockSpeed    int // Hz
	RefreshRate   int // microseconds per frame
	RasterLines   int
	CyclesPerLine int
	CIA           bool
}

// Resolve derives the playback timing of song (0-based).
func Resolve(t *psid.Tune, song int, o Overrides) Params {
	std := t.Flags.Clock()
	if o.ForceStandard {
		std = o.Standard
	}
	if int(std) >= len(clockSpeed) {
		std = psid.ClockUnknown
	}

	p := Params{
		Standard:      std,
		ClockSpeed:    clockSpeed[std],
		RefreshRate:   refreshRate[std],
		RasterLines:   rasters[std].lines,
		CyclesPerLine: rasters[std].cycles,
		CIA:           t.CIATimed(song) && !o.NoCIA,
	}
	if o.ManualClock {
		p.ClockSpeed = ClockDefault
		if o.ClockHz > 0 {
			p.ClockSpeed = o.ClockHz
		}
	}
	if o.ManualFrame {
		p.RefreshRate = HertzDefault
		if o.FrameUs > 0 {
			p.RefreshRate = o.FrameUs
		}
	}
	return p
}

// FrameCycles is the number of CPU cycles in one video frame.
func (p Params) FrameCycles() int { return p.RasterLines * p.CyclesPerLine }

// PlayRate returns the frame period in microseconds. CIA paced tunes use
// the timer latch programmed by their init routine; an unset latch falls
// back to the refresh rate.
func (p Params) PlayRate(mem Peeker) int {
	if p.CIA {
		if v := int(mem.Peek(ciaTimerHi))<<8 | int(mem.Peek(ciaTimerLo)); v != 0 {
			return v
		}
	}
	return p.RefreshRate
}

// Period is PlayRate as a duration.
func (p Params) Period(mem Peeker) time.Duration {
	return time.Duration(p.PlayRate(mem)) * time.Microsecond
}
