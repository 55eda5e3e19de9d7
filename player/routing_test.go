package player

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"sidberry/psid"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		routing  Routing
		addr     uint16
		wantChip int
		wantPhy  byte
	}{
		{name: "first chip", routing: Routing{Bases: []uint16{0xD400}}, addr: 0xD418, wantChip: 1, wantPhy: 0x18},
		{name: "second chip", routing: Routing{Bases: []uint16{0xD400, 0xD440}}, addr: 0xD450, wantChip: 2, wantPhy: 0x30},
		{name: "window end", routing: Routing{Bases: []uint16{0xD400, 0xD440}}, addr: 0xD45F, wantChip: 2, wantPhy: 0x3F},
		{name: "between windows", routing: Routing{Bases: []uint16{0xD400, 0xD440}}, addr: 0xD420, wantChip: ChipNone, wantPhy: OffsetNone},
		{name: "four chips", routing: Routing{Bases: []uint16{0xD400, 0xD420, 0xD440, 0xDE00}}, addr: 0xDE04, wantChip: 4, wantPhy: 0x64},
		{name: "first match wins", routing: Routing{Bases: []uint16{0xD400, 0xD400}}, addr: 0xD401, wantChip: 1, wantPhy: 0x01},
		{name: "socket two", routing: Routing{Bases: []uint16{0xD400}, SocketTwo: SocketTwoOffset(1)}, addr: 0xD404, wantChip: 1, wantPhy: 0x24},
		{name: "socket two after dual socket", routing: Routing{Bases: []uint16{0xD400}, SocketTwo: SocketTwoOffset(2)}, addr: 0xD404, wantChip: 1, wantPhy: 0x44},
		{name: "socket two ignored for multi chip", routing: Routing{Bases: []uint16{0xD400, 0xD420}, SocketTwo: 0x20}, addr: 0xD404, wantChip: 1, wantPhy: 0x04},
		{name: "fm probe dropped", routing: Routing{Bases: []uint16{0xD400}}, addr: 0xDF40, wantChip: ChipSkip, wantPhy: 0x80},
		{name: "fm probe to aux chip", routing: Routing{Bases: []uint16{0xD400}, AuxChip: 3}, addr: 0xDF50, wantChip: 3, wantPhy: 0x50},
		{name: "unmapped", routing: Routing{Bases: []uint16{0xD400}}, addr: 0xD800, wantChip: ChipNone, wantPhy: OffsetNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, phy := tt.routing.Translate(tt.addr)
			if chip != tt.wantChip || phy != tt.wantPhy {
				t.Errorf("Translate($%04X) = %d, $%02X, want %d, $%02X", tt.addr, chip, phy, tt.wantChip, tt.wantPhy)
			}
		})
	}
}

func TestBusForwarding(t *testing.T) {
	rec := &recorder{}
	bus := NewBus(Routing{Bases: []uint16{0xD400, 0xD420}}, rec)
	var seen []Access
	bus.Observe = func(a Access) { seen = append(seen, a) }

	bus.StoreByte(0xD421, 0x11) // chip 2
	bus.StoreByte(0xDF40, 0x22) // probe, skipped
	bus.StoreByte(0xD500, 0x33) // no window
	bus.StoreByte(0xC000, 0x44) // plain memory
	bus.StoreAddress(0xD400, 0x5566)

	want := []write{{2, 0x21, 0x11}, {1, 0x00, 0x66}, {1, 0x01, 0x55}}
	if diff := cmp.Diff(want, rec.writes); diff != "" {
		t.Errorf("forwarded writes mismatch (-want +got):\n%s", diff)
	}
	if len(seen) != 3 || !seen[0].Write || seen[0].Addr != 0xD421 {
		t.Errorf("observed = %+v", seen)
	}
	for addr, v := range map[uint16]byte{0xD421: 0x11, 0xDF40: 0x22, 0xD500: 0x33, 0xC000: 0x44, 0xD400: 0x66, 0xD401: 0x55} {
		if got := bus.Peek(addr); got != v {
			t.Errorf("memory $%04X = $%02X, want $%02X", addr, got, v)
		}
	}
}

func TestBusReads(t *testing.T) {
	rec := &recorder{readVal: 0x77}
	bus := NewBus(Routing{Bases: []uint16{0xD400, 0xD420}}, rec)
	bus.Poke(0xD41B, 0x99)
	bus.Poke(0xD405, 0x12)

	first := []byte{bus.LoadByte(0xD41B), bus.LoadByte(0xD43C), bus.LoadByte(0xD41B)}
	bus.Reset()
	again := []byte{bus.LoadByte(0xD41B), bus.LoadByte(0xD43C), bus.LoadByte(0xD41B)}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("random reads differ after Reset (-first +again):\n%s", diff)
	}
	if len(rec.reads) != 0 {
		t.Errorf("emulated reads reached the transport: %v", rec.reads)
	}

	bus.Poke(0xD405, 0x12)
	if got := bus.LoadByte(0xD405); got != 0x12 {
		t.Errorf("plain register read = $%02X, want $12", got)
	}

	bus.RealReads = true
	if got := bus.LoadByte(0xD43C); got != 0x77 {
		t.Errorf("real read = $%02X, want $77", got)
	}
	if diff := cmp.Diff([]byte{0x3C}, rec.reads); diff != "" {
		t.Errorf("transport reads mismatch (-want +got):\n%s", diff)
	}
}

func TestBusCopyClamps(t *testing.T) {
	bus := NewBus(Routing{Bases: []uint16{0xD400}}, &recorder{})
	if n := bus.Copy(0xFFFE, []byte{1, 2, 3, 4}); n != 2 {
		t.Errorf("Copy() = %d, want 2", n)
	}
	if bus.Peek(0xFFFF) != 2 || bus.Peek(0x0000) != 0 {
		t.Error("Copy wrapped around the address space")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		flags psid.Flags
		speed uint32
		song  int
		o     Overrides
		want  Params
	}{
		{
			name:  "pal",
			flags: 0x04,
			want:  Params{Standard: psid.ClockPAL, ClockSpeed: ClockPAL, RefreshRate: Hertz50, RasterLines: 312, CyclesPerLine: 63},
		},
		{
			name:  "ntsc cia",
			flags: 0x08,
			speed: 1,
			want:  Params{Standard: psid.ClockNTSC, ClockSpeed: ClockNTSC, RefreshRate: Hertz60, RasterLines: 263, CyclesPerLine: 65, CIA: true},
		},
		{
			name: "unknown",
			want: Params{Standard: psid.ClockUnknown, ClockSpeed: ClockDefault, RefreshRate: HertzDefault, RasterLines: 312, CyclesPerLine: 63},
		},
		{
			name:  "speed bit of another song",
			flags: 0x04,
			speed: 1,
			song:  1,
			want:  Params{Standard: psid.ClockPAL, ClockSpeed: ClockPAL, RefreshRate: Hertz50, RasterLines: 312, CyclesPerLine: 63},
		},
		{
			name:  "forced drean",
			flags: 0x04,
			o:     Overrides{Standard: psid.ClockDrean, ForceStandard: true},
			want:  Params{Standard: psid.ClockDrean, ClockSpeed: ClockDrean, RefreshRate: Hertz50, RasterLines: 312, CyclesPerLine: 65},
		},
		{
			name:  "manual clock and frame",
			flags: 0x04,
			o:     Overrides{ManualClock: true, ClockHz: 2000000, ManualFrame: true, FrameUs: 10000},
			want:  Params{Standard: psid.ClockPAL, ClockSpeed: 2000000, RefreshRate: 10000, RasterLines: 312, CyclesPerLine: 63},
		},
		{
			name:  "manual without values",
			flags: 0x08,
			o:     Overrides{ManualClock: true, ManualFrame: true},
			want:  Params{Standard: psid.ClockNTSC, ClockSpeed: ClockDefault, RefreshRate: HertzDefault, RasterLines: 263, CyclesPerLine: 65},
		},
		{
			name:  "cia disabled",
			flags: 0x04,
			speed: 1,
			o:     Overrides{NoCIA: true},
			want:  Params{Standard: psid.ClockPAL, ClockSpeed: ClockPAL, RefreshRate: Hertz50, RasterLines: 312, CyclesPerLine: 63},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tune := &psid.Tune{Flags: tt.flags, Speed: tt.speed, Songs: 2}
			got := Resolve(tune, tt.song, tt.o)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlayRate(t *testing.T) {
	bus := NewBus(Routing{Bases: []uint16{0xD400}}, &recorder{})
	p := Params{RefreshRate: Hertz50, CIA: true}
	if got := p.PlayRate(bus); got != Hertz50 {
		t.Errorf("PlayRate() with unset latch = %d, want %d", got, Hertz50)
	}
	bus.Poke(0xDC04, 0x25)
	bus.Poke(0xDC05, 0x40)
	if got := p.PlayRate(bus); got != 0x4025 {
		t.Errorf("PlayRate() = %d, want %d", got, 0x4025)
	}
	p.CIA = false
	if got := p.PlayRate(bus); got != Hertz50 {
		t.Errorf("PlayRate() without CIA = %d, want %d", got, Hertz50)
	}
}

func TestNoteFreqs(t *testing.T) {
	tbl := noteFreqs(ClockPAL)
	// A-4 at 440Hz.
	if got := tbl[57]; got != 0x1D45 {
		t.Errorf("A-4 = $%04X, want $1D45", got)
	}
	if noteNames[48] != "C-4" || noteNames[57] != "A-4" {
		t.Errorf("note names = %q, %q", noteNames[48], noteNames[57])
	}
}
