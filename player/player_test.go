package player

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sidberry/psid"
)

type write struct {
	Chip  int
	Reg   byte
	Value byte
}

// recorder is a transport keeping everything it is sent.
type recorder struct {
	writes  []write
	reads   []byte
	readVal byte
	flushes int
	mutes   int
	unmutes int
	closed  bool
}

func (r *recorder) Setup() error { return nil }

func (r *recorder) Write(chip int, reg, value byte) error {
	r.writes = append(r.writes, write{chip, reg, value})
	return nil
}

func (r *recorder) Read(chip int, reg byte) (byte, error) {
	r.reads = append(r.reads, reg)
	return r.readVal, nil
}

func (r *recorder) Flush() error  { r.flushes++; return nil }
func (r *recorder) Mute() error   { r.mutes++; return nil }
func (r *recorder) Unmute() error { r.unmutes++; return nil }
func (r *recorder) Close() error  { r.closed = true; return nil }
func (r *recorder) Chips() int    { return 4 }

// testTune stores the song number at $C000 on init and counts play calls
// in $C001, mirroring the count to the first voice's frequency.
func testTune() *psid.Tune {
	return &psid.Tune{
		Magic:       "PSID",
		Version:     2,
		LoadAddress: 0x1000,
		InitAddress: 0x1000,
		PlayAddress: 0x1004,
		Songs:       3,
		StartSong:   1,
		Flags:       0x04, // PAL
		Data: []byte{
			0x8D, 0x00, 0xC0, // STA $C000
			0x60,             // RTS
			0xEE, 0x01, 0xC0, // INC $C001
			0xAD, 0x01, 0xC0, // LDA $C001
			0x8D, 0x00, 0xD4, // STA $D400
			0x60, // RTS
		},
	}
}

func newTestPlayer(t *testing.T, tune *psid.Tune, cfg Config) (*Player, *recorder) {
	t.Helper()
	rec := &recorder{}
	if cfg.Volume == 0 {
		cfg.Volume = DefaultVolume
	}
	p, err := New(tune, rec, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p, rec
}

func TestLoad(t *testing.T) {
	p, rec := newTestPlayer(t, testTune(), Config{Song: -1})
	bus := p.Bus()

	if diff := cmp.Diff(bootstrap(1, 0x1000), bus.mem[0:10]); diff != "" {
		t.Errorf("bootstrap mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(playHandler(0x1004), bus.mem[playEntry:playEntry+8]); diff != "" {
		t.Errorf("play handler mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0x00, 0x00, 0x13, 0x00}, bus.mem[0xFFFC:]); diff != "" {
		t.Errorf("vectors mismatch (-want +got):\n%s", diff)
	}
	if got := bus.Peek(0xC000); got != 1 {
		t.Errorf("init saw song %d, want 1", got)
	}
	if !inIdleLoop(p.CPU().Reg.PC) {
		t.Errorf("PC = $%04X after warm-up, want idle loop", p.CPU().Reg.PC)
	}
	if p.CPU().Reg.InterruptDisable {
		t.Error("interrupts still disabled after warm-up")
	}
	if diff := cmp.Diff([]write{{1, 0x18, DefaultVolume}}, rec.writes); diff != "" {
		t.Errorf("load writes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIsRepeatable(t *testing.T) {
	p, _ := newTestPlayer(t, testTune(), Config{Song: 2})
	p.Frame()
	first := p.Bus().mem

	p.Load(2)
	p.Frame()
	if p.Bus().mem != first {
		t.Error("memory differs after reloading the same song")
	}
}

func TestLoadTruncatesPayload(t *testing.T) {
	tune := testTune()
	tune.LoadAddress = 0xFFF0
	tune.InitAddress = 0xFFF0
	tune.Data = bytes.Repeat([]byte{0x60}, 0x40)
	p, _ := newTestPlayer(t, tune, Config{})
	// The bootstrap vectors overwrite the tail of the payload.
	if got := p.Bus().Peek(0xFFF0); got != 0x60 {
		t.Errorf("$FFF0 = $%02X, want $60", got)
	}
}

func TestFrame(t *testing.T) {
	p, rec := newTestPlayer(t, testTune(), Config{})
	rec.writes = nil

	for i := 1; i <= 3; i++ {
		if period := p.Frame(); period.Microseconds() != Hertz50 {
			t.Fatalf("frame %d period = %v, want %dus", i, period, Hertz50)
		}
		if !inIdleLoop(p.CPU().Reg.PC) {
			t.Fatalf("frame %d left PC at $%04X", i, p.CPU().Reg.PC)
		}
		if p.CPU().Reg.SP != 0xFF {
			t.Fatalf("frame %d left SP at $%02X", i, p.CPU().Reg.SP)
		}
	}
	want := []write{{1, 0x00, 1}, {1, 0x00, 2}, {1, 0x00, 3}}
	if diff := cmp.Diff(want, rec.writes); diff != "" {
		t.Errorf("frame writes mismatch (-want +got):\n%s", diff)
	}
	if rec.flushes < 3 {
		t.Errorf("flushes = %d, want at least 3", rec.flushes)
	}
}

func TestFrameCIA(t *testing.T) {
	tune := testTune()
	tune.Speed = 1 << 1
	// init programs the CIA latch with $4025 before returning.
	tune.Data = append([]byte{
		0x8D, 0x00, 0xC0, // STA $C000
		0xA9, 0x25, 0x8D, 0x04, 0xDC, // LDA #$25, STA $DC04
		0xA9, 0x40, 0x8D, 0x05, 0xDC, // LDA #$40, STA $DC05
		0x60,
	}, tune.Data[4:]...)
	tune.PlayAddress = 0x100E

	p, _ := newTestPlayer(t, tune, Config{Song: 1})
	if !p.Params().CIA {
		t.Fatal("song 2 not CIA paced")
	}
	if got := p.Frame().Microseconds(); got != 0x4025 {
		t.Errorf("period = %dus, want %d", got, 0x4025)
	}

	p.Load(0)
	if got := p.Frame().Microseconds(); got != Hertz50 {
		t.Errorf("song 1 period = %dus, want %d", got, Hertz50)
	}
}

func TestFrameIRQHandlerWithoutPlayAddress(t *testing.T) {
	tune := testTune()
	tune.PlayAddress = 0
	// init installs $1010 in the KERNAL vector; the handler exits through $EA31.
	tune.Data = []byte{
		0xA9, 0x10, 0x8D, 0x14, 0x03, // LDA #$10, STA $0314
		0xA9, 0x10, 0x8D, 0x15, 0x03, // LDA #$10, STA $0315
		0x60,                         // RTS
		0xEA, 0xEA, 0xEA, 0xEA, 0xEA, // pad to $1010
		0xEE, 0x01, 0xC0, // INC $C001
		0x4C, 0x31, 0xEA, // JMP $EA31
	}
	p, _ := newTestPlayer(t, tune, Config{})
	for i := 0; i < 2; i++ {
		p.Frame()
		if !inIdleLoop(p.CPU().Reg.PC) || p.CPU().Reg.SP != 0xFF {
			t.Fatalf("frame %d: PC=$%04X SP=$%02X", i, p.CPU().Reg.PC, p.CPU().Reg.SP)
		}
	}
	if got := p.Bus().Peek(0xC001); got != 2 {
		t.Errorf("handler ran %d times, want 2", got)
	}
}

func TestHandle(t *testing.T) {
	p, rec := newTestPlayer(t, testTune(), Config{Song: 0, Volume: 14})

	p.Handle(CmdVolumeUp)
	p.Handle(CmdVolumeUp)
	if p.Volume() != MaxVolume {
		t.Errorf("volume = %d, want %d", p.Volume(), MaxVolume)
	}
	if got := p.Bus().Peek(0xD418); got != MaxVolume {
		t.Errorf("$D418 = $%02X, want $0F", got)
	}

	p.Handle(CmdPause)
	if !p.Paused() || rec.mutes != 1 {
		t.Fatalf("paused=%t mutes=%d after pause", p.Paused(), rec.mutes)
	}
	if got := p.Bus().Peek(0xD418) & 0x0F; got != 0 {
		t.Errorf("volume nibble = %d while paused, want 0", got)
	}
	if !strings.HasSuffix(p.Status().String(), "[PAUSED]") {
		t.Errorf("status %q does not show pause", p.Status())
	}
	p.Handle(CmdPause)
	if p.Paused() || rec.unmutes != 1 || p.Bus().Peek(0xD418)&0x0F != MaxVolume {
		t.Errorf("resume: paused=%t unmutes=%d vol=%d", p.Paused(), rec.unmutes, p.Bus().Peek(0xD418)&0x0F)
	}

	for i := 0; i < 20; i++ {
		p.Handle(CmdVolumeDown)
	}
	if p.Volume() != 0 {
		t.Errorf("volume = %d, want 0", p.Volume())
	}

	p.Handle(CmdPrevSong)
	if p.Song() != 2 || p.Bus().Peek(0xC000) != 2 {
		t.Errorf("prev from song 0 = %d, want 2", p.Song())
	}
	p.Handle(CmdNextSong)
	if p.Song() != 0 || p.Bus().Peek(0xC000) != 0 {
		t.Errorf("next from song 2 = %d, want 0", p.Song())
	}
	p.Frame()
	p.Handle(CmdRestart)
	if p.Frames() != 0 || p.Bus().Peek(0xC001) != 0 {
		t.Errorf("restart kept state: frames=%d count=%d", p.Frames(), p.Bus().Peek(0xC001))
	}

	p.Handle(CmdQuit)
	if !p.Stopped() {
		t.Error("quit did not stop the player")
	}
}

func TestRunFrames(t *testing.T) {
	var statuses []Status
	p, rec := newTestPlayer(t, testTune(), Config{
		Song:     -1,
		Frames:   3,
		OnStatus: func(s Status) { statuses = append(statuses, s) },
	})
	rec.writes = nil
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if p.Bus().Peek(0xC001) != 3 {
		t.Errorf("play ran %d times, want 3", p.Bus().Peek(0xC001))
	}
	if !rec.closed {
		t.Error("transport not closed")
	}

	// Three play writes, then registers $00-$17 zeroed.
	if len(rec.writes) != 3+0x18 {
		t.Fatalf("got %d writes, want %d", len(rec.writes), 3+0x18)
	}
	for i, w := range rec.writes[3:] {
		if w != (write{1, byte(i), 0}) {
			t.Errorf("silence write %d = %+v", i, w)
		}
	}
	if len(statuses) == 0 || statuses[0].Song != 2 || statuses[0].Songs != 3 {
		t.Errorf("statuses = %+v", statuses)
	}
	if err := p.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestRunStopsOnCancelAndCommands(t *testing.T) {
	p, rec := newTestPlayer(t, testTune(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if !rec.closed || p.Frames() != 0 {
		t.Errorf("closed=%t frames=%d after cancelled run", rec.closed, p.Frames())
	}

	p, rec = newTestPlayer(t, testTune(), Config{})
	cmds := make(chan Command, 2)
	cmds <- CmdNextSong
	cmds <- CmdQuit
	if err := p.Run(context.Background(), cmds); err != nil {
		t.Fatal(err)
	}
	if p.Song() != 1 || !rec.closed {
		t.Errorf("song=%d closed=%t", p.Song(), rec.closed)
	}
}

func TestStatusString(t *testing.T) {
	s := Status{Song: 2, Songs: 12, Min: 1, Sec: 5, Volume: 15}
	if got, want := s.String(), "Play Sub-Song 2 / 12 [01:05] @ Volume: 15"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDiagnostics(t *testing.T) {
	var out bytes.Buffer
	p, _ := newTestPlayer(t, testTune(), Config{Trace: true, Output: &out})
	out.Reset()
	p.Frame()
	if got := out.String(); !strings.HasPrefix(got, "[1][W]@00 [D]01 [F]0 [C]") {
		t.Errorf("trace output = %q", got)
	}

	out.Reset()
	p.Handle(CmdVerbose)
	p.Frame()
	if got := out.String(); got != "NO VERBOSE\n" {
		t.Errorf("output with verbose off = %q", got)
	}
}

func TestRegisterDump(t *testing.T) {
	var out bytes.Buffer
	p, _ := newTestPlayer(t, testTune(), Config{Dump: DumpRegisters, Output: &out})
	out.Reset()
	p.Frame()
	p.Frame()
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "|     0 | 01 00 00 00") {
		t.Errorf("first frame = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "|     1 | 02 .. .. ..") {
		t.Errorf("second frame = %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], "|  4DEE |") {
		t.Errorf("second frame period = %q", lines[1])
	}
}

func TestNoteDumpDeltaSpansTwoFrames(t *testing.T) {
	var (
		out   bytes.Buffer
		state Sid
	)
	dec, err := NewDecoder(DumpNotes, &out, &state, DumpOptions{OldNoteFactor: 1})
	if err != nil {
		t.Fatal(err)
	}
	dec.PreSteps()
	out.Reset()

	// Gate on, sliding within B-3.
	for frame, freq := range []uint16{0x1000, 0x1010, 0x1020} {
		state.Channel[0].Freq = freq
		state.Channel[0].Wave = 0x41
		dec.ProcessFrame(frame, 0)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	tests := []struct {
		frame int
		want  string
	}{
		{0, "|     0 | 1000 B-3 AF  41 "},
		{1, "|     1 | 1010 B-3 AF  41 "},
		{2, "|     2 | 1020 (+ 0020) .. "},
	}
	for _, tt := range tests {
		if !strings.HasPrefix(lines[tt.frame], tt.want) {
			t.Errorf("frame %d = %q, want prefix %q", tt.frame, lines[tt.frame], tt.want)
		}
	}
}

func TestNewRejectsBadAuxChip(t *testing.T) {
	if _, err := New(testTune(), &recorder{}, Config{AuxChip: 7, Volume: 15}); err == nil {
		t.Error("New() accepted aux chip 7")
	}
	if _, err := New(testTune(), &recorder{}, Config{Dump: "wave", Volume: 15}); err == nil {
		t.Error("New() accepted dump mode wave")
	}
}
