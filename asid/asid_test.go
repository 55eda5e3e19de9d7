package asid

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestControlMessages(t *testing.T) {
	tests := []struct {
		name string
		send func(e *Encoder) error
		want []byte
	}{
		{name: "start", send: (*Encoder).Start, want: []byte{0xF0, 0x2D, 0x4C, 0xF7}},
		{name: "stop", send: (*Encoder).Stop, want: []byte{0xF0, 0x2D, 0x4D, 0xF7}},
		{
			name: "pal environment",
			send: func(e *Encoder) error { return e.Environment(true) },
			want: []byte{0xF0, 0x2D, 0x31, 0x02, 0x6E, 0x1B, 0x01, 0xF7},
		},
		{
			name: "6581",
			send: func(e *Encoder) error { return e.ChipType(true) },
			want: []byte{0xF0, 0x2D, 0x32, 0x00, 0x00, 0xF7},
		},
		{
			name: "8580",
			send: func(e *Encoder) error { return e.ChipType(false) },
			want: []byte{0xF0, 0x2D, 0x32, 0x00, 0x01, 0xF7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.send(NewEncoder(&buf, 1)); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, buf.Bytes()); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFrameDelta(t *testing.T) {
	if got := FrameDelta(true); got != 19950 {
		t.Errorf("FrameDelta(PAL) = %d, want 19950", got)
	}
	if got := FrameDelta(false); got != 16715 {
		t.Errorf("FrameDelta(NTSC) = %d, want 16715", got)
	}
}

func TestDumpShadowRegister(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf, 1)
	for _, w := range []struct{ reg, val byte }{{0x00, 0x80}, {0x04, 0x11}, {0x04, 0x10}} {
		if err := e.Dump(1, w.reg, w.val); err != nil {
			t.Fatal(err)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("Dump sent %X before Flush", buf.Bytes())
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []byte{
		0xF0, 0x2D, 0x4E,
		0x01, 0x00, 0x00, 0x12, // mask: regs 0, 4 and shadow 0x19
		0x01, 0x00, 0x00, 0x00, // msb: reg 0
		0x00, 0x11, 0x10,
		0xF7,
	}
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("second Flush sent %X, want nothing", buf.Bytes())
	}
}

func TestDumpVolumeFlushes(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf, 2)
	if err := e.Dump(2, 0x18, 0x0F); err != nil {
		t.Fatal(err)
	}
	if err := e.Dump(2, 0x18, 0x05); err != nil {
		t.Fatal(err)
	}
	first := []byte{0xF0, 0x2D, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x0F, 0xF7}
	if diff := cmp.Diff(first, buf.Bytes()); diff != "" {
		t.Errorf("early flush mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	second := []byte{0xF0, 0x2D, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x05, 0xF7}
	if diff := cmp.Diff(second, buf.Bytes()); diff != "" {
		t.Errorf("frame flush mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpOverwrite(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf, 1)
	e.Dump(1, 0x01, 0x10)
	e.Dump(1, 0x01, 0x20)
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xF0, 0x2D, 0x4E, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0xF7}
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpChipRange(t *testing.T) {
	e := NewEncoder(&bytes.Buffer{}, 2)
	if err := e.Dump(3, 0, 0); err == nil {
		t.Error("Dump(3) on a 2 chip encoder succeeded")
	}
	if err := e.Dump(0, 0, 0); err == nil {
		t.Error("Dump(0) succeeded")
	}
}

func TestOpenPort(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"midiC1D0", "midiC0D0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := PortGlob
	PortGlob = filepath.Join(dir, "midiC*D*")
	t.Cleanup(func() { PortGlob = old })

	ports, err := Ports()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "midiC0D0"), filepath.Join(dir, "midiC1D0")}
	if diff := cmp.Diff(want, ports); diff != "" {
		t.Errorf("Ports() mismatch (-want +got):\n%s", diff)
	}

	// Out of range indices fall back to the first port.
	w, err := OpenPort("7")
	if err != nil {
		t.Fatal(err)
	}
	NewEncoder(w, 1).Start()
	w.Close()
	got, _ := os.ReadFile(want[0])
	if diff := cmp.Diff([]byte{0xF0, 0x2D, 0x4C, 0xF7}, got); diff != "" {
		t.Errorf("port content mismatch (-want +got):\n%s", diff)
	}
}
