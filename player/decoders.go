package player

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-faster/errors"
)

// FrameDecoder prints the chip state after every frame.
type FrameDecoder interface {
	PreSteps()
	ProcessFrame(frame int, cycles uint64)
	PostSteps()
}

// Dump modes selectable by the user.
const (
	DumpNone      = "none"
	DumpRegisters = "registers"
	DumpNotes     = "notes"
)

// DumpModes lists the accepted dump modes.
var DumpModes = []string{DumpNone, DumpRegisters, DumpNotes}

// DumpOptions tune the frame dumps.
type DumpOptions struct {
	// TimeSeconds prints m:ss.ff instead of a frame number.
	TimeSeconds bool
	// OldNoteFactor favours the previous note when matching frequencies,
	// higher values make vibrato show as a slide.
	OldNoteFactor int
	// Profiling appends cycle and raster line usage.
	Profiling bool
}

// NewDecoder returns the decoder for mode, or nil for DumpNone.
func NewDecoder(mode string, w io.Writer, state *Sid, opt DumpOptions) (FrameDecoder, error) {
	switch mode {
	case "", DumpNone:
		return nil, nil
	case DumpRegisters:
		return &RegisterTable{w: w, state: state, opt: opt}, nil
	case DumpNotes:
		return &NoteTable{w: w, state: state, opt: opt}, nil
	}
	return nil, errors.Errorf("unknown dump mode %q", mode)
}

func frameStamp(sb *strings.Builder, frame int, seconds bool) {
	if seconds {
		fmt.Fprintf(sb, "|%01d:%02d.%02d| ", frame/3000, (frame/50)%60, frame%50)
		return
	}
	fmt.Fprintf(sb, "| %5d | ", frame)
}

// RegisterTable prints all registers every frame, unchanged ones as dots.
type RegisterTable struct {
	w     io.Writer
	state *Sid
	opt   DumpOptions
	prev  Sid
}

func (t *RegisterTable) PreSteps() {
	t.prev = Sid{}
	fmt.Fprintln(t.w, "| Frame | 00 01 02 03 04 05 06 | 07 08 09 10 11 12 13 | 14 15 16 17 18 19 20 | 21 22 23 24 | dt_us |")
	fmt.Fprintln(t.w, "+-------+----------------------+----------------------+----------------------+-------------+-------+")
}

func (t *RegisterTable) ProcessFrame(frame int, cycles uint64) {
	var sb strings.Builder
	frameStamp(&sb, frame, t.opt.TimeSeconds)

	cur := t.state
	for c := range cur.Register {
		if cur.Register[c] != t.prev.Register[c] || frame == 0 {
			fmt.Fprintf(&sb, "%02X ", cur.Register[c])
		} else {
			sb.WriteString(".. ")
		}
		if c == 6 || c == 13 || c == 20 {
			sb.WriteString("| ")
		}
	}
	fmt.Fprintf(&sb, "|  %04X |\n", cur.Period)
	io.WriteString(t.w, sb.String())
	t.prev = *cur
}

func (t *RegisterTable) PostSteps() {}

var (
	noteNames   [96]string
	filterNames = [8]string{"Off", "Low", "Bnd", "L+B", "Hi ", "L+H", "B+H", "LBH"}
)

func init() {
	names := [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}
	for i := range noteNames {
		noteNames[i] = fmt.Sprintf("%s%d", names[i%12], i/12)
	}
}

// noteFreqs returns the oscillator values of notes C-0..B-7 for clock.
func noteFreqs(clock int) [96]uint16 {
	var tbl [96]uint16
	for i := range tbl {
		hz := 440 * math.Pow(2, float64(i-57)/12)
		v := math.Round(hz * (1 << 24) / float64(clock))
		if v > 0xFFFF {
			v = 0xFFFF
		}
		tbl[i] = uint16(v)
	}
	return tbl
}

// NoteTable prints frequencies as notes along with waveform, envelope and
// pulse width of every voice, and the filter state.
type NoteTable struct {
	w     io.Writer
	state *Sid
	opt   DumpOptions
	freqs [96]uint16

	prev, prev2 Sid
}

const noteRule = "+-------+---------------------------+---------------------------+---------------------------+---------------+"

func (t *NoteTable) PreSteps() {
	t.freqs = noteFreqs(ClockPAL)
	t.prev, t.prev2 = Sid{}, Sid{}
	fmt.Fprintf(t.w, "Middle C frequency is $%04X\n\n", t.freqs[48])
	header := "| Frame | Freq Note/Abs WF ADSR Pul | Freq Note/Abs WF ADSR Pul | Freq Note/Abs WF ADSR Pul | FCut RC Typ V |"
	rule := noteRule
	if t.opt.Profiling {
		header += " Cycl RL RB |"
		rule += "------------+"
	}
	fmt.Fprintln(t.w, header)
	fmt.Fprintln(t.w, rule)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (t *NoteTable) ProcessFrame(frame int, cycles uint64) {
	var sb strings.Builder
	frameStamp(&sb, frame, t.opt.TimeSeconds)
	first := frame == 0
	cur, prev, prev2 := t.state, &t.prev, &t.prev2
	factor := t.opt.OldNoteFactor
	if factor < 1 {
		factor = 1
	}

	for i := range cur.Channel {
		ch, pch := &cur.Channel[i], &prev.Channel[i]
		newNote := false

		// Gate restart: the previous note is over.
		if ch.Wave >= 0x10 && ch.Wave&1 == 1 && (prev2.Channel[i].Wave&1 == 0 || prev2.Channel[i].Wave < 0x10) {
			pch.Note = -1
		}

		switch {
		case first || pch.Note == -1 || ch.Freq != pch.Freq:
			fmt.Fprintf(&sb, "%04X ", ch.Freq)
			if ch.Wave < 0x10 {
				sb.WriteString(" ... ..  ")
				break
			}
			dist := math.MaxInt32
			for d, f := range t.freqs {
				dd := absInt(int(ch.Freq) - int(f))
				if d == pch.Note {
					dd /= factor
				}
				if dd < dist {
					dist = dd
					ch.Note = d
				}
			}
			delta := int(ch.Freq) - int(prev2.Channel[i].Freq)
			switch {
			case ch.Note != pch.Note && pch.Note == -1:
				newNote = true
				fmt.Fprintf(&sb, "%s %02X  ", noteNames[ch.Note], ch.Note|0x80)
			case ch.Note != pch.Note:
				fmt.Fprintf(&sb, "(%s %02X) ", noteNames[ch.Note], ch.Note|0x80)
			case delta == 0:
				sb.WriteString(" ... ..  ")
			case delta > 0:
				fmt.Fprintf(&sb, "(+ %04X) ", delta)
			default:
				fmt.Fprintf(&sb, "(- %04X) ", -delta)
			}
		default:
			ch.Note = pch.Note
			sb.WriteString("....  ... ..  ")
		}

		if first || newNote || ch.Wave != pch.Wave {
			fmt.Fprintf(&sb, "%02X ", ch.Wave)
		} else {
			sb.WriteString(".. ")
		}
		if first || newNote || ch.ADSR != pch.ADSR {
			fmt.Fprintf(&sb, "%04X ", ch.ADSR)
		} else {
			sb.WriteString(".... ")
		}
		if first || newNote || ch.Pulse != pch.Pulse {
			fmt.Fprintf(&sb, "%03X ", ch.Pulse)
		} else {
			sb.WriteString("... ")
		}
		sb.WriteString("| ")
	}

	f, pf := cur.Filt, prev.Filt
	if first || f.Cutoff != pf.Cutoff {
		fmt.Fprintf(&sb, "%04X ", f.Cutoff)
	} else {
		sb.WriteString(".... ")
	}
	if first || f.Control != pf.Control {
		fmt.Fprintf(&sb, "%02X ", f.Control)
	} else {
		sb.WriteString(".. ")
	}
	if first || f.Type&0x70 != pf.Type&0x70 {
		fmt.Fprintf(&sb, "%s ", filterNames[(f.Type>>4)&0x7])
	} else {
		sb.WriteString("... ")
	}
	if first || f.Type&0xF != pf.Type&0xF {
		fmt.Fprintf(&sb, "%01X ", f.Type&0xF)
	} else {
		sb.WriteString(". ")
	}

	if t.opt.Profiling {
		lines := (cycles + 62) / 63
		bad := (cycles + 503) / 504
		linesBad := (bad*40 + cycles + 62) / 63
		fmt.Fprintf(&sb, "| %4d %02X %02X ", cycles, lines, linesBad)
	}
	sb.WriteString("|\n")
	io.WriteString(t.w, sb.String())

	*prev2 = *prev
	*prev = *cur
}

func (t *NoteTable) PostSteps() {}
