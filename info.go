package main

import (
	"fmt"
	"io"

	"github.com/go-faster/jx"

	"sidberry/player"
	"sidberry/psid"
)

// tuneInfo is what sidberry prints about a tune before playing it.
type tuneInfo struct {
	Title    string
	Author   string
	Released string

	Type    string
	Version int
	Flags   psid.Flags
	Models  []psid.Model

	Clock         psid.Clock
	ClockSpeed    int
	RasterLines   int
	CyclesPerLine int
	FrameCycles   int
	RefreshRate   int

	ChipBases  []uint16
	DataOffset uint16
	ImageStart uint16
	ImageEnd   uint16

	LoadAddress uint16
	InitAddress uint16
	PlayAddress uint16

	Speed uint32
	CIA   bool

	Song  int // 1-based
	Songs int
}

func newTuneInfo(t *psid.Tune, song int, p player.Params) tuneInfo {
	if song < 0 || song >= t.Songs {
		song = t.StartSong
	}
	ti := tuneInfo{
		Title:         t.Name,
		Author:        t.Author,
		Released:      t.Released,
		Type:          t.Magic,
		Version:       t.Version,
		Flags:         t.Flags,
		Clock:         p.Standard,
		ClockSpeed:    p.ClockSpeed,
		RasterLines:   p.RasterLines,
		CyclesPerLine: p.CyclesPerLine,
		FrameCycles:   p.FrameCycles(),
		RefreshRate:   p.RefreshRate,
		ChipBases:     t.ChipBases(),
		DataOffset:    t.DataOffset,
		ImageStart:    t.LoadAddress,
		ImageEnd:      t.LoadAddress,
		LoadAddress:   t.LoadAddress,
		InitAddress:   t.InitAddress,
		PlayAddress:   t.PlayAddress,
		Speed:         t.Speed,
		CIA:           p.CIA,
		Song:          song + 1,
		Songs:         t.Songs,
	}
	if n := t.DataLength(); n > 0 {
		end := int(t.LoadAddress) + n - 1
		if end > 0xFFFF {
			end = 0xFFFF
		}
		ti.ImageEnd = uint16(end)
	}
	for i := 1; i <= t.ChipCount(); i++ {
		ti.Models = append(ti.Models, t.Flags.Model(i))
	}
	return ti
}

func (ti tuneInfo) timer() string {
	if ti.CIA {
		return "CIA1"
	}
	return "Clock"
}

func hex16(v uint16) string { return fmt.Sprintf("$%04X", v) }

// writeJSON encodes ti as a single JSON object.
func (ti tuneInfo) writeJSON(w io.Writer) error {
	var e jx.Encoder
	e.SetIdent(2)

	e.ObjStart()
	e.FieldStart("title")
	e.Str(ti.Title)
	e.FieldStart("author")
	e.Str(ti.Author)
	e.FieldStart("released")
	e.Str(ti.Released)
	e.FieldStart("type")
	e.Str(ti.Type)
	e.FieldStart("version")
	e.Int(ti.Version)
	e.FieldStart("flags")
	e.Int(int(ti.Flags))

	e.FieldStart("models")
	e.ArrStart()
	for _, m := range ti.Models {
		e.Str(m.String())
	}
	e.ArrEnd()

	e.FieldStart("clock")
	e.Str(ti.Clock.String())
	e.FieldStart("clock_speed")
	e.Int(ti.ClockSpeed)
	e.FieldStart("raster_lines")
	e.Int(ti.RasterLines)
	e.FieldStart("cycles_per_line")
	e.Int(ti.CyclesPerLine)
	e.FieldStart("frame_cycles")
	e.Int(ti.FrameCycles)
	e.FieldStart("refresh_rate")
	e.Int(ti.RefreshRate)

	e.FieldStart("chip_bases")
	e.ArrStart()
	for _, b := range ti.ChipBases {
		e.Str(hex16(b))
	}
	e.ArrEnd()

	e.FieldStart("data_offset")
	e.Int(int(ti.DataOffset))
	e.FieldStart("image_start")
	e.Str(hex16(ti.ImageStart))
	e.FieldStart("image_end")
	e.Str(hex16(ti.ImageEnd))
	e.FieldStart("load_address")
	e.Str(hex16(ti.LoadAddress))
	e.FieldStart("init_address")
	e.Str(hex16(ti.InitAddress))
	e.FieldStart("play_address")
	e.Str(hex16(ti.PlayAddress))
	e.FieldStart("speed")
	e.Str(fmt.Sprintf("$%08X", ti.Speed))
	e.FieldStart("timer")
	e.Str(ti.timer())
	e.FieldStart("song")
	e.Int(ti.Song)
	e.FieldStart("songs")
	e.Int(ti.Songs)
	e.ObjEnd()

	if _, err := w.Write(append(e.Bytes(), '\n')); err != nil {
		return err
	}
	return nil
}
