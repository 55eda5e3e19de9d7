package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sidberry/player"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Width(20)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	keyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// render prints the < Sid Info > block.
func (ti tuneInfo) render(w io.Writer) {
	var rows [][2]string
	add := func(label, format string, args ...any) {
		rows = append(rows, [2]string{label, fmt.Sprintf(format, args...)})
	}

	add("Title", "%s", ti.Title)
	add("Author", "%s", ti.Author)
	add("Released", "%s", ti.Released)
	add("Type", "%s v%d", ti.Type, ti.Version)
	add("Flags", "$%04X (%016b)", uint16(ti.Flags), uint16(ti.Flags))
	for i, m := range ti.Models {
		add(fmt.Sprintf("Chip %d", i+1), "%s @ $%04X", m, ti.ChipBases[i])
	}
	add("Clock", "%s (%d Hz)", ti.Clock, ti.ClockSpeed)
	add("Raster lines", "%d", ti.RasterLines)
	add("Cycles per line", "%d", ti.CyclesPerLine)
	add("Frame cycles", "%d", ti.FrameCycles)
	add("Refresh rate", "%d us", ti.RefreshRate)
	add("Data offset", "$%04X", ti.DataOffset)
	add("Image", "$%04X-$%04X", ti.ImageStart, ti.ImageEnd)
	add("Load / Init / Play", "$%04X / $%04X / $%04X", ti.LoadAddress, ti.InitAddress, ti.PlayAddress)
	add("Song speed", "$%08X (%032b)", ti.Speed, ti.Speed)
	add("Timer", "%s", ti.timer())
	add("Sub-song", "%d / %d", ti.Song, ti.Songs)

	var b strings.Builder
	b.WriteString(titleStyle.Render("< Sid Info >"))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]+":") + valueStyle.Render(r[1]))
		b.WriteByte('\n')
	}
	fmt.Fprint(w, b.String())
}

// renderKeys prints the keyboard controls.
func renderKeys(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("< Keys >"))
	for _, line := range strings.Split(keyHelp, "\n") {
		line = strings.TrimSpace(line)
		key, action, _ := strings.Cut(line, "  ")
		fmt.Fprintln(w, labelStyle.Render(keyStyle.Render(key))+strings.TrimSpace(action))
	}
}

// statusPrinter returns an OnStatus callback rewriting a single line.
func statusPrinter(w io.Writer) func(player.Status) {
	return func(s player.Status) {
		style := statusStyle
		if s.Paused {
			style = pausedStyle
		}
		fmt.Fprint(w, "\r\x1b[K"+style.Render(s.String()))
	}
}
