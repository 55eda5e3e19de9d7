// Package player runs PSID tunes on an emulated 6502 and streams the chip
// register writes to a transport in real time.
package player

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"sidberry/log"
	"sidberry/psid"
	"sidberry/transport"
)

// Command is a playback control request, usually from the keyboard.
type Command int

const (
	CmdNone Command = iota
	CmdPause
	CmdVolumeUp
	CmdVolumeDown
	CmdVerbose
	CmdRestart
	CmdPrevSong
	CmdNextSong
	CmdQuit
)

var commandNames = [...]string{"none", "pause", "volume-up", "volume-down", "verbose", "restart", "prev-song", "next-song", "quit"}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("command(%d)", int(c))
}

const (
	MaxVolume  = 15
	pausePoll  = 100 * time.Millisecond
	silenceTop = 0x17 // last register zeroed on exit
)

// Status is the user visible playback state.
type Status struct {
	Song   int // 1-based
	Songs  int
	Min    int
	Sec    int
	Volume int
	Paused bool
}

func (s Status) String() string {
	line := fmt.Sprintf("Play Sub-Song %d / %d [%02d:%02d] @ Volume: %d", s.Song, s.Songs, s.Min, s.Sec, s.Volume)
	if s.Paused {
		line += " [PAUSED]"
	}
	return line
}

// Config controls a playback session.
type Config struct {
	// Song is 0-based; negative selects the tune's start song.
	Song      int
	Volume    int
	Overrides Overrides

	// AuxChip receives FM probe writes, 0 drops them.
	AuxChip int
	// SocketTwo moves single chip tunes to the second socket, whose
	// offset depends on how many chips socket one holds.
	SocketTwo      bool
	SocketOneChips int
	RealReads      bool

	Verbose bool
	Trace   bool
	Debug   bool
	Dump    string
	DumpOptions

	// Frames stops playback after this many frames, 0 plays forever.
	Frames int

	// Output receives diagnostics and dumps.
	Output io.Writer
	// OnStatus is called whenever the status changes.
	OnStatus func(Status)
}

// Player is a playback session. Load and Handle must be called from the
// goroutine running Run; Stop may be called from anywhere.
type Player struct {
	tune   *psid.Tune
	out    transport.Transport
	cfg    Config
	bus    *Bus
	cpu    *CPU
	params Params
	diag   *diag

	dec   FrameDecoder
	state Sid

	song    int
	volume  int
	paused  bool
	frame   uint32
	elapsed time.Duration

	stop      atomic.Bool
	closed    bool
	capWarned bool
}

// New prepares a session for tune. The transport must already be set up.
func New(tune *psid.Tune, out transport.Transport, cfg Config) (*Player, error) {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Volume < 0 || cfg.Volume > MaxVolume {
		cfg.Volume = DefaultVolume
	}
	if cfg.AuxChip < 0 || cfg.AuxChip > 4 {
		return nil, errors.Errorf("aux chip %d out of range 0..4", cfg.AuxChip)
	}

	routing := Routing{Bases: tune.ChipBases(), AuxChip: cfg.AuxChip}
	if cfg.SocketTwo && len(routing.Bases) == 1 {
		routing.SocketTwo = SocketTwoOffset(cfg.SocketOneChips)
	}
	if n := tune.ChipCount(); n > out.Chips() {
		log.ModPlayer.Warnf("tune uses %d chips, transport carries %d", n, out.Chips())
	}

	p := &Player{
		tune:   tune,
		out:    out,
		cfg:    cfg,
		bus:    NewBus(routing, out),
		volume: cfg.Volume,
	}
	p.bus.RealReads = cfg.RealReads
	p.cpu = NewCPU(p.bus)

	p.diag = &diag{
		w:      cfg.Output,
		trace:  cfg.Trace,
		debug:  cfg.Debug,
		frame:  &p.frame,
		cycles: func() uint64 { return p.cpu.Cycles },
	}
	p.diag.verbose.Store(cfg.Verbose || cfg.Trace)
	p.bus.Observe = p.diag.observe(p.bus)
	if cfg.Debug {
		p.cpu.Trace = p.diag.step
	}

	dec, err := NewDecoder(cfg.Dump, cfg.Output, &p.state, cfg.DumpOptions)
	if err != nil {
		return nil, err
	}
	p.dec = dec

	song := cfg.Song
	if song >= tune.Songs {
		log.ModPlayer.Warnf("song %d out of range 1..%d, playing song %d", song+1, tune.Songs, tune.StartSong+1)
	}
	if song < 0 || song >= tune.Songs {
		song = tune.StartSong
	}
	p.Load(song)
	return p, nil
}

func (p *Player) Bus() *Bus        { return p.bus }
func (p *Player) CPU() *CPU        { return p.cpu }
func (p *Player) Params() Params   { return p.params }
func (p *Player) Song() int        { return p.song }
func (p *Player) Paused() bool     { return p.paused }
func (p *Player) Volume() int      { return p.volume }
func (p *Player) Frames() uint32   { return p.frame }
func (p *Player) Tune() *psid.Tune { return p.tune }

// Load starts song (0-based) from scratch.
func (p *Player) Load(song int) {
	p.song = song
	p.params = Resolve(p.tune, song, p.cfg.Overrides)
	Load(p.bus, p.cpu, p.tune, song, byte(p.volume))
	p.paused = false
	p.frame = 0
	p.elapsed = 0
	if p.dec != nil {
		p.dec.PreSteps()
	}
	log.ModPlayer.WithFields(log.Fields{
		"song":  song + 1,
		"clock": p.params.ClockSpeed,
		"rate":  p.params.PlayRate(p.bus),
		"cia":   p.params.CIA,
	}).Infof("loaded %q", p.tune.Name)
	p.report()
}

// Status returns the current playback state.
func (p *Player) Status() Status {
	secs := int(p.elapsed / time.Second)
	return Status{
		Song:   p.song + 1,
		Songs:  p.tune.Songs,
		Min:    secs / 60,
		Sec:    secs % 60,
		Volume: p.volume,
		Paused: p.paused,
	}
}

func (p *Player) report() {
	if p.cfg.OnStatus != nil {
		p.cfg.OnStatus(p.Status())
	}
}

// Stop asks Run to end after the current frame.
func (p *Player) Stop() { p.stop.Store(true) }

func (p *Player) Stopped() bool { return p.stop.Load() }

// setVolume writes the volume nibble of every chip, keeping the filter
// mode bits.
func (p *Player) setVolume(v int) {
	for i := range p.bus.routing.Bases {
		addr := p.bus.routing.VolumeAddr(i + 1)
		p.bus.StoreByte(addr, p.bus.Peek(addr)&0xF0|byte(v&0x0F))
	}
}

// Handle applies one command.
func (p *Player) Handle(cmd Command) {
	log.ModPlayer.Debugf("command %s", cmd)
	switch cmd {
	case CmdPause:
		p.paused = !p.paused
		if p.paused {
			p.setVolume(0)
			if err := p.out.Mute(); err != nil {
				log.ModPlayer.Warnf("mute: %v", err)
			}
		} else {
			p.setVolume(p.volume)
			if err := p.out.Unmute(); err != nil {
				log.ModPlayer.Warnf("unmute: %v", err)
			}
		}
		p.flush()
	case CmdVolumeUp, CmdVolumeDown:
		if cmd == CmdVolumeUp && p.volume < MaxVolume {
			p.volume++
		}
		if cmd == CmdVolumeDown && p.volume > 0 {
			p.volume--
		}
		if !p.paused {
			p.setVolume(p.volume)
			p.flush()
		}
	case CmdVerbose:
		v := !p.diag.verbose.Load()
		p.diag.verbose.Store(v)
		if v {
			fmt.Fprintln(p.cfg.Output, "VERBOSE")
		} else {
			fmt.Fprintln(p.cfg.Output, "NO VERBOSE")
		}
	case CmdRestart:
		p.Load(p.song)
		return
	case CmdPrevSong:
		song := p.song - 1
		if song < 0 {
			song = p.tune.Songs - 1
		}
		p.Load(song)
		return
	case CmdNextSong:
		p.Load((p.song + 1) % p.tune.Songs)
		return
	case CmdQuit:
		p.Stop()
	}
	p.report()
}

func (p *Player) flush() {
	if err := p.out.Flush(); err != nil {
		log.ModPlayer.Warnf("flush: %v", err)
	}
}

// Frame raises the play interrupt, runs the handler and flushes the
// transport. It returns the period until the next frame.
func (p *Player) Frame() time.Duration {
	var (
		cycles uint64
		done   bool
	)
	if p.cpu.IRQ() {
		cycles, done = p.cpu.RunBurst(uint64(p.params.ClockSpeed))
		if !done && !p.capWarned {
			p.capWarned = true
			log.ModCPU.Warnf("play routine did not return after %d cycles, pc=$%04X", cycles, p.cpu.Reg.PC)
		}
	} else {
		// Init has not finished, give it another frame.
		p.cpu.RunCycles(uint64(p.params.FrameCycles()))
	}
	p.flush()

	period := p.params.Period(p.bus)
	if p.dec != nil {
		p.state.Capture(p.bus, p.bus.routing.Bases[0], p.params.PlayRate(p.bus))
		p.dec.ProcessFrame(int(p.frame), cycles)
	}
	p.frame++

	before := p.elapsed / time.Second
	p.elapsed += period
	if p.elapsed/time.Second != before && !p.diag.verbose.Load() {
		p.report()
	}
	return period
}

// Run plays until Stop is called, ctx is done, the quit command arrives or
// the configured number of frames was played. The chips are silenced and
// the transport closed before returning.
func (p *Player) Run(ctx context.Context, cmds <-chan Command) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	sleep := func(d time.Duration) {
		timer.Reset(d)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}

	for !p.stop.Load() && ctx.Err() == nil {
		select {
		case cmd := <-cmds:
			p.Handle(cmd)
			continue
		default:
		}

		if p.paused {
			sleep(pausePoll)
			continue
		}

		start := time.Now()
		period := p.Frame()
		if p.cfg.Frames > 0 && int(p.frame) >= p.cfg.Frames {
			break
		}
		if d := period - time.Since(start); d > 0 {
			sleep(d)
		}
	}

	if p.dec != nil {
		p.dec.PostSteps()
	}
	return p.Shutdown()
}

// Shutdown silences every chip, flushes and closes the transport. It is
// safe to call more than once.
func (p *Player) Shutdown() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cpu.Trace = nil
	for _, base := range p.bus.routing.Bases {
		for r := uint16(0); r <= silenceTop; r++ {
			p.bus.StoreByte(base+r, 0)
		}
	}
	p.flush()
	if err := p.out.Close(); err != nil {
		return errors.Wrap(err, "close transport")
	}
	log.ModPlayer.Infof("stopped after %d frames", p.frame)
	return nil
}
