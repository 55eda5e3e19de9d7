package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/go-faster/errors"

	"sidberry/log"
	"sidberry/player"
	"sidberry/psid"
	"sidberry/transport"
)

type mode byte

const (
	playMode      mode = iota // Play a tune (default command)
	infoMode                  // Show tune infos
	readMode                  // Read one register
	writeMode                 // Write one register
	midiPortsMode             // List MIDI ports
	configMode                // Save the effective configuration
	versionMode               // Show version
)

type (
	CLI struct {
		Play      Play      `cmd:"" help:"Play a SID tune on the selected transport. (default command)" default:"withargs"`
		Info      Info      `cmd:"" help:"Show tune infos."`
		Read      Read      `cmd:"" help:"Read one chip register."`
		Write     Write     `cmd:"" help:"Write one chip register."`
		MIDIPorts MIDIPorts `cmd:"" name:"midi-ports" help:"List raw MIDI ports usable with --midi."`
		Config    ConfigCmd `cmd:"" help:"Save the effective configuration to the config file."`
		Version   Version   `cmd:"" help:"Show sidberry version."`

		Log        logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`
		ConfigFile string     `name:"config" help:"${config_help}" type:"path" placeholder:"FILE"`

		mode mode
	}

	// TransportFlags override the [transport] section of the config file.
	TransportFlags struct {
		Transport      string `name:"transport" short:"t" help:"${transport_help}" placeholder:"KIND"`
		Device         string `name:"device" help:"Serial device." placeholder:"PATH"`
		Baud           int    `name:"baud" help:"Serial baud rate."`
		MIDI           string `name:"midi" help:"MIDI port index or device path (asid)." placeholder:"N|PATH"`
		Chips          int    `name:"chips" help:"Number of chips the transport carries."`
		SocketTwo      bool   `name:"socket-two" help:"Play single chip tunes on the second socket."`
		SocketOneChips int    `name:"socket-one-chips" help:"Number of chips on the first socket (1 or 2)."`
		AuxChip        int    `name:"aux-chip" help:"Chip receiving FM expansion probes, 0 drops them." default:"-1"`
		RealReads      bool   `name:"real-reads" help:"Read oscillator and envelope registers from the chip."`
		Cycles         bool   `name:"cycles" help:"Send cycle delays with every serial write."`
		Async          bool   `name:"async" help:"Queue USB writes to a background pump."`
	}

	// TimingFlags override the timing derived from the tune header.
	TimingFlags struct {
		Song     int    `name:"song" short:"s" help:"Sub-song to play, 1-based. 0 selects the default song."`
		Standard string `name:"standard" help:"${standard_help}" enum:",pal,ntsc,any,drean" default:""`
		Clock    int    `name:"clock" short:"c" help:"Custom CPU clock in Hz."`
		Hertz    int    `name:"hertz" short:"z" help:"Custom frame period in microseconds."`
		NoCIA    bool   `name:"no-cia" help:"Ignore the speed bits, always pace by frame period."`
	}

	Play struct {
		Tune string `arg:"" name:"/path/to/tune.sid" help:"PSID file to play."`

		TimingFlags    `embed:""`
		TransportFlags `embed:""`

		Volume        int    `name:"volume" help:"Initial volume, 0-15." default:"-1"`
		Verbose       bool   `name:"verbose" short:"v" help:"Print the register bank on every chip write."`
		Trace         bool   `name:"trace" help:"Print every chip access."`
		Debug         bool   `name:"debug" help:"Print CPU state after every instruction."`
		Dump          string `name:"dump" help:"${dump_help}" enum:"${dump_modes}" default:"none"`
		Frames        int    `name:"frames" help:"Stop after this many frames, 0 plays forever."`
		TimeSeconds   bool   `name:"time-seconds" help:"Show dump time as minutes:seconds.frame."`
		OldNoteFactor int    `name:"old-note-factor" help:"Note dump vibrato stickiness." default:"1"`
		Profiling     bool   `name:"profiling" help:"Add a cycles column to dumps."`
	}

	Info struct {
		Tune string `arg:"" name:"/path/to/tune.sid" help:"PSID file."`
		JSON bool   `name:"json" help:"Print infos as JSON."`

		TimingFlags `embed:""`
	}

	Read struct {
		Addr hexValue `arg:"" name:"addr" help:"Register address, e.g. D41B."`

		TransportFlags `embed:""`
	}

	Write struct {
		Addr  hexValue `arg:"" name:"addr" help:"Register address, e.g. D418."`
		Value hexValue `arg:"" name:"value" help:"Value to write, e.g. 0F."`

		TransportFlags `embed:""`
	}

	MIDIPorts struct{}

	ConfigCmd struct {
		TransportFlags `embed:""`

		Volume int `name:"volume" help:"Default volume, 0-15." default:"-1"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"log_help":       "Enable logging for specified modules.",
	"config_help":    "Configuration file. (default: <user config dir>/sidberry/config.toml)",
	"transport_help": "Transport: " + kindList() + ".",
	"standard_help":  "Force a video standard: pal, ntsc, any or drean.",
	"dump_help":      "Per frame register dump: " + strings.Join(player.DumpModes, ", ") + ".",
	"dump_modes":     strings.Join(player.DumpModes, ","),
}

func kindList() string {
	var kinds []string
	for _, k := range transport.Kinds {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ", ")
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("sidberry"),
		kong.Description("Play PSID tunes on real sound chips."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")

	switch {
	case strings.HasPrefix(ctx.Command(), "info"):
		cfg.mode = infoMode
	case strings.HasPrefix(ctx.Command(), "read"):
		cfg.mode = readMode
	case strings.HasPrefix(ctx.Command(), "write"):
		cfg.mode = writeMode
	case ctx.Command() == "midi-ports":
		cfg.mode = midiPortsMode
	case ctx.Command() == "config":
		cfg.mode = configMode
	case ctx.Command() == "version":
		cfg.mode = versionMode
	default:
		cfg.mode = playMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if strings.HasPrefix(ctx.Command(), "play") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.

Keys:
%s
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}
		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"), keyHelp)
	}
	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm *logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return errors.Errorf("unknown log module %s", v)
			}
			*lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return errors.New("cannot use 'all' and 'no' together")
		}
		if *lm != 0 {
			return errors.New("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		*lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(*lm))
	return nil
}

// hexValue is an address or byte given in hex, with an optional $ or 0x
// prefix.
type hexValue uint16

// Decode implements kong.MapperValue interface.
func (h *hexValue) Decode(ctx *kong.DecodeContext) error {
	tok := ctx.Scan.Pop()
	s, ok := tok.Value.(string)
	if !ok {
		return errors.Errorf("expected hex value, got %v", tok.Value)
	}
	v, err := parseHex(s)
	if err != nil {
		return err
	}
	*h = hexValue(v)
	return nil
}

func parseHex(s string) (uint16, error) {
	t := strings.TrimPrefix(s, "$")
	t = strings.TrimPrefix(strings.TrimPrefix(t, "0x"), "0X")
	v, err := strconv.ParseUint(t, 16, 16)
	if err != nil {
		return 0, errors.Errorf("invalid hex value %q", s)
	}
	return uint16(v), nil
}

// parseStandard maps a --standard value to a video standard. The empty
// string keeps the one from the tune header.
func parseStandard(s string) (psid.Clock, bool) {
	switch strings.ToLower(s) {
	case "pal":
		return psid.ClockPAL, true
	case "ntsc":
		return psid.ClockNTSC, true
	case "any":
		return psid.ClockAny, true
	case "drean":
		return psid.ClockDrean, true
	}
	return psid.ClockUnknown, false
}

// overrides converts the timing flags, applied over the configured
// playback defaults.
func (f TimingFlags) overrides(pc PlaybackConfig) player.Overrides {
	var o player.Overrides
	std := f.Standard
	if std == "" {
		std = pc.Standard
	}
	o.Standard, o.ForceStandard = parseStandard(std)

	clock, hertz := pc.Clock, pc.Hertz
	if f.Clock != 0 {
		clock = f.Clock
	}
	if f.Hertz != 0 {
		hertz = f.Hertz
	}
	if clock != 0 {
		o.ManualClock, o.ClockHz = true, clock
	}
	if hertz != 0 {
		o.ManualFrame, o.FrameUs = true, hertz
	}
	o.NoCIA = f.NoCIA
	return o
}

// song returns the 0-based song, negative for the tune's default.
func (f TimingFlags) song() int { return f.Song - 1 }

const (
	exitNotFound  = 1
	exitMalformed = 2
)

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n\t"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	exitf(1, format, args...)
}

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(code)
}
