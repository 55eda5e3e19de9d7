package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"sidberry/asid"
	"sidberry/log"
	"sidberry/player"
	"sidberry/psid"
	"sidberry/transport"
)

const version = "0.4.0"

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case versionMode:
		fmt.Println("sidberry", version)
	case midiPortsMode:
		listMIDIPorts()
	case configMode:
		saveConfig(&cli)
	case infoMode:
		showInfo(&cli)
	case readMode:
		readRegister(&cli)
	case writeMode:
		writeRegister(&cli)
	default:
		play(&cli)
	}
}

// loadTune reads the tune at path, exiting with a distinct code when the
// file is missing or malformed.
func loadTune(path string) *psid.Tune {
	tune, err := psid.ReadFile(path)
	switch {
	case err == nil:
		return tune
	case errors.Is(err, psid.ErrNotFound):
		exitf(exitNotFound, "cannot open %s: %v", path, err)
	case errors.Is(err, psid.ErrMalformed):
		exitf(exitMalformed, "cannot load %s: %v", path, err)
	}
	checkf(err, "cannot load %s", path)
	return nil
}

func play(cli *CLI) {
	args := cli.Play
	cfg := LoadConfigOrDefault(cli.ConfigFile)
	args.TransportFlags.apply(&cfg.Transport)
	if args.Volume >= 0 {
		cfg.Playback.Volume = args.Volume
	}

	tune := loadTune(args.Tune)
	overrides := args.overrides(cfg.Playback)
	song := args.song()
	if song < 0 || song >= tune.Songs {
		song = tune.StartSong
	}
	newTuneInfo(tune, song, player.Resolve(tune, song, overrides)).render(os.Stdout)
	renderKeys(os.Stdout)

	out, err := transport.Open(cfg.transportOptions(tune))
	checkf(err, "cannot open transport")

	p, err := player.New(tune, out, player.Config{
		Song:           args.song(),
		Volume:         cfg.Playback.Volume,
		Overrides:      overrides,
		AuxChip:        cfg.Transport.AuxChip,
		SocketTwo:      cfg.Transport.SocketTwo,
		SocketOneChips: cfg.Transport.SocketOneChips,
		RealReads:      cfg.Transport.RealReads,
		Verbose:        args.Verbose,
		Trace:          args.Trace,
		Debug:          args.Debug,
		Dump:           args.Dump,
		DumpOptions: player.DumpOptions{
			TimeSeconds:   args.TimeSeconds,
			OldNoteFactor: args.OldNoteFactor,
			Profiling:     args.Profiling,
		},
		Frames:   args.Frames,
		Output:   os.Stdout,
		OnStatus: statusPrinter(os.Stdout),
	})
	if err != nil {
		out.Close()
		checkf(err, "cannot start player")
	}

	err = run(p)
	fmt.Println()
	checkf(err, "playback failed")
}

// run plays until the tune is stopped by a key, a signal or the frame
// limit.
func run(p *player.Player) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	cmds := make(chan player.Command, 8)
	g.Go(func() error {
		defer cancel()
		return p.Run(ctx, cmds)
	})

	g.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			log.ModPlayer.Infof("received %s, stopping", sig)
			p.Stop()
		case <-ctx.Done():
		}
		return nil
	})

	if kb := startKeyboard(); kb != nil {
		defer kb.Stop()
		g.Go(func() error { return kb.dispatch(ctx, cmds) })
	}
	return g.Wait()
}

func showInfo(cli *CLI) {
	args := cli.Info
	cfg := LoadConfigOrDefault(cli.ConfigFile)
	tune := loadTune(args.Tune)
	song := args.song()
	if song < 0 || song >= tune.Songs {
		song = tune.StartSong
	}
	ti := newTuneInfo(tune, song, player.Resolve(tune, song, args.overrides(cfg.Playback)))
	if args.JSON {
		checkf(ti.writeJSON(os.Stdout), "cannot write infos")
		return
	}
	ti.render(os.Stdout)
}

// registerRouting opens the configured transport and returns a routing
// mapping addresses to it as consecutive chip windows from $D400.
func registerRouting(cli *CLI, flags TransportFlags) (player.Routing, transport.Transport) {
	cfg := LoadConfigOrDefault(cli.ConfigFile)
	flags.apply(&cfg.Transport)

	out, err := transport.Open(cfg.transportOptions(nil))
	checkf(err, "cannot open transport")

	n := max(cfg.Transport.Chips, 1)
	routing := player.Routing{AuxChip: cfg.Transport.AuxChip}
	for i := 0; i < n; i++ {
		routing.Bases = append(routing.Bases, 0xD400+uint16(i)*player.WindowSize)
	}
	if cfg.Transport.SocketTwo && n == 1 {
		routing.SocketTwo = player.SocketTwoOffset(cfg.Transport.SocketOneChips)
	}
	return routing, out
}

var errNotRegister = errors.New("not a chip register")

// translateRegister resolves addr to a transport chip and register.
func translateRegister(r player.Routing, addr uint16) (int, byte, error) {
	chip, phy := r.Translate(addr)
	if chip == player.ChipNone || chip == player.ChipSkip {
		return 0, 0, errors.Wrapf(errNotRegister, "$%04X", addr)
	}
	return chip, phy, nil
}

// pokeRegister writes v to addr on out and flushes it.
func pokeRegister(out transport.Transport, r player.Routing, addr uint16, v byte) (int, byte, error) {
	chip, phy, err := translateRegister(r, addr)
	if err != nil {
		return 0, 0, err
	}
	if err := out.Write(chip, phy, v); err != nil {
		return 0, 0, errors.Wrapf(err, "write $%04X", addr)
	}
	if err := out.Flush(); err != nil {
		return 0, 0, errors.Wrapf(err, "flush $%04X", addr)
	}
	return chip, phy, nil
}

func readRegister(cli *CLI) {
	routing, out := registerRouting(cli, cli.Read.TransportFlags)
	defer out.Close()

	addr := uint16(cli.Read.Addr)
	chip, phy, err := translateRegister(routing, addr)
	checkf(err, "cannot read")
	v, err := out.Read(chip, phy)
	checkf(err, "cannot read $%04X", addr)
	fmt.Printf("$%04X (chip %d @%02x) = $%02X\n", addr, chip, phy, v)
}

func writeRegister(cli *CLI) {
	routing, out := registerRouting(cli, cli.Write.TransportFlags)
	defer out.Close()

	addr, val := uint16(cli.Write.Addr), cli.Write.Value
	if val > 0xFF {
		fatalf("value $%X does not fit in a byte", uint16(val))
	}
	chip, phy, err := pokeRegister(out, routing, addr, byte(val))
	checkf(err, "cannot write")
	fmt.Printf("$%04X (chip %d @%02x) <- $%02X\n", addr, chip, phy, byte(val))
}

func listMIDIPorts() {
	ports, err := asid.Ports()
	checkf(err, "cannot list MIDI ports")
	if len(ports) == 0 {
		fmt.Println("no MIDI ports found")
		return
	}
	for i, p := range ports {
		fmt.Printf("%d: %s\n", i, p)
	}
}

func saveConfig(cli *CLI) {
	cfg := LoadConfigOrDefault(cli.ConfigFile)
	cli.Config.TransportFlags.apply(&cfg.Transport)
	if v := cli.Config.Volume; v >= 0 {
		cfg.Playback.Volume = v
	}
	path, err := SaveConfig(cfg, cli.ConfigFile)
	checkf(err, "cannot save config")
	fmt.Printf("saved %s\n%s", path, cfg)
}
