package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"

	"sidberry/log"
	"sidberry/player"
	"sidberry/psid"
	"sidberry/transport"
)

type Config struct {
	Transport TransportConfig  `toml:"transport"`
	Playback  PlaybackConfig   `toml:"playback"`
	GPIO      transport.PinMap `toml:"gpio"`
}

type TransportConfig struct {
	Kind           string `toml:"kind"`
	Device         string `toml:"device"`
	Baud           int    `toml:"baud"`
	MIDI           string `toml:"midi"`
	Chips          int    `toml:"chips"`
	Cycles         bool   `toml:"cycles"`
	Async          bool   `toml:"async"`
	RealReads      bool   `toml:"real_reads"`
	SocketTwo      bool   `toml:"socket_two"`
	SocketOneChips int    `toml:"socket_one_chips"`
	AuxChip        int    `toml:"aux_chip"`
}

type PlaybackConfig struct {
	Volume int `toml:"volume"`
	// Standard forces a video standard (pal, ntsc, any, drean).
	Standard string `toml:"standard"`
	// Clock and Hertz replace the CPU clock (Hz) and frame period (us)
	// when non zero.
	Clock int `toml:"clock"`
	Hertz int `toml:"hertz"`
}

const DefaultFileMode = os.FileMode(0755)

var ConfigDir = sync.OnceValue(func() string {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		log.ModPlayer.Fatalf("failed to get user config directory: %v", err)
	}
	return filepath.Join(cfgdir, "sidberry")
})

const cfgFilename = "config.toml"

var defaultConfig = Config{
	Transport: TransportConfig{
		Kind:           string(transport.KindUSB),
		Device:         transport.DefaultSerialDevice,
		Baud:           transport.DefaultBaud,
		SocketOneChips: 1,
	},
	Playback: PlaybackConfig{
		Volume: player.DefaultVolume,
	},
	GPIO: transport.DefaultPinMap,
}

// configPath returns path, or the file in the sidberry config directory
// when path is empty.
func configPath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(ConfigDir(), cfgFilename)
}

// LoadConfigOrDefault loads the configuration file at path, or the default
// one. Missing keys keep their default value.
func LoadConfigOrDefault(path string) Config {
	cfg := defaultConfig
	path = configPath(path)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.ModPlayer.Warnf("ignoring config file %s: %v", path, err)
		}
		return defaultConfig
	}
	log.ModPlayer.Infof("loaded config from %s", path)
	return cfg
}

// SaveConfig writes cfg to path, or into the sidberry config directory.
func SaveConfig(cfg Config, path string) (string, error) {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	path = configPath(path)
	if err := os.MkdirAll(filepath.Dir(path), DefaultFileMode); err != nil {
		return "", errors.Wrap(err, "create config directory")
	}
	return path, os.WriteFile(path, buf, 0644)
}

// apply overrides cfg with the flags given on the command line.
func (f TransportFlags) apply(cfg *TransportConfig) {
	if f.Transport != "" {
		cfg.Kind = f.Transport
	}
	if f.Device != "" {
		cfg.Device = f.Device
	}
	if f.Baud != 0 {
		cfg.Baud = f.Baud
	}
	if f.MIDI != "" {
		cfg.MIDI = f.MIDI
	}
	if f.Chips != 0 {
		cfg.Chips = f.Chips
	}
	if f.SocketOneChips != 0 {
		cfg.SocketOneChips = f.SocketOneChips
	}
	if f.AuxChip >= 0 {
		cfg.AuxChip = f.AuxChip
	}
	cfg.SocketTwo = cfg.SocketTwo || f.SocketTwo
	cfg.RealReads = cfg.RealReads || f.RealReads
	cfg.Cycles = cfg.Cycles || f.Cycles
	cfg.Async = cfg.Async || f.Async
}

// transportOptions builds the options opening the configured transport.
// tune may be nil when no tune is involved.
func (cfg Config) transportOptions(tune *psid.Tune) transport.Options {
	opts := transport.Options{
		Kind:      transport.Kind(cfg.Transport.Kind),
		Device:    cfg.Transport.Device,
		Baud:      cfg.Transport.Baud,
		Cycles:    cfg.Transport.Cycles,
		Async:     cfg.Transport.Async,
		MIDI:      cfg.Transport.MIDI,
		Pins:      cfg.GPIO,
		Chips:     cfg.Transport.Chips,
		PAL:       true,
		TuneChips: 1,
	}
	if tune != nil {
		clock := tune.Flags.Clock()
		if std, ok := parseStandard(cfg.Playback.Standard); ok {
			clock = std
		}
		opts.PAL = clock != psid.ClockNTSC && clock != psid.ClockAny
		opts.Model6581 = tune.Flags.Model(1) != psid.Model8580
		opts.TuneChips = tune.ChipCount()
	}
	return opts
}

// String renders the configuration as saved on disk.
func (cfg Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err.Error()
	}
	return buf.String()
}
