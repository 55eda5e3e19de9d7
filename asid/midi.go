package asid

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-faster/errors"
)

// PortGlob matches the raw MIDI device nodes exposed by ALSA.
var PortGlob = "/dev/snd/midiC*D*"

// Ports lists the raw MIDI output devices.
func Ports() ([]string, error) {
	ports, err := filepath.Glob(PortGlob)
	if err != nil {
		return nil, errors.Wrap(err, "list midi ports")
	}
	sort.Strings(ports)
	return ports, nil
}

// OpenPort opens a MIDI output. name is either a device path or an index
// into Ports. An index past the end falls back to the first port.
func OpenPort(name string) (io.WriteCloser, error) {
	path := name
	if n, err := strconv.Atoi(name); err == nil || name == "" {
		ports, err := Ports()
		if err != nil {
			return nil, err
		}
		if len(ports) == 0 {
			return nil, errors.New("no midi ports available")
		}
		if n < 0 || n >= len(ports) {
			n = 0
		}
		path = ports[n]
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open midi port")
	}
	return f, nil
}
