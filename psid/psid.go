// Package psid decodes PSID chip-tune containers.
package psid

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/go-faster/errors"

	"sidberry/log"
)

var (
	// ErrNotFound is returned when the tune file cannot be opened.
	ErrNotFound = errors.New("sid file not found")
	// ErrMalformed is returned when the header is truncated or invalid.
	ErrMalformed = errors.New("malformed sid file")
)

const (
	MinHeaderSize = 118 // v1 header
	MaxHeaderSize = 125 // v2+ header including the extra chip address bytes
	v2HeaderSize  = 0x7C

	MaxDataSize = 0x10000

	// VersionQuad is the unofficial version number of 4-chip tunes.
	VersionQuad = 78

	magic = "PSID"
)

// Header field offsets.
const (
	offMagic      = 0x00
	offVersion    = 0x04
	offDataOffset = 0x06
	offLoad       = 0x08
	offInit       = 0x0A
	offPlay       = 0x0C
	offSongs      = 0x0E
	offStartSong  = 0x10
	offSpeed      = 0x12
	offName       = 0x16
	offAuthor     = 0x36
	offReleased   = 0x56
	offFlags      = 0x76
	offStartPage  = 0x78
	offPageLength = 0x79
	offChip2      = 0x7A
	offChip3      = 0x7B
	offChip4      = 0x7C

	textSize = 32
)

// Tune is a decoded PSID file. It is not modified after decoding.
type Tune struct {
	Magic      string
	Version    int
	DataOffset uint16

	LoadAddress uint16
	InitAddress uint16
	PlayAddress uint16

	Songs     int // always >= 1
	StartSong int // 0-based, always < Songs
	Speed     uint32

	Name     string
	Author   string
	Released string

	Flags      Flags
	StartPage  byte
	PageLength byte

	// ChipAddr holds the raw second, third and fourth chip address bytes.
	ChipAddr [3]byte

	Data []byte
}

// ReadFile opens and decodes the PSID file at path.
func ReadFile(path string) (*Tune, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, err.Error())
	}
	defer f.Close()

	tune, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return tune, nil
}

// Read decodes a PSID image from r.
func Read(r io.Reader) (*Tune, error) {
	// Largest meaningful image: a data offset at the end of a 16-bit range,
	// followed by a 2 bytes load address and a full 64K payload.
	buf, err := io.ReadAll(io.LimitReader(r, 0xFFFF+2+MaxDataSize))
	if err != nil {
		return nil, errors.Wrap(err, "read sid file")
	}
	return Decode(buf)
}

// Decode decodes a PSID image held in memory.
func Decode(buf []byte) (*Tune, error) {
	if len(buf) < MinHeaderSize {
		return nil, errors.Wrapf(ErrMalformed, "header too short (%d bytes)", len(buf))
	}

	hdr := make([]byte, MaxHeaderSize)
	copy(hdr, buf)

	be := binary.BigEndian
	t := &Tune{
		Magic:       string(hdr[offMagic : offMagic+4]),
		Version:     int(be.Uint16(hdr[offVersion:])),
		DataOffset:  be.Uint16(hdr[offDataOffset:]),
		LoadAddress: be.Uint16(hdr[offLoad:]),
		InitAddress: be.Uint16(hdr[offInit:]),
		PlayAddress: be.Uint16(hdr[offPlay:]),
		Songs:       int(be.Uint16(hdr[offSongs:])),
		StartSong:   int(be.Uint16(hdr[offStartSong:])),
		Speed:       be.Uint32(hdr[offSpeed:]),
		Name:        latin1(hdr[offName : offName+textSize]),
		Author:      latin1(hdr[offAuthor : offAuthor+textSize]),
		Released:    latin1(hdr[offReleased : offReleased+textSize]),
	}

	if t.Magic != magic {
		return nil, errors.Wrapf(ErrMalformed, "bad magic %q", t.Magic)
	}
	switch t.Version {
	case 1, 2, 3, 4, VersionQuad:
	default:
		return nil, errors.Wrapf(ErrMalformed, "unsupported version %d", t.Version)
	}
	if int(t.DataOffset) < minDataOffset(t.Version) {
		return nil, errors.Wrapf(ErrMalformed, "header length $%04X too short for v%d", t.DataOffset, t.Version)
	}

	if t.Version > 1 {
		t.Flags = Flags(be.Uint16(hdr[offFlags:]))
		t.StartPage = hdr[offStartPage]
		t.PageLength = hdr[offPageLength]
		copy(t.ChipAddr[:], hdr[offChip2:offChip4+1])
	}

	if t.Songs == 0 {
		t.Songs = 1
	}
	if t.StartSong > 0 {
		t.StartSong--
	}
	if t.StartSong >= t.Songs {
		t.StartSong = 0
	}

	pos := int(t.DataOffset)
	if t.LoadAddress == 0 {
		if pos+2 > len(buf) {
			return nil, errors.Wrapf(ErrMalformed, "missing load address at offset $%04X", pos)
		}
		t.LoadAddress = binary.LittleEndian.Uint16(buf[pos:])
		pos += 2
	}
	if t.InitAddress == 0 {
		t.InitAddress = t.LoadAddress
	}

	if pos > len(buf) {
		return nil, errors.Wrapf(ErrMalformed, "data offset $%04X past end of file", t.DataOffset)
	}
	data := buf[pos:]
	if len(data) > MaxDataSize {
		data = data[:MaxDataSize]
	}
	t.Data = append([]byte(nil), data...)

	log.ModPSID.WithField("version", t.Version).Debugf("decoded %q, %d songs, %d data bytes", t.Name, t.Songs, len(t.Data))
	return t, nil
}

// minDataOffset is the smallest header a file of version v may declare.
func minDataOffset(v int) int {
	if v == 1 {
		return MinHeaderSize
	}
	return v2HeaderSize
}

// DataLength is the number of payload bytes.
func (t *Tune) DataLength() int { return len(t.Data) }

// ChipCount returns how many sound chips the tune drives.
func (t *Tune) ChipCount() int {
	switch t.Version {
	case 3:
		return 2
	case 4:
		return 3
	case VersionQuad:
		return 4
	}
	return 1
}

// ChipBase returns the register window base of chip n (1-based). The first
// chip is always at $D400.
func (t *Tune) ChipBase(n int) uint16 {
	if n <= 1 || n > 4 {
		return 0xD400
	}
	return 0xD000 | uint16(t.ChipAddr[n-2])<<4
}

// ChipBases returns the register window bases of all chips the tune drives.
func (t *Tune) ChipBases() []uint16 {
	bases := make([]uint16, t.ChipCount())
	for i := range bases {
		bases[i] = t.ChipBase(i + 1)
	}
	return bases
}

// CIATimed reports whether song (0-based) is paced by the CIA timer rather
// than by the vertical blank.
func (t *Tune) CIATimed(song int) bool {
	if song < 0 || song > 31 {
		song = 31
	}
	return t.Speed&(1<<uint(song)) != 0
}

// latin1 decodes a NUL-terminated ISO-8859-1 text field.
func latin1(b []byte) string {
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		runes = append(runes, rune(c))
	}
	return string(runes)
}
