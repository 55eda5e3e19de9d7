package transport

import (
	"io"

	"github.com/go-faster/errors"
	"go.bug.st/serial"

	"sidberry/log"
)

// Serial streams register writes over a serial line (USBSID-Pico UART or any
// bridge speaking the same framing). The link is write-only.
type Serial struct {
	device string
	baud   int
	cycles bool

	port io.WriteCloser
}

func NewSerial(device string, baud int, cycles bool) *Serial {
	return &Serial{device: device, baud: baud, cycles: cycles}
}

func (s *Serial) Setup() error {
	if s.port == nil {
		port, err := serial.Open(s.device, &serial.Mode{
			BaudRate: s.baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return errors.Wrapf(err, "open %s", s.device)
		}
		s.port = port
		log.ModTransport.Infof("serial port %s opened at %d baud", s.device, s.baud)
	}
	return s.send(serialInitPacket(s.cycles))
}

func (s *Serial) Write(chip int, reg, value byte) error {
	return s.send(serialWriteFrame(reg, value, s.cycles))
}

func (s *Serial) Read(chip int, reg byte) (byte, error) { return 0, ErrNotSupported }

func (s *Serial) Flush() error  { return nil }
func (s *Serial) Mute() error   { return nil }
func (s *Serial) Unmute() error { return nil }
func (s *Serial) Chips() int    { return 4 }

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.send(serialClosePacket())
	if cerr := s.port.Close(); err == nil {
		err = cerr
	}
	s.port = nil
	return err
}

func (s *Serial) send(b []byte) error {
	if s.port == nil {
		return errors.New("serial port not open")
	}
	if _, err := s.port.Write(b); err != nil {
		return errors.Wrap(err, "serial write")
	}
	return nil
}
