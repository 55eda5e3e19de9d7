package transport

import (
	"context"
	"io"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/gousb"
	"golang.org/x/sync/errgroup"

	"sidberry/log"
)

// USBSID-Pico identifiers and endpoints.
const (
	usbVendor  = gousb.ID(0xCAFE)
	usbProduct = gousb.ID(0x4011)

	usbEndpointOut = 0x02
	usbEndpointIn  = 0x02 // 0x82 on the wire

	// CDC class requests sent once after claiming the interfaces.
	usbReqSetLineCoding   = 0x20
	usbReqSetControlLines = 0x22
	usbReqTypeClass       = 0x21
	usbLinesDTRRTS        = 0x03

	usbQueueSize = 1024
)

// 9600 baud, 1 stop bit, no parity, 8 data bits.
var usbLineCoding = []byte{0x40, 0x54, 0x89, 0x00, 0x00, 0x00, 0x08}

// USB drives a USBSID-Pico over its bulk endpoints.
//
// In async mode writes are queued and sent by a background pump, reads are
// not possible and return 0xFF.
type USB struct {
	async bool

	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intfs []*gousb.Interface

	out io.Writer
	in  io.Reader

	mu    sync.Mutex
	queue chan []byte
	done  <-chan struct{}
	g     *errgroup.Group
	stop  context.CancelFunc
}

func NewUSB(async bool) *USB { return &USB{async: async} }

func (u *USB) Setup() error {
	if u.out == nil {
		if err := u.open(); err != nil {
			u.release()
			return err
		}
	}
	if u.async {
		u.startPump()
	}
	return u.send(usbResetFrame())
}

func (u *USB) open() error {
	u.ctx = gousb.NewContext()
	dev, err := u.ctx.OpenDeviceWithVIDPID(usbVendor, usbProduct)
	if err != nil {
		return errors.Wrap(err, "open usb device")
	}
	if dev == nil {
		return errors.Errorf("no device with id %s:%s", usbVendor, usbProduct)
	}
	u.dev = dev
	if err := dev.SetAutoDetach(true); err != nil {
		log.ModTransport.Warnf("usb auto detach: %v", err)
	}

	u.cfg, err = dev.Config(1)
	if err != nil {
		return errors.Wrap(err, "select usb config")
	}
	for _, num := range []int{0, 1} {
		intf, err := u.cfg.Interface(num, 0)
		if err != nil {
			return errors.Wrapf(err, "claim interface %d", num)
		}
		u.intfs = append(u.intfs, intf)
	}

	if _, err := dev.Control(usbReqTypeClass, usbReqSetControlLines, usbLinesDTRRTS, 0, nil); err != nil {
		return errors.Wrap(err, "set control lines")
	}
	if _, err := dev.Control(usbReqTypeClass, usbReqSetLineCoding, 0, 0, usbLineCoding); err != nil {
		return errors.Wrap(err, "set line coding")
	}

	out, err := u.intfs[1].OutEndpoint(usbEndpointOut)
	if err != nil {
		return errors.Wrap(err, "open out endpoint")
	}
	in, err := u.intfs[1].InEndpoint(usbEndpointIn)
	if err != nil {
		return errors.Wrap(err, "open in endpoint")
	}
	u.out, u.in = out, in
	log.ModTransport.Infof("usb device %s:%s opened", usbVendor, usbProduct)
	return nil
}

func (u *USB) startPump() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan []byte, usbQueueSize)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case pkt, ok := <-queue:
				if !ok {
					return nil
				}
				if _, err := u.out.Write(pkt); err != nil {
					return errors.Wrap(err, "usb pump write")
				}
			}
		}
	})
	u.queue, u.done, u.g, u.stop = queue, ctx.Done(), g, cancel
}

func (u *USB) send(pkt []byte) error {
	if u.queue != nil {
		select {
		case u.queue <- pkt:
			return nil
		case <-u.done:
			if err := u.g.Wait(); err != nil {
				return err
			}
			return errors.New("usb pump stopped")
		}
	}
	if u.out == nil {
		return errors.New("usb device not open")
	}
	if _, err := u.out.Write(pkt); err != nil {
		return errors.Wrap(err, "usb write")
	}
	return nil
}

func (u *USB) Write(chip int, reg, value byte) error {
	return u.send(usbWriteFrame(reg, value))
}

func (u *USB) Read(chip int, reg byte) (byte, error) {
	if u.async {
		return 0xFF, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.send(usbReadFrame(reg)); err != nil {
		return 0, err
	}
	buf := make([]byte, 1)
	if _, err := io.ReadFull(u.in, buf); err != nil {
		return 0, errors.Wrap(err, "usb read")
	}
	return buf[0], nil
}

func (u *USB) Flush() error  { return nil }
func (u *USB) Mute() error   { return u.send(usbPauseFrame()) }
func (u *USB) Unmute() error { return nil }
func (u *USB) Chips() int    { return 4 }

func (u *USB) Close() error {
	var err error
	if u.out != nil {
		err = u.send(usbPauseFrame())
	}
	if u.queue != nil {
		close(u.queue)
		if werr := u.g.Wait(); err == nil {
			err = werr
		}
		u.stop()
		u.queue = nil
	}
	u.release()
	return err
}

func (u *USB) release() {
	for _, intf := range u.intfs {
		intf.Close()
	}
	u.intfs = nil
	if u.cfg != nil {
		u.cfg.Close()
		u.cfg = nil
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}
	u.out, u.in = nil, nil
}
