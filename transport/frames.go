package transport

// USBSID-Pico commands, first byte of every bulk OUT packet.
const (
	usbCmdWrite = 0x00
	usbCmdRead  = 0x01
	usbCmdPause = 0x02
	usbCmdReset = 0x03
)

func usbWriteFrame(reg, value byte) []byte { return []byte{usbCmdWrite, reg, value} }
func usbReadFrame(reg byte) []byte         { return []byte{usbCmdRead, reg, 0x00} }
func usbPauseFrame() []byte                { return []byte{usbCmdPause, 0, 0, 0} }
func usbResetFrame() []byte                { return []byte{usbCmdReset, 0, 0, 0} }

// Serial framing. In cycles mode every write carries a fixed 16-bit cycle
// delay after the register/value pair.
const serialCycleDelay = 0x0006

func serialWriteFrame(reg, value byte, cycles bool) []byte {
	if cycles {
		return []byte{reg, value, byte(serialCycleDelay >> 8), byte(serialCycleDelay)}
	}
	return []byte{reg, value}
}

// serialInitPacket announces the size of the packets that follow.
func serialInitPacket(cycles bool) []byte {
	size := byte(2)
	if cycles {
		size = 4
	}
	return []byte{0xFF, 0xEE, 0xDD, 0x00, size, 0xDD, 0xEE, 0xFF}
}

func serialClosePacket() []byte { return []byte{0xFF, 0xFF, 0xFF, 0xFF} }
