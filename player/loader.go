package player

import (
	"sidberry/log"
	"sidberry/psid"
)

const (
	// bootstrap entry, reached through the reset vector.
	bootstrapAddr = 0x0000
	// idleLoop is where the CPU spins between play calls.
	idleLoop = 0x0006
	// playEntry is the interrupt handler calling the play routine.
	playEntry = 0x0013
	// playCall holds the JSR to the play routine inside the handler.
	playCall = playEntry + 3

	// WarmupCycles run after reset so the init routine can complete.
	WarmupCycles = 100000

	// DefaultVolume is written to every chip before the tune starts.
	DefaultVolume = 15

	opJSR = 0x20
	opJMP = 0x4C
)

// bootstrap returns the reset code calling init with song in A, then
// enabling interrupts and idling.
func bootstrap(song byte, init uint16) []byte {
	return []byte{
		0xA9, song,                         // LDA #song
		opJSR, byte(init), byte(init >> 8), // JSR init
		0x58,                               // CLI
		0xEA,                               // idle: NOP
		opJMP, 0x06, 0x00,                  // JMP idle
	}
}

// playHandler returns the interrupt handler calling play.
func playHandler(play uint16) []byte {
	return []byte{
		0xEA, 0xEA, 0xEA,
		opJSR, byte(play), byte(play >> 8), // JSR play
		0xEA,
		opRTI,
	}
}

// Load prepares memory for song (0-based): it zeroes memory, sets every
// chip's volume, copies the payload, installs the bootstrap and runs the
// init routine for WarmupCycles.
func Load(bus *Bus, c *CPU, tune *psid.Tune, song int, volume byte) {
	bus.Reset()
	for i := range bus.routing.Bases {
		bus.StoreByte(bus.routing.VolumeAddr(i+1), volume&0x0F)
	}
	// Banking as left by the KERNAL: BASIC, I/O and KERNAL visible.
	bus.Poke(0x01, 0x37)

	if n := bus.Copy(tune.LoadAddress, tune.Data); n < len(tune.Data) {
		log.ModPlayer.Warnf("payload truncated at end of memory, %d of %d bytes loaded", n, len(tune.Data))
	}

	bus.Copy(bootstrapAddr, bootstrap(byte(song), tune.InitAddress))
	bus.Copy(playEntry, playHandler(tune.PlayAddress))
	bus.Copy(vecReset, []byte{0x00, 0x00, byte(playEntry), byte(playEntry >> 8)})

	c.Reset()
	c.RunCycles(WarmupCycles)

	if tune.PlayAddress == 0 {
		resolvePlay(bus)
	}
	log.ModPlayer.WithField("song", song+1).Debugf("init done after %d cycles, pc=$%04X", WarmupCycles, c.Reg.PC)
}

// resolvePlay handles tunes without a play address. Their init routine
// installs an interrupt handler, either in the hardware vector or in the
// KERNAL vector at $0314.
func resolvePlay(bus *Bus) {
	if bus.LoadAddress(vecIRQ) != playEntry {
		log.ModPlayer.Debugf("tune owns the irq vector: $%04X", bus.LoadAddress(vecIRQ))
		return
	}
	addr := bus.LoadAddress(0x0314)
	if addr == 0 {
		log.ModPlayer.Warnf("no play address and no irq handler installed")
		return
	}
	// The handler leaves through the KERNAL exit, so it is jumped to.
	bus.Copy(playCall, []byte{opJMP, byte(addr), byte(addr >> 8)})
	log.ModPlayer.Infof("play address 0, using irq handler at $%04X", addr)
}
