/*
Copyright 2024 Tim St. Pierre
HD44780 4-bit transfer protocol, one shift register frame at a time
*/
package lcdbackpack

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// Shift register outputs wired to the LCD control lines
	bitRS        = 0x02
	bitBacklight = 0x04
	bitEnable    = 0x08
	// Bits 4-7 drive D4-D7
	nibbleMask = 0xF0

	// Enable pulse must be wider than 450ns
	enablePulse = 1 * time.Microsecond
	// Instructions need 37us at 270kHz; slow 190kHz parts need 53us
	settleDelay = 60 * time.Microsecond
)

type mode uint8

const (
	modeCommand mode = iota
	modeCharacter
	// Only the low nibble is sent, used while the panel is still in 8-bit mode
	modeInit
)

func (m mode) String() string {
	switch m {
	case modeCommand:
		return "command"
	case modeCharacter:
		return "character"
	default:
		return "init"
	}
}

// makeFrame builds the shift register frame presenting nibble (already in
// bits 4-7) on D4-D7 with the enable line high.
func makeFrame(nibble byte, m mode, backlight bool) byte {
	frame := nibble&nibbleMask | bitEnable
	if m == modeCharacter {
		frame |= bitRS
	}
	if backlight {
		frame |= bitBacklight
	}
	return frame
}

// transmit sends value as one nibble (modeInit) or two nibbles, high first.
// Each nibble is presented with enable high and latched by re-sending the
// same frame with enable low.
func (d *Dev) transmit(value byte, m mode) error {
	nibbles := [2]byte{value & nibbleMask, value << 4}
	slots := 2
	if m == modeInit {
		nibbles[0] = value << 4
		slots = 1
	}
	for _, n := range nibbles[:slots] {
		frame := makeFrame(n, m, d.backlight)
		if err := d.r.WriteByte(frame); err != nil {
			return d.fail(value, m, err)
		}
		d.sleep(enablePulse)
		if err := d.r.WriteByte(frame &^ bitEnable); err != nil {
			return d.fail(value, m, err)
		}
	}
	d.sleep(settleDelay)
	return nil
}

func (d *Dev) fail(value byte, m mode, err error) error {
	log.WithFields(log.Fields{"value": fmt.Sprintf("%#02x", value), "mode": m}).WithError(err).Error("shift register write failed")
	return fmt.Errorf("lcdbackpack: %s %#02x: %w", m, value, err)
}

func (d *Dev) command(value byte) error {
	log.Debugf("Writing command %#02x", value)
	return d.transmit(value, modeCommand)
}
