/*
Copyright 2024 Tim St. Pierre
74HC595 backpack wired to an SPI port instead of three loose GPIO lines
*/

package shiftreg

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nxp74hc595"
)

// SPI drives the register through an SPI port: MOSI on the serial input,
// SCLK on the shift clock and CS on the storage clock, so the chip select
// rising at the end of each transfer is the latch.
//
// Writing the same byte twice in a row is a no-op on the wire, since the
// outputs already hold it.
type SPI struct {
	dev *nxp74hc595.Dev
	out gpio.Group
}

// NewSPI wraps c. c should be connected in mode 0 with 8 bits per word.
func NewSPI(c spi.Conn) (*SPI, error) {
	dev, err := nxp74hc595.New(c)
	if err != nil {
		return nil, fmt.Errorf("shiftreg: %w", err)
	}
	out, err := dev.Group(0, 1, 2, 3, 4, 5, 6, 7)
	if err != nil {
		return nil, fmt.Errorf("shiftreg: %w", err)
	}
	return &SPI{dev: dev, out: out}, nil
}

func (s *SPI) String() string {
	return fmt.Sprintf("shiftreg{%s}", s.out)
}

// Halt clears the parallel outputs and releases the port.
func (s *SPI) Halt() error {
	err := s.WriteByte(0)
	if err2 := s.dev.Halt(); err == nil {
		err = err2
	}
	return err
}

// WriteByte puts b on Q0-Q7 in a single transfer.
func (s *SPI) WriteByte(b byte) error {
	if err := s.out.Out(gpio.GPIOValue(b), 0xff); err != nil {
		return fmt.Errorf("shiftreg: %s: %w", s.dev, err)
	}
	return nil
}

var _ conn.Resource = &SPI{}
