/*
Copyright 2024 Tim St. Pierre
Drives a 74HC595 style serial-in/parallel-out shift register from three GPIO lines
*/

// Package shiftreg writes bytes to an 8-bit serial-in/parallel-out shift
// register such as the 74HC595.
//
// Bits are clocked in on the data line, most significant first, while the
// latch (storage register clock) is held low. Raising the latch copies all
// eight bits to the parallel outputs at once.
package shiftreg

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

type Dev struct {
	data  gpio.PinOut
	clock gpio.PinOut
	latch gpio.PinOut
}

// New configures the three pins as outputs driven low.
func New(data, clock, latch gpio.PinOut) (*Dev, error) {
	d := &Dev{data: data, clock: clock, latch: latch}
	for _, p := range []gpio.PinOut{data, clock, latch} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("shiftreg: %s: %w", p, err)
		}
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("shiftreg{data: %s, clock: %s, latch: %s}", d.data, d.clock, d.latch)
}

// Halt clears the parallel outputs.
func (d *Dev) Halt() error {
	return d.WriteByte(0)
}

// WriteByte shifts b in and latches it onto the parallel outputs.
func (d *Dev) WriteByte(b byte) error {
	eh := errorHandler{d: d}
	eh.latchOut(gpio.Low)
	eh.shiftOut(b)
	eh.latchOut(gpio.High)
	return eh.err
}

// ShiftOut clocks b in, most significant bit first, without touching the
// latch.
func (d *Dev) ShiftOut(b byte) error {
	eh := errorHandler{d: d}
	eh.shiftOut(b)
	return eh.err
}

// errorHandler keeps the first pin error and skips every write after it.
type errorHandler struct {
	d   *Dev
	err error
}

func (eh *errorHandler) out(p gpio.PinOut, l gpio.Level) {
	if eh.err != nil {
		return
	}
	if err := p.Out(l); err != nil {
		eh.err = fmt.Errorf("shiftreg: %s: %w", p, err)
	}
}

func (eh *errorHandler) latchOut(l gpio.Level) {
	eh.out(eh.d.latch, l)
}

func (eh *errorHandler) shiftOut(b byte) {
	for i := 7; i >= 0; i-- {
		eh.out(eh.d.data, gpio.Level(b&(1<<uint(i)) != 0))
		eh.out(eh.d.clock, gpio.High)
		eh.out(eh.d.clock, gpio.Low)
	}
}

var _ conn.Resource = &Dev{}
