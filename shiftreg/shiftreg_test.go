/*
Copyright 2024 Tim St. Pierre
*/
package shiftreg

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type edge struct {
	pin   string
	level gpio.Level
}

// tracePin records every level written to the pin in a log shared by all
// traced pins so ordering between pins can be checked.
type tracePin struct {
	*gpiotest.Pin
	log *[]edge
	err error
}

func (p *tracePin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	*p.log = append(*p.log, edge{p.N, l})
	return p.Pin.Out(l)
}

func newTracePins() (data, clock, latch *tracePin, log *[]edge) {
	log = &[]edge{}
	data = &tracePin{Pin: &gpiotest.Pin{N: "data", Num: 11}, log: log}
	clock = &tracePin{Pin: &gpiotest.Pin{N: "clock", Num: 13}, log: log}
	latch = &tracePin{Pin: &gpiotest.Pin{N: "latch", Num: 10}, log: log}
	return
}

// hc595 replays the edges into a model of the chip: bits are sampled on
// the rising clock and copied to the outputs on the rising latch.
func hc595(edges []edge) (outputs []byte, latchLowWhileShifting bool) {
	var data, clock, latch gpio.Level
	var shift byte
	latchLowWhileShifting = true
	for _, e := range edges {
		switch e.pin {
		case "data":
			data = e.level
		case "clock":
			if e.level && !clock {
				if latch {
					latchLowWhileShifting = false
				}
				shift <<= 1
				if data {
					shift |= 1
				}
			}
			clock = e.level
		case "latch":
			if e.level && !latch {
				outputs = append(outputs, shift)
			}
			latch = e.level
		}
	}
	return outputs, latchLowWhileShifting
}

func TestNew(t *testing.T) {
	data, clock, latch, log := newTracePins()
	data.L, clock.L, latch.L = gpio.High, gpio.High, gpio.High
	d, err := New(data, clock, latch)
	if err != nil {
		t.Fatal(err)
	}
	want := []edge{{"data", gpio.Low}, {"clock", gpio.Low}, {"latch", gpio.Low}}
	if diff := cmp.Diff(*log, want, cmp.AllowUnexported(edge{})); diff != "" {
		t.Errorf("New() difference (-got +want):\n%s", diff)
	}
	if s := d.String(); len(s) == 0 {
		t.Error("invalid String() result")
	}
}

func TestWriteByte(t *testing.T) {
	for _, b := range []byte{0x00, 0xff, 0xa5, 0x38, 0x01, 0x80} {
		data, clock, latch, log := newTracePins()
		d, err := New(data, clock, latch)
		if err != nil {
			t.Fatal(err)
		}
		*log = (*log)[:0]
		if err := d.WriteByte(b); err != nil {
			t.Fatal(err)
		}
		outputs, ok := hc595(*log)
		if !ok {
			t.Errorf("%#02x: clock toggled with latch high", b)
		}
		if len(outputs) != 1 || outputs[0] != b {
			t.Errorf("%#02x: latched %#v", b, outputs)
		}
		if got := (*log)[0]; got != (edge{"latch", gpio.Low}) {
			t.Errorf("%#02x: first edge %v, want latch low", b, got)
		}
		if got := (*log)[len(*log)-1]; got != (edge{"latch", gpio.High}) {
			t.Errorf("%#02x: last edge %v, want latch high", b, got)
		}
		if latch.L != gpio.High || clock.L != gpio.Low {
			t.Errorf("%#02x: final levels latch=%s clock=%s", b, latch.L, clock.L)
		}
	}
}

func TestShiftOutMSBFirst(t *testing.T) {
	data, clock, latch, log := newTracePins()
	d, err := New(data, clock, latch)
	if err != nil {
		t.Fatal(err)
	}
	*log = (*log)[:0]
	if err := d.ShiftOut(0x81); err != nil {
		t.Fatal(err)
	}
	var sampled []gpio.Level
	var level gpio.Level
	for _, e := range *log {
		switch e.pin {
		case "data":
			level = e.level
		case "clock":
			if e.level {
				sampled = append(sampled, level)
			}
		case "latch":
			t.Fatal("ShiftOut touched the latch")
		}
	}
	want := []gpio.Level{gpio.High, gpio.Low, gpio.Low, gpio.Low, gpio.Low, gpio.Low, gpio.Low, gpio.High}
	if diff := cmp.Diff(sampled, want); diff != "" {
		t.Errorf("ShiftOut() difference (-got +want):\n%s", diff)
	}
}

func TestWriteByteError(t *testing.T) {
	data, clock, latch, log := newTracePins()
	d, err := New(data, clock, latch)
	if err != nil {
		t.Fatal(err)
	}
	*log = (*log)[:0]
	boom := errors.New("boom")
	clock.err = boom
	if err := d.WriteByte(0xff); !errors.Is(err, boom) {
		t.Fatalf("WriteByte() = %v, want %v", err, boom)
	}
	// Nothing after the failed clock edge may be written.
	want := []edge{{"latch", gpio.Low}, {"data", gpio.High}}
	if diff := cmp.Diff(*log, want, cmp.AllowUnexported(edge{})); diff != "" {
		t.Errorf("WriteByte() difference (-got +want):\n%s", diff)
	}
}

func TestNewError(t *testing.T) {
	data, clock, latch, _ := newTracePins()
	latch.err = errors.New("not exported")
	if _, err := New(data, clock, latch); err == nil {
		t.Fatal("expected error")
	}
}

func TestHalt(t *testing.T) {
	data, clock, latch, log := newTracePins()
	d, err := New(data, clock, latch)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteByte(0xff); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	outputs, _ := hc595(*log)
	if diff := cmp.Diff(outputs, []byte{0xff, 0x00}); diff != "" {
		t.Errorf("Halt() difference (-got +want):\n%s", diff)
	}
}
