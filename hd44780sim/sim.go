/*
Copyright 2024 Tim St. Pierre
Software HD44780 sitting behind the backpack shift register
*/

// Package hd44780sim emulates an HD44780 character LCD wired to a 74HC595
// backpack, one shift register frame at a time, and prints the panel to the
// terminal using ANSI color codes.
//
// Useful while the real panel is still in the mail, and as a test oracle.
package hd44780sim

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

const (
	bitRS        = 0x02
	bitBacklight = 0x04
	bitEnable    = 0x08

	cmdClear       = 0x01
	cmdHome        = 0x02
	cmdEntryMode   = 0x04
	cmdControl     = 0x08
	cmdShift       = 0x10
	cmdFunctionSet = 0x20
	cmdCGRAM       = 0x40
	cmdDDRAM       = 0x80

	entryIncrement = 0x02
	entryShift     = 0x01
	controlDisplay = 0x04
	shiftDisplay   = 0x08
	shiftRight     = 0x04
	function8Bit   = 0x10
	function2Lines = 0x08

	lineLength = 40
)

var (
	backlightOn  = color.NRGBA{0x40, 0xa0, 0xff, 0xff}
	backlightOff = color.NRGBA{0x20, 0x20, 0x20, 0xff}
)

// Opts represents the geometry of the emulated panel.
type Opts struct {
	Cols    int
	Rows    int
	Palette *ansi256.Palette

	_ struct{}
}

// Sim is an HD44780 receiving shift register frames through WriteByte.
type Sim struct {
	w       io.Writer
	cols    int
	rows    int
	palette ansi256.Palette

	prev      byte
	fourBit   bool
	high      byte
	haveHigh  bool
	backlight bool

	function byte
	control  byte
	entry    byte
	addr     byte
	cgram    bool
	shift    int

	ddram [0x80]byte
	cgmem [64]byte

	buf bytes.Buffer
}

// New returns a powered up panel, still in 8-bit interface mode.
//
// A nil opts emulates a 16x2 panel.
func New(opts *Opts) *Sim {
	if opts == nil {
		opts = &Opts{Cols: 16, Rows: 2}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	s := &Sim{
		w:       colorable.NewColorableStdout(),
		cols:    opts.Cols,
		rows:    opts.Rows,
		palette: *p,
		entry:   entryIncrement,
	}
	for i := range s.ddram {
		s.ddram[i] = ' '
	}
	return s
}

func (s *Sim) String() string {
	return fmt.Sprintf("hd44780sim{%dx%d}", s.cols, s.rows)
}

// WriteByte accepts one frame as presented on the shift register outputs.
// A nibble is latched on the falling edge of the enable line.
func (s *Sim) WriteByte(frame byte) error {
	s.backlight = frame&bitBacklight != 0
	falling := s.prev&bitEnable != 0 && frame&bitEnable == 0
	s.prev = frame
	if !falling {
		return nil
	}
	nibble := frame >> 4
	rs := frame&bitRS != 0
	if !s.fourBit {
		// D0-D3 are not wired and read as zero.
		s.execute(nibble << 4)
		return nil
	}
	if !s.haveHigh {
		s.high = nibble
		s.haveHigh = true
		return nil
	}
	s.haveHigh = false
	value := s.high<<4 | nibble
	if rs {
		s.data(value)
	} else {
		s.execute(value)
	}
	return nil
}

func (s *Sim) execute(v byte) {
	switch {
	case v&cmdDDRAM != 0:
		s.addr = v & 0x7f
		s.cgram = false
	case v&cmdCGRAM != 0:
		s.addr = v & 0x3f
		s.cgram = true
	case v&cmdFunctionSet != 0:
		s.function = v
		s.fourBit = v&function8Bit == 0
	case v&cmdShift != 0:
		step := -1
		if v&shiftRight != 0 {
			step = 1
		}
		if v&shiftDisplay != 0 {
			s.shift -= step
		} else {
			s.move(step)
		}
	case v&cmdControl != 0:
		s.control = v & 0x07
	case v&cmdEntryMode != 0:
		s.entry = v & 0x03
	case v&cmdHome != 0:
		s.addr = 0
		s.cgram = false
		s.shift = 0
	case v&cmdClear != 0:
		for i := range s.ddram {
			s.ddram[i] = ' '
		}
		s.addr = 0
		s.cgram = false
		s.shift = 0
		s.entry |= entryIncrement
	}
}

func (s *Sim) data(v byte) {
	if s.cgram {
		s.cgmem[s.addr&0x3f] = v
		s.addr = (s.addr + 1) & 0x3f
		return
	}
	s.ddram[s.addr&0x7f] = v
	if s.entry&entryIncrement != 0 {
		s.move(1)
	} else {
		s.move(-1)
	}
	if s.entry&entryShift != 0 {
		if s.entry&entryIncrement != 0 {
			s.shift++
		} else {
			s.shift--
		}
	}
}

// move steps the DDRAM address counter by one position. In 2-line mode each
// line holds 40 cells at 0x00-0x27 and 0x40-0x67, and the counter runs from
// the end of one line to the start of the other. In 1-line mode it wraps over
// 0x00-0x4f.
func (s *Sim) move(step int) {
	a := int(s.addr & 0x7f)
	if s.function&function2Lines == 0 {
		s.addr = byte((a + step + 0x50) % 0x50)
		return
	}
	switch {
	case step > 0 && a == 0x27:
		a = 0x40
	case step > 0 && a >= 0x67:
		a = 0x00
	case step < 0 && a == 0x40:
		a = 0x27
	case step < 0 && a == 0x00:
		a = 0x67
	default:
		a += step
	}
	s.addr = byte(a)
}

func (s *Sim) rowOffset(row int) int {
	if s.cols == 16 && s.rows == 4 {
		return [4]int{0x00, 0x40, 0x10, 0x50}[row%4]
	}
	return [4]int{0x00, 0x40, 0x14, 0x54}[row%4]
}

// Text returns the visible characters, one string per row, honouring the
// display shift. Glyphs in CGRAM slots 0-7 are returned as raw bytes.
func (s *Sim) Text() []string {
	out := make([]string, s.rows)
	for r := range out {
		off := s.rowOffset(r)
		base := off & 0x40
		line := make([]byte, s.cols)
		for c := range line {
			i := ((off&0x3f)+c+s.shift)%lineLength + lineLength
			line[c] = s.ddram[base+i%lineLength]
		}
		out[r] = string(line)
	}
	return out
}

// Glyph returns the bitmap stored in CGRAM slot (masked to 0-7).
func (s *Sim) Glyph(slot int) [8]byte {
	var g [8]byte
	copy(g[:], s.cgmem[(slot&7)*8:])
	return g
}

func (s *Sim) Backlight() bool { return s.backlight }
func (s *Sim) DisplayOn() bool { return s.control&controlDisplay != 0 }
func (s *Sim) FourBit() bool   { return s.fourBit }
func (s *Sim) Function() byte  { return s.function }
func (s *Sim) Control() byte   { return s.control }
func (s *Sim) Entry() byte     { return s.entry }

// Address returns the address counter and whether it points into CGRAM.
func (s *Sim) Address() (addr byte, cgram bool) {
	return s.addr, s.cgram
}

// Refresh prints the panel to the console.
func (s *Sim) Refresh() error {
	s.buf.Reset()
	lamp := backlightOff
	if s.backlight {
		lamp = backlightOn
	}
	for _, line := range s.Text() {
		_, _ = s.buf.WriteString("\r\033[0m")
		_, _ = io.WriteString(&s.buf, s.palette.Block(lamp))
		_, _ = s.buf.WriteString("\033[0m ")
		if s.DisplayOn() {
			_, _ = s.buf.WriteString(strings.Map(printable, line))
		} else {
			_, _ = s.buf.WriteString(strings.Repeat(" ", len(line)))
		}
		_, _ = s.buf.WriteString("\n")
	}
	_, err := s.buf.WriteTo(s.w)
	return err
}

func printable(r rune) rune {
	switch {
	case r < 8:
		return '#'
	case r < ' ' || r > '~':
		return '?'
	}
	return r
}

var _ io.ByteWriter = &Sim{}
var _ fmt.Stringer = &Sim{}
