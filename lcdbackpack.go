/*
Copyright 2024 Tim St. Pierre
Controls an HD44780 character LCD through a 74HC595 shift register backpack.

Shift register wiring:

	bit 0    not connected
	bit 1    RS (register select)
	bit 2    backlight driver
	bit 3    E (enable)
	bit 4-7  D4-D7

R/W is tied low, the panel is write only. One Dev must own the chain; Dev
is not safe for concurrent use.
*/
package lcdbackpack

import (
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3/cpu"

	"github.com/tstpierre-tc/lcdbackpack/shiftreg"
)

const (
	// Commands
	CMD_Clear_Display        = 0x01
	CMD_Return_Home          = 0x02
	CMD_Entry_Mode           = 0x04
	CMD_Display_Control      = 0x08
	CMD_Cursor_Display_Shift = 0x10
	CMD_Function_Set         = 0x20
	CMD_CGRAM_Set            = 0x40
	CMD_DDRAM_Set            = 0x80

	// Options
	OPT_Entry_Left     = 0x02 // CMD_Entry_Mode 0 = right
	OPT_Entry_Shift    = 0x01 // CMD_Entry_Mode
	OPT_Enable_Display = 0x04 // CMD_Display_Control
	OPT_Enable_Cursor  = 0x02 // CMD_Display_Control
	OPT_Enable_Blink   = 0x01 // CMD_Display_Control
	OPT_Display_Shift  = 0x08 // CMD_Cursor_Display_Shift 0 = cursor move
	OPT_Shift_Right    = 0x04 // CMD_Cursor_Display_Shift 0 = Left

	opt8BitMode = 0x10 // CMD_Function_Set
	opt4BitMode = 0x00
	opt2Lines   = 0x08
	opt1Line    = 0x00
	opt5x10Dots = 0x04
	opt5x8Dots  = 0x00

	// Clear and home are slow on real panels
	clearDelay = 3 * time.Millisecond
)

var (
	rowOffsets     = [4]byte{0x00, 0x40, 0x14, 0x54}
	rowOffsets16x4 = [4]byte{0x00, 0x40, 0x10, 0x50}
)

// State is a snapshot of the flags last sent to the panel.
type State struct {
	Display    bool
	Cursor     bool
	Blink      bool
	Direction  Direction
	Autoscroll bool
	Backlight  bool
}

type Dev struct {
	r     io.ByteWriter
	sleep func(time.Duration)

	cols  int
	lines int

	displayFunction byte
	displayControl  byte
	displayMode     byte
	backlight       bool
}

func (d *Dev) String() string {
	return fmt.Sprintf("lcdbackpack{%v, %dx%d}", d.r, d.cols, d.lines)
}

// New returns a Dev driving the shift register on the given pins and runs
// the power up sequence.
//
// Use default options if nil is used.
func New(data, clock, latch gpio.PinOut, opts *Opts) (*Dev, error) {
	sr, err := shiftreg.New(data, clock, latch)
	if err != nil {
		return nil, fmt.Errorf("lcdbackpack: %w", err)
	}
	return NewRegister(sr, opts)
}

// NewSPI returns a Dev driving a backpack whose 74HC595 hangs off an SPI
// port, with chip select on the storage clock. c should be connected in mode
// 0 with 8 bits per word.
func NewSPI(c spi.Conn, opts *Opts) (*Dev, error) {
	sr, err := shiftreg.NewSPI(c)
	if err != nil {
		return nil, fmt.Errorf("lcdbackpack: %w", err)
	}
	return NewRegister(sr, opts)
}

// NewRegister returns a Dev writing its frames to r, typically a
// *shiftreg.Dev.
//
// Use default options if nil is used.
func NewRegister(r io.ByteWriter, opts *Opts) (*Dev, error) {
	return makeDev(r, cpu.Nanospin, opts)
}

func makeDev(r io.ByteWriter, sleep func(time.Duration), opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		r:         r,
		sleep:     sleep,
		backlight: opts.Backlight,
	}
	// The panel must not see a stray enable strobe before Begin.
	if err := r.WriteByte(0x00); err != nil {
		return nil, fmt.Errorf("lcdbackpack: reset: %w", err)
	}
	if err := d.Begin(opts.cols(), opts.lines(), opts.Font); err != nil {
		return nil, err
	}
	return d, nil
}

// Begin runs the HD44780 power up sequence for a 4-bit interface.
//
// See "LCD Initialization" by Donald Weiman, and figure 24 of the HD44780
// datasheet.
func (d *Dev) Begin(cols, lines int, font Font) error {
	if cols <= 0 {
		cols = DefaultOpts.Cols
	}
	if lines <= 0 {
		lines = DefaultOpts.Lines
	}
	d.cols = cols
	d.lines = lines
	d.displayFunction = functionFlags(lines, font)
	log.WithFields(log.Fields{
		"cols":  cols,
		"lines": lines,
		"font":  font,
	}).Info("Initializing LCD")

	// More than 100ms after power on, in 1ms steps.
	for i := 0; i < 200; i++ {
		d.sleep(time.Millisecond)
	}

	// Three times 0011b, still in 8-bit mode.
	if err := d.transmit((CMD_Function_Set|opt8BitMode)>>4, modeInit); err != nil {
		return err
	}
	d.sleep(4500 * time.Microsecond)
	for i := 0; i < 2; i++ {
		if err := d.transmit((CMD_Function_Set|opt8BitMode)>>4, modeInit); err != nil {
			return err
		}
		d.sleep(100 * time.Microsecond)
	}

	// 0010b switches to the 4-bit interface.
	if err := d.transmit((CMD_Function_Set|opt4BitMode)>>4, modeInit); err != nil {
		return err
	}
	d.sleep(100 * time.Microsecond)

	if err := d.command(CMD_Function_Set | d.displayFunction); err != nil {
		return err
	}
	if err := d.command(CMD_Display_Control); err != nil {
		return err
	}
	if err := d.Clear(); err != nil {
		return err
	}

	d.displayMode = OPT_Entry_Left
	if err := d.writeEntryMode(); err != nil {
		return err
	}
	d.displayControl = OPT_Enable_Display
	return d.writeDisplaySwitch()
}

// Halt blanks the screen and turns the backlight off.
func (d *Dev) Halt() error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.SetBacklight(false)
}

// Cols returns the number of columns given to Begin.
func (d *Dev) Cols() int {
	return d.cols
}

// Lines returns the number of logical lines given to Begin.
func (d *Dev) Lines() int {
	return d.lines
}

// State returns the shadow copy of the panel flags.
func (d *Dev) State() State {
	s := State{
		Display:    d.displayControl&OPT_Enable_Display != 0,
		Cursor:     d.displayControl&OPT_Enable_Cursor != 0,
		Blink:      d.displayControl&OPT_Enable_Blink != 0,
		Autoscroll: d.displayMode&OPT_Entry_Shift != 0,
		Backlight:  d.backlight,
	}
	if d.displayMode&OPT_Entry_Left == 0 {
		s.Direction = RightToLeft
	}
	return s
}

// Command sends a raw instruction byte.
func (d *Dev) Command(value byte) error {
	return d.command(value)
}

// WriteChar writes one character at the cursor. It always reports one
// byte written unless the register failed.
func (d *Dev) WriteChar(c byte) (int, error) {
	log.Debugf("Writing char %#02x", c)
	if err := d.transmit(c, modeCharacter); err != nil {
		return 0, err
	}
	return 1, nil
}

// Write implements io.Writer. Bytes go to the panel untranslated.
func (d *Dev) Write(buf []byte) (int, error) {
	written := 0
	for _, c := range buf {
		n, err := d.WriteChar(c)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (d *Dev) Clear() error {
	if err := d.command(CMD_Clear_Display); err != nil {
		return err
	}
	d.sleep(clearDelay)
	return nil
}

func (d *Dev) Home() error {
	if err := d.command(CMD_Return_Home); err != nil {
		return err
	}
	d.sleep(clearDelay)
	return nil
}

// SetPosition moves the cursor. Rows past the last line are pinned to it,
// negative rows and columns to 0.
func (d *Dev) SetPosition(col, row int) error {
	if row >= d.lines {
		row = d.lines - 1
	}
	if row >= len(rowOffsets) {
		row = len(rowOffsets) - 1
	}
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	offsets := rowOffsets
	// 16x4 panels have their own memory map.
	if d.cols == 16 && d.lines == 4 {
		offsets = rowOffsets16x4
	}
	return d.command(CMD_DDRAM_Set | (byte(col)+offsets[row])&0x7F)
}

func (d *Dev) SetDisplay(on bool) error {
	d.displayControl = setFlag(d.displayControl, OPT_Enable_Display, on)
	return d.writeDisplaySwitch()
}

func (d *Dev) SetCursor(on bool) error {
	d.displayControl = setFlag(d.displayControl, OPT_Enable_Cursor, on)
	return d.writeDisplaySwitch()
}

func (d *Dev) SetBlink(on bool) error {
	d.displayControl = setFlag(d.displayControl, OPT_Enable_Blink, on)
	return d.writeDisplaySwitch()
}

// SetBacklight switches the backlight. The backlight line rides along with
// every frame so the current display control byte is re-sent to push it out.
func (d *Dev) SetBacklight(on bool) error {
	d.backlight = on
	return d.Flush()
}

// Flush re-sends the display control byte, which also refreshes the
// backlight output of the shift register.
func (d *Dev) Flush() error {
	return d.writeDisplaySwitch()
}

// ScrollLeft shifts the whole display left without touching DDRAM.
func (d *Dev) ScrollLeft() error {
	return d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift)
}

// ScrollRight shifts the whole display right without touching DDRAM.
func (d *Dev) ScrollRight() error {
	return d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift | OPT_Shift_Right)
}

func (d *Dev) SetDirection(dir Direction) error {
	d.displayMode = setFlag(d.displayMode, OPT_Entry_Left, dir == LeftToRight)
	return d.writeEntryMode()
}

// SetAutoscroll makes each write shift the display instead of the cursor,
// right justifying text from the cursor.
func (d *Dev) SetAutoscroll(on bool) error {
	d.displayMode = setFlag(d.displayMode, OPT_Entry_Shift, on)
	return d.writeEntryMode()
}

// CreateChar stores a 5x8 glyph in one of the 8 CGRAM slots. slot is masked
// into range. The cursor is left at DDRAM address 0.
func (d *Dev) CreateChar(slot byte, bitmap [8]byte) error {
	slot &= 0x7
	if err := d.command(CMD_CGRAM_Set | slot<<3); err != nil {
		return err
	}
	for _, row := range bitmap {
		if _, err := d.WriteChar(row); err != nil {
			return err
		}
	}
	return d.command(CMD_DDRAM_Set)
}

func (d *Dev) writeDisplaySwitch() error {
	return d.command(CMD_Display_Control | d.displayControl)
}

func (d *Dev) writeEntryMode() error {
	return d.command(CMD_Entry_Mode | d.displayMode)
}

func setFlag(flags, mask byte, on bool) byte {
	if on {
		return flags | mask
	}
	return flags &^ mask
}

var _ conn.Resource = &Dev{}
var _ io.Writer = &Dev{}
