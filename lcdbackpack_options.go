/*
Copyright 2024 Tim St. Pierre
Options for the shift register LCD backpack
*/
package lcdbackpack

// Font selects the character cell height.
type Font uint8

const (
	// Font5x8 is the small font, supported by every panel.
	Font5x8 Font = iota
	// Font5x10 is the large font. Only some single line panels have it.
	Font5x10
)

func (f Font) String() string {
	if f == Font5x10 {
		return "5x10"
	}
	return "5x8"
}

// Direction is the text flow used when characters are written.
type Direction uint8

const (
	LeftToRight Direction = iota
	RightToLeft
)

type Opts struct {
	// Number of columns on the panel
	Cols int
	// Number of logical lines, not necessarily physical ones
	Lines int
	// Only honoured when Lines is 1
	Font Font
	// Switch the backlight on as part of the power up sequence
	Backlight bool
}

var DefaultOpts = Opts{
	Cols:  16,
	Lines: 2,
	Font:  Font5x8,
}

func (o *Opts) cols() int {
	if o.Cols <= 0 {
		return DefaultOpts.Cols
	}
	return o.Cols
}

func (o *Opts) lines() int {
	if o.Lines <= 0 {
		return DefaultOpts.Lines
	}
	return o.Lines
}

// functionFlags resolves the FUNCTION SET bits for the geometry. The large
// font is undefined on multi line panels and is silently dropped.
func functionFlags(lines int, font Font) byte {
	flags := byte(opt4BitMode)
	if lines > 1 {
		flags |= opt2Lines
	} else {
		flags |= opt1Line
	}
	if font == Font5x10 && lines == 1 {
		flags |= opt5x10Dots
	} else {
		flags |= opt5x8Dots
	}
	return flags
}
