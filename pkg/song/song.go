// Package song provides the format-agnostic pattern model shared by the bank and module codecs
package song

import (
	"errors"
	"fmt"
)

// ErrRowWidth is returned when a row does not hold one cell per channel
var ErrRowWidth = errors.New("row width does not match channel count")

// Disabled is the sentinel for envelope point-index fields that are switched off
const Disabled = 0xFF

// MaxNote is the highest playable note code (B-7)
const MaxNote = 96

// Cell is one channel's event at one row. Zero means absent for every field.
type Cell struct {
	Note       uint8 // 1..96 semitone code
	Instrument uint8 // 1-based instrument index
	Volume     uint8
	Effect     uint8
	Param      uint8
}

// IsPresent reports whether a cell field carries a value
func IsPresent(v uint8) bool {
	return v != 0
}

// IsEnabled reports whether a sentinel-guarded index field is switched on
func IsEnabled(v uint8) bool {
	return v != Disabled
}

// Fields returns the cell fields in wire order: note, instrument, volume, effect, parameter
func (c Cell) Fields() [5]uint8 {
	return [5]uint8{c.Note, c.Instrument, c.Volume, c.Effect, c.Param}
}

// SetField assigns the field at wire-order index i
func (c *Cell) SetField(i int, v uint8) {
	switch i {
	case 0:
		c.Note = v
	case 1:
		c.Instrument = v
	case 2:
		c.Volume = v
	case 3:
		c.Effect = v
	case 4:
		c.Param = v
	}
}

// IsEmpty reports whether no field is present
func (c Cell) IsEmpty() bool {
	return c == Cell{}
}

// Row holds one cell per channel
type Row struct {
	Cells []Cell
}

// NewRow creates an empty row for the given channel count
func NewRow(channels int) Row {
	return Row{Cells: make([]Cell, channels)}
}

// Pattern is an ordered sequence of rows
type Pattern struct {
	Rows []Row
}

// NewPattern creates a pattern of empty rows
func NewPattern(rows, channels int) Pattern {
	p := Pattern{Rows: make([]Row, rows)}
	for i := range p.Rows {
		p.Rows[i] = NewRow(channels)
	}
	return p
}

// Validate checks that every row holds exactly channels cells
func (p Pattern) Validate(channels int) error {
	for i, row := range p.Rows {
		if len(row.Cells) != channels {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrRowWidth, i, len(row.Cells), channels)
		}
	}
	return nil
}

// Song is the interchange form of one playable song
type Song struct {
	ChannelCount int
	Tickrate     int // ticks per row
	Tempo        int // beats per minute
	LoopPoint    int // order index playback restarts from
	Order        []uint8
	Patterns     []Pattern
}

// Validate checks the row-width invariant for every pattern
func (s *Song) Validate() error {
	for i, p := range s.Patterns {
		if err := p.Validate(s.ChannelCount); err != nil {
			return fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	return nil
}

// UsedInstruments returns the set of 1-based instrument indexes referenced by any cell
func UsedInstruments(patterns []Pattern) map[uint8]bool {
	used := make(map[uint8]bool)
	for _, p := range patterns {
		for _, row := range p.Rows {
			for _, cell := range row.Cells {
				if IsPresent(cell.Instrument) {
					used[cell.Instrument] = true
				}
			}
		}
	}
	return used
}

// ClonePatterns deep-copies a pattern slice
func ClonePatterns(patterns []Pattern) []Pattern {
	out := make([]Pattern, len(patterns))
	for i, p := range patterns {
		rows := make([]Row, len(p.Rows))
		for j, row := range p.Rows {
			rows[j] = Row{Cells: append([]Cell(nil), row.Cells...)}
		}
		out[i] = Pattern{Rows: rows}
	}
	return out
}

var noteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

// NoteName renders a note code as tracker text, e.g. 49 -> "C-4"
func NoteName(note uint8) string {
	if !IsPresent(note) {
		return "---"
	}
	if note > MaxNote {
		return "==="
	}
	n := note - 1
	return fmt.Sprintf("%s%d", noteNames[n%12], n/12)
}
