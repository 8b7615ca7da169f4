// Package converter turns GBA music banks into extended modules, and songs
// and samples into MIDI and WAV files
package converter

// Format represents a file format
type Format string

const (
	FormatROM     Format = "rom"
	FormatXM      Format = "xm"
	FormatMIDI    Format = "midi"
	FormatWAV     Format = "wav"
	FormatUnknown Format = "unknown"
)

// ConversionResult holds the result of converting one song or sample
type ConversionResult struct {
	Data     []byte
	Filename string
	Format   Format
	Index    int // song or instrument index inside the bank
	Error    error
}

// Converter converts the banks of one ROM image
type Converter struct {
	rom         []byte
	trackerName string
}

// New creates a Converter over a ROM image. trackerName is stamped into
// every module written; an empty name uses DefaultTrackerName.
func New(rom []byte, trackerName string) *Converter {
	if trackerName == "" {
		trackerName = DefaultTrackerName
	}
	return &Converter{rom: rom, trackerName: trackerName}
}

// ROM returns the image the converter reads from
func (c *Converter) ROM() []byte {
	return c.rom
}

// TrackerName returns the tracker name stamped into modules
func (c *Converter) TrackerName() string {
	return c.trackerName
}
