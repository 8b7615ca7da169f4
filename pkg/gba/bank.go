package gba

import (
	"errors"
	"fmt"

	"github.com/james-see/gba2xm/pkg/binio"
	"github.com/james-see/gba2xm/pkg/song"
)

// Decode errors
var (
	ErrUnsupportedLayout = errors.New("unsupported bank layout")
	ErrSongIndex         = errors.New("song index out of range")
)

// Instrument is a shared sample with its playback metadata
type Instrument struct {
	Header InstrumentHeader
	Sample []int8 // signed 8-bit PCM, absolute values
}

// Song is one song of a bank
type Song struct {
	Header       SongHeader
	PatternOrder []uint8
	Patterns     []song.Pattern
}

// Model returns the song in interchange form. Patterns are shared, not copied.
func (s *Song) Model() *song.Song {
	return &song.Song{
		ChannelCount: int(s.Header.ChannelCount),
		Tickrate:     int(s.Header.Tickrate),
		Tempo:        int(s.Header.Tempo),
		LoopPoint:    int(s.Header.LoopPoint),
		Order:        s.PatternOrder,
		Patterns:     s.Patterns,
	}
}

// Bank is a decoded music bank. Instruments are shared by all songs and
// referenced from cells by 1-based index.
type Bank struct {
	Base        int // file offset the bank was decoded from
	Header      BankHeader
	Instruments []Instrument
	Songs       []Song
}

// Song returns the song at index i
func (b *Bank) Song(i int) (*Song, error) {
	if i < 0 || i >= len(b.Songs) {
		return nil, fmt.Errorf("%w: %d (bank has %d songs)", ErrSongIndex, i, len(b.Songs))
	}
	return &b.Songs[i], nil
}

// rowTable is the offset table of one pattern, read before any row is resolved
type rowTable struct {
	offsets []uint32
}

// Decode reads the bank that starts at base. The version field is not
// enforced here; use CheckBank or IsValidBank to vet a candidate first.
func Decode(data []byte, base int) (*Bank, error) {
	c := binio.NewReader(data)
	c.Seek(base)

	bank := &Bank{Base: base}
	bank.Header.read(c)
	songOffsets := c.ReadU32s(int(bank.Header.SongCount))
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("bank header at 0x%06x: %w", base, err)
	}

	bank.Instruments = make([]Instrument, bank.Header.InstrumentCount)
	for i := range bank.Instruments {
		if err := decodeInstrument(c, &bank.Instruments[i]); err != nil {
			return nil, fmt.Errorf("instrument %02x: %w", i+1, err)
		}
	}

	bank.Songs = make([]Song, bank.Header.SongCount)
	for i, off := range songOffsets {
		c.Seek(base + int(off))
		if err := decodeSong(c, base, &bank.Songs[i]); err != nil {
			return nil, fmt.Errorf("song %02x at offset 0x%x: %w", i, off, err)
		}
	}

	return bank, nil
}

func decodeInstrument(c *binio.Cursor, inst *Instrument) error {
	inst.Header.read(c)
	if err := c.Err(); err != nil {
		return err
	}
	for _, env := range []Envelope{inst.Header.VolumeEnvelope, inst.Header.PanningEnvelope} {
		if env.PointCount > MaxEnvelopePts {
			return fmt.Errorf("%w: envelope declares %d points (max %d)", ErrUnsupportedLayout, env.PointCount, MaxEnvelopePts)
		}
	}
	inst.Sample = c.ReadInt8s(int(inst.Header.SampleLength))
	c.AlignTo(Alignment)
	return c.Err()
}

func decodeSong(c *binio.Cursor, base int, s *Song) error {
	s.Header.read(c)
	c.AlignTo(Alignment)
	s.PatternOrder = c.ReadBytes(int(s.Header.SongLength))
	c.AlignTo(Alignment)

	// First pass: the contiguous row-offset tables
	tables := make([]rowTable, s.Header.PatternCount)
	for i := range tables {
		rowCount := c.U16()
		c.AlignTo(Alignment)
		tables[i].offsets = c.ReadU32s(int(rowCount))
	}
	if err := c.Err(); err != nil {
		return err
	}

	// Second pass: resolve each offset through its own cursor
	channels := int(s.Header.ChannelCount)
	s.Patterns = make([]song.Pattern, len(tables))
	for i, table := range tables {
		p, err := resolveRows(c, base, table, channels)
		if err != nil {
			return fmt.Errorf("pattern %02x: %w", i, err)
		}
		s.Patterns[i] = p
	}
	return nil
}

func resolveRows(c *binio.Cursor, base int, table rowTable, channels int) (song.Pattern, error) {
	p := song.Pattern{Rows: make([]song.Row, len(table.offsets))}
	for i, off := range table.offsets {
		// a zero offset marks a row with no data; offset 0 is always inside the bank header
		if off == 0 {
			p.Rows[i] = song.NewRow(channels)
			continue
		}
		row, err := decodeRow(c.Fork(base+int(off)), channels)
		if err != nil {
			return song.Pattern{}, fmt.Errorf("row %02x at offset 0x%x: %w", i, off, err)
		}
		p.Rows[i] = row
	}
	return p, nil
}

// decodeRow reads a row bitmask followed by one byte per set bit.
// Bit channel*5+field, most significant bit first, flags note, instrument,
// volume, effect and parameter in that order.
func decodeRow(r *binio.Cursor, channels int) (song.Row, error) {
	mask := r.ReadBytes(rowMaskSize(channels))
	if err := r.Err(); err != nil {
		return song.Row{}, err
	}

	row := song.NewRow(channels)
	for ch := 0; ch < channels; ch++ {
		for field := 0; field < 5; field++ {
			bit := ch*5 + field
			if mask[bit/8]&(0x80>>(bit%8)) != 0 {
				row.Cells[ch].SetField(field, r.U8())
			}
		}
	}
	return row, r.Err()
}
