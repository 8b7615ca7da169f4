package gba

import (
	"fmt"
	"math"

	"github.com/james-see/gba2xm/pkg/binio"
	"github.com/james-see/gba2xm/pkg/song"
)

// Encode writes bank in the canonical layout Decode reads, with offsets
// relative to the start of the returned buffer: header, song offsets,
// instruments, then each song's header, order and row-offset tables followed
// by that song's row data. Rows with no present field are stored as a zero
// offset. Counts are taken from the slices, not from the cached headers.
func Encode(bank *Bank) ([]byte, error) {
	if len(bank.Instruments) > math.MaxUint8 || len(bank.Songs) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d instruments, %d songs", ErrUnsupportedLayout, len(bank.Instruments), len(bank.Songs))
	}
	for i := range bank.Songs {
		if err := validateSong(&bank.Songs[i]); err != nil {
			return nil, fmt.Errorf("song %02x: %w", i, err)
		}
	}

	w := binio.NewWriter()
	BankHeader{
		Version:         Version,
		InstrumentCount: uint8(len(bank.Instruments)),
		SongCount:       uint8(len(bank.Songs)),
	}.put(w)

	offsetTable := w.Tell()
	w.PutU32s(make([]uint32, len(bank.Songs)))

	for _, inst := range bank.Instruments {
		h := inst.Header
		h.SampleLength = uint32(len(inst.Sample))
		h.put(w)
		w.PutInt8s(inst.Sample)
		w.PadTo(Alignment)
	}

	songOffsets := make([]uint32, len(bank.Songs))
	for i := range bank.Songs {
		w.PadTo(Alignment)
		songOffsets[i] = uint32(w.Tell())
		encodeSong(w, &bank.Songs[i])
	}

	end := w.Tell()
	w.Seek(offsetTable)
	w.PutU32s(songOffsets)
	w.Seek(end)

	return w.Bytes(), nil
}

func validateSong(s *Song) error {
	if len(s.PatternOrder) > math.MaxUint8 || len(s.Patterns) > math.MaxUint8 {
		return fmt.Errorf("%w: %d orders, %d patterns", ErrUnsupportedLayout, len(s.PatternOrder), len(s.Patterns))
	}
	for i, p := range s.Patterns {
		if len(p.Rows) > math.MaxUint16 {
			return fmt.Errorf("%w: pattern %02x has %d rows", ErrUnsupportedLayout, i, len(p.Rows))
		}
		if err := p.Validate(int(s.Header.ChannelCount)); err != nil {
			return fmt.Errorf("pattern %02x: %w", i, err)
		}
	}
	return nil
}

func encodeSong(w *binio.Cursor, s *Song) {
	h := s.Header
	h.SongLength = uint8(len(s.PatternOrder))
	h.PatternCount = uint8(len(s.Patterns))
	h.put(w)
	w.PadTo(Alignment)
	w.Write(s.PatternOrder)
	w.PadTo(Alignment)

	tablePos := make([]int, len(s.Patterns))
	for i, p := range s.Patterns {
		w.PutU16(uint16(len(p.Rows)))
		w.PadTo(Alignment)
		tablePos[i] = w.Tell()
		w.PutU32s(make([]uint32, len(p.Rows)))
	}

	channels := int(h.ChannelCount)
	for i, p := range s.Patterns {
		offsets := make([]uint32, len(p.Rows))
		for j, row := range p.Rows {
			if rowIsEmpty(row) {
				continue
			}
			offsets[j] = uint32(w.Tell())
			encodeRow(w, row, channels)
		}
		end := w.Tell()
		w.Seek(tablePos[i])
		w.PutU32s(offsets)
		w.Seek(end)
	}
}

func rowIsEmpty(row song.Row) bool {
	for _, cell := range row.Cells {
		if !cell.IsEmpty() {
			return false
		}
	}
	return true
}

func encodeRow(w *binio.Cursor, row song.Row, channels int) {
	mask := make([]byte, rowMaskSize(channels))
	var payload []byte
	for ch, cell := range row.Cells {
		for field, v := range cell.Fields() {
			if !song.IsPresent(v) {
				continue
			}
			bit := ch*5 + field
			mask[bit/8] |= 0x80 >> (bit % 8)
			payload = append(payload, v)
		}
	}
	w.Write(mask)
	w.Write(payload)
}
