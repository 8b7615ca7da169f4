package converter

import (
	"fmt"
	"strings"

	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/song"
	"github.com/james-see/gba2xm/pkg/xm"
)

// GameCodeOffset is where the cartridge header stores the four character game code
const GameCodeOffset = 0xAC

// GameCode returns the cartridge game code of a ROM image, or "" if the
// image is too short to hold one. Trailing NULs are dropped.
func GameCode(rom []byte) string {
	if len(rom) < GameCodeOffset+4 {
		return ""
	}
	return strings.TrimRight(string(rom[GameCodeOffset:GameCodeOffset+4]), "\x00")
}

// SongName builds the module name and file stem of one converted song
func SongName(gameCode string, bankAddress, songIndex int) string {
	return fmt.Sprintf("%s-%06X-song%02X", gameCode, bankAddress, songIndex)
}

// InstrumentName is the module name of the instrument at 0-based index i
func InstrumentName(i int) string {
	return fmt.Sprintf("Instrument %02x", i+1)
}

// SampleName is the module name of the sample belonging to instrument i
func SampleName(i int) string {
	return fmt.Sprintf("Sample %02x", i+1)
}

// DeltaEncode replaces each sample value with its difference from the
// previous one, walking from the end so every difference uses the
// original value. Arithmetic wraps at 8 bits.
func DeltaEncode(data []int8) []int8 {
	out := append([]int8(nil), data...)
	for i := len(out) - 1; i > 0; i-- {
		out[i] -= out[i-1]
	}
	return out
}

// DeltaDecode is the inverse of DeltaEncode
func DeltaDecode(data []int8) []int8 {
	out := append([]int8(nil), data...)
	for i := 1; i < len(out); i++ {
		out[i] += out[i-1]
	}
	return out
}

func envelopeType(e gba.Envelope) uint8 {
	var t uint8
	if e.PointCount != 0 {
		t |= xm.EnvelopeOn
	}
	if song.IsEnabled(e.MaybeSustainPoint) {
		t |= xm.EnvelopeSustain
	}
	if song.IsEnabled(e.MaybeLoopEndPoint) {
		t |= xm.EnvelopeLoop
	}
	return t
}

func convertEnvelope(e gba.Envelope) xm.Envelope {
	out := xm.Envelope{
		PointCount:     e.PointCount,
		SustainPoint:   e.MaybeSustainPoint,
		LoopStartPoint: e.MaybeLoopStartPoint,
		LoopEndPoint:   e.MaybeLoopEndPoint,
		Type:           envelopeType(e),
	}
	for i, p := range e.Points {
		out.Points[i] = xm.EnvelopePoint{X: p.X, Y: p.Y}
	}
	return out
}

// ConvertInstrument builds the module instrument for bank instrument i.
// An instrument without sample data gets no sample and no extended header.
func ConvertInstrument(i int, inst gba.Instrument) xm.Instrument {
	out := xm.Instrument{Name: InstrumentName(i)}
	if len(inst.Sample) == 0 {
		return out
	}

	h := inst.Header
	out.Extended = xm.ExtendedHeader{
		SampleHeaderSize: uint32(xm.SampleHeaderLayout.Size()),
		Volume:           convertEnvelope(h.VolumeEnvelope),
		Panning:          convertEnvelope(h.PanningEnvelope),
		VolumeFadeout:    h.VolumeFadeout,
	}

	var flags uint8
	if h.SampleLoopLength > 0 {
		flags |= xm.LoopForward
	}
	out.Samples = []xm.Sample{{
		LoopStart:    h.SampleLoopStart,
		LoopLength:   h.SampleLoopLength,
		Volume:       h.SampleVolume,
		Finetune:     h.SampleFinetune,
		TypeFlags:    flags,
		Panning:      h.SamplePanning,
		RelativeNote: h.SampleRelativeNote,
		Name:         SampleName(i),
		Data:         DeltaEncode(inst.Sample),
	}}
	return out
}

// StripUnusedSamples drops the samples of every instrument no cell of the
// module references. The instruments themselves stay so indexes keep their meaning.
func StripUnusedSamples(m *xm.Module) {
	used := song.UsedInstruments(m.Patterns)
	for i := range m.Instruments {
		if !used[uint8(i+1)] {
			m.Instruments[i].Samples = nil
		}
	}
}

// BankToModule converts one song of a bank into an extended module. The
// module's patterns are a copy; the bank is left untouched.
func BankToModule(bank *gba.Bank, songIndex int) (*xm.Module, error) {
	s, err := bank.Song(songIndex)
	if err != nil {
		return nil, err
	}

	m := &xm.Module{
		RestartPosition: uint16(s.Header.LoopPoint),
		ChannelCount:    uint16(s.Header.ChannelCount),
		DefaultTickrate: uint16(s.Header.Tickrate),
		DefaultTempo:    uint16(s.Header.Tempo),
		PatternOrder:    append([]uint8(nil), s.PatternOrder...),
		Patterns:        song.ClonePatterns(s.Patterns),
		Instruments:     make([]xm.Instrument, len(bank.Instruments)),
	}
	for i, inst := range bank.Instruments {
		m.Instruments[i] = ConvertInstrument(i, inst)
	}
	StripUnusedSamples(m)
	return m, nil
}
