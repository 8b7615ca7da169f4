// Package gba reads music banks embedded in Game Boy Advance cartridge images
package gba

import (
	"github.com/james-see/gba2xm/pkg/binio"
)

// Bank format constants
const (
	Version        = 0x0121 // the only bank version known to decode correctly
	MaxEnvelopePts = 12
	AddressMask    = 0x00FFFFFF
	Alignment      = 4
)

// Record layouts, byte for byte. Every codec path and the layout tests use these.
var (
	BankHeaderLayout = binio.Layout{
		Name: "bank header",
		Fields: []binio.Field{
			{Name: "version", Width: 2},
			{Name: "instrumentCount", Width: 1},
			{Name: "songCount", Width: 1},
		},
	}

	EnvelopeLayout = binio.Layout{
		Name: "envelope",
		Fields: []binio.Field{
			{Name: "pointCount", Width: 1},
			{Name: "maybeSustainPoint", Width: 1},
			{Name: "maybeLoopStartPoint", Width: 1},
			{Name: "maybeLoopEndPoint", Width: 1},
			{Name: "points", Width: 4, Count: MaxEnvelopePts},
		},
	}

	InstrumentHeaderLayout = binio.Layout{
		Name: "instrument header",
		Fields: []binio.Field{
			{Name: "sampleLength", Width: 4},
			{Name: "sampleLoopStart", Width: 4},
			{Name: "sampleLoopLength", Width: 4},
			{Name: "sampleVolume", Width: 1},
			{Name: "samplePanning", Width: 1},
			{Name: "sampleFinetune", Width: 1, Signed: true},
			{Name: "sampleRelativeNote", Width: 1, Signed: true},
			{Name: "volumeFadeout", Width: 2},
			{Name: "reserved", Width: 1, Count: 2},
			binio.Nested("volumeEnvelope", EnvelopeLayout),
			binio.Nested("panningEnvelope", EnvelopeLayout),
		},
	}

	SongHeaderLayout = binio.Layout{
		Name: "song header",
		Fields: []binio.Field{
			{Name: "channelCount", Width: 1},
			{Name: "songLength", Width: 1},
			{Name: "loopPoint", Width: 1},
			{Name: "patternCount", Width: 1},
			{Name: "tickrate", Width: 1},
			{Name: "tempo", Width: 1},
		},
	}
)

// BankHeader opens every bank
type BankHeader struct {
	Version         uint16
	InstrumentCount uint8
	SongCount       uint8
}

func (h *BankHeader) read(c *binio.Cursor) {
	if !c.Require(BankHeaderLayout.Size()) {
		return
	}
	h.Version = c.U16()
	h.InstrumentCount = c.U8()
	h.SongCount = c.U8()
}

func (h BankHeader) put(c *binio.Cursor) {
	c.PutU16(h.Version)
	c.PutU8(h.InstrumentCount)
	c.PutU8(h.SongCount)
}

// EnvelopePoint is one (tick, value) breakpoint
type EnvelopePoint struct {
	X, Y uint16
}

// Envelope is a volume or panning envelope.
// The three index fields are only partly understood; they are carried as read
// and 0xFF marks an index as disabled.
type Envelope struct {
	PointCount          uint8
	MaybeSustainPoint   uint8
	MaybeLoopStartPoint uint8
	MaybeLoopEndPoint   uint8
	Points              [MaxEnvelopePts]EnvelopePoint
}

func (e *Envelope) read(c *binio.Cursor) {
	e.PointCount = c.U8()
	e.MaybeSustainPoint = c.U8()
	e.MaybeLoopStartPoint = c.U8()
	e.MaybeLoopEndPoint = c.U8()
	for i := range e.Points {
		e.Points[i].X = c.U16()
		e.Points[i].Y = c.U16()
	}
}

func (e Envelope) put(c *binio.Cursor) {
	c.PutU8(e.PointCount)
	c.PutU8(e.MaybeSustainPoint)
	c.PutU8(e.MaybeLoopStartPoint)
	c.PutU8(e.MaybeLoopEndPoint)
	for _, p := range e.Points {
		c.PutU16(p.X)
		c.PutU16(p.Y)
	}
}

// InstrumentHeader is the fixed part of an instrument record
type InstrumentHeader struct {
	SampleLength       uint32
	SampleLoopStart    uint32
	SampleLoopLength   uint32
	SampleVolume       uint8
	SamplePanning      uint8
	SampleFinetune     int8
	SampleRelativeNote int8
	VolumeFadeout      uint16
	Reserved           [2]uint8 // probably alignment padding
	VolumeEnvelope     Envelope
	PanningEnvelope    Envelope
}

func (h *InstrumentHeader) read(c *binio.Cursor) {
	if !c.Require(InstrumentHeaderLayout.Size()) {
		return
	}
	h.SampleLength = c.U32()
	h.SampleLoopStart = c.U32()
	h.SampleLoopLength = c.U32()
	h.SampleVolume = c.U8()
	h.SamplePanning = c.U8()
	h.SampleFinetune = c.I8()
	h.SampleRelativeNote = c.I8()
	h.VolumeFadeout = c.U16()
	h.Reserved[0] = c.U8()
	h.Reserved[1] = c.U8()
	h.VolumeEnvelope.read(c)
	h.PanningEnvelope.read(c)
}

func (h InstrumentHeader) put(c *binio.Cursor) {
	c.PutU32(h.SampleLength)
	c.PutU32(h.SampleLoopStart)
	c.PutU32(h.SampleLoopLength)
	c.PutU8(h.SampleVolume)
	c.PutU8(h.SamplePanning)
	c.PutI8(h.SampleFinetune)
	c.PutI8(h.SampleRelativeNote)
	c.PutU16(h.VolumeFadeout)
	c.PutU8(h.Reserved[0])
	c.PutU8(h.Reserved[1])
	h.VolumeEnvelope.put(c)
	h.PanningEnvelope.put(c)
}

// SongHeader is the fixed part of a song record
type SongHeader struct {
	ChannelCount uint8
	SongLength   uint8 // entries in the pattern order
	LoopPoint    uint8
	PatternCount uint8
	Tickrate     uint8
	Tempo        uint8
}

func (h *SongHeader) read(c *binio.Cursor) {
	if !c.Require(SongHeaderLayout.Size()) {
		return
	}
	h.ChannelCount = c.U8()
	h.SongLength = c.U8()
	h.LoopPoint = c.U8()
	h.PatternCount = c.U8()
	h.Tickrate = c.U8()
	h.Tempo = c.U8()
}

func (h SongHeader) put(c *binio.Cursor) {
	c.PutU8(h.ChannelCount)
	c.PutU8(h.SongLength)
	c.PutU8(h.LoopPoint)
	c.PutU8(h.PatternCount)
	c.PutU8(h.Tickrate)
	c.PutU8(h.Tempo)
}

// rowMaskSize is the number of bitmask bytes preceding a row's cell data
func rowMaskSize(channels int) int {
	return (channels*5 + 7) / 8
}

// MaskAddress strips the cartridge bus prefix from an 0x08xxxxxx address
func MaskAddress(addr uint64) int {
	return int(addr & AddressMask)
}
