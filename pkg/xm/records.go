// Package xm reads and writes FastTracker II extended modules
package xm

import (
	"github.com/james-see/gba2xm/pkg/binio"
)

// Module format constants
const (
	IDText           = "Extended Module: "
	Marker           = 0x1A
	FormatVersion    = 0x0104
	HeaderSize       = 276 // declared size, counted from the headerSize field at offset 60
	HeaderBase       = 60
	PatternHeaderLen = 9
	MaxOrders        = 256
	MaxPatterns      = 256
	MaxRows          = 256
	MaxChannels      = 64
	MaxEnvelopePts   = 12
	NoteCount        = 96

	NameSize       = 20
	TrackerSize    = 20
	InstrumentName = 22
	SampleName     = 22
)

// Cell packing flags
const (
	packedFlag = 0x80
	allPresent = 0x1F
	maxRawNote = 0x7F
)

// Envelope type bits
const (
	EnvelopeOn      = 0x01
	EnvelopeSustain = 0x02
	EnvelopeLoop    = 0x04
)

// Sample type bits
const (
	LoopForward  = 0x01
	LoopPingPong = 0x02
	Sample16Bit  = 0x10
)

// Record layouts, byte for byte
var (
	HeaderLayout = binio.Layout{
		Name: "module header",
		Fields: []binio.Field{
			{Name: "idText", Width: 1, Count: len(IDText)},
			{Name: "moduleName", Width: 1, Count: NameSize},
			{Name: "marker", Width: 1},
			{Name: "trackerName", Width: 1, Count: TrackerSize},
			{Name: "versionNumber", Width: 2},
			{Name: "headerSize", Width: 4},
			{Name: "songLength", Width: 2},
			{Name: "songRestartPos", Width: 2},
			{Name: "channelCount", Width: 2},
			{Name: "patternCount", Width: 2},
			{Name: "instrumentCount", Width: 2},
			{Name: "frequencyTableFlags", Width: 2},
			{Name: "defaultTickrate", Width: 2},
			{Name: "defaultTempo", Width: 2},
			{Name: "patternOrderTable", Width: 1, Count: MaxOrders},
		},
	}

	PatternHeaderLayout = binio.Layout{
		Name: "pattern header",
		Fields: []binio.Field{
			{Name: "headerSize", Width: 4},
			{Name: "packingType", Width: 1},
			{Name: "rowCount", Width: 2},
			{Name: "packedDataSize", Width: 2},
		},
	}

	InstrumentHeaderLayout = binio.Layout{
		Name: "instrument header",
		Fields: []binio.Field{
			{Name: "headerSize", Width: 4},
			{Name: "name", Width: 1, Count: InstrumentName},
			{Name: "type", Width: 1},
			{Name: "sampleCount", Width: 2},
		},
	}

	ExtendedHeaderLayout = binio.Layout{
		Name: "instrument extended header",
		Fields: []binio.Field{
			{Name: "sampleHeaderSize", Width: 4},
			{Name: "sampleNumberForAllNotes", Width: 1, Count: NoteCount},
			{Name: "volumeEnvelopePoints", Width: 4, Count: MaxEnvelopePts},
			{Name: "panningEnvelopePoints", Width: 4, Count: MaxEnvelopePts},
			{Name: "volumePointCount", Width: 1},
			{Name: "panningPointCount", Width: 1},
			{Name: "volumeSustainPoint", Width: 1},
			{Name: "volumeLoopStartPoint", Width: 1},
			{Name: "volumeLoopEndPoint", Width: 1},
			{Name: "panningSustainPoint", Width: 1},
			{Name: "panningLoopStartPoint", Width: 1},
			{Name: "panningLoopEndPoint", Width: 1},
			{Name: "volumeType", Width: 1},
			{Name: "panningType", Width: 1},
			{Name: "vibratoType", Width: 1},
			{Name: "vibratoSweep", Width: 1},
			{Name: "vibratoDepth", Width: 1},
			{Name: "vibratoRate", Width: 1},
			{Name: "volumeFadeout", Width: 2},
			{Name: "reserved", Width: 2},
		},
	}

	SampleHeaderLayout = binio.Layout{
		Name: "sample header",
		Fields: []binio.Field{
			{Name: "sampleLength", Width: 4},
			{Name: "loopStart", Width: 4},
			{Name: "loopLength", Width: 4},
			{Name: "volume", Width: 1},
			{Name: "finetune", Width: 1, Signed: true},
			{Name: "typeFlags", Width: 1},
			{Name: "panning", Width: 1},
			{Name: "relativeNoteNumber", Width: 1, Signed: true},
			{Name: "reserved", Width: 1},
			{Name: "name", Width: 1, Count: SampleName},
		},
	}
)

// EnvelopePoint is one (tick, value) breakpoint
type EnvelopePoint struct {
	X, Y uint16
}

// Envelope groups the envelope fields the extended header stores interleaved
type Envelope struct {
	Points         [MaxEnvelopePts]EnvelopePoint
	PointCount     uint8
	SustainPoint   uint8
	LoopStartPoint uint8
	LoopEndPoint   uint8
	Type           uint8 // EnvelopeOn | EnvelopeSustain | EnvelopeLoop
}

// Vibrato holds the auto-vibrato settings
type Vibrato struct {
	Type  uint8
	Sweep uint8
	Depth uint8
	Rate  uint8
}

// ExtendedHeader is present only for instruments with at least one sample
type ExtendedHeader struct {
	SampleHeaderSize        uint32
	SampleNumberForAllNotes [NoteCount]uint8
	Volume                  Envelope
	Panning                 Envelope
	Vibrato                 Vibrato
	VolumeFadeout           uint16
	Reserved                uint16
}

func (h *ExtendedHeader) read(c *binio.Cursor) {
	if !c.Require(ExtendedHeaderLayout.Size()) {
		return
	}
	h.SampleHeaderSize = c.U32()
	c.Read(h.SampleNumberForAllNotes[:])
	for _, env := range []*Envelope{&h.Volume, &h.Panning} {
		for i := range env.Points {
			env.Points[i].X = c.U16()
			env.Points[i].Y = c.U16()
		}
	}
	h.Volume.PointCount = c.U8()
	h.Panning.PointCount = c.U8()
	h.Volume.SustainPoint = c.U8()
	h.Volume.LoopStartPoint = c.U8()
	h.Volume.LoopEndPoint = c.U8()
	h.Panning.SustainPoint = c.U8()
	h.Panning.LoopStartPoint = c.U8()
	h.Panning.LoopEndPoint = c.U8()
	h.Volume.Type = c.U8()
	h.Panning.Type = c.U8()
	h.Vibrato.Type = c.U8()
	h.Vibrato.Sweep = c.U8()
	h.Vibrato.Depth = c.U8()
	h.Vibrato.Rate = c.U8()
	h.VolumeFadeout = c.U16()
	h.Reserved = c.U16()
}

func (h *ExtendedHeader) put(c *binio.Cursor) {
	c.PutU32(h.SampleHeaderSize)
	c.Write(h.SampleNumberForAllNotes[:])
	for _, env := range []*Envelope{&h.Volume, &h.Panning} {
		for _, p := range env.Points {
			c.PutU16(p.X)
			c.PutU16(p.Y)
		}
	}
	c.PutU8(h.Volume.PointCount)
	c.PutU8(h.Panning.PointCount)
	c.PutU8(h.Volume.SustainPoint)
	c.PutU8(h.Volume.LoopStartPoint)
	c.PutU8(h.Volume.LoopEndPoint)
	c.PutU8(h.Panning.SustainPoint)
	c.PutU8(h.Panning.LoopStartPoint)
	c.PutU8(h.Panning.LoopEndPoint)
	c.PutU8(h.Volume.Type)
	c.PutU8(h.Panning.Type)
	c.PutU8(h.Vibrato.Type)
	c.PutU8(h.Vibrato.Sweep)
	c.PutU8(h.Vibrato.Depth)
	c.PutU8(h.Vibrato.Rate)
	c.PutU16(h.VolumeFadeout)
	c.PutU16(h.Reserved)
}

// sampleHeader is the on-disk sample record; Sample holds the decoded form
type sampleHeader struct {
	length       uint32
	loopStart    uint32
	loopLength   uint32
	volume       uint8
	finetune     int8
	typeFlags    uint8
	panning      uint8
	relativeNote int8
	reserved     uint8
	name         string
}

func (h *sampleHeader) read(c *binio.Cursor) {
	if !c.Require(SampleHeaderLayout.Size()) {
		return
	}
	h.length = c.U32()
	h.loopStart = c.U32()
	h.loopLength = c.U32()
	h.volume = c.U8()
	h.finetune = c.I8()
	h.typeFlags = c.U8()
	h.panning = c.U8()
	h.relativeNote = c.I8()
	h.reserved = c.U8()
	h.name = c.ReadString(SampleName)
}

func (h *sampleHeader) put(c *binio.Cursor) {
	c.PutU32(h.length)
	c.PutU32(h.loopStart)
	c.PutU32(h.loopLength)
	c.PutU8(h.volume)
	c.PutI8(h.finetune)
	c.PutU8(h.typeFlags)
	c.PutU8(h.panning)
	c.PutI8(h.relativeNote)
	c.PutU8(h.reserved)
	c.PutString(h.name, SampleName)
}
