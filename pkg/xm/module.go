package xm

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/james-see/gba2xm/pkg/binio"
	"github.com/james-see/gba2xm/pkg/song"
)

// Codec errors
var (
	ErrFieldTooLong      = errors.New("field exceeds its fixed capacity")
	ErrUnsupportedLayout = errors.New("unsupported module layout")
)

// Sample is one sample of an instrument. Data holds the bytes as stored in
// the file: delta-encoded signed 8-bit PCM for 8-bit samples.
type Sample struct {
	LoopStart    uint32
	LoopLength   uint32
	Volume       uint8
	Finetune     int8
	TypeFlags    uint8
	Panning      uint8
	RelativeNote int8
	Name         string
	Data         []int8
}

// Instrument is a module instrument with zero or more samples
type Instrument struct {
	Name     string
	Type     uint8
	Extended ExtendedHeader // meaningful only when Samples is non-empty
	Samples  []Sample
}

// Module is a decoded extended module
type Module struct {
	Name                string
	TrackerName         string
	RestartPosition     uint16
	ChannelCount        uint16
	FrequencyTableFlags uint16
	DefaultTickrate     uint16
	DefaultTempo        uint16
	PatternOrder        []uint8
	Patterns            []song.Pattern
	Instruments         []Instrument
}

// Song returns the module's pattern data in interchange form
func (m *Module) Song() *song.Song {
	return &song.Song{
		ChannelCount: int(m.ChannelCount),
		Tickrate:     int(m.DefaultTickrate),
		Tempo:        int(m.DefaultTempo),
		LoopPoint:    int(m.RestartPosition),
		Order:        m.PatternOrder,
		Patterns:     m.Patterns,
	}
}

// Decode parses a complete module file
func Decode(data []byte) (*Module, error) {
	c := binio.NewReader(data)
	m := &Module{}

	if !c.Require(HeaderLayout.Size()) {
		return nil, fmt.Errorf("module header: %w", c.Err())
	}
	c.Skip(len(IDText))
	m.Name = c.ReadString(NameSize)
	c.U8() // marker
	m.TrackerName = c.ReadString(TrackerSize)
	c.U16() // version
	headerSize := c.U32()
	songLength := c.U16()
	m.RestartPosition = c.U16()
	m.ChannelCount = c.U16()
	patternCount := c.U16()
	instrumentCount := c.U16()
	m.FrequencyTableFlags = c.U16()
	m.DefaultTickrate = c.U16()
	m.DefaultTempo = c.U16()
	orderTable := c.ReadBytes(MaxOrders)

	if songLength > MaxOrders {
		return nil, fmt.Errorf("%w: song length %d exceeds %d", ErrUnsupportedLayout, songLength, MaxOrders)
	}
	m.PatternOrder = orderTable[:songLength]
	if err := checkDimensions(int(m.ChannelCount), int(patternCount)); err != nil {
		return nil, err
	}

	// the first pattern follows the declared header, whatever padding it carries
	c.Seek(HeaderBase + int(headerSize))

	m.Patterns = make([]song.Pattern, patternCount)
	for i := range m.Patterns {
		p, err := decodePattern(c, int(m.ChannelCount))
		if err != nil {
			return nil, fmt.Errorf("pattern %02x: %w", i, err)
		}
		m.Patterns[i] = p
	}

	m.Instruments = make([]Instrument, instrumentCount)
	for i := range m.Instruments {
		if err := decodeInstrument(c, &m.Instruments[i]); err != nil {
			return nil, fmt.Errorf("instrument %02x: %w", i+1, err)
		}
	}

	return m, nil
}

// DecodeReader reads r to the end and decodes it
func DecodeReader(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	return Decode(data)
}

func decodePattern(c *binio.Cursor, channels int) (song.Pattern, error) {
	start := c.Tell()
	if !c.Require(PatternHeaderLayout.Size()) {
		return song.Pattern{}, c.Err()
	}
	headerSize := c.U32()
	c.U8() // packing type, always 0
	rowCount := c.U16()
	packedSize := c.U16()
	if rowCount > MaxRows {
		return song.Pattern{}, fmt.Errorf("%w: %d rows, at most %d", ErrUnsupportedLayout, rowCount, MaxRows)
	}
	if headerSize > PatternHeaderLen {
		c.Seek(start + int(headerSize))
	}

	packed := c.ReadBytes(int(packedSize))
	if err := c.Err(); err != nil {
		return song.Pattern{}, err
	}

	// zero packed bytes means every row is empty
	if packedSize == 0 {
		return song.NewPattern(int(rowCount), channels), nil
	}
	// every cell costs at least its control byte
	if int(rowCount)*channels > int(packedSize) {
		return song.Pattern{}, fmt.Errorf("%w: %d cells in %d packed bytes", binio.ErrTruncated, int(rowCount)*channels, packedSize)
	}

	p := song.NewPattern(int(rowCount), channels)
	r := binio.NewReader(packed)
	for _, row := range p.Rows {
		for ch := range row.Cells {
			row.Cells[ch] = decodeCell(r)
		}
	}
	if err := r.Err(); err != nil {
		return song.Pattern{}, fmt.Errorf("packed data: %w", err)
	}
	return p, nil
}

// decodeCell reads one cell. A control byte with the high bit set carries a
// presence mask for the five fields in its low bits; otherwise the byte is
// the note itself and the other four fields follow unconditionally.
func decodeCell(r *binio.Cursor) song.Cell {
	var cell song.Cell
	b := r.U8()
	if b&packedFlag == 0 {
		cell.Note = b
		cell.Instrument = r.U8()
		cell.Volume = r.U8()
		cell.Effect = r.U8()
		cell.Param = r.U8()
		return cell
	}
	for field := 0; field < 5; field++ {
		if b&(1<<field) != 0 {
			cell.SetField(field, r.U8())
		}
	}
	return cell
}

func decodeInstrument(c *binio.Cursor, inst *Instrument) error {
	start := c.Tell()
	if !c.Require(InstrumentHeaderLayout.Size()) {
		return c.Err()
	}
	headerSize := c.U32()
	inst.Name = c.ReadString(InstrumentName)
	inst.Type = c.U8()
	sampleCount := c.U16()

	if sampleCount > 0 {
		inst.Extended.read(c)
	}
	// the declared size may cover trailing fields this codec does not model
	c.Seek(start + int(headerSize))
	if err := c.Err(); err != nil {
		return err
	}

	headers := make([]sampleHeader, sampleCount)
	for i := range headers {
		headers[i].read(c)
	}
	if err := c.Err(); err != nil {
		return fmt.Errorf("sample headers: %w", err)
	}

	inst.Samples = make([]Sample, sampleCount)
	for i, h := range headers {
		inst.Samples[i] = Sample{
			LoopStart:    h.loopStart,
			LoopLength:   h.loopLength,
			Volume:       h.volume,
			Finetune:     h.finetune,
			TypeFlags:    h.typeFlags,
			Panning:      h.panning,
			RelativeNote: h.relativeNote,
			Name:         h.name,
			Data:         c.ReadInt8s(int(h.length)),
		}
		if err := c.Err(); err != nil {
			return fmt.Errorf("sample %d data: %w", i, err)
		}
	}
	return nil
}

func checkString(field, s string, capacity int) error {
	if len(s) > capacity {
		return fmt.Errorf("%w: %s %q is %d bytes, capacity %d", ErrFieldTooLong, field, s, len(s), capacity)
	}
	return nil
}

// validate runs every pre-write check so encoding cannot fail half way
// checkDimensions bounds the channel and pattern counts a module may declare.
// An empty pattern costs nine bytes on disk, so these limits also bound what
// a decode can allocate.
func checkDimensions(channels, patterns int) error {
	if channels > MaxChannels {
		return fmt.Errorf("%w: %d channels, at most %d", ErrUnsupportedLayout, channels, MaxChannels)
	}
	if patterns > MaxPatterns {
		return fmt.Errorf("%w: %d patterns, at most %d", ErrUnsupportedLayout, patterns, MaxPatterns)
	}
	return nil
}

func (m *Module) validate() error {
	if err := checkString("module name", m.Name, NameSize); err != nil {
		return err
	}
	if err := checkString("tracker name", m.TrackerName, TrackerSize); err != nil {
		return err
	}
	if len(m.PatternOrder) > MaxOrders {
		return fmt.Errorf("%w: pattern order table has %d entries, capacity %d", ErrFieldTooLong, len(m.PatternOrder), MaxOrders)
	}
	if err := checkDimensions(int(m.ChannelCount), len(m.Patterns)); err != nil {
		return err
	}
	if len(m.Instruments) > math.MaxUint16 {
		return fmt.Errorf("%w: %d instruments", ErrUnsupportedLayout, len(m.Instruments))
	}
	for i, p := range m.Patterns {
		if len(p.Rows) > MaxRows {
			return fmt.Errorf("%w: pattern %02x has %d rows, at most %d", ErrUnsupportedLayout, i, len(p.Rows), MaxRows)
		}
		if err := p.Validate(int(m.ChannelCount)); err != nil {
			return fmt.Errorf("pattern %02x: %w", i, err)
		}
	}
	for i, inst := range m.Instruments {
		if err := checkString("instrument name", inst.Name, InstrumentName); err != nil {
			return fmt.Errorf("instrument %02x: %w", i+1, err)
		}
		if len(inst.Samples) > math.MaxUint16 {
			return fmt.Errorf("%w: instrument %02x has %d samples", ErrUnsupportedLayout, i+1, len(inst.Samples))
		}
		for j, s := range inst.Samples {
			if err := checkString("sample name", s.Name, SampleName); err != nil {
				return fmt.Errorf("instrument %02x sample %d: %w", i+1, j, err)
			}
			if uint64(len(s.Data)) > math.MaxUint32 {
				return fmt.Errorf("%w: instrument %02x sample %d too long", ErrUnsupportedLayout, i+1, j)
			}
		}
	}
	return nil
}

// MarshalBinary encodes the module. Nothing is produced unless every record validates.
func (m *Module) MarshalBinary() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	w := binio.NewWriter()
	w.Write([]byte(IDText))
	w.PutString(m.Name, NameSize)
	w.PutU8(Marker)
	w.PutString(m.TrackerName, TrackerSize)
	w.PutU16(FormatVersion)
	w.PutU32(HeaderSize)
	w.PutU16(uint16(len(m.PatternOrder)))
	w.PutU16(m.RestartPosition)
	w.PutU16(m.ChannelCount)
	w.PutU16(uint16(len(m.Patterns)))
	w.PutU16(uint16(len(m.Instruments)))
	w.PutU16(m.FrequencyTableFlags)
	w.PutU16(m.DefaultTickrate)
	w.PutU16(m.DefaultTempo)
	order := make([]byte, MaxOrders)
	copy(order, m.PatternOrder)
	w.Write(order)

	for i, p := range m.Patterns {
		packed := packPattern(p)
		if len(packed) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: pattern %02x packs to %d bytes", ErrUnsupportedLayout, i, len(packed))
		}
		w.PutU32(PatternHeaderLen)
		w.PutU8(0)
		w.PutU16(uint16(len(p.Rows)))
		w.PutU16(uint16(len(packed)))
		w.Write(packed)
	}

	for _, inst := range m.Instruments {
		encodeInstrument(w, &inst)
	}

	return w.Bytes(), nil
}

// WriteTo encodes the module and writes it in one call
func (m *Module) WriteTo(w io.Writer) (int64, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func packPattern(p song.Pattern) []byte {
	var packed []byte
	for _, row := range p.Rows {
		for _, cell := range row.Cells {
			packed = appendCell(packed, cell)
		}
	}
	return packed
}

// appendCell uses the raw five-byte form when every field is present and the
// note cannot be mistaken for a control byte, and the tagged form otherwise.
func appendCell(dst []byte, cell song.Cell) []byte {
	fields := cell.Fields()
	var bits uint8
	for i, v := range fields {
		if song.IsPresent(v) {
			bits |= 1 << i
		}
	}

	if bits == allPresent && cell.Note <= maxRawNote {
		return append(dst, fields[:]...)
	}

	dst = append(dst, packedFlag|bits)
	for _, v := range fields {
		if song.IsPresent(v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func encodeInstrument(w *binio.Cursor, inst *Instrument) {
	headerSize := uint32(InstrumentHeaderLayout.Size())
	if len(inst.Samples) > 0 {
		headerSize += uint32(ExtendedHeaderLayout.Size())
	}
	w.PutU32(headerSize)
	w.PutString(inst.Name, InstrumentName)
	w.PutU8(inst.Type)
	w.PutU16(uint16(len(inst.Samples)))

	if len(inst.Samples) > 0 {
		inst.Extended.put(w)
	}

	// all sample headers precede all sample data
	for _, s := range inst.Samples {
		h := sampleHeader{
			length:       uint32(len(s.Data)),
			loopStart:    s.LoopStart,
			loopLength:   s.LoopLength,
			volume:       s.Volume,
			finetune:     s.Finetune,
			typeFlags:    s.TypeFlags,
			panning:      s.Panning,
			relativeNote: s.RelativeNote,
			name:         s.Name,
		}
		h.put(w)
	}
	for _, s := range inst.Samples {
		w.PutInt8s(s.Data)
	}
}
