package converter

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/song"
	"github.com/james-see/gba2xm/pkg/xm"
)

const testBankAddress = 0x200

// testBank has three instruments; the third is never played
func testBank() *gba.Bank {
	lead := gba.Instrument{
		Header: gba.InstrumentHeader{
			SampleLoopStart:    1,
			SampleLoopLength:   2,
			SampleVolume:       64,
			SamplePanning:      128,
			SampleFinetune:     -16,
			SampleRelativeNote: 12,
			VolumeFadeout:      0x100,
			VolumeEnvelope: gba.Envelope{
				PointCount:          2,
				MaybeSustainPoint:   1,
				MaybeLoopStartPoint: song.Disabled,
				MaybeLoopEndPoint:   song.Disabled,
				Points:              [gba.MaxEnvelopePts]gba.EnvelopePoint{{X: 0, Y: 64}, {X: 20, Y: 32}},
			},
			PanningEnvelope: gba.Envelope{
				MaybeSustainPoint:   song.Disabled,
				MaybeLoopStartPoint: 0,
				MaybeLoopEndPoint:   1,
			},
		},
		Sample: []int8{10, 20, 15, -5},
	}
	silent := gba.Instrument{}
	unused := gba.Instrument{Sample: []int8{1, 2, 3}}

	p := song.NewPattern(2, 2)
	p.Rows[0].Cells[0] = song.Cell{Note: 49, Instrument: 1, Volume: 0x50}
	p.Rows[1].Cells[1] = song.Cell{Note: 50, Instrument: 2}
	p.Rows[1].Cells[0] = song.Cell{Note: KeyOff}

	return &gba.Bank{
		Instruments: []gba.Instrument{lead, silent, unused},
		Songs: []gba.Song{
			{
				Header:       gba.SongHeader{ChannelCount: 2, LoopPoint: 1, Tickrate: 6, Tempo: 125},
				PatternOrder: []uint8{0, 0},
				Patterns:     []song.Pattern{p},
			},
			{
				Header:       gba.SongHeader{ChannelCount: 2, Tickrate: 3, Tempo: 150},
				PatternOrder: []uint8{0},
				Patterns:     []song.Pattern{song.NewPattern(1, 2)},
			},
		},
	}
}

// testROM embeds testBank at testBankAddress behind a cartridge header
func testROM(t *testing.T) []byte {
	t.Helper()
	bank, err := gba.Encode(testBank())
	if err != nil {
		t.Fatalf("gba.Encode() error = %v", err)
	}
	rom := make([]byte, testBankAddress+len(bank)+64)
	copy(rom[GameCodeOffset:], "ABCD")
	rom[gbaFixedOffset] = gbaFixedValue
	copy(rom[testBankAddress:], bank)
	return rom
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"game.gba", FormatROM},
		{"GAME.GBA", FormatROM},
		{"dump.bin", FormatROM},
		{"song.xm", FormatXM},
		{"test.mid", FormatMIDI},
		{"test.midi", FormatMIDI},
		{"inst.wav", FormatWAV},
		{"test.txt", FormatUnknown},
		{"test", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	rom := make([]byte, 0xC0)
	rom[gbaFixedOffset] = gbaFixedValue

	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"XM file", []byte(xm.IDText + "name"), FormatXM},
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"WAV file", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"ROM image", rom, FormatROM},
		{"Short data", []byte{0x00, 0x01}, FormatUnknown},
		{"Other data", make([]byte, 0x100), FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormatFromContent(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0x08000200", 0x200, false},
		{"0X1F", 0x1F, false},
		{"512", 512, false},
		{"0100", 100, false},
		{" 0x200 ", 0x200, false},
		{"134218240", 0x200, false},
		{"", 0, true},
		{"0x", 0, true},
		{"zz", 0, true},
		{"-4", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestGameCodeAndNames(t *testing.T) {
	rom := testROM(t)
	if got := GameCode(rom); got != "ABCD" {
		t.Errorf("GameCode() = %q, want ABCD", got)
	}
	if got := GameCode(rom[:0xAE]); got != "" {
		t.Errorf("GameCode(short) = %q, want empty", got)
	}
	if got := SongName("ABCD", 0x1F0A4C, 0x1A); got != "ABCD-1F0A4C-song1A" {
		t.Errorf("SongName() = %q", got)
	}
	if got := InstrumentName(0x0A); got != "Instrument 0b" {
		t.Errorf("InstrumentName() = %q", got)
	}
	if got := SampleName(0); got != "Sample 01" {
		t.Errorf("SampleName() = %q", got)
	}
}

func TestDeltaEncode(t *testing.T) {
	tests := []struct {
		name string
		in   []int8
		want []int8
	}{
		{"empty", nil, nil},
		{"single", []int8{42}, []int8{42}},
		{"four bytes", []int8{10, 20, 15, -5}, []int8{10, 10, -5, -20}},
		{"wraps", []int8{-128, 127}, []int8{-128, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]int8(nil), tt.in...)
			got := DeltaEncode(in)
			if len(got) != len(tt.want) {
				t.Fatalf("DeltaEncode() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("DeltaEncode()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
			for i := range in {
				if in[i] != tt.in[i] {
					t.Fatal("DeltaEncode() modified its input")
				}
			}
			back := DeltaDecode(got)
			for i := range back {
				if back[i] != tt.in[i] {
					t.Errorf("DeltaDecode()[%d] = %d, want %d", i, back[i], tt.in[i])
				}
			}
		})
	}
}

func TestBankToModule(t *testing.T) {
	bank := testBank()
	m, err := BankToModule(bank, 0)
	if err != nil {
		t.Fatalf("BankToModule() error = %v", err)
	}

	if m.RestartPosition != 1 || m.ChannelCount != 2 || m.DefaultTickrate != 6 || m.DefaultTempo != 125 {
		t.Errorf("header = restart %d, channels %d, tickrate %d, tempo %d", m.RestartPosition, m.ChannelCount, m.DefaultTickrate, m.DefaultTempo)
	}
	if m.FrequencyTableFlags != 0 {
		t.Errorf("FrequencyTableFlags = %d, want 0", m.FrequencyTableFlags)
	}
	if len(m.Instruments) != 3 {
		t.Fatalf("len(Instruments) = %d, want 3", len(m.Instruments))
	}

	lead := m.Instruments[0]
	if lead.Name != "Instrument 01" || len(lead.Samples) != 1 {
		t.Fatalf("lead = %+v", lead)
	}
	s := lead.Samples[0]
	if s.Name != "Sample 01" || s.TypeFlags != xm.LoopForward || s.Finetune != -16 || s.RelativeNote != 12 {
		t.Errorf("sample = %+v", s)
	}
	want := []int8{10, 10, -5, -20}
	for i, v := range want {
		if s.Data[i] != v {
			t.Errorf("sample data[%d] = %d, want %d", i, s.Data[i], v)
		}
	}
	if bank.Instruments[0].Sample[1] != 20 {
		t.Error("BankToModule() modified the bank's sample data")
	}

	ext := lead.Extended
	if ext.SampleHeaderSize != 40 || ext.VolumeFadeout != 0x100 {
		t.Errorf("extended header = %+v", ext)
	}
	if ext.Volume.Type != xm.EnvelopeOn|xm.EnvelopeSustain {
		t.Errorf("volume type = %#x, want on|sustain", ext.Volume.Type)
	}
	if ext.Panning.Type != xm.EnvelopeLoop {
		t.Errorf("panning type = %#x, want loop only", ext.Panning.Type)
	}
	if ext.Volume.Points[1] != (xm.EnvelopePoint{X: 20, Y: 32}) || ext.Volume.LoopStartPoint != song.Disabled {
		t.Errorf("volume envelope = %+v", ext.Volume)
	}
	if ext.Vibrato != (xm.Vibrato{}) || ext.SampleNumberForAllNotes != [xm.NoteCount]uint8{} {
		t.Error("vibrato or note map not zero")
	}

	if len(m.Instruments[1].Samples) != 0 || m.Instruments[1].Name != "Instrument 02" {
		t.Errorf("silent instrument = %+v", m.Instruments[1])
	}
	if len(m.Instruments[2].Samples) != 0 {
		t.Error("unused instrument kept its sample")
	}

	m.Patterns[0].Rows[0].Cells[0].Note = 1
	if bank.Songs[0].Patterns[0].Rows[0].Cells[0].Note != 49 {
		t.Error("module patterns share storage with the bank")
	}
}

func TestBankToModuleSongIndex(t *testing.T) {
	if _, err := BankToModule(testBank(), 2); !errors.Is(err, gba.ErrSongIndex) {
		t.Errorf("BankToModule(index 2) error = %v, want ErrSongIndex", err)
	}
}

func TestStripUnusedSamples(t *testing.T) {
	m := &xm.Module{
		ChannelCount: 1,
		Patterns:     []song.Pattern{song.NewPattern(1, 1)},
		Instruments: []xm.Instrument{
			{Samples: []xm.Sample{{Data: []int8{1}}}},
			{Samples: []xm.Sample{{Data: []int8{1}}}},
		},
	}
	m.Patterns[0].Rows[0].Cells[0].Instrument = 2

	StripUnusedSamples(m)
	if len(m.Instruments) != 2 {
		t.Fatalf("len(Instruments) = %d, want 2", len(m.Instruments))
	}
	if len(m.Instruments[0].Samples) != 0 {
		t.Error("instrument 01 kept its sample")
	}
	if len(m.Instruments[1].Samples) != 1 {
		t.Error("instrument 02 lost its sample")
	}
}

func TestConvertBank(t *testing.T) {
	rom := testROM(t)
	results, err := New(rom, "").ConvertBank(testBankAddress)
	if err != nil {
		t.Fatalf("ConvertBank() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	for i, r := range results {
		if r.Error != nil {
			t.Fatalf("result %d error = %v", i, r.Error)
		}
		stem := SongName("ABCD", testBankAddress, i)
		if r.Filename != stem+".xm" || r.Format != FormatXM || r.Index != i {
			t.Errorf("result %d = %s %s %d", i, r.Filename, r.Format, r.Index)
		}

		m, err := xm.Decode(r.Data)
		if err != nil {
			t.Fatalf("xm.Decode(result %d) error = %v", i, err)
		}
		if m.Name != stem || m.TrackerName != DefaultTrackerName {
			t.Errorf("module names = %q/%q", m.Name, m.TrackerName)
		}
	}

	// the second song plays nothing, so every sample is stripped
	m, _ := xm.Decode(results[1].Data)
	for i, inst := range m.Instruments {
		if len(inst.Samples) != 0 {
			t.Errorf("song 01 instrument %02x has %d samples", i+1, len(inst.Samples))
		}
	}
}

func TestConvertBankTrackerNameTooLong(t *testing.T) {
	results, err := New(testROM(t), "a tracker name longer than twenty").ConvertBank(testBankAddress)
	if err != nil {
		t.Fatalf("ConvertBank() error = %v", err)
	}
	for _, r := range results {
		if !errors.Is(r.Error, xm.ErrFieldTooLong) || r.Data != nil {
			t.Errorf("result = %v, %d bytes; want ErrFieldTooLong and no data", r.Error, len(r.Data))
		}
	}
}

func TestConvertBankBadAddress(t *testing.T) {
	if _, err := New(testROM(t), "").ConvertBank(0x1000000); err == nil {
		t.Error("ConvertBank() past end of ROM returned nil error")
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.gba")
	rom := testROM(t)
	if err := os.WriteFile(romPath, rom, 0644); err != nil {
		t.Fatal(err)
	}

	written, err := ConvertFile(romPath, testBankAddress, dir, "gba2xm-test")
	if err != nil {
		t.Fatalf("ConvertFile() error = %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("ConvertFile() wrote %v", written)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ABCD-000200-song00.xm"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(xm.IDText)) {
		t.Error("output is not a module")
	}
}

func TestGetSupportedConversions(t *testing.T) {
	conversions := GetSupportedConversions()
	if len(conversions) != 4 {
		t.Errorf("GetSupportedConversions() returned %d conversions, want 4", len(conversions))
	}

	expected := map[string]bool{
		"rom -> xm":   true,
		"rom -> midi": true,
		"rom -> wav":  true,
		"xm -> midi":  true,
	}
	for _, conv := range conversions {
		if !expected[conv] {
			t.Errorf("Unexpected conversion: %s", conv)
		}
	}
}

func TestNewTrackerName(t *testing.T) {
	rom := []byte{1, 2, 3}
	tests := []struct {
		name string
		want string
	}{
		{"", DefaultTrackerName},
		{"gba2xm-1.2.0", "gba2xm-1.2.0"},
	}
	for _, tt := range tests {
		c := New(rom, tt.name)
		if got := c.TrackerName(); got != tt.want {
			t.Errorf("New(%q).TrackerName() = %q, want %q", tt.name, got, tt.want)
		}
		if len(c.ROM()) != len(rom) {
			t.Errorf("ROM() = %v, want %v", c.ROM(), rom)
		}
	}
}
