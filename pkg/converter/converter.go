package converter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/romfile"
	"github.com/james-see/gba2xm/pkg/xm"
)

// DefaultTrackerName is stamped into modules when no tracker name is given
const DefaultTrackerName = "gba2xm"

// Every cartridge header carries a fixed byte at 0xB2
const (
	gbaFixedOffset = 0xB2
	gbaFixedValue  = 0x96
)

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".gba", ".agb", ".bin", ".rom":
		return FormatROM
	case ".xm":
		return FormatXM
	case ".mid", ".midi":
		return FormatMIDI
	case ".wav":
		return FormatWAV
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte(xm.IDText)):
		return FormatXM
	case string(data[:4]) == "MThd":
		return FormatMIDI
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) > gbaFixedOffset && data[gbaFixedOffset] == gbaFixedValue:
		return FormatROM
	}
	return FormatUnknown
}

// ParseAddress parses a bank address given as decimal or 0x-prefixed hex
// and masks off the cartridge bus prefix. A leading zero does not mean octal.
func ParseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q as a number: %w", s, err)
	}
	return gba.MaskAddress(v), nil
}

// DecodeBank decodes the bank at address
func (c *Converter) DecodeBank(address int) (*gba.Bank, error) {
	bank, err := gba.Decode(c.rom, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank at 0x%06x: %w", address, err)
	}
	return bank, nil
}

// SongModule converts one song of a decoded bank and names it after the
// cartridge, the bank address and the song index
func (c *Converter) SongModule(bank *gba.Bank, songIndex int) (*xm.Module, error) {
	m, err := BankToModule(bank, songIndex)
	if err != nil {
		return nil, err
	}
	m.Name = SongName(GameCode(c.rom), bank.Base, songIndex)
	m.TrackerName = c.TrackerName()
	return m, nil
}

// ConvertBank converts every song of the bank at address. A song that fails
// to encode carries its error in the result; the others are still produced.
func (c *Converter) ConvertBank(address int) ([]ConversionResult, error) {
	bank, err := c.DecodeBank(address)
	if err != nil {
		return nil, err
	}

	results := make([]ConversionResult, len(bank.Songs))
	for i := range bank.Songs {
		results[i] = c.convertSong(bank, i)
	}
	return results, nil
}

func (c *Converter) convertSong(bank *gba.Bank, i int) ConversionResult {
	name := SongName(GameCode(c.rom), bank.Base, i)
	result := ConversionResult{Filename: name + ".xm", Format: FormatXM, Index: i}

	m, err := c.SongModule(bank, i)
	if err != nil {
		result.Error = err
		return result
	}
	data, err := m.MarshalBinary()
	if err != nil {
		result.Error = fmt.Errorf("song %02x: %w", i, err)
		return result
	}
	result.Data = data
	return result
}

// ConvertFile converts every song of the bank at address in the ROM at
// romPath and writes one module per song into outDir. It returns the paths
// written. Nothing is written if any song fails to encode.
func ConvertFile(romPath string, address int, outDir, trackerName string) ([]string, error) {
	img, err := romfile.Open(romPath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	results, err := New(img.Data, trackerName).ConvertBank(address)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Error != nil {
			return nil, r.Error
		}
	}

	var written []string
	for _, r := range results {
		path := filepath.Join(outDir, r.Filename)
		if err := os.WriteFile(path, r.Data, 0644); err != nil {
			return written, fmt.Errorf("failed to write output file: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"rom -> xm",
		"rom -> midi",
		"rom -> wav",
		"xm -> midi",
	}
}
