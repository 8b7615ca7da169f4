package converter

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/james-see/gba2xm/pkg/gba"
)

// BaseSampleRate is the playback rate of an untransposed sample at C-4
const BaseSampleRate = 8363

// ErrEmptySample is returned when an instrument carries no sample data
var ErrEmptySample = errors.New("instrument has no sample data")

// SampleRate returns the rate at which the instrument's sample plays C-4,
// from its relative note and finetune (1/128 semitone steps)
func SampleRate(h gba.InstrumentHeader) int {
	semitones := float64(h.SampleRelativeNote) + float64(h.SampleFinetune)/128
	return int(math.Round(BaseSampleRate * math.Pow(2, semitones/12)))
}

// WriteSampleWAV writes an instrument's sample as a 16-bit mono WAV
func WriteSampleWAV(w io.WriteSeeker, inst gba.Instrument) error {
	if len(inst.Sample) == 0 {
		return ErrEmptySample
	}
	rate := SampleRate(inst.Header)

	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(inst.Sample))
	for i, v := range inst.Sample {
		data[i] = int(v) << 8
	}
	buf := &audio.IntBuffer{Data: data, Format: &audio.Format{SampleRate: rate, NumChannels: 1}, SourceBitDepth: 16}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV: %w", err)
	}
	return nil
}

// SampleFilename names the WAV of instrument i of the bank at address
func SampleFilename(gameCode string, address, i int) string {
	return fmt.Sprintf("%s-%06X-inst%02X.wav", gameCode, address, i+1)
}

// ExportSamples writes one WAV per instrument with sample data into outDir
// and returns the paths written
func (c *Converter) ExportSamples(bank *gba.Bank, outDir string) ([]string, error) {
	var written []string
	code := GameCode(c.rom)
	for i, inst := range bank.Instruments {
		if len(inst.Sample) == 0 {
			continue
		}
		path := filepath.Join(outDir, SampleFilename(code, bank.Base, i))
		if err := writeSampleFile(path, inst); err != nil {
			return written, fmt.Errorf("instrument %02x: %w", i+1, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeSampleFile(path string, inst gba.Instrument) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteSampleWAV(f, inst); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
