package converter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/gba2xm/pkg/song"
)

// ErrNoTempo is returned for a song whose tickrate or tempo is zero
var ErrNoTempo = errors.New("song has no tempo")

// KeyOff is the note code that releases the playing note of a channel
const KeyOff = song.MaxNote + 1

// MIDIConverter renders songs as Standard MIDI Files. One song row lasts a
// sixteenth note; the file tempo is chosen so the rows keep their real duration.
type MIDIConverter struct {
	ticksPerQuarter uint16
	rowsPerQuarter  uint32
}

// NewMIDIConverter creates a new MIDI converter
func NewMIDIConverter() *MIDIConverter {
	return &MIDIConverter{
		ticksPerQuarter: 480,
		rowsPerQuarter:  4,
	}
}

// BPM returns the MIDI tempo that plays one row per sixteenth note. A row
// lasts tickrate ticks of 2.5/tempo seconds each.
func (m *MIDIConverter) BPM(s *song.Song) float64 {
	secondsPerRow := float64(s.Tickrate) * 2.5 / float64(s.Tempo)
	return 60.0 / (secondsPerRow * float64(m.rowsPerQuarter))
}

// maxTempo is the largest value the three-byte set-tempo meta event holds
const maxTempo = 0xFFFFFF

// MicrosecondsPerBeat returns the set-tempo value for s, saturated at the
// largest tempo a MIDI file can store
func (m *MIDIConverter) MicrosecondsPerBeat(s *song.Song) uint32 {
	us := math.Round(60000000.0 / m.BPM(s))
	if us > maxTempo {
		return maxTempo
	}
	return uint32(us)
}

// MIDINote maps a note code to a MIDI key: code 49 (C-4) becomes 60
func MIDINote(note uint8) uint8 {
	key := int(note) + 11
	if key > 127 {
		key = 127
	}
	return uint8(key)
}

// volumeVelocity maps the volume column to a velocity, 100 when it sets no volume
func volumeVelocity(vol uint8) uint8 {
	if vol < 0x10 || vol > 0x50 {
		return 100
	}
	v := int(vol-0x10) * 127 / 64
	if v == 0 {
		v = 1
	}
	return uint8(v)
}

// GenerateMIDI renders s in pattern order as a single-track MIDI file.
// Channels map onto MIDI channels modulo 16; an instrument change sends a
// program change.
func (m *MIDIConverter) GenerateMIDI(s *song.Song) ([]byte, error) {
	if s.Tickrate == 0 || s.Tempo == 0 {
		return nil, ErrNoTempo
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// Create SMF with one track
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	microsecondsPerBeat := m.MicrosecondsPerBeat(s)
	tempoData := smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	})
	track.Add(0, tempoData)

	ticksPerRow := uint32(m.ticksPerQuarter) / m.rowsPerQuarter
	playing := make([]int, s.ChannelCount) // sounding key per channel, -1 for none
	programs := make([]int, s.ChannelCount)
	for ch := range playing {
		playing[ch] = -1
		programs[ch] = -1
	}

	var delta uint32
	emit := func(msg []byte) {
		track.Add(delta, msg)
		delta = 0
	}

	for _, idx := range s.Order {
		if int(idx) >= len(s.Patterns) {
			continue
		}
		for _, row := range s.Patterns[idx].Rows {
			for ch, cell := range row.Cells {
				channel := uint8(ch % 16)
				if !song.IsPresent(cell.Note) {
					continue
				}
				if playing[ch] >= 0 {
					emit(midi.NoteOff(channel, uint8(playing[ch])))
					playing[ch] = -1
				}
				if cell.Note >= KeyOff {
					continue
				}
				if song.IsPresent(cell.Instrument) && programs[ch] != int(cell.Instrument) {
					emit(midi.ProgramChange(channel, (cell.Instrument-1)&0x7F))
					programs[ch] = int(cell.Instrument)
				}
				key := MIDINote(cell.Note)
				emit(midi.NoteOn(channel, key, volumeVelocity(cell.Volume)))
				playing[ch] = int(key)
			}
			delta += ticksPerRow
		}
	}

	for ch, key := range playing {
		if key >= 0 {
			emit(midi.NoteOff(uint8(ch%16), uint8(key)))
		}
	}

	track.Close(delta)

	if err := sm.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteMIDIFile writes the rendered song to a file
func (m *MIDIConverter) WriteMIDIFile(s *song.Song, filename string) error {
	data, err := m.GenerateMIDI(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
