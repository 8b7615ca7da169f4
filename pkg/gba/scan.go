package gba

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/james-see/gba2xm/pkg/binio"
)

// Scanner rejection reasons
var (
	ErrInvalidVersion     = errors.New("bank version mismatch")
	ErrStructuralMismatch = errors.New("bank structure is not self-consistent")
)

// ScanStride is the distance between candidate offsets; banks are word aligned
const ScanStride = 4

// Match is a bank location found by the scanner
type Match struct {
	Offset          int    `json:"offset"`
	Version         uint16 `json:"version"`
	InstrumentCount int    `json:"instrumentCount"`
	SongCount       int    `json:"songCount"`
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructuralMismatch, fmt.Sprintf(format, args...))
}

// CheckBank reports why no valid bank starts at offset, or nil if one does.
// It performs bounds-checked reads only and never panics on arbitrary input.
func CheckBank(data []byte, offset int) error {
	if offset < 0 || offset >= len(data) {
		return mismatch("offset 0x%x outside buffer", offset)
	}

	c := binio.NewReader(data)
	c.Seek(offset)

	var header BankHeader
	header.read(c)
	if c.Err() != nil {
		return mismatch("truncated header")
	}
	if header.Version != Version {
		return fmt.Errorf("%w: got 0x%04x", ErrInvalidVersion, header.Version)
	}
	if header.InstrumentCount == 0 {
		return mismatch("no instruments")
	}
	if header.SongCount == 0 {
		return mismatch("no songs")
	}

	songOffsets := c.ReadU32s(int(header.SongCount))
	if c.Err() != nil {
		return mismatch("truncated song offset table")
	}

	for i := 0; i < int(header.InstrumentCount); i++ {
		var inst InstrumentHeader
		inst.read(c)
		if c.Err() != nil {
			return mismatch("instrument %02x header truncated", i+1)
		}
		if inst.VolumeEnvelope.PointCount > MaxEnvelopePts || inst.PanningEnvelope.PointCount > MaxEnvelopePts {
			return mismatch("instrument %02x envelope point count", i+1)
		}
		if uint64(inst.SampleLength) > uint64(c.Remaining()) {
			return mismatch("instrument %02x sample runs past end of buffer", i+1)
		}
		c.Skip(int(inst.SampleLength))
		c.AlignTo(Alignment)
	}

	// instrument data must not run into the first song
	if int64(c.Tell()-offset) > int64(songOffsets[0]) {
		return mismatch("instruments overlap first song")
	}

	for i := 1; i < len(songOffsets); i++ {
		if songOffsets[i-1] >= songOffsets[i] {
			return mismatch("song offsets not increasing")
		}
	}

	for i, off := range songOffsets {
		if off%Alignment != 0 {
			return mismatch("song %02x offset 0x%x unaligned", i, off)
		}
		pos := int64(offset) + int64(off)
		if pos >= int64(len(data)) {
			return mismatch("song %02x offset 0x%x outside buffer", i, off)
		}
		if err := checkSong(c, int(pos)); err != nil {
			return fmt.Errorf("song %02x: %w", i, err)
		}
	}

	return nil
}

func checkSong(c *binio.Cursor, pos int) error {
	c.Seek(pos)
	var h SongHeader
	h.read(c)
	if c.Err() != nil {
		return mismatch("truncated song header")
	}
	if h.ChannelCount == 0 || h.SongLength == 0 || h.PatternCount == 0 || h.Tickrate == 0 || h.Tempo == 0 {
		return mismatch("zero field in song header %+v", h)
	}
	c.AlignTo(Alignment)
	order := c.ReadBytes(int(h.SongLength))
	if c.Err() != nil {
		return mismatch("truncated pattern order")
	}
	for _, p := range order {
		if p >= h.PatternCount {
			return mismatch("order entry %d >= pattern count %d", p, h.PatternCount)
		}
	}
	return nil
}

// IsValidBank reports whether a self-consistent bank starts at offset
func IsValidBank(data []byte, offset int) bool {
	return CheckBank(data, offset) == nil
}

func matchAt(data []byte, offset int) (Match, bool) {
	if !IsValidBank(data, offset) {
		return Match{}, false
	}
	return Match{
		Offset:          offset,
		Version:         Version,
		InstrumentCount: int(data[offset+2]),
		SongCount:       int(data[offset+3]),
	}, true
}

// Scan returns every word-aligned offset of data at which a valid bank begins
func Scan(data []byte) []Match {
	var matches []Match
	for off := 0; off < len(data); off += ScanStride {
		if m, ok := matchAt(data, off); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// ScanContext is Scan split across workers by offset range. Each candidate
// check only reads data, so the ranges share no state. workers <= 0 uses
// one worker per CPU.
func ScanContext(ctx context.Context, data []byte, workers int) ([]Match, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	candidates := (len(data) + ScanStride - 1) / ScanStride
	if candidates == 0 {
		return nil, nil
	}
	if workers > candidates {
		workers = candidates
	}
	per := (candidates + workers - 1) / workers

	results := make([][]Match, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * per * ScanStride
		end := min((w+1)*per*ScanStride, len(data))
		g.Go(func() error {
			for off := start; off < end; off += ScanStride {
				if off%(ScanStride*4096) == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if m, ok := matchAt(data, off); ok {
					results[w] = append(results[w], m)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var matches []Match
	for _, r := range results {
		matches = append(matches, r...)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Offset < matches[j].Offset })
	return matches, nil
}
