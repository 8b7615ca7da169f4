package gba

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

// romWithBank places an encoded bank at offset inside filler bytes
func romWithBank(t *testing.T, offset, size int) []byte {
	t.Helper()
	bank := encodeTestBank(t, testBank())
	rom := make([]byte, size)
	for i := range rom {
		rom[i] = 0xFF
	}
	copy(rom[offset:], bank)
	return rom
}

func TestScanFindsEmbeddedBank(t *testing.T) {
	rom := romWithBank(t, 0x200, 0x1000)

	matches := Scan(rom)
	if len(matches) != 1 {
		t.Fatalf("Scan() found %d banks, want 1: %+v", len(matches), matches)
	}
	want := Match{Offset: 0x200, Version: Version, InstrumentCount: 2, SongCount: 2}
	if matches[0] != want {
		t.Errorf("Scan()[0] = %+v, want %+v", matches[0], want)
	}
}

func TestScanContextMatchesScan(t *testing.T) {
	rom := romWithBank(t, 0x1F0, 0x3000)
	copy(rom[0x2000:], encodeTestBank(t, testBank()))

	want := Scan(rom)
	for _, workers := range []int{0, 1, 3, 16} {
		got, err := ScanContext(context.Background(), rom, workers)
		if err != nil {
			t.Fatalf("ScanContext(workers=%d) error = %v", workers, err)
		}
		if len(got) != len(want) {
			t.Fatalf("ScanContext(workers=%d) = %+v, want %+v", workers, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ScanContext(workers=%d)[%d] = %+v, want %+v", workers, i, got[i], want[i])
			}
		}
	}
}

func TestScanContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ScanContext(ctx, make([]byte, 1<<16), 2); !errors.Is(err, context.Canceled) {
		t.Errorf("ScanContext() error = %v, want context.Canceled", err)
	}
}

func TestCheckBankRejections(t *testing.T) {
	valid := encodeTestBank(t, testBank())
	songOffsetPos := BankHeaderLayout.Size()
	firstInst := songOffsetPos + 2*4
	secondSong := int(binary.LittleEndian.Uint32(valid[songOffsetPos+4:]))

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		want   error
	}{
		{"wrong version", func(b []byte) []byte { b[0] = 0x20; return b }, ErrInvalidVersion},
		{"no instruments", func(b []byte) []byte { b[2] = 0; return b }, ErrStructuralMismatch},
		{"no songs", func(b []byte) []byte { b[3] = 0; return b }, ErrStructuralMismatch},
		{"envelope point count", func(b []byte) []byte {
			b[firstInst+InstrumentHeaderLayout.Offset("volumeEnvelope")] = 13
			return b
		}, ErrStructuralMismatch},
		{"sample past end", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[firstInst:], 0x7FFFFFFF)
			return b
		}, ErrStructuralMismatch},
		{"instruments overlap songs", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[songOffsetPos:], 8)
			return b
		}, ErrStructuralMismatch},
		{"offsets not increasing", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[songOffsetPos+4:], binary.LittleEndian.Uint32(b[songOffsetPos:]))
			return b
		}, ErrStructuralMismatch},
		{"unaligned song", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[songOffsetPos+4:], uint32(secondSong+2))
			return b
		}, ErrStructuralMismatch},
		{"song outside buffer", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[songOffsetPos+4:], uint32(len(b)+4))
			return b
		}, ErrStructuralMismatch},
		{"zero tempo", func(b []byte) []byte { b[secondSong+5] = 0; return b }, ErrStructuralMismatch},
		{"zero channels", func(b []byte) []byte { b[secondSong] = 0; return b }, ErrStructuralMismatch},
		{"order entry out of range", func(b []byte) []byte { b[secondSong+8] = 1; return b }, ErrStructuralMismatch},
		{"truncated header", func(b []byte) []byte { return b[:3] }, ErrStructuralMismatch},
		{"truncated song offsets", func(b []byte) []byte { return b[:6] }, ErrStructuralMismatch},
		{"truncated instrument", func(b []byte) []byte { return b[:firstInst+50] }, ErrStructuralMismatch},
	}

	if err := CheckBank(valid, 0); err != nil {
		t.Fatalf("CheckBank(valid) = %v, want nil", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), valid...))
			err := CheckBank(b, 0)
			if !errors.Is(err, tt.want) {
				t.Errorf("CheckBank() = %v, want %v", err, tt.want)
			}
			if IsValidBank(b, 0) {
				t.Error("IsValidBank() = true for rejected bank")
			}
		})
	}
}

func TestCheckBankOffsetOutsideBuffer(t *testing.T) {
	for _, off := range []int{-4, 0, 8} {
		if IsValidBank(make([]byte, 8), off) {
			t.Errorf("IsValidBank(offset %d) = true on zero buffer", off)
		}
	}
}

func TestScanEmptyAndTiny(t *testing.T) {
	for n := 0; n < 16; n++ {
		if m := Scan(make([]byte, n)); len(m) != 0 {
			t.Errorf("Scan(%d zero bytes) = %+v, want none", n, m)
		}
	}
	if m, err := ScanContext(context.Background(), nil, 4); err != nil || len(m) != 0 {
		t.Errorf("ScanContext(nil) = %v, %v", m, err)
	}
}

func TestScanRandomBuffers(t *testing.T) {
	rng := rand.New(rand.NewSource(0x0121))
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(2048))
		rng.Read(buf)
		// plant the version word in a few spots so the deeper checks run
		for j := 0; j+4 <= len(buf); j += 64 {
			binary.LittleEndian.PutUint16(buf[j:], Version)
		}
		_ = Scan(buf)
	}
}

func TestScanTruncatedBankEverywhere(t *testing.T) {
	valid := encodeTestBank(t, testBank())
	for cut := 0; cut < len(valid); cut++ {
		if m := Scan(valid[:cut]); len(m) != 0 && cut < songEnd(t, valid) {
			t.Errorf("Scan(valid[:%d]) accepted a truncated bank", cut)
		}
	}
}

// songEnd returns the offset just past the last song's pattern order
func songEnd(t *testing.T, bank []byte) int {
	t.Helper()
	last := int(binary.LittleEndian.Uint32(bank[BankHeaderLayout.Size()+4:]))
	return last + 8 + int(bank[last+1])
}

func FuzzCheckBank(f *testing.F) {
	f.Add(make([]byte, 16), 0)
	f.Add([]byte{0x21, 0x01, 0x01, 0x01, 0, 0, 0, 0}, 0)
	f.Fuzz(func(t *testing.T, data []byte, offset int) {
		_ = CheckBank(data, offset)
		if offset >= 0 && offset < len(data) {
			_, _ = Decode(data, offset)
		}
	})
}
