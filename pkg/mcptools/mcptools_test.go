package mcptools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/james-see/gba2xm/pkg/converter"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/song"
)

const bankAddress = 0x200

func writeROM(t *testing.T) string {
	t.Helper()
	p := song.NewPattern(2, 1)
	p.Rows[0].Cells[1] = song.Cell{Note: 61, Instrument: 1, Volume: 0x30}
	bank, err := gba.Encode(&gba.Bank{
		Instruments: []gba.Instrument{{Sample: []int8{4, 4, -4, -4}}},
		Songs: []gba.Song{{
			Header:       gba.SongHeader{ChannelCount: 2, Tickrate: 6, Tempo: 125},
			PatternOrder: []uint8{0},
			Patterns:     []song.Pattern{p},
		}},
	})
	if err != nil {
		t.Fatalf("gba.Encode() error = %v", err)
	}
	rom := make([]byte, bankAddress+len(bank))
	copy(rom[converter.GameCodeOffset:], "MCPT")
	copy(rom[bankAddress:], bank)

	path := filepath.Join(t.TempDir(), "game.gba")
	if err := os.WriteFile(path, rom, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestScanHandler(t *testing.T) {
	res, err := scanHandler(context.Background(), call(map[string]any{"path": writeROM(t)}))
	if err != nil {
		t.Fatalf("scanHandler() error = %v", err)
	}
	var got struct {
		GameCode string      `json:"gameCode"`
		Matches  []gba.Match `json:"matches"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if got.GameCode != "MCPT" || len(got.Matches) != 1 || got.Matches[0].Offset != bankAddress {
		t.Errorf("scan = %+v", got)
	}
}

func TestMissingArguments(t *testing.T) {
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"scan":     scanHandler,
		"describe": describeHandler,
		"convert":  convertHandler("t"),
		"xm":       xmHandler,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			res, err := h(context.Background(), call(map[string]any{}))
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if !res.IsError {
				t.Error("missing path was not reported as a tool error")
			}
		})
	}
}

func TestDescribeHandler(t *testing.T) {
	rom := writeROM(t)
	res, err := describeHandler(context.Background(), call(map[string]any{"path": rom, "address": "0x200"}))
	if err != nil {
		t.Fatalf("describeHandler() error = %v", err)
	}
	out := text(t, res)
	if res.IsError || !strings.Contains(out, "------ song 00 ------") || !strings.Contains(out, "C#4 01 30 -- --") {
		t.Errorf("describe output:\n%s", out)
	}

	res, _ = describeHandler(context.Background(), call(map[string]any{"path": rom, "address": "0x10"}))
	if !res.IsError {
		t.Error("describe at a non-bank address did not fail")
	}
}

func TestConvertAndDescribeModule(t *testing.T) {
	rom := writeROM(t)
	out := t.TempDir()
	res, err := convertHandler("mcp-test")(context.Background(), call(map[string]any{
		"path": rom, "address": "512", "output_dir": out,
	}))
	if err != nil {
		t.Fatalf("convertHandler() error = %v", err)
	}
	var got struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatalf("convert output %q: %v", text(t, res), err)
	}
	want := filepath.Join(out, "MCPT-000200-song00.xm")
	if len(got.Files) != 1 || got.Files[0] != want {
		t.Fatalf("files = %v, want [%s]", got.Files, want)
	}

	res, err = xmHandler(context.Background(), call(map[string]any{"path": want}))
	if err != nil {
		t.Fatalf("xmHandler() error = %v", err)
	}
	if dump := text(t, res); !strings.Contains(dump, "tracker: [mcp-test]") {
		t.Errorf("module dump:\n%s", dump)
	}
}

func TestNewServer(t *testing.T) {
	if NewServer("test", "") == nil {
		t.Fatal("NewServer() = nil")
	}
}
