// Package mcptools exposes bank scanning and conversion as MCP tools
package mcptools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/james-see/gba2xm/pkg/converter"
	"github.com/james-see/gba2xm/pkg/dump"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/romfile"
	"github.com/james-see/gba2xm/pkg/xm"
)

// NewServer builds the MCP server with every tool registered
func NewServer(version, trackerName string) *server.MCPServer {
	s := server.NewMCPServer(
		"gba2xm",
		version,
		server.WithToolCapabilities(false),
	)

	scanTool := mcp.NewTool("bank_scan",
		mcp.WithDescription("Scans a GBA ROM image for music banks and lists their addresses."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the ROM image.")),
	)
	s.AddTool(scanTool, scanHandler)

	describeTool := mcp.NewTool("bank_describe",
		mcp.WithDescription("Prints the instruments and songs of the music bank at an address."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the ROM image.")),
		mcp.WithString("address", mcp.Required(), mcp.Description("Bank address, decimal or 0x-prefixed hex.")),
	)
	s.AddTool(describeTool, describeHandler)

	convertTool := mcp.NewTool("bank_convert",
		mcp.WithDescription("Converts every song of a music bank to an XM module file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the ROM image.")),
		mcp.WithString("address", mcp.Required(), mcp.Description("Bank address, decimal or 0x-prefixed hex.")),
		mcp.WithString("output_dir", mcp.Description("Directory for the modules. Defaults to the ROM's directory.")),
	)
	s.AddTool(convertTool, convertHandler(trackerName))

	xmTool := mcp.NewTool("xm_describe",
		mcp.WithDescription("Prints the header, patterns and instruments of an XM module."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the module.")),
	)
	s.AddTool(xmTool, xmHandler)

	return s
}

// Serve runs the MCP server on stdin/stdout until the client disconnects
func Serve(version, trackerName string) error {
	log.Println("Starting gba2xm MCP server...")
	return server.ServeStdio(NewServer(version, trackerName))
}

func scanHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling bank scan request.")

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	img, err := romfile.Open(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer img.Close()

	matches, err := gba.ScanContext(ctx, img.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("scan interrupted: %v", err)
	}
	if matches == nil {
		matches = []gba.Match{}
	}

	asJSON, err := json.MarshalIndent(map[string]any{
		"gameCode": converter.GameCode(img.Data),
		"matches":  matches,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal matches to JSON: %v", err)
	}
	return mcp.NewToolResultText(string(asJSON)), nil
}

// openBank decodes the bank named by the request's path and address
func openBank(request mcp.CallToolRequest) (*romfile.Image, *gba.Bank, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, nil, err
	}
	addrText, err := request.RequireString("address")
	if err != nil {
		return nil, nil, err
	}
	address, err := converter.ParseAddress(addrText)
	if err != nil {
		return nil, nil, err
	}

	img, err := romfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if err := gba.CheckBank(img.Data, address); err != nil {
		img.Close()
		return nil, nil, fmt.Errorf("no bank at 0x%06x: %w", address, err)
	}
	bank, err := converter.New(img.Data, "").DecodeBank(address)
	if err != nil {
		img.Close()
		return nil, nil, err
	}
	return img, bank, nil
}

func describeHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling bank describe request.")

	img, bank, err := openBank(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer img.Close()

	var buf bytes.Buffer
	dump.Bank(&buf, bank)
	return mcp.NewToolResultText(buf.String()), nil
}

func convertHandler(trackerName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling bank convert request.")

		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		addrText, err := request.RequireString("address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		address, err := converter.ParseAddress(addrText)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		outDir := request.GetString("output_dir", filepath.Dir(path))

		log.Println("[mcp] Converting bank at", addrText, "of", path, "into", outDir)

		written, err := converter.ConvertFile(path, address, outDir, trackerName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		asJSON, err := json.MarshalIndent(map[string]any{"files": written}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal file list to JSON: %v", err)
		}
		return mcp.NewToolResultText(string(asJSON)), nil
	}
}

func xmHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling module describe request.")

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := romfile.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := xm.Decode(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	dump.Module(&buf, m)
	return mcp.NewToolResultText(buf.String()), nil
}
