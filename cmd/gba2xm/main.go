// Package main is the entry point for the gba2xm CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/james-see/gba2xm/pkg/api"
	"github.com/james-see/gba2xm/pkg/converter"
	"github.com/james-see/gba2xm/pkg/dump"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/mcptools"
	"github.com/james-see/gba2xm/pkg/romfile"
	"github.com/james-see/gba2xm/pkg/song"
	"github.com/james-see/gba2xm/pkg/tui"
	"github.com/james-see/gba2xm/pkg/xm"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputDir   string
	samplesDir  string
	midiOutput  string
	trackerFlag string
	serverPort  int
	workers     int
	verbose     bool
	songIndex   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gba2xm",
	Short: "Extract music banks from GBA ROMs as XM modules",
	Long: `gba2xm finds tracker music banks inside Game Boy Advance ROM images and
converts their songs to FastTracker II extended modules.

Examples:
  gba2xm find game.gba
  gba2xm convert game.gba 0x081F0A4C -o out/
  gba2xm print game.gba 0x1F0A4C
  gba2xm xmprint ABCD-1F0A4C-song00.xm
  gba2xm midi game.gba 0x1F0A4C -s 2
  gba2xm samples game.gba 0x1F0A4C
  gba2xm layouts
  gba2xm tui
  gba2xm serve --port 8080`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert <rom> <address>",
	Short: "Convert every song of a bank to XM",
	Args:  cobra.ExactArgs(2),
	RunE:  runConvert,
}

var findCmd = &cobra.Command{
	Use:   "find <rom>...",
	Short: "Scan ROM images for music banks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFind,
}

var printCmd = &cobra.Command{
	Use:   "print <rom> <address>",
	Short: "Print the instruments and songs of a bank",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrint,
}

var xmprintCmd = &cobra.Command{
	Use:   "xmprint <module.xm>",
	Short: "Print the contents of an XM module",
	Args:  cobra.ExactArgs(1),
	RunE:  runXMPrint,
}

var midiCmd = &cobra.Command{
	Use:   "midi <rom> <address> | midi <module.xm>",
	Short: "Export one song as a MIDI file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMIDI,
}

var samplesCmd = &cobra.Command{
	Use:   "samples <rom> <address>",
	Short: "Export the instrument samples of a bank as WAV",
	Args:  cobra.ExactArgs(2),
	RunE:  runSamples,
}

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "Print the byte layout of every bank and module record",
	Args:  cobra.NoArgs,
	RunE:  runLayouts,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the conversion tools over MCP on stdio",
	RunE:  runMCP,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&trackerFlag, "tracker-name", "", "Tracker name written into modules (default gba2xm-<version>)")

	// convert command
	convertCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Output directory")

	// find command
	findCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Scan workers per file (0 = one per CPU)")
	findCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Explain rejected candidates that carry the bank version")

	// midi command
	midiCmd.Flags().IntVarP(&songIndex, "song", "s", 0, "Song index within the bank")
	midiCmd.Flags().StringVarP(&midiOutput, "output", "o", "", "Output .mid file path")

	// samples command
	samplesCmd.Flags().StringVarP(&samplesDir, "output", "o", ".", "Output directory")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	// Add commands
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(xmprintCmd)
	rootCmd.AddCommand(midiCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(layoutsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

func trackerName() string {
	if trackerFlag != "" {
		return trackerFlag
	}
	return "gba2xm-" + version
}

// loadBank opens a ROM and decodes the bank at the address argument. The
// caller closes the image.
func loadBank(romPath, addrArg string) (*romfile.Image, *gba.Bank, error) {
	address, err := converter.ParseAddress(addrArg)
	if err != nil {
		return nil, nil, err
	}
	img, err := romfile.Open(romPath)
	if err != nil {
		return nil, nil, err
	}
	bank, err := converter.New(img.Data, trackerName()).DecodeBank(address)
	if err != nil {
		img.Close()
		return nil, nil, err
	}
	fmt.Printf("Loaded bank at 0x%06x: %d instruments, %d songs\n", address, len(bank.Instruments), len(bank.Songs))
	return img, bank, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	address, err := converter.ParseAddress(args[1])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	written, err := converter.ConvertFile(args[0], address, outputDir, trackerName())
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Printf("Saved %s\n", path)
	}
	fmt.Printf("Converted %d songs\n", len(written))
	return nil
}

func runFind(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		img, err := romfile.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			continue
		}
		matches, err := gba.ScanContext(context.Background(), img.Data, workers)
		if err != nil {
			img.Close()
			return err
		}
		dump.Matches(os.Stdout, path, matches)
		if verbose {
			explainRejections(img.Data)
		}
		img.Close()
	}
	return nil
}

// explainRejections prints why each candidate carrying the bank version
// was not accepted
func explainRejections(data []byte) {
	for off := 0; off+2 <= len(data); off += gba.ScanStride {
		if uint16(data[off])|uint16(data[off+1])<<8 != gba.Version {
			continue
		}
		err := gba.CheckBank(data, off)
		if err == nil || errors.Is(err, gba.ErrInvalidVersion) {
			continue
		}
		fmt.Printf("  %06x rejected: %v\n", off, err)
	}
}

func runPrint(cmd *cobra.Command, args []string) error {
	img, bank, err := loadBank(args[0], args[1])
	if err != nil {
		return err
	}
	defer img.Close()

	dump.Bank(os.Stdout, bank)
	return nil
}

func runXMPrint(cmd *cobra.Command, args []string) error {
	m, err := readModule(args[0])
	if err != nil {
		return err
	}
	dump.Module(os.Stdout, m)
	return nil
}

func runLayouts(cmd *cobra.Command, args []string) error {
	dump.Layouts(cmd.OutOrStdout(),
		gba.BankHeaderLayout, gba.InstrumentHeaderLayout, gba.EnvelopeLayout, gba.SongHeaderLayout,
		xm.HeaderLayout, xm.PatternHeaderLayout, xm.InstrumentHeaderLayout, xm.ExtendedHeaderLayout, xm.SampleHeaderLayout)
	return nil
}

func readModule(path string) (*xm.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := xm.DecodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func runMIDI(cmd *cobra.Command, args []string) error {
	input := args[0]

	var s *song.Song
	var output string
	if converter.DetectFormat(input) == converter.FormatXM {
		if len(args) != 1 {
			return fmt.Errorf("midi: an XM input takes no address")
		}
		m, err := readModule(input)
		if err != nil {
			return err
		}
		s = m.Song()
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".mid"
	} else {
		if len(args) != 2 {
			return fmt.Errorf("midi: a ROM input needs a bank address")
		}
		img, bank, err := loadBank(input, args[1])
		if err != nil {
			return err
		}
		defer img.Close()

		gs, err := bank.Song(songIndex)
		if err != nil {
			return err
		}
		s = gs.Model()
		output = converter.SongName(converter.GameCode(img.Data), bank.Base, songIndex) + ".mid"
	}
	if midiOutput != "" {
		output = midiOutput
	}

	if err := converter.NewMIDIConverter().WriteMIDIFile(s, output); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", output)
	return nil
}

func runSamples(cmd *cobra.Command, args []string) error {
	img, bank, err := loadBank(args[0], args[1])
	if err != nil {
		return err
	}
	defer img.Close()

	if err := os.MkdirAll(samplesDir, 0755); err != nil {
		return err
	}
	written, err := converter.New(img.Data, trackerName()).ExportSamples(bank, samplesDir)
	for _, path := range written {
		fmt.Printf("Saved %s\n", path)
	}
	return err
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(trackerName())
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort, trackerName())
}

func runMCP(cmd *cobra.Command, args []string) error {
	return mcptools.Serve(version, trackerName())
}
