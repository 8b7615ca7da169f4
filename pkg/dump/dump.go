// Package dump renders banks, modules and scan results as plain text
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/james-see/gba2xm/pkg/binio"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/song"
	"github.com/james-see/gba2xm/pkg/xm"
)

// Cell renders one cell as "C-4 01 40 0f 03"; absent fields print as dashes
func Cell(c song.Cell) string {
	field := func(v uint8) string {
		if !song.IsPresent(v) {
			return "--"
		}
		return fmt.Sprintf("%02x", v)
	}
	return strings.Join([]string{
		song.NoteName(c.Note),
		field(c.Instrument),
		field(c.Volume),
		field(c.Effect),
		field(c.Param),
	}, " ")
}

// Row renders a row as "| cell | cell |"
func Row(r song.Row) string {
	var b strings.Builder
	b.WriteString("|")
	for _, c := range r.Cells {
		b.WriteString(" ")
		b.WriteString(Cell(c))
		b.WriteString(" |")
	}
	return b.String()
}

func order(o []uint8) string {
	var b strings.Builder
	b.WriteString("[")
	for _, e := range o {
		fmt.Fprintf(&b, " %02x", e)
	}
	b.WriteString(" ]")
	return b.String()
}

// points renders n envelope breakpoints as " [x, y],"
func points(n int, at func(i int) (x, y uint16)) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		x, y := at(i)
		fmt.Fprintf(&b, " [%d, %d],", x, y)
	}
	return b.String()
}

func patterns(w io.Writer, indent string, pats []song.Pattern) {
	for i, p := range pats {
		fmt.Fprintf(w, "%s-- pattern %02x --\n", indent, i)
		for r, row := range p.Rows {
			fmt.Fprintf(w, "%s\t%02x %s\n", indent, r, Row(row))
		}
	}
}

func bankEnvelope(w io.Writer, name string, e gba.Envelope) {
	fmt.Fprintf(w, "\t-- %s envelope --\n", name)
	fmt.Fprintf(w, "\t\tpoint count:      %d\n", e.PointCount)
	fmt.Fprintf(w, "\t\tsustain point?    %d\n", e.MaybeSustainPoint)
	fmt.Fprintf(w, "\t\tloop start point? %d\n", e.MaybeLoopStartPoint)
	fmt.Fprintf(w, "\t\tloop end point?   %d\n", e.MaybeLoopEndPoint)
	if e.PointCount != 0 {
		n := min(int(e.PointCount), len(e.Points))
		fmt.Fprintf(w, "\t\tpoints:%s\n", points(n, func(i int) (uint16, uint16) { return e.Points[i].X, e.Points[i].Y }))
	}
}

// Bank writes every instrument and song of a bank
func Bank(w io.Writer, bank *gba.Bank) {
	for i, inst := range bank.Instruments {
		h := inst.Header
		fmt.Fprintf(w, "------ instrument %02x ------\n", i+1)
		fmt.Fprintf(w, "\tsample length: %d bytes\n", h.SampleLength)
		fmt.Fprintf(w, "\tsample loop start:  %d\n", h.SampleLoopStart)
		fmt.Fprintf(w, "\tsample loop length: %d\n", h.SampleLoopLength)
		fmt.Fprintf(w, "\tsample volume:      %d\n", h.SampleVolume)
		fmt.Fprintf(w, "\tsample panning:     %d\n", h.SamplePanning)
		fmt.Fprintf(w, "\tsample finetune:    %d\n", h.SampleFinetune)
		fmt.Fprintf(w, "\tsample relative note #: %d\n", h.SampleRelativeNote)
		fmt.Fprintf(w, "\tvolume fadeout:     %d\n", h.VolumeFadeout)
		fmt.Fprintf(w, "\treserved bytes:     %02x %02x\n", h.Reserved[0], h.Reserved[1])
		bankEnvelope(w, "volume", h.VolumeEnvelope)
		bankEnvelope(w, "panning", h.PanningEnvelope)
		fmt.Fprintln(w)
	}

	for i, s := range bank.Songs {
		h := s.Header
		fmt.Fprintf(w, "------ song %02x ------\n", i)
		fmt.Fprintf(w, "\tchannel count: %d\n", h.ChannelCount)
		fmt.Fprintf(w, "\tsong length:   %d\n", h.SongLength)
		fmt.Fprintf(w, "\tloop point:    %d\n", h.LoopPoint)
		fmt.Fprintf(w, "\tpattern count: %d\n", h.PatternCount)
		fmt.Fprintf(w, "\ttickrate:      %d ticks/row\n", h.Tickrate)
		fmt.Fprintf(w, "\ttempo:         %d beats/min\n", h.Tempo)
		fmt.Fprintf(w, "\tpattern order: %s\n", order(s.PatternOrder))
		patterns(w, "\t", s.Patterns)
		fmt.Fprintln(w)
	}
}

func moduleEnvelope(w io.Writer, name string, e xm.Envelope) {
	if e.PointCount > 0 {
		n := min(int(e.PointCount), len(e.Points))
		fmt.Fprintf(w, "\t%s envelope points:%s\n", name, points(n, func(i int) (uint16, uint16) { return e.Points[i].X, e.Points[i].Y }))
	}
	fmt.Fprintf(w, "\t%s point count: %d\n", name, e.PointCount)
	fmt.Fprintf(w, "\t%s sustain point: %d\n", name, e.SustainPoint)
	fmt.Fprintf(w, "\t%s loop start point: %d\n", name, e.LoopStartPoint)
	fmt.Fprintf(w, "\t%s loop end point: %d\n", name, e.LoopEndPoint)
	fmt.Fprintf(w, "\t%s type %02x\n", name, e.Type)
}

// Module writes a module's header, patterns, instruments and samples
func Module(w io.Writer, m *xm.Module) {
	fmt.Fprintf(w, "name: [%s]\n", m.Name)
	fmt.Fprintf(w, "tracker: [%s]\n", m.TrackerName)
	fmt.Fprintf(w, "channels: %d, tickrate: %d, tempo: %d, restart: %d\n",
		m.ChannelCount, m.DefaultTickrate, m.DefaultTempo, m.RestartPosition)
	fmt.Fprintf(w, "pattern order: %s\n", order(m.PatternOrder))
	patterns(w, "", m.Patterns)
	fmt.Fprintln(w)

	for i, inst := range m.Instruments {
		fmt.Fprintf(w, "-- instrument %d --\n", i+1)
		fmt.Fprintf(w, "\tname: [%s]\n", inst.Name)
		fmt.Fprintf(w, "\ttype: %d\n", inst.Type)
		if len(inst.Samples) > 0 {
			ext := inst.Extended
			fmt.Fprintf(w, "\tsample number for all notes:")
			for _, n := range ext.SampleNumberForAllNotes {
				fmt.Fprintf(w, " %d,", n)
			}
			fmt.Fprintln(w)
			moduleEnvelope(w, "volume", ext.Volume)
			moduleEnvelope(w, "panning", ext.Panning)
			fmt.Fprintf(w, "\tvibrato type %d\n", ext.Vibrato.Type)
			fmt.Fprintf(w, "\tvibrato sweep %d\n", ext.Vibrato.Sweep)
			fmt.Fprintf(w, "\tvibrato depth %d\n", ext.Vibrato.Depth)
			fmt.Fprintf(w, "\tvibrato rate %d\n", ext.Vibrato.Rate)
			fmt.Fprintf(w, "\tvolume fadeout %d\n", ext.VolumeFadeout)
		}
		for j, s := range inst.Samples {
			fmt.Fprintf(w, "\t-- sample %d --\n", j)
			fmt.Fprintf(w, "\t\tlength: %d\n", len(s.Data))
			fmt.Fprintf(w, "\t\tloop start: %d\n", s.LoopStart)
			fmt.Fprintf(w, "\t\tloop length: %d\n", s.LoopLength)
			fmt.Fprintf(w, "\t\tvolume: %d\n", s.Volume)
			fmt.Fprintf(w, "\t\tfinetune: %d\n", s.Finetune)
			fmt.Fprintf(w, "\t\ttype flags: %02x (%s)\n", s.TypeFlags, sampleType(s.TypeFlags))
			fmt.Fprintf(w, "\t\tpanning: %d\n", s.Panning)
			fmt.Fprintf(w, "\t\trelative note number: %d\n", s.RelativeNote)
			fmt.Fprintf(w, "\t\tname: [%s]\n", s.Name)
		}
	}
}

func sampleType(flags uint8) string {
	loop := "no loop"
	switch {
	case flags&xm.LoopPingPong != 0:
		loop = "ping-pong loop"
	case flags&xm.LoopForward != 0:
		loop = "forward loop"
	}
	if flags&xm.Sample16Bit != 0 {
		return loop + ", 16-bit"
	}
	return loop + ", 8-bit"
}

// Layouts writes the byte layout table of each record
func Layouts(w io.Writer, layouts ...binio.Layout) {
	for i, l := range layouts {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, l.String())
	}
}

// Match renders one scanner hit
func Match(m gba.Match) string {
	return fmt.Sprintf("@ %06x: v%04x %d instruments, %d songs", m.Offset, m.Version, m.InstrumentCount, m.SongCount)
}

// Matches writes the scan report of one file: its path, then one line per
// bank. A file with no banks prints nothing.
func Matches(w io.Writer, path string, matches []gba.Match) {
	if len(matches) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", path)
	for _, m := range matches {
		fmt.Fprintln(w, Match(m))
	}
}
