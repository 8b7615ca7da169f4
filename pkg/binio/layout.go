package binio

import (
	"fmt"
	"strings"
)

// Field describes one on-disk field of a record
type Field struct {
	Name   string
	Width  int  // bytes per element
	Count  int  // elements; 0 means a scalar
	Signed bool // informational, used by dumps and docs
}

// Size returns the number of bytes the field occupies
func (f Field) Size() int {
	if f.Count > 0 {
		return f.Width * f.Count
	}
	return f.Width
}

// Layout is the documented byte-for-byte layout of one record type.
// Records are packed: padding must appear as an explicit field.
type Layout struct {
	Name   string
	Fields []Field
}

// Size returns the total byte size of the record
func (l Layout) Size() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Size()
	}
	return n
}

// Offset returns the byte offset of the named field, or -1
func (l Layout) Offset(name string) int {
	off := 0
	for _, f := range l.Fields {
		if f.Name == name {
			return off
		}
		off += f.Size()
	}
	return -1
}

// Nested returns a field that embeds another layout as a single element
func Nested(name string, inner Layout) Field {
	return Field{Name: name, Width: inner.Size()}
}

// String renders the layout as an offset table
func (l Layout) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s (%d bytes)\n", l.Name, l.Size())
	off := 0
	for _, f := range l.Fields {
		kind := "u"
		if f.Signed {
			kind = "i"
		}
		if f.Count > 0 {
			fmt.Fprintf(&s, "  +%-4d %-28s %s%d[%d]\n", off, f.Name, kind, f.Width*8, f.Count)
		} else {
			fmt.Fprintf(&s, "  +%-4d %-28s %s%d\n", off, f.Name, kind, f.Width*8)
		}
		off += f.Size()
	}
	return s.String()
}
