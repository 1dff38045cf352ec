package xlwt

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Dump writes a BIFF stream's records in char & hex format for debugging.
// When unnumbered is set, offsets are omitted so two dumps diff cleanly.
func Dump(stream []byte, w io.Writer, unnumbered bool) error {
	recs, err := ReadRecords(stream)
	for _, r := range recs {
		if unnumbered {
			fmt.Fprintf(w, "%04x %s len = %04x\n", r.Opcode, RecordName(r.Opcode), len(r.Data))
		} else {
			fmt.Fprintf(w, "%8d: %04x %s len = %04x\n", r.Offset, r.Opcode, RecordName(r.Opcode), len(r.Data))
		}
		if err := HexCharDump(r.Data, w, r.Offset+RecordHeaderLen, unnumbered); err != nil {
			return err
		}
	}
	return err
}

// HexCharDump writes data as lines of 16 hex bytes followed by their
// printable characters. base is the stream offset of data[0].
func HexCharDump(data []byte, w io.Writer, base int, unnumbered bool) error {
	for pos := 0; pos < len(data); pos += 16 {
		end := pos + 16
		if end > len(data) {
			end = len(data)
		}
		chunk := data[pos:end]
		var hex, chars strings.Builder
		for _, c := range chunk {
			fmt.Fprintf(&hex, "%02x ", c)
			if c >= 0x20 && c < 0x7F {
				chars.WriteByte(c)
			} else {
				chars.WriteByte('?')
			}
		}
		var err error
		if unnumbered {
			_, err = fmt.Fprintf(w, "     %-48s %s\n", hex.String(), chars.String())
		} else {
			_, err = fmt.Fprintf(w, "%8d     %-48s %s\n", base+pos, hex.String(), chars.String())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordCount is the number of records of one kind in a stream.
type RecordCount struct {
	Name  string
	Count int
}

// CountRecords summarises a stream's records as (name, count) pairs sorted
// by name and writes one line per pair to w. w may be nil.
func CountRecords(stream []byte, w io.Writer) ([]RecordCount, error) {
	recs, err := ReadRecords(stream)
	counts := make(map[string]int)
	for _, r := range recs {
		counts[RecordName(r.Opcode)]++
	}
	out := make([]RecordCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, RecordCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if w != nil {
		for _, c := range out {
			if _, werr := fmt.Fprintf(w, "%8d %s\n", c.Count, c.Name); werr != nil {
				return out, werr
			}
		}
	}
	return out, err
}
