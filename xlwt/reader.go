package xlwt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// RawRecord is one physical record as it appears in a stream.
type RawRecord struct {
	Offset int
	Opcode uint16
	Data   []byte
}

// LogicalRecord is a record with its CONTINUE payloads joined.
type LogicalRecord struct {
	Offset        int
	Opcode        uint16
	Payload       []byte
	Continuations int
}

// ReadRecords splits a BIFF stream into its physical records. Reading stops
// at the end of the stream or at the zero padding that follows the last
// record.
func ReadRecords(stream []byte) ([]RawRecord, error) {
	var recs []RawRecord
	pos := 0
	for pos+RecordHeaderLen <= len(stream) {
		code := binary.LittleEndian.Uint16(stream[pos:])
		length := int(binary.LittleEndian.Uint16(stream[pos+2:]))
		if code == 0 && length == 0 {
			break
		}
		if pos+RecordHeaderLen+length > len(stream) {
			return recs, NewBIFFError("record 0x%04x at %d: %d bytes past end of stream", code, pos, length)
		}
		recs = append(recs, RawRecord{
			Offset: pos,
			Opcode: code,
			Data:   stream[pos+RecordHeaderLen : pos+RecordHeaderLen+length],
		})
		pos += RecordHeaderLen + length
	}
	return recs, nil
}

// Reassemble joins every record with the CONTINUE records that follow it.
// Records whose continuations carry a leading marker byte have it removed.
func Reassemble(raw []RawRecord) ([]LogicalRecord, error) {
	out := make([]LogicalRecord, 0, len(raw))
	for i := 0; i < len(raw); {
		j := i + 1
		for j < len(raw) && raw[j].Opcode == XL_CONTINUE {
			j++
		}
		segs := make([]Segment, j-i)
		for k := range segs {
			segs[k] = Segment{Opcode: raw[i+k].Opcode, Data: raw[i+k].Data}
		}
		payload, err := Join(segs, behaviours[KindOf(raw[i].Opcode)].stripMarker)
		if err != nil {
			return out, fmt.Errorf("record at %d: %w", raw[i].Offset, err)
		}
		out = append(out, LogicalRecord{
			Offset:        raw[i].Offset,
			Opcode:        raw[i].Opcode,
			Payload:       payload,
			Continuations: j - i - 1,
		})
		i = j
	}
	return out, nil
}

// BOF is a decoded BOF record.
type BOF struct {
	Version   int // BIFF version times ten: 80 for BIFF8
	Substream uint16
	Build     uint16
	Year      uint16
}

// ParseBOF decodes a BOF payload.
func ParseBOF(payload []byte) (BOF, error) {
	if len(payload) < 8 {
		return BOF{}, NewBIFFError("invalid length (%d) for BOF record", len(payload))
	}
	b := BOF{
		Substream: binary.LittleEndian.Uint16(payload[2:]),
		Build:     binary.LittleEndian.Uint16(payload[4:]),
		Year:      binary.LittleEndian.Uint16(payload[6:]),
	}
	switch v := binary.LittleEndian.Uint16(payload); v {
	case biff8Version:
		b.Version = 80
	case 0x0500:
		if b.Year < 1994 || b.Build == 2412 || b.Build == 3218 || b.Build == 3321 {
			b.Version = 50
		} else {
			b.Version = 70
		}
	default:
		return b, NewBIFFError("unknown BIFF version: 0x%04x", v)
	}
	return b, nil
}

// BoundSheet is a decoded BOUNDSHEET record.
type BoundSheet struct {
	Offset     uint32 // absolute offset of the sheet's BOF
	Visibility byte
	Type       byte
	Name       string
}

// ParseBoundSheet decodes a BIFF8 BOUNDSHEET payload.
func ParseBoundSheet(payload []byte) (BoundSheet, error) {
	if len(payload) < 6 {
		return BoundSheet{}, NewBIFFError("BOUNDSHEET record too short")
	}
	name, err := UnpackUnicode(payload, 6, 1)
	if err != nil {
		return BoundSheet{}, NewBIFFError("BOUNDSHEET name: %v", err)
	}
	return BoundSheet{
		Offset:     binary.LittleEndian.Uint32(payload),
		Visibility: payload[4],
		Type:       payload[5],
		Name:       name,
	}, nil
}

// ReadWorkbook decodes the cells of a BIFF8 workbook stream into a
// Workbook. Formatting is ignored.
func ReadWorkbook(stream []byte) (*Workbook, error) {
	raw, err := ReadRecords(stream)
	if err != nil {
		return nil, err
	}
	recs, err := Reassemble(raw)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 || recs[0].Opcode != XL_BOF {
		return nil, NewBIFFError("expected BOF record at offset 0")
	}
	bof, err := ParseBOF(recs[0].Payload)
	if err != nil {
		return nil, err
	}
	if bof.Version < BIFF_FIRST_UNICODE || bof.Substream != XL_WORKBOOK_GLOBALS {
		return nil, NewBIFFError("not a BIFF8 workbook globals stream (BIFF%d, substream 0x%04x)", bof.Version, bof.Substream)
	}

	byOffset := make(map[int]int, len(recs))
	for i, r := range recs {
		byOffset[r.Offset] = i
	}

	opts := DefaultOptions()
	var sheets []BoundSheet
	var strs []string
	for _, r := range recs[1:] {
		switch r.Opcode {
		case XL_BOUNDSHEET:
			bs, err := ParseBoundSheet(r.Payload)
			if err != nil {
				return nil, err
			}
			if bs.Type == 0 {
				sheets = append(sheets, bs)
			}
		case XL_CODEPAGE:
			if len(r.Payload) >= 2 {
				opts.Codepage = int(binary.LittleEndian.Uint16(r.Payload))
			}
		case XL_SST:
			if _, strs, err = ParseSST(r.Payload); err != nil {
				return nil, err
			}
		}
		if r.Opcode == XL_EOF {
			break
		}
	}

	wb := NewWorkbook(opts)
	for _, bs := range sheets {
		s, err := wb.AddSheet(bs.Name)
		if err != nil {
			return nil, err
		}
		start, ok := byOffset[int(bs.Offset)]
		if !ok || recs[start].Opcode != XL_BOF {
			return nil, NewBIFFError("sheet %q: no BOF record at offset %d", bs.Name, bs.Offset)
		}
		if err := readSheet(s, recs[start+1:], strs); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", bs.Name, err)
		}
	}
	return wb, nil
}

func readSheet(s *Sheet, recs []LogicalRecord, strs []string) error {
	for _, r := range recs {
		d := r.Payload
		if r.Opcode == XL_EOF {
			return nil
		}
		if !IsCellOpcode(r.Opcode) {
			continue
		}
		if len(d) < 6 {
			return NewBIFFError("%s record at %d too short", RecordName(r.Opcode), r.Offset)
		}
		row := int(binary.LittleEndian.Uint16(d))
		col := int(binary.LittleEndian.Uint16(d[2:]))
		var err error
		switch r.Opcode {
		case XL_NUMBER:
			if len(d) < 14 {
				return NewBIFFError("NUMBER record at %d too short", r.Offset)
			}
			err = s.SetNumber(row, col, math.Float64frombits(binary.LittleEndian.Uint64(d[6:])))
		case XL_RK:
			if len(d) < 10 {
				return NewBIFFError("RK record at %d too short", r.Offset)
			}
			err = s.SetNumber(row, col, DecodeRK([4]byte(d[6:10])))
		case XL_MULRK:
			// row, first col, (xf, rk)..., last col
			n := (len(d) - 6) / 6
			for i := 0; i < n && err == nil; i++ {
				err = s.SetNumber(row, col+i, DecodeRK([4]byte(d[6+6*i:10+6*i])))
			}
		case XL_LABELSST:
			if len(d) < 10 {
				return NewBIFFError("LABELSST record at %d too short", r.Offset)
			}
			i := binary.LittleEndian.Uint32(d[6:])
			if int(i) >= len(strs) {
				return NewBIFFError("LABELSST at %d refers to string %d of %d", r.Offset, i, len(strs))
			}
			err = s.SetString(row, col, strs[i])
		case XL_LABEL:
			var text string
			if text, err = UnpackUnicode(d, 6, 2); err == nil {
				err = s.SetString(row, col, text)
			}
		case XL_BOOLERR:
			if len(d) < 8 {
				return NewBIFFError("BOOLERR record at %d too short", r.Offset)
			}
			if d[7] != 0 {
				err = s.SetError(row, col, d[6])
			} else {
				err = s.SetBool(row, col, d[6] != 0)
			}
		case XL_BLANK:
			err = s.SetBlank(row, col)
		case XL_MULBLANK:
			n := (len(d) - 6) / 2
			for i := 0; i < n && err == nil; i++ {
				err = s.SetBlank(row, col+i)
			}
		}
		if err != nil {
			return err
		}
	}
	return NewBIFFError("worksheet substream has no EOF record")
}

// ErrNoWorkbookStream is returned when a compound document holds neither a
// Workbook nor a Book stream.
var ErrNoWorkbookStream = errors.New("can't find workbook in OLE2 compound document")

// LocateWorkbookStream returns the BIFF stream of a compound document.
func LocateWorkbookStream(mem []byte) ([]byte, error) {
	cd, err := NewCompDoc(mem)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"Workbook", "Book"} {
		if stream, err := cd.LocateNamedStream(name); err == nil {
			return stream, nil
		}
	}
	return nil, ErrNoWorkbookStream
}

// OpenWorkbook reads an xls file from disk.
func OpenWorkbook(filename string) (*Workbook, error) {
	mem, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if len(mem) == 0 {
		return nil, NewBIFFError("file size is 0 bytes")
	}
	stream, err := LocateWorkbookStream(mem)
	if err != nil {
		return nil, err
	}
	return ReadWorkbook(stream)
}
