package xlwt

import (
	"encoding/binary"
	"fmt"
)

// Segment is one physical record of a continuation group: the primary
// record or one of its CONTINUE records.
type Segment struct {
	Opcode uint16
	Data   []byte
}

// AppendTo appends the segment's header and payload to dst.
func (s Segment) AppendTo(dst []byte) []byte {
	var hdr [RecordHeaderLen]byte
	binary.LittleEndian.PutUint16(hdr[0:], s.Opcode)
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(s.Data)))
	dst = append(dst, hdr[:]...)
	return append(dst, s.Data...)
}

// Splitter cuts oversized payloads into a primary record followed by
// CONTINUE records, none declaring more than MaxLen payload bytes.
type Splitter struct {
	MaxLen int
}

// NewSplitter returns a splitter for the given ceiling. Values outside
// 1..MaxRecordLen select MaxRecordLen.
func NewSplitter(maxLen int) Splitter {
	if maxLen < 1 || maxLen > MaxRecordLen {
		maxLen = MaxRecordLen
	}
	return Splitter{MaxLen: maxLen}
}

// Plan returns the segment lengths for an n-byte payload cut into
// MaxLen-sized chunks.
func (s Splitter) Plan(n int) []int {
	if n <= s.MaxLen {
		return []int{n}
	}
	plan := make([]int, 0, n/s.MaxLen+1)
	for n > s.MaxLen {
		plan = append(plan, s.MaxLen)
		n -= s.MaxLen
	}
	return append(plan, n)
}

// PlanAt returns the segment lengths for an n-byte payload that may only be
// cut at the given ascending positions. A stretch between two cut points that
// is itself longer than MaxLen is chunked at MaxLen.
func (s Splitter) PlanAt(n int, breaks []int) ([]int, error) {
	var plan []int
	start, last, prev := 0, 0, 0
	cut := func(at int) {
		plan = append(plan, at-start)
		start = at
	}
	bounds := make([]int, 0, len(breaks)+1)
	bounds = append(append(bounds, breaks...), n)
	for _, b := range bounds {
		if b < prev || b > n {
			return nil, fmt.Errorf("%w: cut point %d out of order (payload %d)", ErrDegenerateContinuation, b, n)
		}
		prev = b
		if b-start <= s.MaxLen {
			last = b
			continue
		}
		if last > start {
			cut(last)
		}
		for b-start > s.MaxLen {
			cut(start + s.MaxLen)
		}
		last = b
	}
	if n > start || len(plan) == 0 {
		plan = append(plan, n-start)
	}
	return plan, s.Check(n, plan)
}

// ContinueCount returns how many CONTINUE records Plan(n) produces.
func (s Splitter) ContinueCount(n int) int {
	if n <= s.MaxLen {
		return 0
	}
	return (n - 1) / s.MaxLen
}

// Check verifies that plan covers exactly n bytes without an oversized or
// empty segment. Only a lone primary segment may be empty.
func (s Splitter) Check(n int, plan []int) error {
	if len(plan) == 0 {
		return fmt.Errorf("%w: empty plan", ErrDegenerateContinuation)
	}
	total := 0
	for i, seg := range plan {
		if seg > s.MaxLen {
			return fmt.Errorf("%w: segment %d is %d bytes (max %d)", ErrDegenerateContinuation, i, seg, s.MaxLen)
		}
		if seg <= 0 && len(plan) > 1 {
			return fmt.Errorf("%w: segment %d is empty", ErrDegenerateContinuation, i)
		}
		total += seg
	}
	if total != n {
		return fmt.Errorf("%w: plan covers %d of %d bytes", ErrDegenerateContinuation, total, n)
	}
	return nil
}

// Split cuts payload into MaxLen-sized segments.
func (s Splitter) Split(opcode uint16, payload []byte) ([]Segment, error) {
	return s.SplitPlanned(opcode, payload, s.Plan(len(payload)))
}

// SplitPlanned cuts payload along plan. The first segment keeps opcode,
// the others carry XL_CONTINUE. No marker byte is ever inserted.
func (s Splitter) SplitPlanned(opcode uint16, payload []byte, plan []int) ([]Segment, error) {
	if err := s.Check(len(payload), plan); err != nil {
		return nil, err
	}
	segs := make([]Segment, len(plan))
	pos := 0
	for i, n := range plan {
		op := uint16(XL_CONTINUE)
		if i == 0 {
			op = opcode
		}
		segs[i] = Segment{Opcode: op, Data: payload[pos : pos+n]}
		pos += n
	}
	return segs, nil
}

// EmittedLen returns the stream bytes a plan occupies, headers included.
func EmittedLen(plan []int) int {
	n := 0
	for _, seg := range plan {
		n += RecordHeaderLen + seg
	}
	return n
}

// Join reassembles a continuation group read from a stream. When
// stripMarker is set, the leading byte of every CONTINUE payload is dropped.
func Join(segs []Segment, stripMarker bool) ([]byte, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	if segs[0].Opcode == XL_CONTINUE {
		return nil, NewBIFFError("CONTINUE record without a preceding record")
	}
	size := 0
	for _, s := range segs {
		size += len(s.Data)
	}
	out := make([]byte, 0, size)
	out = append(out, segs[0].Data...)
	for i, s := range segs[1:] {
		if s.Opcode != XL_CONTINUE {
			return nil, NewBIFFError("segment %d has opcode 0x%04x, want CONTINUE", i+1, s.Opcode)
		}
		data := s.Data
		if stripMarker {
			if len(data) == 0 {
				return nil, NewBIFFError("CONTINUE segment %d has no marker byte", i+1)
			}
			data = data[1:]
		}
		out = append(out, data...)
	}
	return out, nil
}
