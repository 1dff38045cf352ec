package xlwt

import (
	"encoding/binary"
	"fmt"
)

// Kind classifies a record by the part it plays in stream assembly.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindBOF
	KindEOF
	KindBoundSheet
	KindSST
	KindExtSST
	KindIndex
	KindDefColWidth
	KindRow
	KindCell
	KindDBCell
	KindMasked
	KindContinuedString
)

var kindNames = [...]string{
	KindGeneric:         "generic",
	KindBOF:             "bof",
	KindEOF:             "eof",
	KindBoundSheet:      "boundsheet",
	KindSST:             "sst",
	KindExtSST:          "extsst",
	KindIndex:           "index",
	KindDefColWidth:     "defcolwidth",
	KindRow:             "row",
	KindCell:            "cell",
	KindDBCell:          "dbcell",
	KindMasked:          "masked",
	KindContinuedString: "continued-string",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// KindOf returns the kind a record with the given opcode is assigned when
// it is built with NewRecord.
func KindOf(opcode uint16) Kind {
	switch opcode {
	case XL_BOF:
		return KindBOF
	case XL_EOF:
		return KindEOF
	case XL_BOUNDSHEET:
		return KindBoundSheet
	case XL_SST:
		return KindSST
	case XL_EXTSST:
		return KindExtSST
	case XL_INDEX:
		return KindIndex
	case XL_DEFCOLWIDTH:
		return KindDefColWidth
	case XL_ROW:
		return KindRow
	case XL_DBCELL:
		return KindDBCell
	case XL_STRING:
		return KindContinuedString
	}
	if IsCellOpcode(opcode) {
		return KindCell
	}
	return KindGeneric
}

// FinalizeHook commits a record's final payload. It runs exactly once per
// emission, in record order, and may replace r.Payload. done holds the
// records finalized before r and must not be modified.
type FinalizeHook func(r *Record, done []*FinalRecord) error

// Record is one logical record as built by a producer. It stays mutable
// until it is handed to the assembler.
type Record struct {
	Opcode  uint16
	Payload []byte

	kind   Kind
	hook   FinalizeHook
	masked []byte

	// breaks lists payload positions the splitter may cut at. Only set for
	// records that plan their own continuations (the SST).
	breaks []int
	// anchors are payload positions whose stream offsets are needed after
	// layout (EXTSST buckets).
	anchors []int
}

// NewRecord builds a record whose kind is derived from its opcode.
func NewRecord(opcode uint16, payload []byte) *Record {
	return &Record{Opcode: opcode, Payload: payload, kind: KindOf(opcode)}
}

// NewRecordKind builds a record with an explicit kind.
func NewRecordKind(opcode uint16, kind Kind, payload []byte) *Record {
	return &Record{Opcode: opcode, Payload: payload, kind: kind}
}

// NewMaskedRecord builds a record whose emitted payload is the separately
// maintained masked data rather than the placeholder payload.
func NewMaskedRecord(opcode uint16, placeholder, masked []byte) *Record {
	return &Record{Opcode: opcode, Payload: placeholder, kind: KindMasked, masked: masked}
}

// Kind returns the record's kind.
func (r *Record) Kind() Kind {
	return r.kind
}

// OnFinalize installs the producer hook run in the pre-stream pass.
func (r *Record) OnFinalize(hook FinalizeHook) *Record {
	r.hook = hook
	return r
}

// SetMasked replaces the masked data of a KindMasked record.
func (r *Record) SetMasked(masked []byte) {
	r.masked = masked
}

// behaviour is the per-kind part of finalization.
type behaviour struct {
	// substitute returns the payload to emit in place of r.Payload.
	substitute func(r *Record) []byte
	// plan returns the record's own continuation plan. A nil plan leaves
	// the record to the generic splitter in the layout pass.
	plan func(r *Record, payload []byte, sp Splitter) ([]int, error)
	// stripMarker reports that CONTINUE payloads of this kind begin with a
	// marker byte when read from an existing file.
	stripMarker bool
}

var behaviours = map[Kind]behaviour{
	KindMasked: {
		substitute: func(r *Record) []byte { return r.masked },
	},
	KindSST: {
		plan: func(r *Record, payload []byte, sp Splitter) ([]int, error) {
			return sp.PlanAt(len(payload), r.breaks)
		},
	},
	KindContinuedString: {
		stripMarker: true,
	},
}

// FinalRecord is a record whose payload is fixed. Only the assembler's
// layout and emit passes operate on FinalRecords.
type FinalRecord struct {
	Opcode uint16
	Kind   Kind
	// Offset is the absolute stream position of the record header.
	Offset uint32

	payload  []byte
	segments []int
	anchors  []int
	length   int
}

// Payload returns the finalized payload.
func (f *FinalRecord) Payload() []byte {
	return f.payload
}

// Segments returns the payload lengths of the primary record followed by
// each CONTINUE record.
func (f *FinalRecord) Segments() []int {
	return f.segments
}

// Continuations returns the number of CONTINUE records the record emits.
func (f *FinalRecord) Continuations() int {
	if len(f.segments) == 0 {
		return 0
	}
	return len(f.segments) - 1
}

// EmittedLen returns the bytes the record occupies in the stream, headers
// of every continuation included.
func (f *FinalRecord) EmittedLen() int {
	return f.length
}

// patch overwrites part of the payload without changing its size.
func (f *FinalRecord) patch(at int, b []byte) error {
	if at < 0 || at+len(b) > len(f.payload) {
		return fmt.Errorf("%w: %d bytes at %d into %d", ErrPayloadResized, len(b), at, len(f.payload))
	}
	copy(f.payload[at:], b)
	return nil
}

// row returns the row number a ROW or value record refers to.
func (f *FinalRecord) row() (uint16, bool) {
	if len(f.payload) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(f.payload), true
}

// finalize runs the producer hook and the kind behaviour, producing the
// frozen form of r.
func (r *Record) finalize(done []*FinalRecord, sp Splitter) (*FinalRecord, error) {
	if r.hook != nil {
		if err := r.hook(r, done); err != nil {
			return nil, err
		}
	}
	b := behaviours[r.kind]
	payload := r.Payload
	if b.substitute != nil {
		payload = b.substitute(r)
	}
	f := &FinalRecord{
		Opcode:  r.Opcode,
		Kind:    r.kind,
		payload: append([]byte(nil), payload...),
		anchors: r.anchors,
	}
	if b.plan != nil {
		segs, err := b.plan(r, f.payload, sp)
		if err != nil {
			return nil, err
		}
		f.segments = segs
	}
	return f, nil
}
