package xlwt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/yamitzky/xlwt-go/internal/logging"
)

// ContainerWriter stores an assembled stream and its sibling storages in a
// container file. It returns the storages it appended after the main
// stream.
type ContainerWriter interface {
	WriteContainer(w io.Writer, stream []byte, streamLen int, storages []NamedStorage) ([]NamedStorage, error)
}

// Layout is the outcome of the pre-stream and offset passes: every record
// frozen, split into its planned segments and placed at its final offset.
type Layout struct {
	Records []*FinalRecord
	// Length is the stream length the records occupy, before padding.
	Length int
	// Continuations is the number of CONTINUE records the stream holds.
	Continuations int
}

// StreamAssembler turns an ordered record list into a BIFF record stream.
//
// Assembly runs in a fixed order: every record's finalize hook, then one
// offset pass that plans continuations, assigns offsets and backpatches
// DBCELL, INDEX, BOUNDSHEET and EXTSST payloads, then the emit pass and
// sector padding. Records must not be modified by anyone else while an
// assembly is running.
type StreamAssembler struct {
	// Container receives the padded stream in Run.
	Container ContainerWriter

	opts  *WriterOptions
	split Splitter
	log   zerolog.Logger
}

// NewStreamAssembler returns an assembler for the given options.
func NewStreamAssembler(opts *WriterOptions) *StreamAssembler {
	o := opts.norm()
	return &StreamAssembler{
		Container: &CompoundWriter{StreamName: o.StreamName},
		opts:      o,
		split:     NewSplitter(o.MaxRecordLen),
		log:       logging.WithPhase("assemble"),
	}
}

// Splitter returns the splitter the assembler plans continuations with.
func (a *StreamAssembler) Splitter() Splitter {
	return a.split
}

// Layout finalizes records and computes their offsets.
func (a *StreamAssembler) Layout(records []*Record) (*Layout, error) {
	finals, err := a.prestream(records)
	if err != nil {
		return nil, err
	}
	l := &Layout{Records: finals}
	if err := a.layout(l); err != nil {
		return nil, err
	}
	a.log.Debug().
		Int("records", len(finals)).
		Int("continuations", l.Continuations).
		Int("length", l.Length).
		Msg("layout done")
	return l, nil
}

// Emit writes the records of l to w and returns the number of bytes written.
func (a *StreamAssembler) Emit(w io.Writer, l *Layout) (int, error) {
	buf := make([]byte, 0, RecordHeaderLen+a.split.MaxLen)
	written := 0
	for i, f := range l.Records {
		segs, err := a.split.SplitPlanned(f.Opcode, f.payload, f.segments)
		if err != nil {
			return written, structural("emit", i, f.Opcode, err)
		}
		buf = buf[:0]
		for _, s := range segs {
			buf = s.AppendTo(buf)
		}
		n, err := w.Write(buf)
		written += n
		if err != nil {
			return written, fmt.Errorf("xlwt: writing record %d: %w", i, err)
		}
		if n != f.length {
			if err := a.diverged(i, f.Opcode, f.length, n); err != nil {
				return written, err
			}
		}
	}
	if written != l.Length {
		if err := a.diverged(-1, 0, l.Length, written); err != nil {
			return written, err
		}
	}
	return written, nil
}

// PaddedLen returns the stream length after padding written bytes out to
// whole sectors, with one spare sector and at least MinSectors.
func (a *StreamAssembler) PaddedLen(written int) int {
	sectors := (written+SectorSize-1)/SectorSize + 1
	if sectors < a.opts.MinSectors {
		sectors = a.opts.MinSectors
	}
	return sectors * SectorSize
}

// Assemble runs every pass and returns the padded stream. On error no
// stream is returned.
func (a *StreamAssembler) Assemble(records []*Record) ([]byte, *Layout, error) {
	l, err := a.Layout(records)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	buf.Grow(a.PaddedLen(l.Length))
	n, err := a.Emit(&buf, l)
	if err != nil {
		return nil, nil, err
	}
	padded := a.PaddedLen(n)
	buf.Write(make([]byte, padded-n))
	a.log.Debug().Int("written", n).Int("padded", padded).Msg("stream assembled")
	return buf.Bytes(), l, nil
}

// Run assembles records and hands the padded stream, together with the
// auxiliary storages, to the container writer. Nothing reaches w when
// assembly fails.
func (a *StreamAssembler) Run(w io.Writer, records []*Record, storages []NamedStorage) (*Layout, error) {
	stream, l, err := a.Assemble(records)
	if err != nil {
		return nil, err
	}
	appended, err := a.Container.WriteContainer(w, stream, len(stream), storages)
	if err != nil {
		return nil, fmt.Errorf("xlwt: writing container: %w", err)
	}
	a.log.Debug().Int("storages", len(appended)).Msg("container written")
	return l, nil
}

func (a *StreamAssembler) diverged(index int, opcode uint16, expected, actual int) error {
	a.log.Warn().
		Int("record", index).
		Str("opcode", RecordName(opcode)).
		Int("expected", expected).
		Int("actual", actual).
		Int("diff", actual-expected).
		Msg("emitted length differs from computed length")
	if a.opts.StrictAccounting {
		return structural("emit", index, opcode, ErrAccountingMismatch)
	}
	return nil
}

func (a *StreamAssembler) prestream(records []*Record) ([]*FinalRecord, error) {
	finals := make([]*FinalRecord, 0, len(records))
	for i, r := range records {
		f, err := r.finalize(finals[:len(finals):len(finals)], a.split)
		if err != nil {
			return nil, structural("finalize", i, r.Opcode, err)
		}
		finals = append(finals, f)
	}
	return finals, nil
}

func (a *StreamAssembler) layout(l *Layout) error {
	w := newWalk()
	var total uint64
	for i, f := range l.Records {
		if f.segments == nil {
			f.segments = a.split.Plan(len(f.payload))
		}
		if err := a.split.Check(len(f.payload), f.segments); err != nil {
			return structural("layout", i, f.Opcode, err)
		}
		f.length = EmittedLen(f.segments)
		f.Offset = uint32(total)
		if i == 0 {
			f.Offset = 0
		}
		if total+uint64(f.length) > math.MaxUint32 {
			return structural("layout", i, f.Opcode, ErrOffsetOverflow)
		}
		if err := w.visit(i, f); err != nil {
			return asStructural("layout", i, f.Opcode, err)
		}
		total += uint64(f.length)
		l.Continuations += f.Continuations()
	}
	l.Length = int(total)
	return w.finish()
}

func asStructural(op string, index int, opcode uint16, err error) error {
	var se *StructuralError
	if errors.As(err, &se) {
		return se
	}
	return structural(op, index, opcode, err)
}

// walk is the state threaded through the offset pass.
type walk struct {
	index *BlockOffsetIndex
	sheet int

	lastIndex      *FinalRecord
	lastIndexAt    int
	lastIndexSheet int

	defColWidth map[int]uint32
	boundSheets []placed
	sheetBOFs   []uint32
	sst         *FinalRecord
	extSSTs     []extSSTRef
}

type placed struct {
	rec *FinalRecord
	at  int
}

type extSSTRef struct {
	placed
	sst *FinalRecord
}

func newWalk() *walk {
	return &walk{
		index:       NewBlockOffsetIndex(),
		sheet:       -1,
		defColWidth: make(map[int]uint32),
	}
}

func (w *walk) visit(i int, f *FinalRecord) error {
	switch f.Kind {
	case KindBOF:
		if w.index.Open() {
			return fmt.Errorf("%w: substream starts inside an open block", ErrMissingBlockContext)
		}
		w.sheet++
		if w.sheet > 0 {
			w.sheetBOFs = append(w.sheetBOFs, f.Offset)
		}
	case KindEOF:
		if w.index.Open() {
			return fmt.Errorf("%w: substream ends inside an open block", ErrMissingBlockContext)
		}
	case KindIndex:
		if w.lastIndex != nil {
			if err := w.resolve(); err != nil {
				return err
			}
		}
		w.lastIndex, w.lastIndexAt, w.lastIndexSheet = f, i, w.sheet
	case KindDefColWidth:
		w.defColWidth[w.sheet] = f.Offset
	case KindRow:
		row, ok := f.row()
		if !ok {
			return fmt.Errorf("%w: ROW payload too short", ErrMissingBlockContext)
		}
		if !w.index.Open() {
			if err := w.index.BeginBlock(w.sheet, f.Offset); err != nil {
				return err
			}
		}
		return w.index.AddRow(row, f.Offset, f.length)
	case KindCell:
		row, ok := f.row()
		if !ok {
			return fmt.Errorf("%w: value payload too short", ErrMissingBlockContext)
		}
		return w.index.AddValue(row, f.Offset)
	case KindDBCell:
		payload, err := w.index.FinalizeBlock(f.Offset)
		if err != nil {
			return err
		}
		if len(payload) != len(f.payload) {
			return fmt.Errorf("%w: DBCELL sized for %d rows, block has %d",
				ErrPayloadResized, (len(f.payload)-dbcellHeaderLen)/2, (len(payload)-dbcellHeaderLen)/2)
		}
		if err := f.patch(0, payload); err != nil {
			return err
		}
		w.index.RegisterLocator(w.sheet, f.Offset)
	case KindBoundSheet:
		w.boundSheets = append(w.boundSheets, placed{rec: f, at: i})
	case KindSST:
		w.sst = f
	case KindExtSST:
		if w.sst == nil {
			return fmt.Errorf("%w: EXTSST without a preceding SST", ErrMissingBlockContext)
		}
		w.extSSTs = append(w.extSSTs, extSSTRef{placed: placed{rec: f, at: i}, sst: w.sst})
	}
	return nil
}

// resolve backpatches the most recent INDEX record. It runs when the next
// sheet's INDEX is met and once more at the end of the walk.
func (w *walk) resolve() error {
	f := w.lastIndex
	h, err := ParseIndexHeader(f.payload)
	if err != nil {
		return structural("backpatch", w.lastIndexAt, f.Opcode, err)
	}
	h.DefColWidth = w.defColWidth[w.lastIndexSheet]
	payload, err := w.index.Resolve(w.lastIndexSheet, h)
	if err != nil {
		return structural("backpatch", w.lastIndexAt, f.Opcode, err)
	}
	if err := f.patch(0, payload); err != nil {
		return structural("backpatch", w.lastIndexAt, f.Opcode, err)
	}
	return nil
}

func (w *walk) finish() error {
	if w.index.Open() {
		return structural("layout", -1, 0, fmt.Errorf("%w: stream ends inside an open block", ErrMissingBlockContext))
	}
	if w.lastIndex != nil {
		if err := w.resolve(); err != nil {
			return err
		}
	}

	if len(w.boundSheets) > 0 && len(w.boundSheets) != len(w.sheetBOFs) {
		return structural("backpatch", w.boundSheets[0].at, XL_BOUNDSHEET,
			fmt.Errorf("%w: %d BOUNDSHEET records, %d worksheets", ErrBoundSheetMismatch, len(w.boundSheets), len(w.sheetBOFs)))
	}
	var pos [4]byte
	for i, b := range w.boundSheets {
		binary.LittleEndian.PutUint32(pos[:], w.sheetBOFs[i])
		if err := b.rec.patch(0, pos[:]); err != nil {
			return structural("backpatch", b.at, b.rec.Opcode, err)
		}
	}

	for _, e := range w.extSSTs {
		if err := patchExtSST(e.rec, e.sst); err != nil {
			return structural("backpatch", e.at, e.rec.Opcode, err)
		}
	}
	return nil
}

// patchExtSST fills each EXTSST bucket with the absolute stream offset of
// its first string and that string's offset inside its record.
func patchExtSST(ext, sst *FinalRecord) error {
	want := extSSTHeaderLen + extSSTEntryLen*len(sst.anchors)
	if len(ext.payload) != want {
		return fmt.Errorf("%w: EXTSST is %d bytes, %d buckets need %d", ErrPayloadResized, len(ext.payload), len(sst.anchors), want)
	}
	segs := sst.segments
	seg, segStart := 0, 0
	hdr := int(sst.Offset)
	var entry [extSSTEntryLen]byte
	for k, pos := range sst.anchors {
		for seg < len(segs)-1 && pos >= segStart+segs[seg] {
			hdr += RecordHeaderLen + segs[seg]
			segStart += segs[seg]
			seg++
		}
		within := RecordHeaderLen + pos - segStart
		binary.LittleEndian.PutUint32(entry[0:], uint32(hdr+within))
		binary.LittleEndian.PutUint16(entry[4:], uint16(within))
		binary.LittleEndian.PutUint16(entry[6:], 0)
		if err := ext.patch(extSSTHeaderLen+extSSTEntryLen*k, entry[:]); err != nil {
			return err
		}
	}
	return nil
}
