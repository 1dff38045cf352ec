package xlwt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// IndexHeader is the fixed part of an INDEX record payload.
type IndexHeader struct {
	FirstRow     uint32 // first row of the sheet
	LastRowPlus1 uint32 // last row of the sheet + 1
	DefColWidth  uint32 // absolute offset of the DEFCOLWIDTH record, 0 if none
	Locators     int    // entries in the offset table
}

// DBCell is a decoded DBCELL locator payload.
type DBCell struct {
	// FirstRow is the distance from the DBCELL record back to the first ROW
	// record of its block.
	FirstRow uint32
	// CellOffsets chain from the end of the first ROW record to the first
	// value record of each row.
	CellOffsets []uint16
}

type blockRow struct {
	row        uint16
	offset     uint32
	end        uint32
	firstValue uint32
	hasValue   bool
}

type block struct {
	sheet    int
	firstRow uint32
	rows     []blockRow
}

// BlockOffsetIndex computes DBCELL locators for 32-row blocks and the INDEX
// tables that point at them. Locators are registered per sheet as their
// final offsets become known.
type BlockOffsetIndex struct {
	open     *block
	begun    map[int]int
	locators map[int][]uint32
}

// NewBlockOffsetIndex returns an empty index.
func NewBlockOffsetIndex() *BlockOffsetIndex {
	return &BlockOffsetIndex{
		begun:    make(map[int]int),
		locators: make(map[int][]uint32),
	}
}

// Open reports whether a block is accepting rows.
func (x *BlockOffsetIndex) Open() bool {
	return x.open != nil
}

// BeginBlock opens a block whose first ROW record sits at firstRowOffset.
func (x *BlockOffsetIndex) BeginBlock(sheet int, firstRowOffset uint32) error {
	if x.open != nil {
		return fmt.Errorf("%w: block at %d still open", ErrMissingBlockContext, x.open.firstRow)
	}
	x.open = &block{sheet: sheet, firstRow: firstRowOffset, rows: make([]blockRow, 0, BlockRows)}
	x.begun[sheet]++
	return nil
}

// AddRow records a ROW record of the open block.
func (x *BlockOffsetIndex) AddRow(row uint16, offset uint32, length int) error {
	if x.open == nil {
		return fmt.Errorf("%w: row %d outside a block", ErrMissingBlockContext, row)
	}
	if len(x.open.rows) == BlockRows {
		return fmt.Errorf("%w: block already holds %d rows", ErrMissingBlockContext, BlockRows)
	}
	x.open.rows = append(x.open.rows, blockRow{row: row, offset: offset, end: offset + uint32(length)})
	return nil
}

// AddValue records a value record of row. Only the first value of each row
// is kept.
func (x *BlockOffsetIndex) AddValue(row uint16, offset uint32) error {
	if x.open == nil {
		return fmt.Errorf("%w: value in row %d outside a block", ErrMissingBlockContext, row)
	}
	for i := range x.open.rows {
		r := &x.open.rows[i]
		if r.row != row {
			continue
		}
		if !r.hasValue {
			r.firstValue, r.hasValue = offset, true
		}
		return nil
	}
	return fmt.Errorf("%w: row %d has no ROW record in its block", ErrMissingBlockContext, row)
}

// Rows returns the number of rows in the open block.
func (x *BlockOffsetIndex) Rows() int {
	if x.open == nil {
		return 0
	}
	return len(x.open.rows)
}

// FinalizeBlock closes the open block and returns the payload of its
// locator, which sits at locatorOffset.
func (x *BlockOffsetIndex) FinalizeBlock(locatorOffset uint32) ([]byte, error) {
	b := x.open
	if b == nil || len(b.rows) == 0 {
		return nil, fmt.Errorf("%w: DBCELL without rows", ErrMissingBlockContext)
	}
	x.open = nil

	// A row without values takes the position of the next value record.
	firstValues := make([]uint32, len(b.rows))
	next := locatorOffset
	for i := len(b.rows) - 1; i >= 0; i-- {
		if b.rows[i].hasValue {
			next = b.rows[i].firstValue
		}
		firstValues[i] = next
	}

	payload := make([]byte, dbcellHeaderLen+2*len(b.rows))
	binary.LittleEndian.PutUint32(payload, locatorOffset-b.firstRow)
	base := b.rows[0].end
	for i, fv := range firstValues {
		rel := int64(fv) - int64(base)
		if rel < 0 || rel > math.MaxUint16 {
			return nil, fmt.Errorf("%w: row %d value offset %d", ErrOffsetOverflow, b.rows[i].row, rel)
		}
		binary.LittleEndian.PutUint16(payload[dbcellHeaderLen+2*i:], uint16(rel))
		base = fv
	}
	return payload, nil
}

// RegisterLocator records the absolute offset of a finished locator.
func (x *BlockOffsetIndex) RegisterLocator(sheet int, absoluteOffset uint32) {
	x.locators[sheet] = append(x.locators[sheet], absoluteOffset)
}

// Locators returns the registered locator offsets of a sheet in row order.
func (x *BlockOffsetIndex) Locators(sheet int) []uint32 {
	return x.locators[sheet]
}

// Resolve returns the INDEX payload of a sheet. It fails unless every block
// begun in the sheet has a registered locator and the table holds exactly
// h.Locators entries.
func (x *BlockOffsetIndex) Resolve(sheet int, h IndexHeader) ([]byte, error) {
	locs := x.locators[sheet]
	if x.open != nil && x.open.sheet == sheet {
		return nil, fmt.Errorf("%w: sheet %d has an unfinished block", ErrUnresolvedLocator, sheet)
	}
	if len(locs) < x.begun[sheet] || len(locs) < h.Locators {
		return nil, fmt.Errorf("%w: sheet %d has %d of %d locators", ErrUnresolvedLocator, sheet, len(locs), h.Locators)
	}
	if len(locs) > h.Locators {
		return nil, fmt.Errorf("%w: sheet %d has %d locators for a %d-entry table", ErrPayloadResized, sheet, len(locs), h.Locators)
	}
	return encodeIndex(h, locs), nil
}

// NewIndexPayload returns an INDEX placeholder sized for locators entries.
func NewIndexPayload(firstRow, lastRowPlus1 uint32, locators int) []byte {
	return encodeIndex(IndexHeader{FirstRow: firstRow, LastRowPlus1: lastRowPlus1, Locators: locators}, nil)
}

func encodeIndex(h IndexHeader, locs []uint32) []byte {
	payload := make([]byte, indexHeaderLen+4*h.Locators)
	binary.LittleEndian.PutUint32(payload[4:], h.FirstRow)
	binary.LittleEndian.PutUint32(payload[8:], h.LastRowPlus1)
	binary.LittleEndian.PutUint32(payload[12:], h.DefColWidth)
	for i, off := range locs {
		binary.LittleEndian.PutUint32(payload[indexHeaderLen+4*i:], off)
	}
	return payload
}

// ParseIndexHeader decodes the fixed part of an INDEX payload.
func ParseIndexHeader(payload []byte) (IndexHeader, error) {
	if len(payload) < indexHeaderLen || (len(payload)-indexHeaderLen)%4 != 0 {
		return IndexHeader{}, NewBIFFError("invalid INDEX payload length %d", len(payload))
	}
	return IndexHeader{
		FirstRow:     binary.LittleEndian.Uint32(payload[4:]),
		LastRowPlus1: binary.LittleEndian.Uint32(payload[8:]),
		DefColWidth:  binary.LittleEndian.Uint32(payload[12:]),
		Locators:     (len(payload) - indexHeaderLen) / 4,
	}, nil
}

// ParseIndex decodes an INDEX payload and its locator offset table.
func ParseIndex(payload []byte) (IndexHeader, []uint32, error) {
	h, err := ParseIndexHeader(payload)
	if err != nil {
		return h, nil, err
	}
	offsets := make([]uint32, h.Locators)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(payload[indexHeaderLen+4*i:])
	}
	return h, offsets, nil
}

// ParseDBCell decodes a DBCELL payload.
func ParseDBCell(payload []byte) (DBCell, error) {
	if len(payload) < dbcellHeaderLen || (len(payload)-dbcellHeaderLen)%2 != 0 {
		return DBCell{}, NewBIFFError("invalid DBCELL payload length %d", len(payload))
	}
	d := DBCell{
		FirstRow:    binary.LittleEndian.Uint32(payload),
		CellOffsets: make([]uint16, (len(payload)-dbcellHeaderLen)/2),
	}
	for i := range d.CellOffsets {
		d.CellOffsets[i] = binary.LittleEndian.Uint16(payload[dbcellHeaderLen+2*i:])
	}
	return d, nil
}
