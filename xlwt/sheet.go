package xlwt

import (
	"fmt"
	"sort"
)

// Sheet limits of the BIFF8 format.
const (
	MaxRows = 65536
	MaxCols = 256
)

// CellKind is the type of a cell value.
type CellKind uint8

const (
	CellBlank CellKind = iota
	CellNumber
	CellText
	CellBool
	CellError
)

// Cell is one value in a worksheet.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
	// Code holds the boolean (0 or 1) or the error code.
	Code byte
}

// Sheet collects the cells of one worksheet.
//
// You don't instantiate this type yourself. You get Sheet objects from
// Workbook.AddSheet.
type Sheet struct {
	// Name is the name of the sheet.
	Name string

	rows     map[uint16]map[uint16]Cell
	drawings [][]byte
}

func newSheet(name string) *Sheet {
	return &Sheet{Name: name, rows: make(map[uint16]map[uint16]Cell)}
}

// SetNumber stores a numeric cell.
func (s *Sheet) SetNumber(row, col int, v float64) error {
	return s.set(row, col, Cell{Kind: CellNumber, Number: v})
}

// SetString stores a text cell. The text goes to the shared string table.
func (s *Sheet) SetString(row, col int, v string) error {
	if len(v) > 0xFFFF {
		return fmt.Errorf("cell (%d, %d): text of %d bytes too long", row, col, len(v))
	}
	return s.set(row, col, Cell{Kind: CellText, Text: v})
}

// SetBool stores a boolean cell.
func (s *Sheet) SetBool(row, col int, v bool) error {
	c := Cell{Kind: CellBool}
	if v {
		c.Code = 1
	}
	return s.set(row, col, c)
}

// SetError stores an error cell such as #N/A.
func (s *Sheet) SetError(row, col int, code byte) error {
	if _, ok := ErrorTextFromCode[code]; !ok {
		return fmt.Errorf("cell (%d, %d): unknown error code 0x%02x", row, col, code)
	}
	return s.set(row, col, Cell{Kind: CellError, Code: code})
}

// SetBlank stores an empty but present cell.
func (s *Sheet) SetBlank(row, col int) error {
	return s.set(row, col, Cell{Kind: CellBlank})
}

func (s *Sheet) set(row, col int, c Cell) error {
	if row < 0 || row >= MaxRows || col < 0 || col >= MaxCols {
		return fmt.Errorf("cell (%d, %d) outside %dx%d", row, col, MaxRows, MaxCols)
	}
	r, ok := s.rows[uint16(row)]
	if !ok {
		r = make(map[uint16]Cell)
		s.rows[uint16(row)] = r
	}
	r[uint16(col)] = c
	return nil
}

// Cell returns the cell at (row, col).
func (s *Sheet) Cell(row, col int) (Cell, bool) {
	if row < 0 || row >= MaxRows || col < 0 || col >= MaxCols {
		return Cell{}, false
	}
	c, ok := s.rows[uint16(row)][uint16(col)]
	return c, ok
}

// NRows returns the number of rows holding at least one cell.
func (s *Sheet) NRows() int {
	return len(s.rows)
}

// AddDrawing attaches drawing data written as a masked MSODRAWING record
// after the cell blocks.
func (s *Sheet) AddDrawing(data []byte) {
	s.drawings = append(s.drawings, data)
}

func sortedKeys(m map[uint16]Cell) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// records returns the worksheet substream. Text cells are added to sst.
func (s *Sheet) records(sst *SharedStrings, selected bool) []*Record {
	rows := make([]uint16, 0, len(s.rows))
	for r := range s.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	var firstRow, lastRow1 uint32
	var firstCol, lastCol1 uint16
	if len(rows) > 0 {
		firstRow, lastRow1 = uint32(rows[0]), uint32(rows[len(rows)-1])+1
		firstCol = MaxCols - 1
		for _, r := range rows {
			cols := sortedKeys(s.rows[r])
			if cols[0] < firstCol {
				firstCol = cols[0]
			}
			if c := cols[len(cols)-1] + 1; c > lastCol1 {
				lastCol1 = c
			}
		}
	}
	blocks := (len(rows) + BlockRows - 1) / BlockRows

	recs := []*Record{
		NewRecord(XL_BOF, bofPayload(XL_WORKSHEET)),
		NewRecord(XL_INDEX, NewIndexPayload(firstRow, lastRow1, blocks)),
		NewRecord(XL_DEFCOLWIDTH, u16Payload(defaultColWidth)),
		NewRecord(XL_DIMENSION, dimensionsPayload(firstRow, lastRow1, firstCol, lastCol1)),
	}

	for start := 0; start < len(rows); start += BlockRows {
		end := start + BlockRows
		if end > len(rows) {
			end = len(rows)
		}
		block := rows[start:end]
		for _, r := range block {
			cols := sortedKeys(s.rows[r])
			recs = append(recs, NewRecord(XL_ROW, rowPayload(r, cols[0], cols[len(cols)-1]+1)))
		}
		for _, r := range block {
			cells := s.rows[r]
			for _, c := range sortedKeys(cells) {
				recs = append(recs, cellRecord(r, c, cells[c], sst))
			}
		}
		recs = append(recs, NewRecord(XL_DBCELL, make([]byte, dbcellHeaderLen+2*len(block))))
	}

	for _, d := range s.drawings {
		recs = append(recs, NewMaskedRecord(XL_MSO_DRAWING, nil, d))
	}
	return append(recs,
		NewRecord(XL_WINDOW2, windowTwoPayload(selected)),
		NewRecord(XL_EOF, nil),
	)
}

func cellRecord(row, col uint16, c Cell, sst *SharedStrings) *Record {
	switch c.Kind {
	case CellNumber:
		return NumberRecord(row, col, c.Number)
	case CellText:
		return LabelSSTRecord(row, col, sst.Add(c.Text))
	case CellBool:
		return BoolErrRecord(row, col, c.Code, false)
	case CellError:
		return BoolErrRecord(row, col, c.Code, true)
	default:
		return BlankRecord(row, col)
	}
}
