package xlwt

import "encoding/binary"

// Fixed record payloads a minimal BIFF8 workbook needs. Style, font and
// format tables are written with Excel's defaults and never edited.

const (
	biff8Version = 0x0600
	biffBuild    = 0x0DBB
	biffYear     = 0x07CC
	bofHistory   = 0x00000000
	bofLowestVer = 0x00000006

	defaultColWidth = 8
	rowHeight       = 0x00FF
	rowFlags        = 0x0100

	window2Flags       = 0x00B6
	window2Selected    = 0x0600
	window2GridColor   = 0x00000040
	styleXFCount       = 15
	defaultFontName    = "Arial"
	defaultFontHeight  = 200
	defaultFontWeight  = 400
	defaultFontColor   = 0x7FFF
	defaultFontCount   = 4
	builtinStyleNormal = 0x8000
)

func bofPayload(substream uint16) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint16(b[0:], biff8Version)
	binary.LittleEndian.PutUint16(b[2:], substream)
	binary.LittleEndian.PutUint16(b[4:], biffBuild)
	binary.LittleEndian.PutUint16(b[6:], biffYear)
	binary.LittleEndian.PutUint32(b[8:], bofHistory)
	binary.LittleEndian.PutUint32(b[12:], bofLowestVer)
	return b
}

func u16Payload(vals ...uint16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func window1Payload() []byte {
	// x, y, width, height, flags, active tab, first tab, selected tabs, tab ratio
	return u16Payload(0x0000, 0x0000, 0x3000, 0x1E00, 0x0038, 0, 0, 1, 0x0258)
}

func fontPayload() []byte {
	name, _ := PackUnicode(defaultFontName, 1)
	b := make([]byte, 14, 14+len(name))
	binary.LittleEndian.PutUint16(b[0:], defaultFontHeight)
	binary.LittleEndian.PutUint16(b[4:], defaultFontColor)
	binary.LittleEndian.PutUint16(b[6:], defaultFontWeight)
	return append(b, name...)
}

func xfPayload(style bool) []byte {
	b := make([]byte, 20)
	if style {
		binary.LittleEndian.PutUint16(b[4:], 0xFFF5)
		b[9] = 0xF4
	} else {
		binary.LittleEndian.PutUint16(b[4:], 0x0001)
	}
	b[6] = 0x20
	binary.LittleEndian.PutUint16(b[18:], 0x20C0)
	return b
}

func windowTwoPayload(selected bool) []byte {
	flags := uint16(window2Flags)
	if selected {
		flags |= window2Selected
	}
	b := make([]byte, 18)
	binary.LittleEndian.PutUint16(b[0:], flags)
	binary.LittleEndian.PutUint32(b[6:], window2GridColor)
	return b
}

func dimensionsPayload(firstRow, lastRowPlus1 uint32, firstCol, lastColPlus1 uint16) []byte {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint32(b[0:], firstRow)
	binary.LittleEndian.PutUint32(b[4:], lastRowPlus1)
	binary.LittleEndian.PutUint16(b[8:], firstCol)
	binary.LittleEndian.PutUint16(b[10:], lastColPlus1)
	return b
}

func rowPayload(row, firstCol, lastColPlus1 uint16) []byte {
	b := make([]byte, rowRecordLen)
	binary.LittleEndian.PutUint16(b[0:], row)
	binary.LittleEndian.PutUint16(b[2:], firstCol)
	binary.LittleEndian.PutUint16(b[4:], lastColPlus1)
	binary.LittleEndian.PutUint16(b[6:], rowHeight)
	binary.LittleEndian.PutUint16(b[12:], rowFlags)
	binary.LittleEndian.PutUint16(b[14:], DefaultCellXF)
	return b
}

func boundSheetPayload(name string) ([]byte, error) {
	packed, err := PackUnicode(name, 1)
	if err != nil {
		return nil, err
	}
	// position placeholder, visibility, sheet type
	b := make([]byte, 6, 6+len(packed))
	return append(b, packed...), nil
}

// globalsHeader returns the workbook globals records that precede the
// BOUNDSHEET records.
func globalsHeader(codepage int) []*Record {
	recs := []*Record{
		NewRecord(XL_BOF, bofPayload(XL_WORKBOOK_GLOBALS)),
		NewRecord(XL_CODEPAGE, u16Payload(uint16(codepage))),
		NewRecord(XL_WINDOW1, window1Payload()),
	}
	for i := 0; i < defaultFontCount; i++ {
		recs = append(recs, NewRecord(XL_FONT, fontPayload()))
	}
	for i := 0; i < styleXFCount; i++ {
		recs = append(recs, NewRecord(XL_XF, xfPayload(true)))
	}
	recs = append(recs,
		NewRecord(XL_XF, xfPayload(false)),
		NewRecord(XL_STYLE, u16Payload(builtinStyleNormal, 0xFF00)),
	)
	return recs
}
