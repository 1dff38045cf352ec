package xlwt

import (
	"encoding/binary"
	"math"
)

func cellPayload(row, col uint16, size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint16(b[0:], row)
	binary.LittleEndian.PutUint16(b[2:], col)
	binary.LittleEndian.PutUint16(b[4:], DefaultCellXF)
	return b
}

// NumberRecord returns an RK record for v, or a NUMBER record when v has
// no exact RK form.
func NumberRecord(row, col uint16, v float64) *Record {
	if rk, ok := EncodeRK(v); ok {
		b := cellPayload(row, col, 10)
		copy(b[6:], rk[:])
		return NewRecord(XL_RK, b)
	}
	b := cellPayload(row, col, 14)
	binary.LittleEndian.PutUint64(b[6:], math.Float64bits(v))
	return NewRecord(XL_NUMBER, b)
}

// LabelSSTRecord returns a cell referring to shared string sst.
func LabelSSTRecord(row, col uint16, sst uint32) *Record {
	b := cellPayload(row, col, 10)
	binary.LittleEndian.PutUint32(b[6:], sst)
	return NewRecord(XL_LABELSST, b)
}

// BlankRecord returns a formatted empty cell.
func BlankRecord(row, col uint16) *Record {
	return NewRecord(XL_BLANK, cellPayload(row, col, 6))
}

// BoolErrRecord returns a boolean cell, or an error cell when isErr is set
// and v is one of the codes in ErrorTextFromCode.
func BoolErrRecord(row, col uint16, v byte, isErr bool) *Record {
	b := cellPayload(row, col, 8)
	b[6] = v
	if isErr {
		b[7] = 1
	}
	return NewRecord(XL_BOOLERR, b)
}
