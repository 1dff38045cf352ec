package xlwt

import (
	"fmt"
)

// MaxRecordLen is the largest payload a single record header may declare.
// Longer payloads are carried on in CONTINUE records.
const MaxRecordLen = 8228

// RecordHeaderLen is the size of the opcode + length header of every record.
const RecordHeaderLen = 4

// BlockRows is the number of rows covered by one DBCELL locator.
const BlockRows = 32

// Fixed payload sizes of the records the block index depends on.
const (
	rowRecordLen    = 16
	indexHeaderLen  = 16
	dbcellHeaderLen = 4
	extSSTHeaderLen = 2
	extSSTEntryLen  = 8
	sstHeaderLen    = 8
)

// DefaultCellXF is the XF index written on every value record.
// Indexes 0-14 are the style XFs of the default globals.
const DefaultCellXF = 15

// BIFF version constants
const (
	BIFF_FIRST_UNICODE = 80
)

var biffTextFromNum = map[int]string{
	0:  "(not BIFF)",
	20: "2.0",
	21: "2.1",
	30: "3",
	40: "4S",
	45: "4W",
	50: "5",
	70: "7",
	80: "8",
	85: "8X",
}

// BiffTextFromNum returns a text representation of a BIFF version number.
func BiffTextFromNum(num int) string {
	if text, ok := biffTextFromNum[num]; ok {
		return text
	}
	return fmt.Sprintf("Unknown(%d)", num)
}

// BOF substream types
const (
	XL_WORKBOOK_GLOBALS = 0x5
	XL_WORKSHEET        = 0x10
)

// BIFF8 record opcodes written or inspected by this package.
const (
	XL_BLANK             = 0x0201
	XL_BOF               = 0x0809
	XL_BOOLERR           = 0x0205
	XL_BOUNDSHEET        = 0x0085
	XL_CODEPAGE          = 0x0042
	XL_CONTINUE          = 0x003C
	XL_COUNTRY           = 0x008C
	XL_DBCELL            = 0x00D7
	XL_DEFCOLWIDTH       = 0x0055
	XL_DIMENSION         = 0x0200
	XL_EOF               = 0x000A
	XL_EXTSST            = 0x00FF
	XL_FONT              = 0x0031
	XL_FORMULA           = 0x0006
	XL_INDEX             = 0x020B
	XL_LABEL             = 0x0204
	XL_LABELSST          = 0x00FD
	XL_MSO_DRAWING       = 0x00EC
	XL_MSO_DRAWING_GROUP = 0x00EB
	XL_MULBLANK          = 0x00BE
	XL_MULRK             = 0x00BD
	XL_NUMBER            = 0x0203
	XL_OBJ               = 0x005D
	XL_RK                = 0x027E
	XL_ROW               = 0x0208
	XL_RSTRING           = 0x00D6
	XL_SST               = 0x00FC
	XL_STRING            = 0x0207
	XL_STYLE             = 0x0293
	XL_TXO               = 0x01B6
	XL_WINDOW1           = 0x003D
	XL_WINDOW2           = 0x023E
	XL_WRITEACCESS       = 0x005C
	XL_XF                = 0x00E0
)

var recordNames = map[uint16]string{
	XL_BLANK:             "BLANK",
	XL_BOF:               "BOF",
	XL_BOOLERR:           "BOOLERR",
	XL_BOUNDSHEET:        "BOUNDSHEET",
	XL_CODEPAGE:          "CODEPAGE",
	XL_CONTINUE:          "CONTINUE",
	XL_COUNTRY:           "COUNTRY",
	XL_DBCELL:            "DBCELL",
	XL_DEFCOLWIDTH:       "DEFCOLWIDTH",
	XL_DIMENSION:         "DIMENSIONS",
	XL_EOF:               "EOF",
	XL_EXTSST:            "EXTSST",
	XL_FONT:              "FONT",
	XL_FORMULA:           "FORMULA",
	XL_INDEX:             "INDEX",
	XL_LABEL:             "LABEL",
	XL_LABELSST:          "LABELSST",
	XL_MSO_DRAWING:       "MSODRAWING",
	XL_MSO_DRAWING_GROUP: "MSODRAWINGGROUP",
	XL_MULBLANK:          "MULBLANK",
	XL_MULRK:             "MULRK",
	XL_NUMBER:            "NUMBER",
	XL_OBJ:               "OBJ",
	XL_RK:                "RK",
	XL_ROW:               "ROW",
	XL_RSTRING:           "RSTRING",
	XL_SST:               "SST",
	XL_STRING:            "STRING",
	XL_STYLE:             "STYLE",
	XL_TXO:               "TXO",
	XL_WINDOW1:           "WINDOW1",
	XL_WINDOW2:           "WINDOW2",
	XL_WRITEACCESS:       "WRITEACCESS",
	XL_XF:                "XF",
}

// RecordName returns the conventional name of an opcode, or a hex
// placeholder for opcodes this package does not know.
func RecordName(opcode uint16) string {
	if name, ok := recordNames[opcode]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%04X", opcode)
}

var cellOpcodeSet = map[uint16]bool{
	XL_BLANK:    true,
	XL_BOOLERR:  true,
	XL_FORMULA:  true,
	XL_LABEL:    true,
	XL_LABELSST: true,
	XL_MULBLANK: true,
	XL_MULRK:    true,
	XL_NUMBER:   true,
	XL_RK:       true,
	XL_RSTRING:  true,
}

// IsCellOpcode checks if the given code is a value (cell) opcode.
func IsCellOpcode(c uint16) bool {
	return cellOpcodeSet[c]
}

// ErrorTextFromCode returns a text representation of an Excel error code.
var ErrorTextFromCode = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
}
