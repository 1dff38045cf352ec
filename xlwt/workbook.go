package xlwt

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/yamitzky/xlwt-go/internal/logging"
)

// ErrNoSheets is returned when a workbook without worksheets is written.
var ErrNoSheets = errors.New("workbook has no sheets")

const maxSheetNameLen = 31

// Workbook collects worksheets and auxiliary storages and writes them as a
// BIFF8 file.
type Workbook struct {
	opts         *WriterOptions
	sheets       []*Sheet
	storages     []NamedStorage
	drawingGroup []byte
	log          zerolog.Logger
}

// NewWorkbook returns an empty workbook. A nil opts selects DefaultOptions.
func NewWorkbook(opts *WriterOptions) *Workbook {
	return &Workbook{
		opts: opts.norm(),
		log:  logging.WithPhase("workbook"),
	}
}

// Options returns the effective writer options.
func (wb *Workbook) Options() *WriterOptions {
	return wb.opts
}

// AddSheet appends a worksheet. Names are 1 to 31 characters, unique
// ignoring case, and may not contain any of []:*?/\.
func (wb *Workbook) AddSheet(name string) (*Sheet, error) {
	if err := validSheetName(name); err != nil {
		return nil, err
	}
	for _, s := range wb.sheets {
		if strings.EqualFold(s.Name, name) {
			return nil, fmt.Errorf("duplicate sheet name %q", name)
		}
	}
	s := newSheet(name)
	wb.sheets = append(wb.sheets, s)
	return s, nil
}

func validSheetName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxSheetNameLen {
		return fmt.Errorf("sheet name %q must be 1 to %d characters", name, maxSheetNameLen)
	}
	if strings.ContainsAny(name, `[]:*?/\`) {
		return fmt.Errorf("sheet name %q contains one of []:*?/\\", name)
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return fmt.Errorf("sheet name %q starts or ends with an apostrophe", name)
	}
	return nil
}

// Sheets returns the worksheets in workbook order.
func (wb *Workbook) Sheets() []*Sheet {
	return wb.sheets
}

// AddStorage attaches a named stream written next to the workbook stream.
func (wb *Workbook) AddStorage(name string, data []byte) error {
	if strings.EqualFold(name, wb.opts.StreamName) {
		return fmt.Errorf("storage name %q clashes with the workbook stream", name)
	}
	for _, s := range wb.storages {
		if strings.EqualFold(s.Name, name) {
			return fmt.Errorf("duplicate storage name %q", name)
		}
	}
	wb.storages = append(wb.storages, NamedStorage{Name: name, Data: data})
	return nil
}

// SetDrawingGroup sets the data of the workbook's MSODRAWINGGROUP record.
func (wb *Workbook) SetDrawingGroup(data []byte) {
	wb.drawingGroup = data
}

// Records returns the full record list: workbook globals followed by one
// substream per sheet. Every call builds a fresh shared string table.
func (wb *Workbook) Records() ([]*Record, error) {
	if len(wb.sheets) == 0 {
		return nil, ErrNoSheets
	}
	sst := NewSharedStrings(wb.opts.SSTBucketSize)

	recs := globalsHeader(wb.opts.Codepage)
	for _, s := range wb.sheets {
		p, err := boundSheetPayload(s.Name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		recs = append(recs, NewRecord(XL_BOUNDSHEET, p))
	}
	recs = append(recs, NewRecord(XL_COUNTRY, u16Payload(1, 1)))
	if wb.drawingGroup != nil {
		recs = append(recs, NewMaskedRecord(XL_MSO_DRAWING_GROUP, nil, wb.drawingGroup))
	}
	sstRec, extRec := sst.Records()
	recs = append(recs, sstRec, extRec, NewRecord(XL_EOF, nil))

	for i, s := range wb.sheets {
		recs = append(recs, s.records(sst, i == 0)...)
	}
	wb.log.Debug().
		Int("sheets", len(wb.sheets)).
		Int("records", len(recs)).
		Int("strings", sst.Len()).
		Msg("records built")
	return recs, nil
}

// WriteTo writes the workbook as a compound document to w.
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	recs, err := wb.Records()
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: w}
	if _, err := NewStreamAssembler(wb.opts).Run(cw, recs, wb.storages); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Save writes the workbook to path. The file appears only once it has been
// written completely.
func (wb *Workbook) Save(path string) error {
	return writeTmpThenMove(path, func(w io.Writer) error {
		_, err := wb.WriteTo(w)
		return err
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
