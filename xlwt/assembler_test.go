package xlwt_test

import (
	"bytes"
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/yamitzky/xlwt-go/xlwt"
)

// shortWriter reports one byte less than it was given.
type shortWriter struct{ bytes.Buffer }

func (w *shortWriter) Write(p []byte) (int, error) {
	n, err := w.Buffer.Write(p)
	return n - 1, err
}

var _ = Describe("StreamAssembler", func() {
	var subject *xlwt.StreamAssembler

	BeforeEach(func() {
		subject = xlwt.NewStreamAssembler(nil)
	})

	assemble := func(recs []*xlwt.Record) ([]byte, *xlwt.Layout, []xlwt.RawRecord) {
		stream, layout, err := subject.Assemble(recs)
		Expect(err).NotTo(HaveOccurred())
		raw, err := xlwt.ReadRecords(stream)
		Expect(err).NotTo(HaveOccurred())
		return stream, layout, raw
	}

	It("should lay out records back to back", func() {
		recs := append([]*xlwt.Record{
			xlwt.NewRecord(xlwt.XL_WRITEACCESS, bytes.Repeat([]byte{'x'}, 9000)),
		}, worksheetRecords(40)...)

		_, layout, _ := assemble(recs)
		Expect(layout.Records).To(HaveLen(len(recs)))
		Expect(layout.Records[0].Offset).To(BeZero())
		Expect(layout.Records[0].EmittedLen()).To(Equal(9000 + 8))
		Expect(layout.Continuations).To(Equal(1))

		total := 0
		for i, f := range layout.Records {
			Expect(int(f.Offset)).To(Equal(total), "record %d", i)
			total += f.EmittedLen()
		}
		Expect(layout.Length).To(Equal(total))
	})

	It("should pad the stream to whole sectors", func() {
		Expect(subject.PaddedLen(0)).To(Equal(4096))
		Expect(subject.PaddedLen(4095)).To(Equal(4608))
		Expect(subject.PaddedLen(5000)).To(Equal(5632))

		stream, layout, _ := assemble(worksheetRecords(3))
		Expect(stream).To(HaveLen(subject.PaddedLen(layout.Length)))
		Expect(stream[layout.Length:]).To(Equal(make([]byte, len(stream)-layout.Length)))
	})

	It("should index a sheet of 65 rows with 3 locators", func() {
		stream, _, raw := assemble(worksheetRecords(65))

		indexes := recordsWithOpcode(raw, xlwt.XL_INDEX)
		Expect(indexes).To(HaveLen(1))
		h, offsets, err := xlwt.ParseIndex(indexes[0].Data)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.LastRowPlus1).To(Equal(uint32(65)))
		Expect(offsets).To(HaveLen(3))

		defcol := recordsWithOpcode(raw, xlwt.XL_DEFCOLWIDTH)
		Expect(h.DefColWidth).To(Equal(uint32(defcol[0].Offset)))

		var sizes []int
		for _, off := range offsets {
			loc, ok := recordAt(raw, off)
			Expect(ok).To(BeTrue(), "no record at %d", off)
			Expect(loc.Opcode).To(Equal(uint16(xlwt.XL_DBCELL)))
			Expect(binary.LittleEndian.Uint16(stream[off:])).To(Equal(uint16(xlwt.XL_DBCELL)))

			d, err := xlwt.ParseDBCell(loc.Data)
			Expect(err).NotTo(HaveOccurred())
			sizes = append(sizes, len(d.CellOffsets))
		}
		Expect(sizes).To(Equal([]int{32, 32, 1}))
	})

	It("should point locators at rows and first values", func() {
		_, _, raw := assemble(worksheetRecords(40))
		for _, loc := range recordsWithOpcode(raw, xlwt.XL_DBCELL) {
			d, err := xlwt.ParseDBCell(loc.Data)
			Expect(err).NotTo(HaveOccurred())

			first, ok := recordAt(raw, uint32(loc.Offset)-d.FirstRow)
			Expect(ok).To(BeTrue())
			Expect(first.Opcode).To(Equal(uint16(xlwt.XL_ROW)))
			firstRow := binary.LittleEndian.Uint16(first.Data)

			pos := uint32(first.Offset + 4 + len(first.Data))
			for i, rel := range d.CellOffsets {
				pos += uint32(rel)
				val, ok := recordAt(raw, pos)
				Expect(ok).To(BeTrue(), "row %d: no record at %d", i, pos)
				Expect(xlwt.IsCellOpcode(val.Opcode)).To(BeTrue())
				Expect(binary.LittleEndian.Uint16(val.Data)).To(Equal(firstRow + uint16(i)))
			}
		}
	})

	It("should resolve each sheet's INDEX when the next one is met", func() {
		recs := append(worksheetRecords(33), worksheetRecords(70)...)
		_, _, raw := assemble(recs)

		indexes := recordsWithOpcode(raw, xlwt.XL_INDEX)
		Expect(indexes).To(HaveLen(2))
		dbcells := recordsWithOpcode(raw, xlwt.XL_DBCELL)
		Expect(dbcells).To(HaveLen(2 + 3))

		_, first, _ := xlwt.ParseIndex(indexes[0].Data)
		_, second, _ := xlwt.ParseIndex(indexes[1].Data)
		Expect(first).To(Equal([]uint32{uint32(dbcells[0].Offset), uint32(dbcells[1].Offset)}))
		Expect(second).To(Equal([]uint32{uint32(dbcells[2].Offset), uint32(dbcells[3].Offset), uint32(dbcells[4].Offset)}))
	})

	It("should write an empty INDEX for a sheet without rows", func() {
		_, _, raw := assemble(worksheetRecords(0))
		h, offsets, err := xlwt.ParseIndex(recordsWithOpcode(raw, xlwt.XL_INDEX)[0].Data)
		Expect(err).NotTo(HaveOccurred())
		Expect(offsets).To(BeEmpty())
		Expect(h.LastRowPlus1).To(BeZero())
	})

	It("should split masked records on the substituted payload", func() {
		masked := bytes.Repeat([]byte{0xAB}, 10000)
		recs := []*xlwt.Record{
			bofRecord(xlwt.XL_WORKSHEET),
			xlwt.NewMaskedRecord(xlwt.XL_MSO_DRAWING, []byte{1, 2, 3}, masked),
			xlwt.NewRecord(xlwt.XL_EOF, nil),
		}
		_, layout, raw := assemble(recs)
		Expect(layout.Records[1].Payload()).To(Equal(masked))
		Expect(layout.Records[1].Segments()).To(Equal([]int{8228, 1772}))

		logical, err := xlwt.Reassemble(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(logical).To(HaveLen(3))
		Expect(logical[1].Payload).To(Equal(masked))
		Expect(logical[1].Continuations).To(Equal(1))
	})

	It("should take masked data set by a finalize hook", func() {
		data := bytes.Repeat([]byte{7}, 300)
		hooked := xlwt.NewMaskedRecord(xlwt.XL_MSO_DRAWING, []byte{0}, nil).OnFinalize(func(r *xlwt.Record, _ []*xlwt.FinalRecord) error {
			r.SetMasked(data)
			return nil
		})
		explicit := xlwt.NewRecordKind(xlwt.XL_MSO_DRAWING_GROUP, xlwt.KindMasked, []byte{1, 2})
		explicit.SetMasked(data[:10])
		Expect(explicit.Kind()).To(Equal(xlwt.KindMasked))

		_, layout, _ := assemble([]*xlwt.Record{explicit, hooked})
		Expect(layout.Records[0].Payload()).To(Equal(data[:10]))
		Expect(layout.Records[1].Payload()).To(Equal(data))
		Expect(layout.Records[1].Kind).To(Equal(xlwt.KindMasked))
	})

	It("should run finalize hooks in order with earlier records visible", func() {
		var seen []int
		mk := func(tag byte) *xlwt.Record {
			return xlwt.NewRecord(xlwt.XL_WRITEACCESS, nil).OnFinalize(func(r *xlwt.Record, done []*xlwt.FinalRecord) error {
				seen = append(seen, len(done))
				r.Payload = []byte{tag, byte(len(done))}
				return nil
			})
		}
		_, layout, _ := assemble([]*xlwt.Record{mk('a'), mk('b'), mk('c')})
		Expect(seen).To(Equal([]int{0, 1, 2}))
		Expect(layout.Records[2].Payload()).To(Equal([]byte{'c', 2}))
	})

	It("should honour a lower record ceiling", func() {
		subject = xlwt.NewStreamAssembler(&xlwt.WriterOptions{MaxRecordLen: 100})
		Expect(subject.Splitter().MaxLen).To(Equal(100))
		_, layout, raw := assemble([]*xlwt.Record{xlwt.NewRecord(xlwt.XL_WRITEACCESS, make([]byte, 250))})
		Expect(layout.Continuations).To(Equal(2))
		Expect(raw).To(HaveLen(3))
		for _, r := range raw {
			Expect(len(r.Data)).To(BeNumerically("<=", 100))
		}
	})

	Describe("structural errors", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = new(bytes.Buffer)
		})

		expectStructural := func(recs []*xlwt.Record, target error) *xlwt.StructuralError {
			_, err := subject.Run(buf, recs, nil)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, target)).To(BeTrue(), "got %v", err)
			var se *xlwt.StructuralError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(buf.Len()).To(BeZero())
			return se
		}

		It("should fail on a value outside any block", func() {
			recs := []*xlwt.Record{
				bofRecord(xlwt.XL_WORKSHEET),
				xlwt.NumberRecord(0, 0, 1),
				xlwt.NewRecord(xlwt.XL_EOF, nil),
			}
			se := expectStructural(recs, xlwt.ErrMissingBlockContext)
			Expect(se.Op).To(Equal("layout"))
			Expect(se.Index).To(Equal(1))
		})

		It("should fail on a DBCELL without rows", func() {
			recs := []*xlwt.Record{
				bofRecord(xlwt.XL_WORKSHEET),
				xlwt.NewRecord(xlwt.XL_DBCELL, make([]byte, 4)),
				xlwt.NewRecord(xlwt.XL_EOF, nil),
			}
			expectStructural(recs, xlwt.ErrMissingBlockContext)
		})

		It("should fail on a block left open at EOF", func() {
			recs := worksheetRecords(5)
			recs = append(recs[:len(recs)-2], recs[len(recs)-1])
			expectStructural(recs, xlwt.ErrMissingBlockContext)
		})

		It("should fail on an INDEX sized for too few locators", func() {
			recs := worksheetRecords(40)
			recs[1] = xlwt.NewRecord(xlwt.XL_INDEX, xlwt.NewIndexPayload(0, 40, 1))
			se := expectStructural(recs, xlwt.ErrPayloadResized)
			Expect(se.Op).To(Equal("backpatch"))
			Expect(se.Index).To(Equal(1))
		})

		It("should fail on an INDEX sized for too many locators", func() {
			recs := worksheetRecords(40)
			recs[1] = xlwt.NewRecord(xlwt.XL_INDEX, xlwt.NewIndexPayload(0, 40, 3))
			expectStructural(recs, xlwt.ErrUnresolvedLocator)
		})

		It("should fail on a DBCELL sized for the wrong row count", func() {
			recs := worksheetRecords(3)
			recs[len(recs)-2] = xlwt.NewRecord(xlwt.XL_DBCELL, make([]byte, 4+2*5))
			expectStructural(recs, xlwt.ErrPayloadResized)
		})

		It("should fail on BOUNDSHEETs without matching worksheets", func() {
			recs := []*xlwt.Record{
				bofRecord(xlwt.XL_WORKBOOK_GLOBALS),
				xlwt.NewRecord(xlwt.XL_BOUNDSHEET, []byte{0, 0, 0, 0, 0, 0, 1, 0, 'A'}),
				xlwt.NewRecord(xlwt.XL_BOUNDSHEET, []byte{0, 0, 0, 0, 0, 0, 1, 0, 'B'}),
				xlwt.NewRecord(xlwt.XL_EOF, nil),
			}
			recs = append(recs, worksheetRecords(1)...)
			expectStructural(recs, xlwt.ErrBoundSheetMismatch)
		})

		It("should report hook failures", func() {
			boom := errors.New("boom")
			recs := []*xlwt.Record{
				xlwt.NewRecord(xlwt.XL_WRITEACCESS, nil).OnFinalize(func(*xlwt.Record, []*xlwt.FinalRecord) error {
					return boom
				}),
			}
			se := expectStructural(recs, boom)
			Expect(se.Op).To(Equal("finalize"))
		})
	})

	Describe("accounting", func() {
		It("should warn and continue by default", func() {
			layout, err := subject.Layout(worksheetRecords(2))
			Expect(err).NotTo(HaveOccurred())
			w := new(shortWriter)
			n, err := subject.Emit(w, layout)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(layout.Length - len(layout.Records)))
			Expect(w.Len()).To(Equal(layout.Length))
		})

		It("should fail when strict", func() {
			subject = xlwt.NewStreamAssembler(&xlwt.WriterOptions{StrictAccounting: true})
			layout, err := subject.Layout(worksheetRecords(2))
			Expect(err).NotTo(HaveOccurred())
			_, err = subject.Emit(new(shortWriter), layout)
			Expect(errors.Is(err, xlwt.ErrAccountingMismatch)).To(BeTrue())
		})
	})
})
