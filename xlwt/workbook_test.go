package xlwt_test

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/yamitzky/xlwt-go/xlwt"
)

var _ = Describe("Workbook", func() {
	var subject *xlwt.Workbook

	BeforeEach(func() {
		subject = xlwt.NewWorkbook(nil)
	})

	write := func() []byte {
		var buf bytes.Buffer
		n, err := subject.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(buf.Len())))
		Expect(buf.Bytes()[:8]).To(Equal(xlwt.XLS_SIGNATURE))
		return buf.Bytes()
	}

	workbookStream := func() []byte {
		stream, err := xlwt.LocateWorkbookStream(write())
		Expect(err).NotTo(HaveOccurred())
		return stream
	}

	It("should read back what it wrote", func() {
		s, err := subject.AddSheet("Data")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetNumber(0, 0, 1.5)).To(Succeed())
		Expect(s.SetNumber(0, 1, 100)).To(Succeed())
		Expect(s.SetNumber(0, 2, 3.14159)).To(Succeed())
		Expect(s.SetString(1, 0, "hello")).To(Succeed())
		Expect(s.SetString(1, 1, "héllo")).To(Succeed())
		Expect(s.SetString(1, 2, "日本語")).To(Succeed())
		Expect(s.SetString(2, 0, "hello")).To(Succeed())
		Expect(s.SetBool(3, 0, true)).To(Succeed())
		Expect(s.SetError(3, 1, 0x07)).To(Succeed())
		Expect(s.SetBlank(40, 255)).To(Succeed())
		other, err := subject.AddSheet("Other")
		Expect(err).NotTo(HaveOccurred())
		Expect(other.SetString(0, 0, "second")).To(Succeed())

		wb, err := xlwt.ReadWorkbook(workbookStream())
		Expect(err).NotTo(HaveOccurred())
		Expect(wb.Sheets()).To(HaveLen(2))
		got := wb.Sheets()[0]
		Expect(got.Name).To(Equal("Data"))
		Expect(got.NRows()).To(Equal(5))

		expect := map[[2]int]xlwt.Cell{
			{0, 0}:    {Kind: xlwt.CellNumber, Number: 1.5},
			{0, 1}:    {Kind: xlwt.CellNumber, Number: 100},
			{0, 2}:    {Kind: xlwt.CellNumber, Number: 3.14159},
			{1, 0}:    {Kind: xlwt.CellText, Text: "hello"},
			{1, 1}:    {Kind: xlwt.CellText, Text: "héllo"},
			{1, 2}:    {Kind: xlwt.CellText, Text: "日本語"},
			{2, 0}:    {Kind: xlwt.CellText, Text: "hello"},
			{3, 0}:    {Kind: xlwt.CellBool, Code: 1},
			{3, 1}:    {Kind: xlwt.CellError, Code: 0x07},
			{40, 255}: {Kind: xlwt.CellBlank},
		}
		for pos, want := range expect {
			c, ok := got.Cell(pos[0], pos[1])
			Expect(ok).To(BeTrue(), "cell %v", pos)
			Expect(c).To(Equal(want), "cell %v", pos)
		}

		c, ok := wb.Sheets()[1].Cell(0, 0)
		Expect(ok).To(BeTrue())
		Expect(c.Text).To(Equal("second"))
	})

	It("should point BOUNDSHEET records at their worksheets", func() {
		for _, name := range []string{"One", "Two", "Three"} {
			s, err := subject.AddSheet(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.SetString(0, 0, name)).To(Succeed())
		}

		raw, err := xlwt.ReadRecords(workbookStream())
		Expect(err).NotTo(HaveOccurred())
		Expect(raw[0].Offset).To(BeZero())
		Expect(raw[0].Opcode).To(Equal(uint16(xlwt.XL_BOF)))

		var names []string
		for _, r := range recordsWithOpcode(raw, xlwt.XL_BOUNDSHEET) {
			bs, err := xlwt.ParseBoundSheet(r.Data)
			Expect(err).NotTo(HaveOccurred())
			names = append(names, bs.Name)

			bof, ok := recordAt(raw, bs.Offset)
			Expect(ok).To(BeTrue(), "sheet %q", bs.Name)
			Expect(bof.Opcode).To(Equal(uint16(xlwt.XL_BOF)))
			b, err := xlwt.ParseBOF(bof.Data)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Version).To(Equal(80))
			Expect(b.Substream).To(Equal(uint16(xlwt.XL_WORKSHEET)))
		}
		Expect(names).To(Equal([]string{"One", "Two", "Three"}))
	})

	It("should index a large shared string table", func() {
		s, err := subject.AddSheet("Strings")
		Expect(err).NotTo(HaveOccurred())
		for r := 0; r < 3000; r++ {
			Expect(s.SetString(r, 0, fmt.Sprintf("string %04d", r))).To(Succeed())
		}

		stream := workbookStream()
		raw, err := xlwt.ReadRecords(stream)
		Expect(err).NotTo(HaveOccurred())

		logical, err := xlwt.Reassemble(raw)
		Expect(err).NotTo(HaveOccurred())
		var sst, ext *xlwt.LogicalRecord
		for i := range logical {
			switch logical[i].Opcode {
			case xlwt.XL_SST:
				sst = &logical[i]
			case xlwt.XL_EXTSST:
				ext = &logical[i]
			}
		}
		Expect(sst).NotTo(BeNil())
		Expect(ext).NotTo(BeNil())
		Expect(sst.Continuations).To(BeNumerically(">", 0))

		refs, strs, err := xlwt.ParseSST(sst.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(Equal(uint32(3000)))
		Expect(strs).To(HaveLen(3000))

		dsst, buckets, err := xlwt.ParseExtSST(ext.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(dsst).To(Equal(24))
		Expect(buckets).To(HaveLen(125))
		for k, b := range buckets {
			str, err := xlwt.UnpackUnicode(stream, int(b.StreamPos), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(str).To(Equal(fmt.Sprintf("string %04d", k*dsst)), "bucket %d", k)

			hdr, ok := recordAt(raw, b.StreamPos-uint32(b.RecordPos))
			Expect(ok).To(BeTrue(), "bucket %d", k)
			Expect(hdr.Opcode).To(SatisfyAny(Equal(uint16(xlwt.XL_SST)), Equal(uint16(xlwt.XL_CONTINUE))))
		}

		wb, err := xlwt.ReadWorkbook(stream)
		Expect(err).NotTo(HaveOccurred())
		c, ok := wb.Sheets()[0].Cell(2999, 0)
		Expect(ok).To(BeTrue())
		Expect(c.Text).To(Equal("string 2999"))
	})

	It("should write drawing data as masked records", func() {
		group := bytes.Repeat([]byte{0x0F}, 10000)
		drawing := bytes.Repeat([]byte{0xF0}, 300)
		subject.SetDrawingGroup(group)
		s, err := subject.AddSheet("Pictures")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetNumber(0, 0, 1)).To(Succeed())
		s.AddDrawing(drawing)

		raw, err := xlwt.ReadRecords(workbookStream())
		Expect(err).NotTo(HaveOccurred())
		logical, err := xlwt.Reassemble(raw)
		Expect(err).NotTo(HaveOccurred())

		var found int
		for _, r := range logical {
			switch r.Opcode {
			case xlwt.XL_MSO_DRAWING_GROUP:
				Expect(r.Payload).To(Equal(group))
				Expect(r.Continuations).To(Equal(1))
				found++
			case xlwt.XL_MSO_DRAWING:
				Expect(r.Payload).To(Equal(drawing))
				found++
			}
		}
		Expect(found).To(Equal(2))
	})

	It("should store auxiliary storages next to the workbook stream", func() {
		small := []byte("small storage")
		large := bytes.Repeat([]byte("L"), 6000)
		Expect(subject.AddStorage("Small", small)).To(Succeed())
		Expect(subject.AddStorage("Large", large)).To(Succeed())
		Expect(subject.AddStorage("small", nil)).NotTo(Succeed())
		Expect(subject.AddStorage("WORKBOOK", nil)).NotTo(Succeed())
		_, err := subject.AddSheet("Sheet1")
		Expect(err).NotTo(HaveOccurred())

		cd, err := xlwt.NewCompDoc(write())
		Expect(err).NotTo(HaveOccurred())
		Expect(cd.LocateNamedStream("Small")).To(Equal(small))
		Expect(cd.LocateNamedStream("Large")).To(Equal(large))
		_, err = cd.LocateNamedStream("Workbook")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should validate sheet names", func() {
		_, err := subject.AddSheet("Sheet1")
		Expect(err).NotTo(HaveOccurred())
		for _, name := range []string{
			"",
			strings.Repeat("x", 32),
			"a/b",
			"a[1]",
			"'quoted'",
			"SHEET1",
		} {
			_, err := subject.AddSheet(name)
			Expect(err).To(HaveOccurred(), "name %q", name)
		}
		_, err = subject.AddSheet(strings.Repeat("é", 31))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse to write without sheets", func() {
		var buf bytes.Buffer
		_, err := subject.WriteTo(&buf)
		Expect(errors.Is(err, xlwt.ErrNoSheets)).To(BeTrue())
		Expect(buf.Len()).To(BeZero())
	})

	It("should save to and open from disk", func() {
		s, err := subject.AddSheet("Disk")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetNumber(9, 3, -42)).To(Succeed())

		dir, err := ioutil.TempDir("", "xlwt")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "out.xls")
		Expect(subject.Save(path)).To(Succeed())
		Expect(xlwt.InspectFile(path)).To(Equal("xls"))

		wb, err := xlwt.OpenWorkbook(path)
		Expect(err).NotTo(HaveOccurred())
		c, ok := wb.Sheets()[0].Cell(9, 3)
		Expect(ok).To(BeTrue())
		Expect(c.Number).To(Equal(-42.0))
	})

	It("should honour writer options", func() {
		subject = xlwt.NewWorkbook(&xlwt.WriterOptions{MaxRecordLen: 1024, StreamName: "Book"})
		s, err := subject.AddSheet("Small")
		Expect(err).NotTo(HaveOccurred())
		for r := 0; r < 200; r++ {
			Expect(s.SetString(r, 0, fmt.Sprintf("value %d", r))).To(Succeed())
		}

		cd, err := xlwt.NewCompDoc(write())
		Expect(err).NotTo(HaveOccurred())
		stream, err := cd.LocateNamedStream("Book")
		Expect(err).NotTo(HaveOccurred())
		raw, err := xlwt.ReadRecords(stream)
		Expect(err).NotTo(HaveOccurred())
		for _, r := range raw {
			Expect(len(r.Data)).To(BeNumerically("<=", 1024))
		}
		Expect(recordsWithOpcode(raw, xlwt.XL_CONTINUE)).NotTo(BeEmpty())
	})
})
