package xlwt_test

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/yamitzky/xlwt-go/xlwt"
)

func rawStream(recs ...xlwt.RawRecord) []byte {
	var buf []byte
	for _, r := range recs {
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:], r.Opcode)
		binary.LittleEndian.PutUint16(hdr[2:], uint16(len(r.Data)))
		buf = append(append(buf, hdr[:]...), r.Data...)
	}
	return buf
}

var _ = Describe("Reader", func() {
	var stream []byte

	BeforeEach(func() {
		wb := xlwt.NewWorkbook(nil)
		s, err := wb.AddSheet("Sheet1")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetString(0, 0, "abc")).To(Succeed())
		Expect(s.SetNumber(1, 0, 2)).To(Succeed())

		var buf bytes.Buffer
		_, err = wb.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		stream, err = xlwt.LocateWorkbookStream(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should stop reading at the padding", func() {
		raw, err := xlwt.ReadRecords(stream)
		Expect(err).NotTo(HaveOccurred())
		last := raw[len(raw)-1]
		Expect(last.Opcode).To(Equal(uint16(xlwt.XL_EOF)))
		Expect(last.Offset + 4).To(BeNumerically("<", len(stream)))
	})

	It("should reject truncated records", func() {
		_, err := xlwt.ReadRecords([]byte{0x09, 0x08, 0x10, 0x00, 0x00})
		Expect(err).To(HaveOccurred())
	})

	It("should strip continuation markers only for continued strings", func() {
		raw := []xlwt.RawRecord{
			{Opcode: xlwt.XL_STRING, Data: []byte("ab")},
			{Opcode: xlwt.XL_CONTINUE, Data: []byte{0x00, 'c'}},
			{Opcode: xlwt.XL_MSO_DRAWING, Data: []byte{1}},
			{Opcode: xlwt.XL_CONTINUE, Data: []byte{2, 3}},
		}
		logical, err := xlwt.Reassemble(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(logical).To(HaveLen(2))
		Expect(logical[0].Payload).To(Equal([]byte("abc")))
		Expect(logical[1].Payload).To(Equal([]byte{1, 2, 3}))
		Expect(logical[1].Continuations).To(Equal(1))

		_, err = xlwt.Reassemble([]xlwt.RawRecord{{Opcode: xlwt.XL_CONTINUE, Data: []byte{1}}})
		Expect(err).To(HaveOccurred())
	})

	It("should parse BOF records", func() {
		raw, err := xlwt.ReadRecords(stream)
		Expect(err).NotTo(HaveOccurred())
		bof, err := xlwt.ParseBOF(raw[0].Data)
		Expect(err).NotTo(HaveOccurred())
		Expect(bof.Version).To(Equal(80))
		Expect(bof.Substream).To(Equal(uint16(xlwt.XL_WORKBOOK_GLOBALS)))

		_, err = xlwt.ParseBOF([]byte{0, 1, 2})
		Expect(err).To(HaveOccurred())
		_, err = xlwt.ParseBOF([]byte{0x00, 0x02, 0x10, 0, 0, 0, 0, 0})
		Expect(err).To(MatchError(ContainSubstring("unknown BIFF version")))
	})

	It("should reject streams that are not workbook globals", func() {
		_, err := xlwt.ReadWorkbook(rawStream(xlwt.RawRecord{Opcode: xlwt.XL_WINDOW2, Data: make([]byte, 18)}))
		Expect(err).To(HaveOccurred())

		ws := make([]byte, 16)
		binary.LittleEndian.PutUint16(ws, 0x0600)
		binary.LittleEndian.PutUint16(ws[2:], xlwt.XL_WORKSHEET)
		_, err = xlwt.ReadWorkbook(rawStream(xlwt.RawRecord{Opcode: xlwt.XL_BOF, Data: ws}))
		Expect(err).To(MatchError(ContainSubstring("not a BIFF8 workbook globals stream")))
	})

	It("should fail on files that are not compound documents", func() {
		_, err := xlwt.LocateWorkbookStream([]byte("a,b,c\n1,2,3\n"))
		Expect(err).To(HaveOccurred())
	})

	Describe("Dump", func() {
		It("should list every record", func() {
			var out bytes.Buffer
			Expect(xlwt.Dump(stream, &out, false)).To(Succeed())
			text := out.String()
			Expect(text).To(HavePrefix("       0: 0809 BOF len = 0010\n"))
			Expect(text).To(ContainSubstring(" 00fc SST len = "))
			Expect(strings.Count(text, " BOF len = ")).To(Equal(2))
			Expect(strings.Count(text, " EOF len = 0000")).To(Equal(2))
		})

		It("should omit offsets when unnumbered", func() {
			var out bytes.Buffer
			Expect(xlwt.Dump(stream, &out, true)).To(Succeed())
			Expect(out.String()).To(HavePrefix("0809 BOF len = 0010\n     00 06 05 00 "))
		})

		It("should print characters next to hex", func() {
			var out bytes.Buffer
			Expect(xlwt.HexCharDump([]byte("AB\x01"), &out, 100, false)).To(Succeed())
			line := out.String()
			Expect(line).To(HavePrefix("     100     41 42 01  "))
			Expect(line).To(HaveSuffix("  AB?\n"))
			Expect(line).To(HaveLen(8 + 5 + 48 + 1 + 3 + 1))
		})
	})

	Describe("CountRecords", func() {
		It("should count records by name", func() {
			var out bytes.Buffer
			counts, err := xlwt.CountRecords(stream, &out)
			Expect(err).NotTo(HaveOccurred())

			byName := make(map[string]int)
			var names []string
			for _, c := range counts {
				byName[c.Name] = c.Count
				names = append(names, c.Name)
			}
			Expect(sort.StringsAreSorted(names)).To(BeTrue())
			Expect(byName).To(HaveKeyWithValue("BOF", 2))
			Expect(byName).To(HaveKeyWithValue("EOF", 2))
			Expect(byName).To(HaveKeyWithValue("BOUNDSHEET", 1))
			Expect(byName).To(HaveKeyWithValue("DBCELL", 1))
			Expect(byName).To(HaveKeyWithValue("LABELSST", 1))
			Expect(byName).To(HaveKeyWithValue("FONT", 4))
			Expect(out.String()).To(ContainSubstring("       2 BOF\n"))

			_, err = xlwt.CountRecords(stream, nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
