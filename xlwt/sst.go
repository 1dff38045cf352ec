package xlwt

import (
	"encoding/binary"
	"fmt"
)

// maxExtSSTBuckets is the number of EXTSST buckets Excel expects at most.
const maxExtSSTBuckets = 128

// SharedStrings is the workbook's shared string table. LABELSST cells refer
// to strings by their position in the table.
type SharedStrings struct {
	index      map[string]uint32
	strs       []string
	refs       uint32
	bucketSize int
}

// NewSharedStrings returns an empty table. bucketSize is the preferred
// number of strings per EXTSST bucket.
func NewSharedStrings(bucketSize int) *SharedStrings {
	if bucketSize < 1 {
		bucketSize = 8
	}
	return &SharedStrings{index: make(map[string]uint32), bucketSize: bucketSize}
}

// Add records one reference to s and returns its index.
func (t *SharedStrings) Add(s string) uint32 {
	t.refs++
	if i, ok := t.index[s]; ok {
		return i
	}
	i := uint32(len(t.strs))
	t.index[s] = i
	t.strs = append(t.strs, s)
	return i
}

// Len returns the number of unique strings.
func (t *SharedStrings) Len() int { return len(t.strs) }

// Refs returns the number of references recorded by Add.
func (t *SharedStrings) Refs() uint32 { return t.refs }

// String returns the string at index i.
func (t *SharedStrings) String(i uint32) string { return t.strs[i] }

// BucketSize returns the strings per EXTSST bucket, raised from the
// preferred size when the table would otherwise need too many buckets.
func (t *SharedStrings) BucketSize() int {
	n := t.bucketSize
	if least := (len(t.strs) + maxExtSSTBuckets - 1) / maxExtSSTBuckets; n < least {
		n = least
	}
	return n
}

// Buckets returns the number of EXTSST buckets.
func (t *SharedStrings) Buckets() int {
	d := t.BucketSize()
	return (len(t.strs) + d - 1) / d
}

// Records returns the SST record and its EXTSST companion. Both payloads
// are produced when the assembler finalizes them, so strings added after
// Records is called are still written.
func (t *SharedStrings) Records() (sst, extsst *Record) {
	sst = NewRecord(XL_SST, nil).OnFinalize(t.finalizeSST)
	extsst = NewRecord(XL_EXTSST, nil).OnFinalize(t.finalizeExtSST)
	return sst, extsst
}

func (t *SharedStrings) finalizeSST(r *Record, _ []*FinalRecord) error {
	payload := make([]byte, sstHeaderLen, sstHeaderLen+8*len(t.strs))
	binary.LittleEndian.PutUint32(payload[0:], t.refs)
	binary.LittleEndian.PutUint32(payload[4:], uint32(len(t.strs)))

	d := t.BucketSize()
	r.breaks = make([]int, 0, len(t.strs))
	r.anchors = make([]int, 0, t.Buckets())
	for i, s := range t.strs {
		packed, err := PackUnicode(s, 2)
		if err != nil {
			return fmt.Errorf("shared string %d: %w", i, err)
		}
		if i > 0 {
			r.breaks = append(r.breaks, len(payload))
		}
		if i%d == 0 {
			r.anchors = append(r.anchors, len(payload))
		}
		payload = append(payload, packed...)
	}
	r.Payload = payload
	return nil
}

func (t *SharedStrings) finalizeExtSST(r *Record, done []*FinalRecord) error {
	if len(done) == 0 || done[len(done)-1].Opcode != XL_SST {
		return fmt.Errorf("%w: EXTSST must directly follow its SST", ErrMissingBlockContext)
	}
	payload := make([]byte, extSSTHeaderLen+extSSTEntryLen*t.Buckets())
	binary.LittleEndian.PutUint16(payload, uint16(t.BucketSize()))
	r.Payload = payload
	return nil
}

// ParseSST decodes the strings of a reassembled SST payload. Strings cut
// by a CONTINUE boundary must have been joined without marker bytes.
func ParseSST(payload []byte) (refs uint32, strs []string, err error) {
	if len(payload) < sstHeaderLen {
		return 0, nil, NewBIFFError("SST payload of %d bytes", len(payload))
	}
	refs = binary.LittleEndian.Uint32(payload)
	n := int(binary.LittleEndian.Uint32(payload[4:]))
	pos := sstHeaderLen
	strs = make([]string, 0, n)
	for i := 0; i < n; i++ {
		var s string
		s, pos, err = UnpackUnicodeUpdatePos(payload, pos, 2)
		if err != nil {
			return refs, strs, NewBIFFError("SST string %d: %v", i, err)
		}
		strs = append(strs, s)
	}
	return refs, strs, nil
}

// ExtSSTBucket is one decoded EXTSST entry.
type ExtSSTBucket struct {
	StreamPos uint32 // absolute offset of the bucket's first string
	RecordPos uint16 // offset of that string inside its record, header included
}

// ParseExtSST decodes an EXTSST payload.
func ParseExtSST(payload []byte) (int, []ExtSSTBucket, error) {
	if len(payload) < extSSTHeaderLen || (len(payload)-extSSTHeaderLen)%extSSTEntryLen != 0 {
		return 0, nil, NewBIFFError("invalid EXTSST payload length %d", len(payload))
	}
	d := int(binary.LittleEndian.Uint16(payload))
	buckets := make([]ExtSSTBucket, (len(payload)-extSSTHeaderLen)/extSSTEntryLen)
	for i := range buckets {
		e := payload[extSSTHeaderLen+extSSTEntryLen*i:]
		buckets[i] = ExtSSTBucket{
			StreamPos: binary.LittleEndian.Uint32(e),
			RecordPos: binary.LittleEndian.Uint16(e[4:]),
		}
	}
	return d, buckets, nil
}
