package xlwt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf16"
)

// Compound document sector markers.
const (
	cdFreeSect   uint32 = 0xFFFFFFFF
	cdEndOfChain uint32 = 0xFFFFFFFE
	cdFATSect    uint32 = 0xFFFFFFFD
	cdDIFSect    uint32 = 0xFFFFFFFC
	cdNoStream   uint32 = 0xFFFFFFFF
)

const (
	cdHeaderLen      = 512
	cdDirEntryLen    = 128
	cdMiniSectorSize = 64
	cdMiniCutoff     = 4096
	cdHeaderDIFAT    = 109
	cdMaxNameLen     = 31

	cdTypeStream = 2
	cdTypeRoot   = 5
	cdBlack      = 1
)

// XLS_SIGNATURE is the magic cookie at the start of every compound document.
var XLS_SIGNATURE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// CompDocError represents an error in compound document handling.
type CompDocError struct {
	Message string
}

func (e *CompDocError) Error() string {
	return e.Message
}

func compDocErrorf(format string, args ...interface{}) *CompDocError {
	return &CompDocError{Message: fmt.Sprintf(format, args...)}
}

// NamedStorage is a stream stored next to the workbook stream, such as an
// embedded drawing or a document property set.
type NamedStorage struct {
	Name string
	Data []byte
}

// CompoundWriter writes a version 3 compound document with 512-byte
// sectors holding the workbook stream and any auxiliary storages.
type CompoundWriter struct {
	// StreamName is the directory name of the main stream.
	StreamName string
}

type cdStream struct {
	name  string
	data  []byte
	size  int
	start uint32
}

// WriteContainer implements ContainerWriter. The main stream is declared
// with streamLen bytes; stream is zero-extended when it is shorter. The
// storages are returned in directory order.
func (c *CompoundWriter) WriteContainer(w io.Writer, stream []byte, streamLen int, storages []NamedStorage) ([]NamedStorage, error) {
	name := c.StreamName
	if name == "" {
		name = "Workbook"
	}
	if streamLen < len(stream) {
		return nil, compDocErrorf("stream of %d bytes declared as %d", len(stream), streamLen)
	}

	streams := []*cdStream{{name: name, data: stream, size: streamLen}}
	seen := map[string]bool{strings.ToUpper(name): true}
	for _, s := range storages {
		if s.Name == "" || len(utf16.Encode([]rune(s.Name))) > cdMaxNameLen {
			return nil, compDocErrorf("invalid storage name %q", s.Name)
		}
		key := strings.ToUpper(s.Name)
		if seen[key] {
			return nil, compDocErrorf("duplicate storage name %q", s.Name)
		}
		seen[key] = true
		streams = append(streams, &cdStream{name: s.Name, data: s.Data, size: len(s.Data)})
	}
	sort.SliceStable(streams, func(i, j int) bool {
		return cdNameLess(streams[i].name, streams[j].name)
	})

	var out bytes.Buffer
	if err := c.build(&out, streams); err != nil {
		return nil, err
	}
	if _, err := w.Write(out.Bytes()); err != nil {
		return nil, err
	}

	placed := make([]NamedStorage, 0, len(storages))
	for _, s := range streams {
		if s.name != name {
			placed = append(placed, NamedStorage{Name: s.name, Data: s.data})
		}
	}
	return placed, nil
}

// cdNameLess orders directory names the way the red-black tree compares
// them: shorter names first, then by upper-cased name.
func cdNameLess(a, b string) bool {
	la, lb := len(utf16.Encode([]rune(a))), len(utf16.Encode([]rune(b)))
	if la != lb {
		return la < lb
	}
	return strings.ToUpper(a) < strings.ToUpper(b)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

func (c *CompoundWriter) build(out *bytes.Buffer, streams []*cdStream) error {
	// Sector order: big streams, mini stream container, mini FAT,
	// directory, FAT, DIFAT.
	var fat, miniFAT []uint32
	var big, mini []*cdStream
	for _, s := range streams {
		if s.size >= cdMiniCutoff {
			big = append(big, s)
		} else {
			mini = append(mini, s)
		}
	}

	allocate := func(n int) uint32 {
		if n == 0 {
			return cdEndOfChain
		}
		start := uint32(len(fat))
		for i := 1; i < n; i++ {
			fat = append(fat, start+uint32(i))
		}
		fat = append(fat, cdEndOfChain)
		return start
	}

	for _, s := range big {
		s.start = allocate(ceilDiv(s.size, SectorSize))
	}

	miniSectors := 0
	for _, s := range mini {
		n := ceilDiv(s.size, cdMiniSectorSize)
		if n == 0 {
			s.start = cdEndOfChain
			continue
		}
		s.start = uint32(miniSectors)
		for i := 1; i < n; i++ {
			miniFAT = append(miniFAT, uint32(miniSectors+i))
		}
		miniFAT = append(miniFAT, cdEndOfChain)
		miniSectors += n
	}
	miniStreamLen := miniSectors * cdMiniSectorSize
	rootStart := allocate(ceilDiv(miniStreamLen, SectorSize))

	miniFATSectors := ceilDiv(len(miniFAT)*4, SectorSize)
	miniFATStart := allocate(miniFATSectors)

	dirSectors := ceilDiv((len(streams)+1)*cdDirEntryLen, SectorSize)
	dirStart := allocate(dirSectors)

	// The FAT must also describe its own sectors and the DIFAT sectors.
	perSector := SectorSize / 4
	used := len(fat)
	fatSectors, difSectors := 0, 0
	for {
		need := ceilDiv(used+fatSectors+difSectors, perSector)
		difNeed := 0
		if need > cdHeaderDIFAT {
			difNeed = ceilDiv(need-cdHeaderDIFAT, perSector-1)
		}
		if need == fatSectors && difNeed == difSectors {
			break
		}
		fatSectors, difSectors = need, difNeed
	}
	fatStart := uint32(len(fat))
	for i := 0; i < fatSectors; i++ {
		fat = append(fat, cdFATSect)
	}
	difStart := uint32(len(fat))
	for i := 0; i < difSectors; i++ {
		fat = append(fat, cdDIFSect)
	}
	for len(fat)%perSector != 0 {
		fat = append(fat, cdFreeSect)
	}

	// Header.
	var hdr [cdHeaderLen]byte
	copy(hdr[0:], XLS_SIGNATURE)
	binary.LittleEndian.PutUint16(hdr[24:], 0x003E)
	binary.LittleEndian.PutUint16(hdr[26:], 0x0003)
	binary.LittleEndian.PutUint16(hdr[28:], 0xFFFE)
	binary.LittleEndian.PutUint16(hdr[30:], 9)
	binary.LittleEndian.PutUint16(hdr[32:], 6)
	binary.LittleEndian.PutUint32(hdr[44:], uint32(fatSectors))
	binary.LittleEndian.PutUint32(hdr[48:], dirStart)
	binary.LittleEndian.PutUint32(hdr[56:], cdMiniCutoff)
	binary.LittleEndian.PutUint32(hdr[60:], miniFATStart)
	binary.LittleEndian.PutUint32(hdr[64:], uint32(miniFATSectors))
	firstDIF := cdEndOfChain
	if difSectors > 0 {
		firstDIF = difStart
	}
	binary.LittleEndian.PutUint32(hdr[68:], firstDIF)
	binary.LittleEndian.PutUint32(hdr[72:], uint32(difSectors))
	for i := 0; i < cdHeaderDIFAT; i++ {
		v := cdFreeSect
		if i < fatSectors {
			v = fatStart + uint32(i)
		}
		binary.LittleEndian.PutUint32(hdr[76+4*i:], v)
	}
	out.Write(hdr[:])

	pad := func() {
		if rem := (out.Len() - cdHeaderLen) % SectorSize; rem != 0 {
			out.Write(make([]byte, SectorSize-rem))
		}
	}

	for _, s := range big {
		out.Write(s.data)
		out.Write(make([]byte, s.size-len(s.data)))
		pad()
	}
	for _, s := range mini {
		out.Write(s.data)
		out.Write(make([]byte, s.size-len(s.data)))
		if rem := s.size % cdMiniSectorSize; rem != 0 {
			out.Write(make([]byte, cdMiniSectorSize-rem))
		}
	}
	pad()
	writeU32s(out, miniFAT)
	if len(miniFAT) > 0 {
		for i := len(miniFAT); i%perSector != 0; i++ {
			writeU32s(out, []uint32{cdFreeSect})
		}
	}

	root := &cdStream{name: "Root Entry", start: rootStart, size: miniStreamLen}
	if err := writeDirEntry(out, root, cdTypeRoot, cdNoStream, cdNoStream, 1); err != nil {
		return err
	}
	for i, s := range streams {
		right := cdNoStream
		if i+1 < len(streams) {
			right = uint32(i + 2)
		}
		if err := writeDirEntry(out, s, cdTypeStream, cdNoStream, right, cdNoStream); err != nil {
			return err
		}
	}
	for i := len(streams) + 1; i%(SectorSize/cdDirEntryLen) != 0; i++ {
		writeEmptyDirEntry(out)
	}

	writeU32s(out, fat)

	// DIFAT sectors list the FAT sectors past the header's 109, with the
	// last slot chaining to the next DIFAT sector.
	rest := make([]uint32, 0, fatSectors)
	for i := cdHeaderDIFAT; i < fatSectors; i++ {
		rest = append(rest, fatStart+uint32(i))
	}
	for d := 0; d < difSectors; d++ {
		sector := make([]uint32, perSector)
		for i := range sector {
			sector[i] = cdFreeSect
		}
		n := copy(sector[:perSector-1], rest)
		rest = rest[n:]
		sector[perSector-1] = cdEndOfChain
		if d+1 < difSectors {
			sector[perSector-1] = difStart + uint32(d+1)
		}
		writeU32s(out, sector)
	}
	return nil
}

func writeU32s(out *bytes.Buffer, vals []uint32) {
	var b [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(b[:], v)
		out.Write(b[:])
	}
}

func writeDirEntry(out *bytes.Buffer, s *cdStream, typ byte, left, right, child uint32) error {
	var e [cdDirEntryLen]byte
	units := utf16.Encode([]rune(s.name))
	if len(units) > cdMaxNameLen {
		return compDocErrorf("directory name %q too long", s.name)
	}
	for i, u := range units {
		binary.LittleEndian.PutUint16(e[2*i:], u)
	}
	binary.LittleEndian.PutUint16(e[64:], uint16(2*(len(units)+1)))
	e[66] = typ
	e[67] = cdBlack
	binary.LittleEndian.PutUint32(e[68:], left)
	binary.LittleEndian.PutUint32(e[72:], right)
	binary.LittleEndian.PutUint32(e[76:], child)
	binary.LittleEndian.PutUint32(e[116:], s.start)
	binary.LittleEndian.PutUint32(e[120:], uint32(s.size))
	out.Write(e[:])
	return nil
}

func writeEmptyDirEntry(out *bytes.Buffer) {
	var e [cdDirEntryLen]byte
	binary.LittleEndian.PutUint32(e[68:], cdNoStream)
	binary.LittleEndian.PutUint32(e[72:], cdNoStream)
	binary.LittleEndian.PutUint32(e[76:], cdNoStream)
	out.Write(e[:])
}

// CompDoc reads the streams of a compound document.
type CompDoc struct {
	// Mem is the raw contents of the file.
	Mem []byte

	sectorSize     int
	miniSectorSize int
	miniCutoff     int
	fat            []uint32
	miniFAT        []uint32
	miniStream     []byte
	entries        []DirEntry
}

// DirEntry is one decoded directory entry.
type DirEntry struct {
	Name  string
	Type  byte
	Start uint32
	Size  int
}

// NewCompDoc parses the header, allocation tables and directory of mem.
func NewCompDoc(mem []byte) (*CompDoc, error) {
	if len(mem) < cdHeaderLen || !bytes.Equal(mem[:8], XLS_SIGNATURE) {
		return nil, compDocErrorf("not an OLE2 compound document")
	}
	shift := binary.LittleEndian.Uint16(mem[30:])
	mshift := binary.LittleEndian.Uint16(mem[32:])
	if shift < 7 || shift > 16 || mshift > shift {
		return nil, compDocErrorf("invalid sector shift %d/%d", shift, mshift)
	}
	cd := &CompDoc{
		Mem:            mem,
		sectorSize:     1 << shift,
		miniSectorSize: 1 << mshift,
		miniCutoff:     int(binary.LittleEndian.Uint32(mem[56:])),
	}
	fatSectors := int(binary.LittleEndian.Uint32(mem[44:]))
	dirStart := binary.LittleEndian.Uint32(mem[48:])
	miniFATStart := binary.LittleEndian.Uint32(mem[60:])
	difStart := binary.LittleEndian.Uint32(mem[68:])
	difSectors := int(binary.LittleEndian.Uint32(mem[72:]))

	// Collect the FAT sector list from the header and the DIFAT chain.
	perSector := cd.sectorSize / 4
	fatList := make([]uint32, 0, fatSectors)
	for i := 0; i < cdHeaderDIFAT && len(fatList) < fatSectors; i++ {
		fatList = append(fatList, binary.LittleEndian.Uint32(mem[76+4*i:]))
	}
	sid := difStart
	for d := 0; d < difSectors && len(fatList) < fatSectors; d++ {
		sec, err := cd.sector(sid)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector-1 && len(fatList) < fatSectors; i++ {
			fatList = append(fatList, binary.LittleEndian.Uint32(sec[4*i:]))
		}
		sid = binary.LittleEndian.Uint32(sec[4*(perSector-1):])
	}
	if len(fatList) < fatSectors {
		return nil, compDocErrorf("DIFAT lists %d of %d FAT sectors", len(fatList), fatSectors)
	}
	for _, s := range fatList {
		sec, err := cd.sector(s)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector; i++ {
			cd.fat = append(cd.fat, binary.LittleEndian.Uint32(sec[4*i:]))
		}
	}

	dir, err := cd.readChain(dirStart, -1)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	for off := 0; off+cdDirEntryLen <= len(dir); off += cdDirEntryLen {
		cd.entries = append(cd.entries, parseDirEntry(dir[off:off+cdDirEntryLen]))
	}
	if len(cd.entries) == 0 || cd.entries[0].Type != cdTypeRoot {
		return nil, compDocErrorf("missing root directory entry")
	}

	if miniFATStart != cdEndOfChain && miniFATStart != cdFreeSect {
		mf, err := cd.readChain(miniFATStart, -1)
		if err != nil {
			return nil, fmt.Errorf("reading mini FAT: %w", err)
		}
		for i := 0; i+4 <= len(mf); i += 4 {
			cd.miniFAT = append(cd.miniFAT, binary.LittleEndian.Uint32(mf[i:]))
		}
		root := cd.entries[0]
		cd.miniStream, err = cd.readChain(root.Start, root.Size)
		if err != nil {
			return nil, fmt.Errorf("reading mini stream: %w", err)
		}
	}
	return cd, nil
}

func parseDirEntry(e []byte) DirEntry {
	nameLen := int(binary.LittleEndian.Uint16(e[64:]))
	if nameLen > 64 {
		nameLen = 64
	}
	units := make([]uint16, 0, nameLen/2)
	for i := 0; i+1 < nameLen; i += 2 {
		u := binary.LittleEndian.Uint16(e[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return DirEntry{
		Name:  string(utf16.Decode(units)),
		Type:  e[66],
		Start: binary.LittleEndian.Uint32(e[116:]),
		Size:  int(binary.LittleEndian.Uint32(e[120:])),
	}
}

func (cd *CompDoc) sector(sid uint32) ([]byte, error) {
	start := cdHeaderLen + int(sid)*cd.sectorSize
	if sid >= cdDIFSect || start+cd.sectorSize > len(cd.Mem) {
		return nil, compDocErrorf("sector %d out of range", sid)
	}
	return cd.Mem[start : start+cd.sectorSize], nil
}

// readChain follows a FAT chain. A negative size reads the whole chain.
func (cd *CompDoc) readChain(start uint32, size int) ([]byte, error) {
	var out []byte
	seen := make(map[uint32]bool)
	for sid := start; sid != cdEndOfChain; {
		if seen[sid] {
			return nil, compDocErrorf("sector chain loops at %d", sid)
		}
		seen[sid] = true
		sec, err := cd.sector(sid)
		if err != nil {
			return nil, err
		}
		out = append(out, sec...)
		if int(sid) >= len(cd.fat) {
			return nil, compDocErrorf("sector %d outside the FAT", sid)
		}
		sid = cd.fat[sid]
		if size >= 0 && len(out) >= size {
			break
		}
	}
	if size >= 0 {
		if len(out) < size {
			return nil, compDocErrorf("chain holds %d of %d bytes", len(out), size)
		}
		out = out[:size]
	}
	return out, nil
}

func (cd *CompDoc) readMiniChain(start uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for sid := start; len(out) < size; {
		if sid == cdEndOfChain || int(sid) >= len(cd.miniFAT) {
			return nil, compDocErrorf("mini chain ends after %d of %d bytes", len(out), size)
		}
		off := int(sid) * cd.miniSectorSize
		if off+cd.miniSectorSize > len(cd.miniStream) {
			return nil, compDocErrorf("mini sector %d out of range", sid)
		}
		out = append(out, cd.miniStream[off:off+cd.miniSectorSize]...)
		sid = cd.miniFAT[sid]
	}
	return out[:size], nil
}

// Entries returns the directory entries, root first.
func (cd *CompDoc) Entries() []DirEntry {
	return cd.entries
}

// LocateNamedStream returns the contents of the stream called name,
// matched case-insensitively.
func (cd *CompDoc) LocateNamedStream(name string) ([]byte, error) {
	for _, e := range cd.entries[1:] {
		if e.Type != cdTypeStream || !strings.EqualFold(e.Name, name) {
			continue
		}
		if e.Size == 0 {
			return []byte{}, nil
		}
		if e.Size < cd.miniCutoff {
			return cd.readMiniChain(e.Start, e.Size)
		}
		return cd.readChain(e.Start, e.Size)
	}
	return nil, compDocErrorf("stream %q not found", name)
}
