package malh

import (
	"encoding/binary"
	"fmt"
)

// PageID addresses a single page within one of a relation's two page
// address spaces (primary data, overflow).
type PageID uint32

// NoPage is the sentinel for "no such page" — an absent overflow link or
// an unreachable candidate bucket. It is distinguishable from every valid
// page index because those start at 0 and a relation can never hold
// enough pages to reach it.
const NoPage PageID = 1<<32 - 1

// pageHeaderSize is the width of a page's fixed header: ntuples (uint16),
// free_offset (uint16), overflow_page_id (uint32).
const pageHeaderSize = 2 + 2 + 4

// tupleTerminator marks the end of a tuple's comma-joined bytes within a
// page's tuple region. Attribute bytes are printable and comma-free by
// the data model, so a NUL byte can never appear inside one.
const tupleTerminator = 0x00

// Page is an in-memory copy of one fixed-size slotted page: a header plus
// a densely packed, terminator-delimited tuple region. Mutating a page
// only changes this copy; callers must PutPage it back to persist changes.
type Page struct {
	pageSize   int
	nTuples    uint16
	freeOffset uint16
	overflow   PageID
	region     []byte // tuple bytes, length == pageSize - pageHeaderSize
}

// newEmptyPage allocates an empty page without assigning it a page id.
func newEmptyPage(pageSize int) *Page {
	return &Page{
		pageSize:   pageSize,
		nTuples:    0,
		freeOffset: 0,
		overflow:   NoPage,
		region:     make([]byte, pageSize-pageHeaderSize),
	}
}

// NTuples returns the number of tuples currently stored in the page.
func (p *Page) NTuples() int { return int(p.nTuples) }

// FreeSpace returns the number of unused bytes left in the tuple region.
func (p *Page) FreeSpace() int { return len(p.region) - int(p.freeOffset) }

// OverflowOf returns the page's overflow link, or NoPage if it has none.
func (p *Page) OverflowOf() PageID { return p.overflow }

// SetOverflow links the page to an overflow page.
func (p *Page) SetOverflow(id PageID) { p.overflow = id }

// AddTuple appends a tuple's bytes (plus terminator) to the page. It
// reports false, without mutating the page, if the tuple does not fit in
// the remaining free space.
func (p *Page) AddTuple(tuple []byte) bool {
	need := len(tuple) + 1
	if need > p.FreeSpace() {
		return false
	}
	copy(p.region[p.freeOffset:], tuple)
	p.region[int(p.freeOffset)+len(tuple)] = tupleTerminator
	p.freeOffset += uint16(need)
	p.nTuples++
	return true
}

// Tuples returns the page's tuples as a slice of byte slices, each the
// comma-joined attribute bytes of one tuple (terminator stripped). The
// returned slices alias the page's region and must not be retained past
// the page's next mutation.
func (p *Page) Tuples() [][]byte {
	out := make([][]byte, 0, p.nTuples)
	off := 0
	for i := 0; i < int(p.nTuples); i++ {
		end := off
		for end < len(p.region) && p.region[end] != tupleTerminator {
			end++
		}
		out = append(out, p.region[off:end])
		off = end + 1
	}
	return out
}

// serializePage encodes a page into a pageSize-byte on-disk image.
func serializePage(p *Page) []byte {
	buf := make([]byte, p.pageSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.nTuples)
	binary.LittleEndian.PutUint16(buf[2:4], p.freeOffset)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.overflow))
	copy(buf[pageHeaderSize:], p.region)
	return buf
}

// deserializePage decodes a pageSize-byte on-disk image into a Page.
func deserializePage(data []byte, pageSize int) (*Page, error) {
	if len(data) != pageSize {
		return nil, fmt.Errorf("page data is %d bytes, want %d", len(data), pageSize)
	}
	p := &Page{
		pageSize:   pageSize,
		nTuples:    binary.LittleEndian.Uint16(data[0:2]),
		freeOffset: binary.LittleEndian.Uint16(data[2:4]),
		overflow:   PageID(binary.LittleEndian.Uint32(data[4:8])),
		region:     make([]byte, pageSize-pageHeaderSize),
	}
	copy(p.region, data[pageHeaderSize:])
	return p, nil
}
