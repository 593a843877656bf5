package malh

import "encoding/binary"

// infoHeaderSize is the fixed width of the .info file header: five Count
// fields (nattrs, depth, sp, npages, ntups) followed by MaxChVec
// (attr, bit) pairs, every field the same width. The source this spec was
// distilled from wrote this header as a raw struct and "naughtily"
// assumed Count and Offset shared a width; here the width is a declared
// constant and every field is encoded individually.
const (
	countWidth     = 4 // bytes per Count field
	headerFields   = 5 // nattrs, depth, sp, npages, ntups
	infoHeaderSize = headerFields*countWidth + MaxChVec*2*countWidth
)

// unusedChVecSlot marks a choice-vector array slot beyond the relation's
// actual choice vector length. It is safe as a sentinel because a parsed
// attribute index is always < nattrs, far below this value.
const unusedChVecSlot uint32 = 1<<32 - 1

// relationHeader is the decoded form of a .info file's fixed header.
type relationHeader struct {
	nattrs uint32
	depth  uint32
	sp     uint32
	npages uint32
	ntups  uint32
	cv     []ChVecItem
}

// encodeHeader renders a relationHeader into its fixed-width on-disk form.
func encodeHeader(h *relationHeader) []byte {
	buf := make([]byte, infoHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.nattrs)
	binary.LittleEndian.PutUint32(buf[4:8], h.depth)
	binary.LittleEndian.PutUint32(buf[8:12], h.sp)
	binary.LittleEndian.PutUint32(buf[12:16], h.npages)
	binary.LittleEndian.PutUint32(buf[16:20], h.ntups)

	off := headerFields * countWidth
	for i := 0; i < MaxChVec; i++ {
		attr, bit := unusedChVecSlot, uint32(0)
		if i < len(h.cv) {
			attr = uint32(h.cv[i].Attr)
			bit = uint32(h.cv[i].Bit)
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], attr)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], bit)
		off += 2 * countWidth
	}
	return buf
}

// decodeHeader parses a fixed-width .info header, recovering the choice
// vector's original length from the unusedChVecSlot sentinel.
func decodeHeader(buf []byte) (*relationHeader, error) {
	if len(buf) != infoHeaderSize {
		return nil, wrapIOErr("decode info header", errShortHeader)
	}

	h := &relationHeader{
		nattrs: binary.LittleEndian.Uint32(buf[0:4]),
		depth:  binary.LittleEndian.Uint32(buf[4:8]),
		sp:     binary.LittleEndian.Uint32(buf[8:12]),
		npages: binary.LittleEndian.Uint32(buf[12:16]),
		ntups:  binary.LittleEndian.Uint32(buf[16:20]),
	}

	off := headerFields * countWidth
	h.cv = make([]ChVecItem, 0, MaxChVec)
	for i := 0; i < MaxChVec; i++ {
		attr := binary.LittleEndian.Uint32(buf[off : off+4])
		bit := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		off += 2 * countWidth
		if attr == unusedChVecSlot {
			break
		}
		h.cv = append(h.cv, ChVecItem{Attr: int(attr), Bit: int(bit)})
	}
	return h, nil
}

var errShortHeader = shortHeaderErr{}

type shortHeaderErr struct{}

func (shortHeaderErr) Error() string { return "info header is the wrong length" }
