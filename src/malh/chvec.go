package malh

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxChVec is the maximum number of entries a choice vector may hold —
// one per possible address bit.
const MaxChVec = MaxBits

// ChVecItem names the (attribute index, hash-bit position) pair that
// supplies one address bit.
type ChVecItem struct {
	Attr int
	Bit  int
}

// ParseChoiceVector parses a choice-vector specification of the form
// "attr.bit,attr.bit,..." (e.g. "0.0,1.0,2.0,0.1,1.1,2.1") into an ordered
// list of ChVecItem, one per address bit. Entry i of the returned slice
// supplies address bit i.
func ParseChoiceVector(spec string, nattrs int) ([]ChVecItem, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, newErr(ErrInvalidChoiceVector, "empty choice vector")
	}

	fields := strings.Split(spec, ",")
	if len(fields) > MaxChVec {
		return nil, newErr(ErrInvalidChoiceVector, fmt.Sprintf("choice vector has %d entries, max is %d", len(fields), MaxChVec))
	}

	cv := make([]ChVecItem, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		parts := strings.SplitN(f, ".", 2)
		if len(parts) != 2 {
			return nil, newErr(ErrInvalidChoiceVector, fmt.Sprintf("malformed entry %q, want attr.bit", f))
		}

		attr, err := strconv.Atoi(parts[0])
		if err != nil || attr < 0 || attr >= nattrs {
			return nil, newErr(ErrInvalidChoiceVector, fmt.Sprintf("entry %q names attribute out of range [0,%d)", f, nattrs))
		}

		bit, err := strconv.Atoi(parts[1])
		if err != nil || bit < 0 || bit >= MaxBits {
			return nil, newErr(ErrInvalidChoiceVector, fmt.Sprintf("entry %q names bit out of range [0,%d)", f, MaxBits))
		}

		cv = append(cv, ChVecItem{Attr: attr, Bit: bit})
	}

	return cv, nil
}

// FormatChoiceVector renders a choice vector back into the textual form
// ParseChoiceVector accepts, used for diagnostics and stats output.
func FormatChoiceVector(cv []ChVecItem) string {
	parts := make([]string, len(cv))
	for i, item := range cv {
		parts[i] = fmt.Sprintf("%d.%d", item.Attr, item.Bit)
	}
	return strings.Join(parts, ",")
}

// tupleHash composes the bit-interleaved address of a tuple's attributes
// for address bits [0, depth+1). Bits at or beyond depth+1 are left zero —
// callers mask with LowK before using the result as a page id.
func tupleHash(cv []ChVecItem, depth int, attrs [][]byte) Bits {
	var h Bits
	for i := 0; i < depth+1 && i < len(cv); i++ {
		item := cv[i]
		if item.Attr >= len(attrs) {
			continue
		}
		attrHash := hashAttr(attrs[item.Attr])
		h = PutBit(h, i, TestBit(attrHash, item.Bit))
	}
	return h
}
