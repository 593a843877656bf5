package malh

import (
	"fmt"
	"strings"
)

// Cursor holds the state of one partial-match scan: the known/unknown
// address bits derived from the query template, the ordered list of
// unknown bit positions, the cover counter driving bucket enumeration,
// and the page currently materialized for in-page scanning. The
// currently loaded page lives on the cursor rather than in a
// package-level variable, so two scans never alias each other's state.
type Cursor struct {
	r            *Relation
	known        Bits
	unknown      Bits
	unknownIndex []int
	nunknowns    int
	template     [][]byte

	cover    uint32
	curPage  PageID
	prevPage PageID
	isOvflow bool

	curPageData *Page
	examined    int
}

// StartQuery builds a partial-match scan plan from a comma-separated
// template (literal attributes, "?" for wildcards) and positions the
// cursor at the first candidate bucket. It returns ErrMalformedQuery,
// without touching any file, if the template's field count does not
// match the relation's attribute count.
func StartQuery(r *Relation, query string) (*Cursor, error) {
	fields := strings.Split(query, ",")
	if len(fields) != r.nattrs {
		return nil, newErr(ErrMalformedQuery, fmt.Sprintf("query has %d fields, relation has %d attributes", len(fields), r.nattrs))
	}

	template := make([][]byte, len(fields))
	for i, f := range fields {
		template[i] = []byte(f)
	}

	var known, unknown Bits
	var unknownIndex []int
	for i := 0; i < r.depth+1 && i < len(r.cv); i++ {
		item := r.cv[i]
		field := fields[item.Attr]
		if field != "?" {
			h := hashAttr([]byte(field))
			known = PutBit(known, i, TestBit(h, item.Bit))
		} else {
			unknown = SetBit(unknown, i)
			unknownIndex = append(unknownIndex, i)
		}
	}

	q := &Cursor{
		r:            r,
		known:        known,
		unknown:      unknown,
		unknownIndex: unknownIndex,
		nunknowns:    len(unknownIndex),
		template:     template,
	}

	first := q.pageIDOfCover(0)
	q.curPage = first
	q.prevPage = first
	return q, nil
}

// pageIDOfCover computes the candidate bucket address for a given cover
// of the unknown bits, applying the same depth/split-pointer adjustment
// rule as an insert. It returns NoPage if the candidate falls outside
// [0, npages) at the directory's current shape.
func (q *Cursor) pageIDOfCover(cover uint32) PageID {
	r := q.r
	raw := q.known
	for j := 0; j < q.nunknowns; j++ {
		raw = PutBit(raw, q.unknownIndex[j], (cover>>uint(j))&1 == 1)
	}

	pid := LowK(raw, r.depth)
	if uint32(pid) < r.sp {
		pid = LowK(raw, r.depth+1)
	}
	if uint32(pid) >= r.npages {
		return NoPage
	}
	return PageID(pid)
}

// Next advances the cursor to the next matching tuple. It returns
// ok == false once the scan is exhausted.
func (q *Cursor) Next() (tuple []byte, ok bool, err error) {
	for {
		if q.curPage == NoPage {
			return nil, false, nil
		}

		if q.curPageData == nil {
			var pg *Page
			if q.isOvflow {
				pg, err = q.r.ovflow.getPage(q.curPage)
			} else {
				pg, err = q.r.data.getPage(q.curPage)
			}
			if err != nil {
				return nil, false, err
			}
			q.curPageData = pg
			q.examined = 0
		}

		tuples := q.curPageData.Tuples()
		for q.examined < len(tuples) {
			t := tuples[q.examined]
			q.examined++
			attrs := splitAttrs(t, q.r.nattrs)
			if tupleMatchesTemplate(attrs, q.template) {
				out := make([]byte, len(t))
				copy(out, t)
				return out, true, nil
			}
		}

		// Page fully examined: fall through its overflow link, or move
		// the cover forward.
		next := q.curPageData.OverflowOf()
		q.curPageData = nil
		q.examined = 0

		if next != NoPage {
			q.isOvflow = true
			q.curPage = next
			continue
		}

		q.cover++
		if q.cover >= uint32(1)<<uint(q.nunknowns) {
			q.curPage = NoPage
			return nil, false, nil
		}

		candidate := q.pageIDOfCover(q.cover)
		if candidate == NoPage || uint32(candidate) <= uint32(q.prevPage) {
			q.curPage = NoPage
			return nil, false, nil
		}
		q.prevPage = candidate
		q.curPage = candidate
		q.isOvflow = false
	}
}

// Close releases the cursor's page reference.
func (q *Cursor) Close() {
	q.curPageData = nil
}
