package malh

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testCV = "0.0,1.0,2.0"

func newTestRelation(t *testing.T, nattrs, npages, depth int, cv string, pageSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rel")
	require.NoError(t, CreateRelation(path, nattrs, npages, depth, cv, pageSize, nil))
	return path
}

func TestCreateOpenCloseRoundTripsHeader(t *testing.T) {
	path := newTestRelation(t, 3, 2, 1, testCV, 1024)

	r, err := OpenRelation(path, 'w', 1024, nil)
	require.NoError(t, err)
	require.Equal(t, 3, r.NAttrs())
	require.Equal(t, 1, r.Depth())
	require.EqualValues(t, 0, r.SplitPointer())
	require.EqualValues(t, 2, r.NPages())
	require.EqualValues(t, 0, r.NTuples())
	require.NoError(t, r.Close())

	r2, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	require.Equal(t, 3, r2.NAttrs())
	require.Equal(t, 1, r2.Depth())
	cv, err := ParseChoiceVector(testCV, 3)
	require.NoError(t, err)
	require.Equal(t, cv, r2.ChoiceVector())
	require.NoError(t, r2.Close())
}

func TestWriterLockExcludesSecondWriter(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)

	r, err := OpenRelation(path, 'w', 1024, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = OpenRelation(path, 'w', 1024, nil)
	require.Error(t, err)
}

// Scenario 1 (spec §8): insert one tuple, query it back exactly.
func TestInsertThenExactQuery(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)

	r, err := OpenRelation(path, 'w', 1024, nil)
	require.NoError(t, err)
	_, err = r.AddToRelation("1,2,3")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r2, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	defer r2.Close()

	cur, err := StartQuery(r2, "1,2,3")
	require.NoError(t, err)
	defer cur.Close()

	tuple, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1,2,3", string(tuple))

	_, ok, err = cur.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

// Scenario 2 (spec §8): partial match across multiple matching tuples.
func TestPartialMatchReturnsAllMatches(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)

	r, err := OpenRelation(path, 'w', 1024, nil)
	require.NoError(t, err)
	for _, tup := range []string{"1,2,3", "1,2,4", "5,2,3"} {
		_, err := r.AddToRelation(tup)
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	r2, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	defer r2.Close()

	cur, err := StartQuery(r2, "?,2,?")
	require.NoError(t, err)
	defer cur.Close()

	got := map[string]bool{}
	for {
		tuple, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got[string(tuple)] = true
	}
	require.Equal(t, map[string]bool{"1,2,3": true, "1,2,4": true, "5,2,3": true}, got)
}

// Scenario 3 (spec §8): enough inserts to force multiple splits; invariants hold.
func TestManyInsertsForceSplitsAndHoldInvariants(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 512)

	r, err := OpenRelation(path, 'w', 512, nil)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 300; i++ {
		tup := fmt.Sprintf("k%d,v%d,w%d", i, i, i)
		_, err := r.AddToRelation(tup)
		require.NoError(t, err)

		// Invariant 1: npages == 2^depth + sp, 0 <= sp < 2^depth.
		require.EqualValues(t, (uint32(1)<<uint(r.depth))+r.sp, r.npages)
		require.True(t, r.sp < uint32(1)<<uint(r.depth))
	}
	require.Greater(t, r.depth, 0, "300 inserts at this page size should force at least one split")

	// Invariant 3: every tuple in every bucket obeys the addressing rule for
	// the directory's current shape.
	for pid := PageID(0); pid < PageID(r.npages); pid++ {
		page, err := r.data.getPage(pid)
		require.NoError(t, err)
		checkBucketAddressing(t, r, page, uint32(pid))

		ov := page.OverflowOf()
		for ov != NoPage {
			ovPage, err := r.ovflow.getPage(ov)
			require.NoError(t, err)
			checkBucketAddressing(t, r, ovPage, uint32(pid))
			ov = ovPage.OverflowOf()
		}
	}
}

func checkBucketAddressing(t *testing.T, r *Relation, page *Page, bucket uint32) {
	t.Helper()
	for _, tup := range page.Tuples() {
		attrs := splitAttrs(tup, r.nattrs)
		h := tupleHash(r.cv, r.depth, attrs)
		if bucket < r.sp {
			require.EqualValues(t, bucket, LowK(h, r.depth+1), "tuple %q in already-split bucket %d", tup, bucket)
		} else {
			require.EqualValues(t, bucket, LowK(h, r.depth), "tuple %q in unsplit bucket %d", tup, bucket)
		}
	}
}

// Scenario 4 (spec §8): force an overflow chain, then query a tuple that
// only lives in the last overflow page.
func TestOverflowChainQuery(t *testing.T) {
	path := newTestRelation(t, 2, 1, 0, "0.0,0.1", 128)

	r, err := OpenRelation(path, 'w', 128, nil)
	require.NoError(t, err)

	var last string
	for i := 0; i < 40; i++ {
		last = fmt.Sprintf("same,%d", i)
		_, err := r.AddToRelation(last)
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	r2, err := OpenRelation(path, 'r', 128, nil)
	require.NoError(t, err)
	defer r2.Close()

	cur, err := StartQuery(r2, last)
	require.NoError(t, err)
	defer cur.Close()

	tuple, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, last, string(tuple))
}

// Scenario 5 (spec §8): close and reopen read-only, wildcard scan sees everything.
func TestCloseReopenReadOnlyWildcardScan(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)

	r, err := OpenRelation(path, 'w', 1024, nil)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := r.AddToRelation(fmt.Sprintf("%d,%d,%d", i, i*2, i*3))
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	r2, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	defer r2.Close()
	require.EqualValues(t, 100, r2.NTuples())

	cur, err := StartQuery(r2, "?,?,?")
	require.NoError(t, err)
	defer cur.Close()

	count := 0
	for {
		_, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 100, count)
}

// Scenario 6 (spec §8): wrong arity query fails without touching the files.
func TestQueryWrongArityIsMalformed(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)
	r, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = StartQuery(r, "a,b")
	require.Error(t, err)

	var merr *MalhError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrMalformedQuery, merr.Kind)
}

func TestOversizeTupleFails(t *testing.T) {
	path := newTestRelation(t, 1, 1, 0, "0.0", 64)
	r, err := OpenRelation(path, 'w', 64, nil)
	require.NoError(t, err)
	defer r.Close()

	huge := make([]byte, 200)
	for i := range huge {
		huge[i] = 'x'
	}
	_, err = r.AddToRelation(string(huge))
	require.Error(t, err)

	var merr *MalhError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrOversizeTuple, merr.Kind)
}

func TestInsertOnReadOnlyRelationFails(t *testing.T) {
	path := newTestRelation(t, 3, 1, 0, testCV, 1024)
	r, err := OpenRelation(path, 'r', 1024, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.AddToRelation("1,2,3")
	require.Error(t, err)
}
