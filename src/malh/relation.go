package malh

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Relation is an open multi-attribute linear-hashed file: the directory
// that maintains depth, split pointer, page count, tuple count and the
// choice vector, and routes inserts and scans to buckets backed by the
// primary and overflow page stores.
type Relation struct {
	path     string
	nattrs   int
	depth    int
	sp       uint32
	npages   uint32
	ntups    uint64
	cv       []ChVecItem
	mode     byte // 'r' or 'w'
	pageSize int

	infoFile *os.File
	data     *pageStore
	ovflow   *pageStore

	logger *zap.SugaredLogger
	dirty  bool
	locked bool
}

// CreateRelation creates the three files backing a new relation (name +
// ".info"/".data"/".ovflow"), writes the info header, and appends npages
// empty primary pages. The relation is not left open; callers must
// OpenRelation it to insert or query. This mirrors the create-then-reopen
// lifecycle of the system this index was lifted from.
func CreateRelation(path string, nattrs, npages, depth int, cvSpec string, pageSize int, logger *zap.SugaredLogger) error {
	logger = orNopLogger(logger)

	cv, err := ParseChoiceVector(cvSpec, nattrs)
	if err != nil {
		return err
	}

	infoFile, err := os.Create(path + ".info")
	if err != nil {
		return wrapIOErr("create info file", err)
	}
	defer infoFile.Close()

	dataFile, err := os.Create(path + ".data")
	if err != nil {
		return wrapIOErr("create data file", err)
	}
	defer dataFile.Close()

	ovflowFile, err := os.Create(path + ".ovflow")
	if err != nil {
		return wrapIOErr("create overflow file", err)
	}
	defer ovflowFile.Close()

	data := &pageStore{file: dataFile, pageSize: pageSize}
	for i := 0; i < npages; i++ {
		if _, err := data.addPage(); err != nil {
			return err
		}
	}

	header := &relationHeader{
		nattrs: uint32(nattrs),
		depth:  uint32(depth),
		sp:     0,
		npages: uint32(npages),
		ntups:  0,
		cv:     cv,
	}
	if _, err := infoFile.WriteAt(encodeHeader(header), 0); err != nil {
		return wrapIOErr("write info header", err)
	}

	logger.Infof("created relation %s: nattrs=%d npages=%d depth=%d", path, nattrs, npages, depth)
	return nil
}

// OpenRelation opens an existing relation's three files and reads its
// descriptor from the info header. mode is 'r' for read-only or 'w' for
// read-write. pageSize must match the value CreateRelation was called
// with — it is not persisted on disk, the same way the source this index
// was distilled from treats PAGESIZE as a build-time constant.
func OpenRelation(path string, mode byte, pageSize int, logger *zap.SugaredLogger) (*Relation, error) {
	logger = orNopLogger(logger)

	osMode := os.O_RDONLY
	if mode == 'w' {
		osMode = os.O_RDWR
	}

	infoFile, err := os.OpenFile(path+".info", osMode, 0644)
	if err != nil {
		return nil, wrapIOErr("open info file", err)
	}

	if err := lockInfoFile(infoFile, mode); err != nil {
		infoFile.Close()
		return nil, err
	}

	dataFile, err := os.OpenFile(path+".data", osMode, 0644)
	if err != nil {
		unlockInfoFile(infoFile)
		infoFile.Close()
		return nil, wrapIOErr("open data file", err)
	}

	ovflowFile, err := os.OpenFile(path+".ovflow", osMode, 0644)
	if err != nil {
		dataFile.Close()
		unlockInfoFile(infoFile)
		infoFile.Close()
		return nil, wrapIOErr("open overflow file", err)
	}

	buf := make([]byte, infoHeaderSize)
	if _, err := infoFile.ReadAt(buf, 0); err != nil {
		dataFile.Close()
		ovflowFile.Close()
		unlockInfoFile(infoFile)
		infoFile.Close()
		return nil, wrapIOErr("read info header", err)
	}
	header, err := decodeHeader(buf)
	if err != nil {
		dataFile.Close()
		ovflowFile.Close()
		unlockInfoFile(infoFile)
		infoFile.Close()
		return nil, err
	}

	r := &Relation{
		path:     path,
		nattrs:   int(header.nattrs),
		depth:    int(header.depth),
		sp:       header.sp,
		npages:   header.npages,
		ntups:    uint64(header.ntups),
		cv:       header.cv,
		mode:     mode,
		pageSize: pageSize,
		infoFile: infoFile,
		data:     &pageStore{file: dataFile, pageSize: pageSize},
		ovflow:   &pageStore{file: ovflowFile, pageSize: pageSize},
		logger:   logger,
		locked:   true,
	}
	return r, nil
}

func lockInfoFile(f *os.File, mode byte) error {
	how := unix.LOCK_SH | unix.LOCK_NB
	if mode == 'w' {
		how = unix.LOCK_EX | unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		return wrapIOErr("relation is already open for writing elsewhere", err)
	}
	return nil
}

func unlockInfoFile(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func orNopLogger(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}

// NAttrs returns the relation's attribute count.
func (r *Relation) NAttrs() int { return r.nattrs }

// Depth returns the directory's current depth.
func (r *Relation) Depth() int { return r.depth }

// SplitPointer returns the current split pointer.
func (r *Relation) SplitPointer() uint32 { return r.sp }

// NPages returns the number of primary pages.
func (r *Relation) NPages() uint32 { return r.npages }

// NTuples returns the total number of stored tuples.
func (r *Relation) NTuples() uint64 { return r.ntups }

// ChoiceVector returns the relation's choice vector.
func (r *Relation) ChoiceVector() []ChVecItem { return r.cv }

// Close flushes the header (if the relation was opened for write),
// releases the advisory lock, and closes the three underlying files.
func (r *Relation) Close() error {
	var errs error

	if r.mode == 'w' && r.dirty {
		header := &relationHeader{
			nattrs: uint32(r.nattrs),
			depth:  uint32(r.depth),
			sp:     r.sp,
			npages: r.npages,
			ntups:  uint32(r.ntups),
			cv:     r.cv,
		}
		if _, err := r.infoFile.WriteAt(encodeHeader(header), 0); err != nil {
			errs = multierr.Append(errs, wrapIOErr("flush info header", err))
		}
	}

	if r.locked {
		unlockInfoFile(r.infoFile)
	}

	errs = multierr.Append(errs, r.infoFile.Close())
	errs = multierr.Append(errs, r.data.file.Close())
	errs = multierr.Append(errs, r.ovflow.file.Close())
	return errs
}

// AddToRelation inserts a tuple, splitting the directory's next bucket
// first if the insert would push the running tuple count across the
// per-bucket load-factor threshold. It returns the primary page id of the
// bucket the tuple addresses (not necessarily the page it landed in, if
// the bucket had to spill to an overflow page).
func (r *Relation) AddToRelation(tuple string) (PageID, error) {
	if r.mode != 'w' {
		return NoPage, newErr(ErrIOFailure, "relation not open for writing")
	}
	if len(tuple)+1 > r.pageSize-pageHeaderSize {
		return NoPage, newErr(ErrOversizeTuple, fmt.Sprintf("tuple of %d bytes does not fit a %d-byte page", len(tuple), r.pageSize))
	}

	limit := r.pageSize / (10 * r.nattrs)
	if limit < 1 {
		limit = 1
	}
	if r.ntups != 0 && r.ntups%uint64(limit) == 0 {
		if err := r.split(); err != nil {
			return NoPage, err
		}
	}

	tupleBytes := []byte(tuple)
	attrs := splitAttrs(tupleBytes, r.nattrs)
	h := tupleHash(r.cv, r.depth, attrs)
	p := LowK(h, r.depth)
	if uint32(p) < r.sp {
		p = LowK(h, r.depth+1)
	}

	pid, err := r.addToBucket(PageID(p), tupleBytes)
	if err != nil {
		return NoPage, err
	}

	r.ntups++
	r.dirty = true
	return pid, nil
}

// addToBucket appends tuple to the primary page p, falling through its
// overflow chain and appending a new overflow page only as a last resort.
func (r *Relation) addToBucket(p PageID, tuple []byte) (PageID, error) {
	primary, err := r.data.getPage(p)
	if err != nil {
		return NoPage, err
	}
	if primary.AddTuple(tuple) {
		if err := r.data.putPage(p, primary); err != nil {
			return NoPage, err
		}
		return p, nil
	}

	prevID, prevPage, prevIsPrimary := p, primary, true
	curID := primary.OverflowOf()
	for curID != NoPage {
		cur, err := r.ovflow.getPage(curID)
		if err != nil {
			return NoPage, err
		}
		if cur.AddTuple(tuple) {
			if err := r.ovflow.putPage(curID, cur); err != nil {
				return NoPage, err
			}
			return p, nil
		}
		prevID, prevPage, prevIsPrimary = curID, cur, false
		curID = cur.OverflowOf()
	}

	newID, err := r.ovflow.addPage()
	if err != nil {
		return NoPage, err
	}
	newPage := r.ovflow.newEmptyPage()
	if !newPage.AddTuple(tuple) {
		return NoPage, newErr(ErrOversizeTuple, fmt.Sprintf("tuple of %d bytes does not fit a %d-byte page", len(tuple), r.pageSize))
	}
	if err := r.ovflow.putPage(newID, newPage); err != nil {
		return NoPage, err
	}

	prevPage.SetOverflow(newID)
	if prevIsPrimary {
		if err := r.data.putPage(prevID, prevPage); err != nil {
			return NoPage, err
		}
	} else {
		if err := r.ovflow.putPage(prevID, prevPage); err != nil {
			return NoPage, err
		}
	}
	return p, nil
}

type chainLink struct {
	id        PageID
	isPrimary bool
}

// split migrates bucket sp, the directory's current split pointer, per
// the linear-hashing split protocol: a new partner bucket is appended,
// the old bucket's tuples are re-hashed at depth+1, and tuples that stay
// are repacked into the bucket's existing chain of pages in place.
func (r *Relation) split() error {
	oldID := PageID(r.sp)

	newID, err := r.data.addPage()
	if err != nil {
		return err
	}
	r.npages++

	r.logger.Infof("splitting bucket %d into new bucket %d", oldID, newID)

	var chain []chainLink
	var items [][]byte

	curID, isPrimary := oldID, true
	for {
		var pg *Page
		var err error
		if isPrimary {
			pg, err = r.data.getPage(curID)
		} else {
			pg, err = r.ovflow.getPage(curID)
		}
		if err != nil {
			return err
		}
		chain = append(chain, chainLink{id: curID, isPrimary: isPrimary})
		for _, t := range pg.Tuples() {
			cp := make([]byte, len(t))
			copy(cp, t)
			items = append(items, cp)
		}

		next := pg.OverflowOf()
		if next == NoPage {
			break
		}
		curID, isPrimary = next, false
	}

	var stays [][]byte
	for _, t := range items {
		attrs := splitAttrs(t, r.nattrs)
		h := tupleHash(r.cv, r.depth, attrs)
		addr := LowK(h, r.depth+1)
		if uint32(addr) == uint32(newID) {
			if _, err := r.addToBucket(newID, t); err != nil {
				return err
			}
		} else {
			stays = append(stays, t)
		}
	}

	if err := r.repackChain(chain, stays); err != nil {
		return err
	}

	r.sp++
	if r.sp == uint32(1)<<uint(r.depth) {
		r.depth++
		r.sp = 0
	}
	r.dirty = true
	return nil
}

// repackChain replaces, page-for-page and id-for-id, the contents of an
// existing primary+overflow chain with a fresh packing of stays. The
// chain's length and link structure never shrink: any trailing page that
// ends up empty is still written back as an empty page, not unlinked.
func (r *Relation) repackChain(chain []chainLink, stays [][]byte) error {
	fresh := make([]*Page, len(chain))
	for i, link := range chain {
		if link.isPrimary {
			fresh[i] = r.data.newEmptyPage()
		} else {
			fresh[i] = r.ovflow.newEmptyPage()
		}
		if i+1 < len(chain) {
			fresh[i].SetOverflow(chain[i+1].id)
		} else {
			fresh[i].SetOverflow(NoPage)
		}
	}

	pageIdx := 0
	for _, t := range stays {
		for !fresh[pageIdx].AddTuple(t) {
			pageIdx++
			if pageIdx >= len(fresh) {
				return newErr(ErrBucketFullUnrecoverable, "split repack exceeded original chain length")
			}
		}
	}

	for i, link := range chain {
		if link.isPrimary {
			if err := r.data.putPage(link.id, fresh[i]); err != nil {
				return err
			}
		} else {
			if err := r.ovflow.putPage(link.id, fresh[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats writes diagnostic per-page information for every bucket and its
// overflow chain: (pageID, ntuples, free-bytes, overflow-id).
func (r *Relation) Stats(w io.Writer) error {
	fmt.Fprintf(w, "nattrs=%d depth=%d sp=%d npages=%d ntups=%d cv=%s\n",
		r.nattrs, r.depth, r.sp, r.npages, r.ntups, FormatChoiceVector(r.cv))

	for pid := PageID(0); pid < PageID(r.npages); pid++ {
		page, err := r.data.getPage(pid)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "[%d] (d%d,%d,%d,%d)", pid, pid, page.NTuples(), page.FreeSpace(), page.OverflowOf())

		ovID := page.OverflowOf()
		for ovID != NoPage {
			ovPage, err := r.ovflow.getPage(ovID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, " -> (ov%d,%d,%d,%d)", ovID, ovPage.NTuples(), ovPage.FreeSpace(), ovPage.OverflowOf())
			ovID = ovPage.OverflowOf()
		}
		fmt.Fprintln(w)
	}
	return nil
}

// ExistsRelation reports whether a relation's info file already exists.
func ExistsRelation(path string) bool {
	_, err := os.Stat(path + ".info")
	return err == nil
}
