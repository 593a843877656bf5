package malh

import (
	"io"
	"os"
)

// pageStore is a fixed-size slotted-page file: a flat sequence of
// pageSize-byte pages addressed by index. It has no cache of its own —
// every fetched page is owned by its caller until explicitly written back,
// per the ownership discipline the spec requires of the page store (see
// DESIGN.md on why the teacher's page cache is not carried over).
type pageStore struct {
	file     *os.File
	pageSize int
}

// npages reports how many pages the store currently holds.
func (ps *pageStore) npages() (int, error) {
	info, err := ps.file.Stat()
	if err != nil {
		return 0, wrapIOErr("stat page file", err)
	}
	return int(info.Size()) / ps.pageSize, nil
}

// addPage extends the file by one zero-initialized page and returns its
// index.
func (ps *pageStore) addPage() (PageID, error) {
	n, err := ps.npages()
	if err != nil {
		return NoPage, err
	}
	blank := make([]byte, ps.pageSize)
	if _, err := ps.file.WriteAt(blank, int64(n)*int64(ps.pageSize)); err != nil {
		return NoPage, wrapIOErr("append page", err)
	}
	return PageID(n), nil
}

// getPage materializes an in-memory copy of page id.
func (ps *pageStore) getPage(id PageID) (*Page, error) {
	buf := make([]byte, ps.pageSize)
	if _, err := ps.file.ReadAt(buf, int64(id)*int64(ps.pageSize)); err != nil && err != io.EOF {
		return nil, wrapIOErr("read page", err)
	}
	p, err := deserializePage(buf, ps.pageSize)
	if err != nil {
		return nil, wrapIOErr("decode page", err)
	}
	return p, nil
}

// putPage writes an in-memory page back to its slot.
func (ps *pageStore) putPage(id PageID, p *Page) error {
	data := serializePage(p)
	if _, err := ps.file.WriteAt(data, int64(id)*int64(ps.pageSize)); err != nil {
		return wrapIOErr("write page", err)
	}
	return nil
}

// newEmptyPage allocates a page without assigning it an id.
func (ps *pageStore) newEmptyPage() *Page {
	return newEmptyPage(ps.pageSize)
}
