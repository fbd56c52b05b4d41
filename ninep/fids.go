package ninep

import (
	"os"
	"sync"
)

// fidEntry is the server-side record behind one client fid. The entry
// exclusively owns file once a handle is attached; the table is the only
// code path that closes it.
type fidEntry struct {
	// path is absolute and confined to the exported root.
	path  string
	isDir bool

	// file is nil until Tlopen/Tlcreate attaches a handle.
	file       *os.File
	appendMode bool

	// dirOffset is the readdir stream position: the cookie of the last
	// entry handed to the client.
	dirOffset uint64
}

// FidTracker maps client-chosen fid numbers to their entries. Fid numbers
// must be unique among live fids; the tracker rejects collisions rather
// than silently replacing a record that may own an open handle.
type FidTracker struct {
	m    sync.Mutex
	fids map[Fid]*fidEntry
}

func NewFidTracker() *FidTracker {
	return &FidTracker{fids: make(map[Fid]*fidEntry)}
}

func (t *FidTracker) Get(f Fid) (*fidEntry, bool) {
	t.m.Lock()
	e, found := t.fids[f]
	t.m.Unlock()
	return e, found
}

func (t *FidTracker) Insert(f Fid, e *fidEntry) error {
	t.m.Lock()
	defer t.m.Unlock()
	if _, found := t.fids[f]; found {
		return ErrFidInUse
	}
	t.fids[f] = e
	return nil
}

// Delete drops the fid and closes any handle it owns.
func (t *FidTracker) Delete(f Fid) error {
	t.m.Lock()
	e, found := t.fids[f]
	delete(t.fids, f)
	t.m.Unlock()
	if !found {
		return ErrUnrecognizedFid
	}
	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
	return nil
}

// Clear releases every live fid, closing owned handles. Called when a
// session ends or renegotiates the protocol version.
func (t *FidTracker) Clear() {
	t.m.Lock()
	fids := t.fids
	t.fids = make(map[Fid]*fidEntry)
	t.m.Unlock()
	for _, e := range fids {
		if e.file != nil {
			e.file.Close()
			e.file = nil
		}
	}
}
