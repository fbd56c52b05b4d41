//go:build linux

package ninep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"golang.org/x/sys/unix"
)

const rootFid Fid = 1

// testServer wraps a Server exporting a scratch tree:
//
//	root/
//	  世界.txt
//	  subdir/
//	    b           "hello, world!"
//	    nested/
//	      world     "Огонь по готовности!"
type testServer struct {
	t    *testing.T
	s    *Server
	root string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "subdir"))
	mustMkdir(t, filepath.Join(root, "subdir", "nested"))
	mustWriteFile(t, filepath.Join(root, "subdir", "b"), "hello, world!")
	mustWriteFile(t, filepath.Join(root, "subdir", "nested", "world"), "Огонь по готовности!")
	mustWriteFile(t, filepath.Join(root, "世界.txt"), "intersecting planes")

	s, err := NewServer(root, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	ts := &testServer{t: t, s: s, root: s.root}
	if _, err := s.Version(&Tversion{MSize: DEFAULT_MAX_MESSAGE_SIZE, Version: Version}); err != nil {
		t.Fatalf("version: %s", err)
	}
	ts.attach()
	return ts
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("mkdir %s: %s", path, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %s", path, err)
	}
}

func (ts *testServer) attach() Qid {
	ts.t.Helper()
	r, err := ts.s.Attach(&Tattach{Fid: rootFid, Afid: NO_FID, Uname: "user", Aname: "/"})
	if err != nil {
		ts.t.Fatalf("attach: %s", err)
	}
	return r.Qid
}

func (ts *testServer) walk(newfid Fid, names ...string) []Qid {
	ts.t.Helper()
	r, err := ts.s.Walk(&Twalk{Fid: rootFid, NewFid: newfid, Wnames: names})
	if err != nil {
		ts.t.Fatalf("walk %v: %s", names, err)
	}
	if len(r.Wqids) != len(names) {
		ts.t.Fatalf("walk %v stopped after %d steps", names, len(r.Wqids))
	}
	return r.Wqids
}

func (ts *testServer) open(fid Fid, flags OpenFlags) *Rlopen {
	ts.t.Helper()
	r, err := ts.s.Lopen(&Tlopen{Fid: fid, Flags: flags})
	if err != nil {
		ts.t.Fatalf("open fid %d flags %s: %s", fid, flags, err)
	}
	return r
}

func (ts *testServer) clunk(fid Fid) {
	ts.t.Helper()
	if _, err := ts.s.Clunk(&Tclunk{Fid: fid}); err != nil {
		ts.t.Fatalf("clunk fid %d: %s", fid, err)
	}
}

func (ts *testServer) read(fid Fid, offset uint64, count uint32) []byte {
	ts.t.Helper()
	r, err := ts.s.Read(&Tread{Fid: fid, Offset: offset, Count: count})
	if err != nil {
		ts.t.Fatalf("read fid %d: %s", fid, err)
	}
	return r.Data
}

func (ts *testServer) write(fid Fid, offset uint64, data []byte) uint32 {
	ts.t.Helper()
	r, err := ts.s.Write(&Twrite{Fid: fid, Offset: offset, Data: data})
	if err != nil {
		ts.t.Fatalf("write fid %d: %s", fid, err)
	}
	return r.Count
}

// checkQid verifies that a server-produced qid matches the file it is
// supposed to identify: inode as path, mtime seconds as version.
func checkQid(t *testing.T, q Qid, path string, typ QidType) {
	t.Helper()
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		t.Fatalf("lstat %s: %s", path, err)
	}
	if q.Type != typ {
		t.Errorf("%s: qid type %s, expected %s", path, q.Type, typ)
	}
	if q.Path != st.Ino {
		t.Errorf("%s: qid path %d, inode %d", path, q.Path, st.Ino)
	}
	if q.Version != uint32(st.Mtim.Sec) {
		t.Errorf("%s: qid version %d, mtime %d", path, q.Version, st.Mtim.Sec)
	}
}

func decodeDirents(t *testing.T, data []byte) []Dirent {
	t.Helper()
	b := NewBuffer(data)
	var out []Dirent
	for b.Len() > 0 {
		var d Dirent
		d.Decode(b)
		if b.Overrun() {
			t.Fatal("truncated dirent in readdir payload")
		}
		out = append(out, d)
	}
	return out
}

// readAllDirents drives paginated enumeration the way a client would:
// start at offset 0, resume from the last entry's cookie until an empty
// payload signals end of directory.
func (ts *testServer) readAllDirents(fid Fid, count uint32) []Dirent {
	ts.t.Helper()
	var all []Dirent
	var offset uint64
	for {
		r, err := ts.s.ReadDir(&Treaddir{Fid: fid, Offset: offset, Count: count})
		if err != nil {
			ts.t.Fatalf("readdir fid %d offset %d: %s", fid, offset, err)
		}
		if len(r.Data) == 0 {
			return all
		}
		ents := decodeDirents(ts.t, r.Data)
		all = append(all, ents...)
		offset = ents[len(ents)-1].Offset
	}
}

func TestVersionNegotiation(t *testing.T) {
	ts := newTestServer(t)

	r, err := ts.s.Version(&Tversion{MSize: 4096, Version: Version})
	if err != nil {
		t.Fatalf("version: %s", err)
	}
	if r.MSize != 4096 || r.Version != Version {
		t.Errorf("Rversion{%d %q}", r.MSize, r.Version)
	}

	// msize above the server cap is clamped, not rejected.
	r, err = ts.s.Version(&Tversion{MSize: 1 << 30, Version: Version})
	if err != nil {
		t.Fatalf("version: %s", err)
	}
	if r.MSize != DEFAULT_MAX_MESSAGE_SIZE {
		t.Errorf("msize %d not clamped to %d", r.MSize, DEFAULT_MAX_MESSAGE_SIZE)
	}

	if _, err := ts.s.Version(&Tversion{MSize: 64, Version: Version}); err == nil {
		t.Error("msize below minimum was accepted")
	}

	r, err = ts.s.Version(&Tversion{MSize: 4096, Version: "9P2000"})
	if err != nil {
		t.Fatalf("version: %s", err)
	}
	if r.Version != "unknown" {
		t.Errorf("unsupported version negotiated as %q", r.Version)
	}
}

func TestVersionClampsToConfiguredMax(t *testing.T) {
	ts := newTestServer(t)
	ts.s.SetMaxMsize(1024)

	r, err := ts.s.Version(&Tversion{MSize: 65536, Version: Version})
	if err != nil {
		t.Fatalf("version: %s", err)
	}
	if r.MSize != 1024 {
		t.Errorf("msize %d not clamped to configured cap 1024", r.MSize)
	}

	// A cap below the protocol minimum is ignored.
	ts.s.SetMaxMsize(8)
	r, err = ts.s.Version(&Tversion{MSize: 65536, Version: Version})
	if err != nil {
		t.Fatalf("version: %s", err)
	}
	if r.MSize != 1024 {
		t.Errorf("msize %d after sub-minimum cap", r.MSize)
	}
}

func TestVersionResetsFids(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")

	if _, err := ts.s.Version(&Tversion{MSize: 4096, Version: Version}); err != nil {
		t.Fatalf("version: %s", err)
	}
	if _, err := ts.s.Clunk(&Tclunk{Fid: 2}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("fid survived version reset: %v", err)
	}
}

func TestAttach(t *testing.T) {
	ts := newTestServer(t)
	checkQid(t, ts.attachFreshFid(5), ts.root, TypeDir)

	if _, err := ts.s.Attach(&Tattach{Fid: 6, Afid: 99}); !errors.Is(err, ErrNoAuthRequired) {
		t.Errorf("attach with auth fid: %v", err)
	}
}

func (ts *testServer) attachFreshFid(fid Fid) Qid {
	ts.t.Helper()
	r, err := ts.s.Attach(&Tattach{Fid: fid, Afid: NO_FID, Uname: "user", Aname: "/"})
	if err != nil {
		ts.t.Fatalf("attach fid %d: %s", fid, err)
	}
	return r.Qid
}

func TestWalkTree(t *testing.T) {
	ts := newTestServer(t)

	qids := ts.walk(2, "subdir", "nested", "world")
	checkQid(t, qids[0], filepath.Join(ts.root, "subdir"), TypeDir)
	checkQid(t, qids[1], filepath.Join(ts.root, "subdir", "nested"), TypeDir)
	checkQid(t, qids[2], filepath.Join(ts.root, "subdir", "nested", "world"), TypeRegular)

	qids = ts.walk(3, "世界.txt")
	checkQid(t, qids[0], filepath.Join(ts.root, "世界.txt"), TypeRegular)

	// Walking a fid onto itself rebinds it in place.
	r, err := ts.s.Walk(&Twalk{Fid: 2, NewFid: 2, Wnames: nil})
	if err != nil || len(r.Wqids) != 0 {
		t.Fatalf("zero-step walk: %v %v", r, err)
	}
}

func TestWalkParentClampsAtRoot(t *testing.T) {
	ts := newTestServer(t)

	// ".." from the export root stays at the root rather than escaping.
	qids := ts.walk(2, "..", "..", "subdir")
	checkQid(t, qids[0], ts.root, TypeDir)
	checkQid(t, qids[1], ts.root, TypeDir)
	checkQid(t, qids[2], filepath.Join(ts.root, "subdir"), TypeDir)
}

func TestWalkErrors(t *testing.T) {
	ts := newTestServer(t)

	// A failure on the first name fails the walk outright.
	if _, err := ts.s.Walk(&Twalk{Fid: rootFid, NewFid: 2, Wnames: []string{"missing"}}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("walk to missing name: %v", err)
	}
	if _, err := ts.s.Walk(&Twalk{Fid: rootFid, NewFid: 2, Wnames: []string{"a/b"}}); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("walk with separator in name: %v", err)
	}
	if _, err := ts.s.Walk(&Twalk{Fid: 99, NewFid: 2}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("walk from unknown fid: %v", err)
	}

	// A failure after the first step truncates the result; the new fid is
	// not bound.
	r, err := ts.s.Walk(&Twalk{Fid: rootFid, NewFid: 2, Wnames: []string{"subdir", "missing"}})
	if err != nil {
		t.Fatalf("partial walk: %s", err)
	}
	if len(r.Wqids) != 1 {
		t.Fatalf("partial walk returned %d qids", len(r.Wqids))
	}
	if _, err := ts.s.Clunk(&Tclunk{Fid: 2}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("partial walk bound the target fid: %v", err)
	}

	// Walking through a regular file is ENOTDIR.
	ts.walk(3, "subdir", "b")
	if _, err := ts.s.Walk(&Twalk{Fid: 3, NewFid: 4, Wnames: []string{"x"}}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("walk through file: %v", err)
	}

	// The target fid must be free.
	if _, err := ts.s.Walk(&Twalk{Fid: rootFid, NewFid: 3, Wnames: []string{"subdir"}}); !errors.Is(err, ErrFidInUse) {
		t.Errorf("walk onto live fid: %v", err)
	}
}

func TestOpenFlagMatrix(t *testing.T) {
	cases := []struct {
		flags OpenFlags
		ok    bool
	}{
		{OpenReadOnly, true},
		{OpenWriteOnly, true},
		{OpenReadWrite, true},
		{OpenReadOnly | OpenTrunc, false},
		{OpenWriteOnly | OpenTrunc, true},
		{OpenReadWrite | OpenTrunc, true},
		{OpenReadOnly | OpenAppend, true},
		{OpenWriteOnly | OpenAppend, true},
		{OpenReadWrite | OpenAppend, true},
		{OpenReadOnly | OpenAppend | OpenTrunc, false},
		{OpenWriteOnly | OpenAppend | OpenTrunc, false},
		{OpenReadOnly | OpenCreate, false},
		{OpenWriteOnly | OpenCreate, true},
		{OpenReadWrite | OpenCreate, true},
		{OpenReadOnly | OpenCreate | OpenAppend, true},
	}
	for _, c := range cases {
		t.Run(c.flags.String(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.walk(2, "subdir", "b")
			r, err := ts.s.Lopen(&Tlopen{Fid: 2, Flags: c.flags})
			if c.ok {
				if err != nil {
					t.Fatalf("open: %s", err)
				}
				checkQid(t, r.Qid, filepath.Join(ts.root, "subdir", "b"), TypeRegular)
			} else if !errors.Is(err, fs.ErrInvalid) {
				t.Errorf("open: %v, expected invalid flags", err)
			}
		})
	}
}

func TestOpenReadWrite(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.open(2, OpenReadWrite)

	if got := string(ts.read(2, 0, 1024)); got != "hello, world!" {
		t.Errorf("read => %q", got)
	}
	if got := string(ts.read(2, 7, 5)); got != "world" {
		t.Errorf("read at offset => %q", got)
	}
	// Reads past end of file return an empty payload, not an error.
	if got := ts.read(2, 1000, 16); len(got) != 0 {
		t.Errorf("read past eof => %d bytes", len(got))
	}

	if n := ts.write(2, 7, []byte("сервер")); n != uint32(len("сервер")) {
		t.Errorf("write count %d", n)
	}
	if got := string(ts.read(2, 0, 1024)); got != "hello, сервер" {
		t.Errorf("after overwrite: %q", got)
	}

	// Opening an already-open fid again is invalid.
	if _, err := ts.s.Lopen(&Tlopen{Fid: 2, Flags: OpenReadOnly}); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("double open: %v", err)
	}
}

func TestOpenAppendWritesAtEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.open(2, OpenReadOnly|OpenAppend)

	// Append-mode writes land at end of file no matter the offset.
	ts.write(2, 0, []byte(" goodbye"))
	if got := string(ts.read(2, 0, 1024)); got != "hello, world! goodbye" {
		t.Errorf("after append: %q", got)
	}
}

func TestOpenTruncate(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.open(2, OpenReadWrite|OpenTrunc)

	if got := ts.read(2, 0, 1024); len(got) != 0 {
		t.Errorf("file not truncated: %q", got)
	}
}

func TestReadWriteErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.walk(2, "subdir")
	ts.open(2, OpenReadOnly)
	if _, err := ts.s.Read(&Tread{Fid: 2, Count: 64}); !errors.Is(err, unix.EISDIR) {
		t.Errorf("read on directory: %v", err)
	}

	ts.walk(3, "subdir", "b")
	if _, err := ts.s.Read(&Tread{Fid: 3, Count: 64}); !errors.Is(err, ErrFidNotOpen) {
		t.Errorf("read on unopened fid: %v", err)
	}
	if _, err := ts.s.Write(&Twrite{Fid: 3, Data: []byte("x")}); !errors.Is(err, ErrFidNotOpen) {
		t.Errorf("write on unopened fid: %v", err)
	}
	if _, err := ts.s.Read(&Tread{Fid: 99, Count: 64}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("read on unknown fid: %v", err)
	}
}

func TestCreateFlagMatrix(t *testing.T) {
	cases := []struct {
		flags OpenFlags
		ok    bool
	}{
		{OpenReadOnly, false},
		{OpenWriteOnly, true},
		{OpenReadWrite, true},
		{OpenWriteOnly | OpenTrunc, true},
		{OpenReadOnly | OpenAppend, true},
		{OpenWriteOnly | OpenAppend, true},
		{OpenWriteOnly | OpenAppend | OpenTrunc, false},
	}
	for _, c := range cases {
		t.Run(c.flags.String(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.walk(2, "subdir")
			r, err := ts.s.Lcreate(&Tlcreate{Fid: 2, Name: "fresh", Flags: c.flags, Mode: 0644})
			if !c.ok {
				if !errors.Is(err, fs.ErrInvalid) {
					t.Errorf("create: %v, expected invalid flags", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %s", err)
			}
			path := filepath.Join(ts.root, "subdir", "fresh")
			checkQid(t, r.Qid, path, TypeRegular)

			// The directory fid now names the new file and is open for io.
			ts.write(2, 0, []byte("fresh content"))
			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read back: %s", err)
			}
			if string(content) != "fresh content" {
				t.Errorf("on disk: %q", content)
			}
		})
	}
}

func TestCreateExistingFails(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")

	if _, err := ts.s.Lcreate(&Tlcreate{Fid: 2, Name: "b", Flags: OpenReadWrite, Mode: 0644}); !errors.Is(err, fs.ErrExist) {
		t.Errorf("create over existing file: %v", err)
	}
	// The failed create leaves the fid pointing at the directory.
	ts.open(2, OpenReadOnly)
	if ents := ts.readAllDirents(2, 4096); len(ents) != 2 {
		t.Errorf("directory fid was repointed; readdir saw %d entries", len(ents))
	}
}

func TestCreateOnFileFails(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")

	if _, err := ts.s.Lcreate(&Tlcreate{Fid: 2, Name: "x", Flags: OpenReadWrite, Mode: 0644}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("create under file fid: %v", err)
	}
}

func TestGetAttr(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")

	r, err := ts.s.GetAttr(&Tgetattr{Fid: 2, RequestMask: GetAttrBasic})
	if err != nil {
		t.Fatalf("getattr: %s", err)
	}
	path := filepath.Join(ts.root, "subdir", "b")
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		t.Fatalf("lstat: %s", err)
	}
	if r.Valid != GetAttrBasic {
		t.Errorf("valid mask %#x", r.Valid)
	}
	checkQid(t, r.Qid, path, TypeRegular)
	if r.Mode != st.Mode {
		t.Errorf("mode %#o, stat says %#o", r.Mode, st.Mode)
	}
	if r.Size != uint64(st.Size) {
		t.Errorf("size %d, stat says %d", r.Size, st.Size)
	}
	if r.Uid != st.Uid || r.Gid != st.Gid {
		t.Errorf("owner %d:%d, stat says %d:%d", r.Uid, r.Gid, st.Uid, st.Gid)
	}
	if r.MtimeSec != uint64(st.Mtim.Sec) {
		t.Errorf("mtime %d, stat says %d", r.MtimeSec, st.Mtim.Sec)
	}
}

func TestSetAttrSize(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")

	if _, err := ts.s.SetAttr(&Tsetattr{Fid: 2, Valid: SetAttrSize, Size: 5}); err != nil {
		t.Fatalf("setattr: %s", err)
	}
	content, err := os.ReadFile(filepath.Join(ts.root, "subdir", "b"))
	if err != nil {
		t.Fatalf("read back: %s", err)
	}
	if string(content) != "hello" {
		t.Errorf("after truncate: %q", content)
	}

	// Growing works too, and works through an open handle.
	ts.open(2, OpenReadWrite)
	if _, err := ts.s.SetAttr(&Tsetattr{Fid: 2, Valid: SetAttrSize, Size: 8}); err != nil {
		t.Fatalf("setattr on open fid: %s", err)
	}
	if got := ts.read(2, 0, 64); len(got) != 8 {
		t.Errorf("after grow: %d bytes", len(got))
	}
}

func TestSetAttrRefusesModeAndOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")

	if _, err := ts.s.SetAttr(&Tsetattr{Fid: 2, Valid: SetAttrMode, Mode: 0600}); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("setattr mode: %v", err)
	}
	if _, err := ts.s.SetAttr(&Tsetattr{Fid: 2, Valid: SetAttrUid, Uid: 0}); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("setattr uid: %v", err)
	}
	if _, err := ts.s.SetAttr(&Tsetattr{Fid: 2, Valid: SetAttrGid, Gid: 0}); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("setattr gid: %v", err)
	}
}

func TestSetAttrTimes(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")

	m := &Tsetattr{
		Fid:       2,
		Valid:     SetAttrMtime | SetAttrMtimeSet | SetAttrAtime | SetAttrAtimeSet,
		MtimeSec:  1234567890,
		MtimeNsec: 500,
		AtimeSec:  1234560000,
		AtimeNsec: 250,
	}
	if _, err := ts.s.SetAttr(m); err != nil {
		t.Fatalf("setattr: %s", err)
	}
	var st unix.Stat_t
	if err := unix.Lstat(filepath.Join(ts.root, "subdir", "b"), &st); err != nil {
		t.Fatalf("lstat: %s", err)
	}
	if st.Mtim.Sec != 1234567890 || st.Mtim.Nsec != 500 {
		t.Errorf("mtime %d.%d", st.Mtim.Sec, st.Mtim.Nsec)
	}
	if st.Atim.Sec != 1234560000 || st.Atim.Nsec != 250 {
		t.Errorf("atime %d.%d", st.Atim.Sec, st.Atim.Nsec)
	}

	// The qid version follows the new mtime.
	r, err := ts.s.GetAttr(&Tgetattr{Fid: 2, RequestMask: GetAttrBasic})
	if err != nil {
		t.Fatalf("getattr: %s", err)
	}
	if r.Qid.Version != 1234567890 {
		t.Errorf("qid version %d after explicit mtime", r.Qid.Version)
	}
}

func TestReadDir(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")
	ts.open(2, OpenReadOnly)

	ents := ts.readAllDirents(2, 4096)
	if len(ents) != 2 {
		t.Fatalf("readdir saw %d entries", len(ents))
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name < ents[j].Name })
	if ents[0].Name != "b" || ents[0].DType != unix.DT_REG {
		t.Errorf("entry 0: %s dtype=%d", ents[0], ents[0].DType)
	}
	if ents[1].Name != "nested" || ents[1].DType != unix.DT_DIR {
		t.Errorf("entry 1: %s dtype=%d", ents[1], ents[1].DType)
	}
	checkQid(t, ents[0].Qid, filepath.Join(ts.root, "subdir", "b"), TypeRegular)
	checkQid(t, ents[1].Qid, filepath.Join(ts.root, "subdir", "nested"), TypeDir)
}

// A walked directory fid can be enumerated without an explicit open; the
// handle appears lazily on the first readdir.
func TestReadDirOnWalkedFid(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")

	ents := ts.readAllDirents(2, 4096)
	if len(ents) != 2 {
		t.Fatalf("readdir after walk saw %d entries", len(ents))
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name < ents[j].Name })
	if ents[0].Name != "b" || ents[1].Name != "nested" {
		t.Errorf("entries %s, %s", ents[0], ents[1])
	}

	// The lazily attached handle keeps its stream position like an
	// explicitly opened one.
	if again := ts.readAllDirents(2, 4096); len(again) != 2 {
		t.Errorf("second enumeration saw %d entries", len(again))
	}
}

func TestReadDirErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.walk(3, "subdir", "b")
	ts.open(3, OpenReadOnly)
	if _, err := ts.s.ReadDir(&Treaddir{Fid: 3, Count: 4096}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("readdir on file: %v", err)
	}

	// An unopened file fid is ENOTDIR too, not a fid error.
	ts.walk(4, "世界.txt")
	if _, err := ts.s.ReadDir(&Treaddir{Fid: 4, Count: 4096}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("readdir on walked file fid: %v", err)
	}

	if _, err := ts.s.ReadDir(&Treaddir{Fid: 99, Count: 4096}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("readdir on unknown fid: %v", err)
	}
}

func TestReadDirPagination(t *testing.T) {
	ts := newTestServer(t)

	const n = 1000
	dir := filepath.Join(ts.root, "big")
	mustMkdir(t, dir)
	for i := 0; i < n; i++ {
		mustWriteFile(t, filepath.Join(dir, fmt.Sprintf("%04d", i)), fmt.Sprintf("%04d", i))
	}
	ts.walk(2, "big")
	ts.open(2, OpenReadOnly)

	// A small byte budget forces many pages; every entry must show up
	// exactly once across them.
	ents := ts.readAllDirents(2, 512)
	if len(ents) != n {
		t.Fatalf("paginated readdir saw %d entries, expected %d", len(ents), n)
	}
	seen := make(map[string]bool, n)
	for _, e := range ents {
		if e.DType != unix.DT_REG {
			t.Errorf("%s: dtype %d", e.Name, e.DType)
		}
		if seen[e.Name] {
			t.Errorf("duplicate entry %q", e.Name)
		}
		seen[e.Name] = true
	}
	for i := 0; i < n; i++ {
		if name := fmt.Sprintf("%04d", i); !seen[name] {
			t.Errorf("missing entry %q", name)
		}
	}
}

func TestReadDirRestartsFromZero(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")
	ts.open(2, OpenReadOnly)

	first := ts.readAllDirents(2, 4096)
	// Offset 0 rewinds a handle whose stream position moved.
	second := ts.readAllDirents(2, 4096)
	if len(first) != len(second) {
		t.Errorf("rewound enumeration saw %d entries, first pass saw %d", len(second), len(first))
	}
}

func TestMkdir(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")

	r, err := ts.s.Mkdir(&Tmkdir{Dfid: 2, Name: "made", Mode: 0755})
	if err != nil {
		t.Fatalf("mkdir: %s", err)
	}
	path := filepath.Join(ts.root, "subdir", "made")
	checkQid(t, r.Qid, path, TypeDir)

	if _, err := ts.s.Mkdir(&Tmkdir{Dfid: 2, Name: "made", Mode: 0755}); !errors.Is(err, fs.ErrExist) {
		t.Errorf("mkdir over existing: %v", err)
	}

	ts.walk(3, "subdir", "b")
	if _, err := ts.s.Mkdir(&Tmkdir{Dfid: 3, Name: "x", Mode: 0755}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("mkdir under file fid: %v", err)
	}
}

func TestRename(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.walk(3, "subdir", "nested")

	before, err := ts.s.GetAttr(&Tgetattr{Fid: 2, RequestMask: GetAttrBasic})
	if err != nil {
		t.Fatalf("getattr: %s", err)
	}
	if _, err := ts.s.Rename(&Trename{Fid: 2, Dfid: 3, Name: "c"}); err != nil {
		t.Fatalf("rename: %s", err)
	}

	newPath := filepath.Join(ts.root, "subdir", "nested", "c")
	content, err := os.ReadFile(newPath)
	if err != nil {
		t.Fatalf("read after rename: %s", err)
	}
	if string(content) != "hello, world!" {
		t.Errorf("content after rename: %q", content)
	}
	if _, err := os.Lstat(filepath.Join(ts.root, "subdir", "b")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("old name still present after rename")
	}

	// The fid follows the file, and identity survives the rename.
	after, err := ts.s.GetAttr(&Tgetattr{Fid: 2, RequestMask: GetAttrBasic})
	if err != nil {
		t.Fatalf("getattr after rename: %s", err)
	}
	if after.Qid.Path != before.Qid.Path {
		t.Errorf("inode changed across rename: %d -> %d", before.Qid.Path, after.Qid.Path)
	}
}

func TestRenameAt(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "nested")

	if _, err := ts.s.RenameAt(&Trenameat{OldDirFid: 2, OldName: "world", NewDirFid: rootFid, NewName: "world2"}); err != nil {
		t.Fatalf("renameat: %s", err)
	}
	content, err := os.ReadFile(filepath.Join(ts.root, "world2"))
	if err != nil {
		t.Fatalf("read after renameat: %s", err)
	}
	if string(content) != "Огонь по готовности!" {
		t.Errorf("content after renameat: %q", content)
	}

	ts.walk(3, "世界.txt")
	if _, err := ts.s.RenameAt(&Trenameat{OldDirFid: 3, OldName: "a", NewDirFid: rootFid, NewName: "b"}); !errors.Is(err, unix.ENOTDIR) {
		t.Errorf("renameat with file as source dir: %v", err)
	}
}

func TestRemove(t *testing.T) {
	ts := newTestServer(t)

	// Bottom-up removal of the whole subtree, one walked fid per node.
	for i, names := range [][]string{
		{"subdir", "nested", "world"},
		{"subdir", "nested"},
		{"subdir", "b"},
		{"subdir"},
	} {
		fid := Fid(10 + i)
		ts.walk(fid, names...)
		if _, err := ts.s.Remove(&Tremove{Fid: fid}); err != nil {
			t.Fatalf("remove %v: %s", names, err)
		}
		// The fid never survives a remove.
		if _, err := ts.s.Clunk(&Tclunk{Fid: fid}); !errors.Is(err, ErrUnrecognizedFid) {
			t.Errorf("fid survived remove of %v", names)
		}
	}
	if _, err := os.Lstat(filepath.Join(ts.root, "subdir")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("subtree still present after removal")
	}

	// Removing a non-empty directory fails, but still releases the fid.
	mustMkdir(t, filepath.Join(ts.root, "full"))
	mustWriteFile(t, filepath.Join(ts.root, "full", "f"), "x")
	ts.walk(20, "full")
	if _, err := ts.s.Remove(&Tremove{Fid: 20}); err == nil {
		t.Error("remove of non-empty directory succeeded")
	}
	if _, err := ts.s.Clunk(&Tclunk{Fid: 20}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Error("fid survived failed remove")
	}
}

func TestUnlinkAt(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir")

	if _, err := ts.s.UnlinkAt(&Tunlinkat{DirFid: 2, Name: "b"}); err != nil {
		t.Fatalf("unlinkat: %s", err)
	}
	if _, err := os.Lstat(filepath.Join(ts.root, "subdir", "b")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("file still present after unlinkat")
	}

	// A directory needs the remove-dir flag.
	if _, err := ts.s.UnlinkAt(&Tunlinkat{DirFid: rootFid, Name: "subdir"}); err == nil {
		t.Error("unlinkat removed a directory without the flag")
	}
	ts.walk(3, "subdir", "nested")
	if _, err := ts.s.UnlinkAt(&Tunlinkat{DirFid: 3, Name: "world"}); err != nil {
		t.Fatalf("unlinkat nested: %s", err)
	}
	if _, err := ts.s.UnlinkAt(&Tunlinkat{DirFid: 2, Name: "nested", Flags: UnlinkAtRemoveDir}); err != nil {
		t.Fatalf("unlinkat dir: %s", err)
	}
	if _, err := ts.s.UnlinkAt(&Tunlinkat{DirFid: 2, Name: "nested", Flags: UnlinkAtRemoveDir}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("unlinkat of missing name: %v", err)
	}
}

func TestClunk(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.open(2, OpenReadOnly)
	ts.clunk(2)

	if _, err := ts.s.Clunk(&Tclunk{Fid: 2}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("double clunk: %v", err)
	}
	if _, err := ts.s.Read(&Tread{Fid: 2, Count: 16}); !errors.Is(err, ErrUnrecognizedFid) {
		t.Errorf("read after clunk: %v", err)
	}
}

func TestFsync(t *testing.T) {
	ts := newTestServer(t)
	ts.walk(2, "subdir", "b")
	ts.open(2, OpenReadWrite)

	if _, err := ts.s.Fsync(&Tfsync{Fid: 2}); err != nil {
		t.Errorf("fsync: %s", err)
	}
	if _, err := ts.s.Fsync(&Tfsync{Fid: 2, Datasync: 1}); err != nil {
		t.Errorf("fdatasync: %s", err)
	}

	ts.walk(3, "subdir")
	if _, err := ts.s.Fsync(&Tfsync{Fid: 3}); !errors.Is(err, ErrFidNotOpen) {
		t.Errorf("fsync on unopened fid: %v", err)
	}
}

func TestHandleMapsErrorsToRlerror(t *testing.T) {
	ts := newTestServer(t)

	reply := ts.s.Handle(&Tclunk{Fid: 99})
	rl, ok := reply.(*Rlerror)
	if !ok {
		t.Fatalf("reply %s is not Rlerror", reply)
	}
	if rl.Ecode != uint32(unix.ENOENT) {
		t.Errorf("unknown fid mapped to errno %d", rl.Ecode)
	}

	reply = ts.s.Handle(&Twalk{Fid: rootFid, NewFid: 2, Wnames: []string{"missing"}})
	if rl, ok := reply.(*Rlerror); !ok || rl.Ecode != uint32(unix.ENOENT) {
		t.Errorf("missing file reply: %s", reply)
	}

	reply = ts.s.Handle(&Twalk{Fid: rootFid, NewFid: 2, Wnames: []string{"subdir"}})
	if _, ok := reply.(*Rwalk); !ok {
		t.Errorf("successful walk reply: %s", reply)
	}
}
