//go:build linux

package ninep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

type Logger interface {
	Printf(format string, values ...interface{})
}

// Server serves one exported directory tree to one client. All state
// lives in the fid tracker; each operation runs under the server mutex as
// a single unit of work, so a fid is never observed half-updated.
type Server struct {
	mu   sync.Mutex
	root string
	fids *FidTracker

	// maxMsize caps negotiation; msize is the negotiated value.
	maxMsize uint32
	msize    uint32

	ErrorLog, TraceLog Logger
}

// NewServer exports root. The path is made absolute and cleaned once;
// every resolved path is root or a descendant of it.
func NewServer(root string, errorLog, traceLog Logger) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := lstat(abs)
	if err != nil {
		return nil, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return nil, fmt.Errorf("export root %q is not a directory", abs)
	}
	return &Server{
		root:     filepath.Clean(abs),
		fids:     NewFidTracker(),
		maxMsize: DEFAULT_MAX_MESSAGE_SIZE,
		msize:    DEFAULT_MAX_MESSAGE_SIZE,
		ErrorLog: errorLog,
		TraceLog: traceLog,
	}, nil
}

// SetMaxMsize lowers the negotiation cap from the default. Values below
// the protocol minimum are ignored.
func (s *Server) SetMaxMsize(max uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < MIN_MESSAGE_SIZE {
		return
	}
	s.maxMsize = max
	if s.msize > max {
		s.msize = max
	}
}

func (s *Server) errorf(format string, values ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, values...)
	}
}

func (s *Server) tracef(format string, values ...interface{}) {
	if s.TraceLog != nil {
		s.TraceLog.Printf(format, values...)
	}
}

// Handle maps one decoded request to its reply. Failures never escape as
// panics; they come back as Rlerror with the matching errno.
func (s *Server) Handle(m Message) Message {
	var reply Message
	var err error
	switch m := m.(type) {
	case *Tversion:
		reply, err = s.Version(m)
	case *Tattach:
		reply, err = s.Attach(m)
	case *Twalk:
		reply, err = s.Walk(m)
	case *Tlopen:
		reply, err = s.Lopen(m)
	case *Tlcreate:
		reply, err = s.Lcreate(m)
	case *Tread:
		reply, err = s.Read(m)
	case *Twrite:
		reply, err = s.Write(m)
	case *Tfsync:
		reply, err = s.Fsync(m)
	case *Tgetattr:
		reply, err = s.GetAttr(m)
	case *Tsetattr:
		reply, err = s.SetAttr(m)
	case *Treaddir:
		reply, err = s.ReadDir(m)
	case *Tmkdir:
		reply, err = s.Mkdir(m)
	case *Tremove:
		reply, err = s.Remove(m)
	case *Trename:
		reply, err = s.Rename(m)
	case *Trenameat:
		reply, err = s.RenameAt(m)
	case *Tunlinkat:
		reply, err = s.UnlinkAt(m)
	case *Tclunk:
		reply, err = s.Clunk(m)
	case *Tflush:
		reply = &Rflush{}
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, m.Type())
	}
	if err != nil {
		s.errorf("%s: %s", m, err)
		return &Rlerror{Ecode: uint32(ToErrno(err))}
	}
	s.tracef("%s -> %s", m, reply)
	return reply
}

func (s *Server) Version(m *Tversion) (*Rversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.MSize < MIN_MESSAGE_SIZE {
		return nil, fmt.Errorf("%w: msize %d below minimum %d", ErrInvalidMessage, m.MSize, MIN_MESSAGE_SIZE)
	}
	msize := m.MSize
	if msize > s.maxMsize {
		msize = s.maxMsize
	}
	if m.Version != Version {
		return &Rversion{MSize: msize, Version: "unknown"}, nil
	}
	// Version negotiation resets the session; stale fids do not survive.
	s.fids.Clear()
	s.msize = msize
	return &Rversion{MSize: msize, Version: Version}, nil
}

func (s *Server) Attach(m *Tattach) (*Rattach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Afid != NO_FID {
		return nil, ErrNoAuthRequired
	}
	st, err := lstat(s.root)
	if err != nil {
		return nil, err
	}
	if err := s.fids.Insert(m.Fid, &fidEntry{path: s.root, isDir: true}); err != nil {
		return nil, err
	}
	return &Rattach{Qid: qidForStat(&st)}, nil
}

func (s *Server) Walk(m *Twalk) (*Rwalk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if len(m.Wnames) > 0 && !e.isDir {
		return nil, &pathError{"walk", e.path, unix.ENOTDIR}
	}
	if m.NewFid != m.Fid {
		if _, taken := s.fids.Get(m.NewFid); taken {
			return nil, ErrFidInUse
		}
	}

	// A failure on the first name fails the whole walk; failures after
	// the first successful step truncate the result instead.
	path := e.path
	isDir := e.isDir
	wqids := make([]Qid, 0, len(m.Wnames))
	for i, name := range m.Wnames {
		next, err := JoinPath(path, name, s.root)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		st, err := lstat(next)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		path = next
		isDir = st.Mode&unix.S_IFMT == unix.S_IFDIR
		wqids = append(wqids, qidForStat(&st))
	}

	// Only a fully successful walk rebinds any fid, and only at the end:
	// a failed walk leaves both fids exactly as they were.
	if len(wqids) == len(m.Wnames) {
		if m.NewFid == m.Fid {
			e.path = path
			e.isDir = isDir
		} else if err := s.fids.Insert(m.NewFid, &fidEntry{path: path, isDir: isDir}); err != nil {
			return nil, err
		}
	}
	return &Rwalk{Wqids: wqids}, nil
}

// checkOpenFlags validates a flag combination before any filesystem call.
// Create and truncate require a handle that can write; append-only
// handles count as writeable even in read-only access mode. Append and
// truncate together make no sense and are rejected outright.
func checkOpenFlags(flags OpenFlags) error {
	if flags&(OpenCreate|OpenTrunc) != 0 && !flags.IsWriteable() {
		return fmt.Errorf("%w: %s", ErrBadOpenFlags, flags)
	}
	if flags&OpenAppend != 0 && flags&OpenTrunc != 0 {
		return fmt.Errorf("%w: %s", ErrBadOpenFlags, flags)
	}
	return nil
}

func (s *Server) Lopen(m *Tlopen) (*Rlopen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if e.file != nil {
		return nil, fmt.Errorf("%w: fid %d is already open", ErrBadOpenFlags, m.Fid)
	}
	if err := checkOpenFlags(m.Flags); err != nil {
		return nil, err
	}

	var f *os.File
	var err error
	if e.isDir {
		f, err = os.OpenFile(e.path, os.O_RDONLY|unix.O_DIRECTORY, 0)
	} else {
		f, err = os.OpenFile(e.path, m.Flags.ToOsFlags(), 0666)
	}
	if err != nil {
		return nil, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, &pathError{"fstat", e.path, err}
	}
	e.file = f
	e.appendMode = m.Flags&OpenAppend != 0
	e.dirOffset = 0

	// iounit 0 leaves the transfer size to msize negotiation.
	return &Rlopen{Qid: qidForStat(&st), IoUnit: 0}, nil
}

func (s *Server) Lcreate(m *Tlcreate) (*Rlcreate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !e.isDir {
		return nil, &pathError{"create", e.path, unix.ENOTDIR}
	}
	flags := m.Flags | OpenCreate
	if err := checkOpenFlags(flags); err != nil {
		return nil, err
	}
	path, err := JoinPath(e.path, m.Name, s.root)
	if err != nil {
		return nil, err
	}

	// Create is always exclusive: the name must not exist yet.
	f, err := os.OpenFile(path, flags.ToOsFlags()|os.O_EXCL, os.FileMode(m.Mode&0777))
	if err != nil {
		return nil, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		os.Remove(path)
		return nil, &pathError{"fstat", path, err}
	}

	// Per protocol the directory fid now names the new file; it is
	// repointed, not duplicated.
	e.path = path
	e.isDir = false
	e.file = f
	e.appendMode = m.Flags&OpenAppend != 0
	e.dirOffset = 0

	return &Rlcreate{Qid: qidForStat(&st), IoUnit: 0}, nil
}

func (s *Server) Read(m *Tread) (*Rread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if e.file == nil {
		return nil, ErrFidNotOpen
	}
	if e.isDir {
		return nil, &pathError{"read", e.path, unix.EISDIR}
	}

	count := m.Count
	if max := s.maxDataSize(); count > max {
		count = max
	}
	buf := make([]byte, count)
	n, err := e.file.ReadAt(buf, int64(m.Offset))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return &Rread{Data: buf[:n]}, nil
}

func (s *Server) Write(m *Twrite) (*Rwrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if e.file == nil {
		return nil, ErrFidNotOpen
	}

	var n int
	var err error
	if e.appendMode {
		// O_APPEND handles land at end of file no matter the requested
		// offset, and WriteAt refuses append handles outright.
		n, err = e.file.Write(m.Data)
	} else {
		n, err = e.file.WriteAt(m.Data, int64(m.Offset))
	}
	if err != nil {
		return nil, err
	}
	return &Rwrite{Count: uint32(n)}, nil
}

func (s *Server) Fsync(m *Tfsync) (*Rfsync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if e.file == nil {
		return nil, ErrFidNotOpen
	}
	var err error
	if m.Datasync != 0 {
		err = unix.Fdatasync(int(e.file.Fd()))
		if err != nil {
			err = &pathError{"fdatasync", e.path, err}
		}
	} else {
		err = e.file.Sync()
	}
	if err != nil {
		return nil, err
	}
	return &Rfsync{}, nil
}

func (s *Server) GetAttr(m *Tgetattr) (*Rgetattr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	st, err := lstat(e.path)
	if err != nil {
		return nil, err
	}
	return rgetattrForStat(&st), nil
}

func (s *Server) SetAttr(m *Tsetattr) (*Rsetattr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}

	// Remote ownership and permission changes are refused no matter who
	// asks; only size and timestamps are honored.
	if m.Valid&SetAttrMode != 0 {
		return nil, ErrChangeModeNotAllowed
	}
	if m.Valid&(SetAttrUid|SetAttrGid) != 0 {
		return nil, ErrChangeOwnerNotAllowed
	}

	if m.Valid&SetAttrSize != 0 {
		var err error
		if e.file != nil {
			err = e.file.Truncate(int64(m.Size))
		} else {
			err = os.Truncate(e.path, int64(m.Size))
		}
		if err != nil {
			return nil, err
		}
	}

	if m.Valid&(SetAttrAtime|SetAttrMtime) != 0 {
		ts := []unix.Timespec{
			{Nsec: unix.UTIME_OMIT},
			{Nsec: unix.UTIME_OMIT},
		}
		if m.Valid&SetAttrAtime != 0 {
			if m.Valid&SetAttrAtimeSet != 0 {
				ts[0] = unix.Timespec{Sec: int64(m.AtimeSec), Nsec: int64(m.AtimeNsec)}
			} else {
				ts[0] = unix.Timespec{Nsec: unix.UTIME_NOW}
			}
		}
		if m.Valid&SetAttrMtime != 0 {
			if m.Valid&SetAttrMtimeSet != 0 {
				ts[1] = unix.Timespec{Sec: int64(m.MtimeSec), Nsec: int64(m.MtimeNsec)}
			} else {
				ts[1] = unix.Timespec{Nsec: unix.UTIME_NOW}
			}
		}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, e.path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return nil, &pathError{"utimensat", e.path, err}
		}
	}
	return &Rsetattr{}, nil
}

func (s *Server) ReadDir(m *Treaddir) (*Rreaddir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !e.isDir {
		return nil, &pathError{"readdir", e.path, unix.ENOTDIR}
	}
	// A walked directory fid may be enumerated without an explicit open;
	// the handle is attached lazily on the first readdir.
	if e.file == nil {
		f, err := os.OpenFile(e.path, os.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			return nil, err
		}
		e.file = f
		e.dirOffset = 0
	}
	count := m.Count
	if max := s.maxDataSize(); count > max {
		count = max
	}
	data, err := readDirents(e, m.Offset, count)
	if err != nil {
		return nil, err
	}
	return &Rreaddir{Data: data}, nil
}

func (s *Server) Mkdir(m *Tmkdir) (*Rmkdir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Dfid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !e.isDir {
		return nil, &pathError{"mkdir", e.path, unix.ENOTDIR}
	}
	path, err := JoinPath(e.path, m.Name, s.root)
	if err != nil {
		return nil, err
	}
	if err := os.Mkdir(path, os.FileMode(m.Mode&0777)); err != nil {
		return nil, err
	}
	st, err := lstat(path)
	if err != nil {
		return nil, err
	}
	return &Rmkdir{Qid: qidForStat(&st)}, nil
}

// Remove deletes the fid's target and releases the fid. The fid is gone
// afterwards even when the deletion itself fails, per protocol.
func (s *Server) Remove(m *Tremove) (*Rremove, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	var err error
	if e.isDir {
		if err = unix.Rmdir(e.path); err != nil {
			err = &pathError{"rmdir", e.path, err}
		}
	} else {
		if err = unix.Unlink(e.path); err != nil {
			err = &pathError{"unlink", e.path, err}
		}
	}
	s.fids.Delete(m.Fid)
	if err != nil {
		return nil, err
	}
	return &Rremove{}, nil
}

func (s *Server) Rename(m *Trename) (*Rrename, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.Fid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	d, found := s.fids.Get(m.Dfid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !d.isDir {
		return nil, &pathError{"rename", d.path, unix.ENOTDIR}
	}
	newPath, err := JoinPath(d.path, m.Name, s.root)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(e.path, newPath); err != nil {
		return nil, err
	}
	// The fid follows the file to its new name.
	e.path = newPath
	return &Rrename{}, nil
}

func (s *Server) RenameAt(m *Trenameat) (*Rrenameat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldDir, found := s.fids.Get(m.OldDirFid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	newDir, found := s.fids.Get(m.NewDirFid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !oldDir.isDir || !newDir.isDir {
		return nil, &pathError{"renameat", oldDir.path, unix.ENOTDIR}
	}
	oldPath, err := JoinPath(oldDir.path, m.OldName, s.root)
	if err != nil {
		return nil, err
	}
	newPath, err := JoinPath(newDir.path, m.NewName, s.root)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return nil, err
	}
	return &Rrenameat{}, nil
}

func (s *Server) UnlinkAt(m *Tunlinkat) (*Runlinkat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.fids.Get(m.DirFid)
	if !found {
		return nil, ErrUnrecognizedFid
	}
	if !e.isDir {
		return nil, &pathError{"unlinkat", e.path, unix.ENOTDIR}
	}
	path, err := JoinPath(e.path, m.Name, s.root)
	if err != nil {
		return nil, err
	}
	if m.Flags&UnlinkAtRemoveDir != 0 {
		if err := unix.Rmdir(path); err != nil {
			return nil, &pathError{"rmdir", path, err}
		}
	} else {
		if err := unix.Unlink(path); err != nil {
			return nil, &pathError{"unlink", path, err}
		}
	}
	return &Runlinkat{}, nil
}

func (s *Server) Clunk(m *Tclunk) (*Rclunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fids.Delete(m.Fid); err != nil {
		return nil, err
	}
	return &Rclunk{}, nil
}

// maxDataSize is the largest payload that fits a reply within the
// negotiated msize: frame header plus the u32 count prefix.
func (s *Server) maxDataSize() uint32 {
	return s.msize - (frameHeaderSize + 4)
}
