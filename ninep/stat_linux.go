//go:build linux

package ninep

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// qidForStat derives the identity triple from on-disk metadata. Identity
// is a function of the metadata alone, never of the fid that reached it.
func qidForStat(st *unix.Stat_t) Qid {
	return Qid{
		Type:    qidTypeForMode(st.Mode),
		Version: uint32(st.Mtim.Sec),
		Path:    st.Ino,
	}
}

func qidTypeForMode(mode uint32) QidType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return TypeDir
	case unix.S_IFLNK:
		return TypeSymlink
	}
	return TypeRegular
}

func direntTypeForMode(mode uint32) uint8 {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return unix.DT_DIR
	case unix.S_IFLNK:
		return unix.DT_LNK
	case unix.S_IFREG:
		return unix.DT_REG
	case unix.S_IFCHR:
		return unix.DT_CHR
	case unix.S_IFBLK:
		return unix.DT_BLK
	case unix.S_IFIFO:
		return unix.DT_FIFO
	case unix.S_IFSOCK:
		return unix.DT_SOCK
	}
	return unix.DT_UNKNOWN
}

func lstat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return st, &pathError{"lstat", path, err}
	}
	return st, nil
}

// rgetattrForStat fills the basic attribute block. The extension fields
// (btime, gen, data version) stay zero for this profile.
func rgetattrForStat(st *unix.Stat_t) *Rgetattr {
	return &Rgetattr{
		Valid:     GetAttrBasic,
		Qid:       qidForStat(st),
		Mode:      st.Mode,
		Uid:       st.Uid,
		Gid:       st.Gid,
		Nlink:     st.Nlink,
		Rdev:      st.Rdev,
		Size:      uint64(st.Size),
		BlkSize:   uint64(st.Blksize),
		Blocks:    uint64(st.Blocks),
		AtimeSec:  uint64(st.Atim.Sec),
		AtimeNsec: uint64(st.Atim.Nsec),
		MtimeSec:  uint64(st.Mtim.Sec),
		MtimeNsec: uint64(st.Mtim.Nsec),
		CtimeSec:  uint64(st.Ctim.Sec),
		CtimeNsec: uint64(st.Ctim.Nsec),
	}
}

// pathError mirrors fs.PathError but keeps the raw errno reachable for
// Rlerror mapping via errors.As.
type pathError struct {
	op   string
	path string
	err  error
}

func (e *pathError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.op, e.path, e.err)
}

func (e *pathError) Unwrap() error { return e.err }
