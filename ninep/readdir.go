//go:build linux

package ninep

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// Directory enumeration rides the kernel's own stream position: getdents64
// hands back entries with d_off resume cookies, and lseek on the directory
// fd restores the stream to any previously returned cookie. Nothing is
// materialized, so a directory with tens of thousands of entries costs one
// kernel buffer at a time.

// linux_dirent64 header: ino[8] off[8] reclen[2] type[1], then the
// NUL-terminated name.
const direntHeaderSize = 19

// readDirents packs encoded Dirents for the directory behind e, resuming
// after cookie offset, up to count bytes. An empty result means end of
// directory.
func readDirents(e *fidEntry, offset uint64, count uint32) ([]byte, error) {
	fd := int(e.file.Fd())

	if offset != e.dirOffset {
		if _, err := unix.Seek(fd, int64(offset), unix.SEEK_SET); err != nil {
			return nil, &pathError{"seekdir", e.path, err}
		}
		e.dirOffset = offset
	}

	out := NewBuffer(nil)
	kbuf := make([]byte, 8192)
	lastOff := e.dirOffset
	for {
		n, err := unix.Getdents(fd, kbuf)
		if err != nil {
			return nil, &pathError{"getdents", e.path, err}
		}
		if n == 0 {
			break
		}

		for pos := 0; pos < n; {
			rec := kbuf[pos:n]
			if len(rec) < direntHeaderSize {
				return nil, &pathError{"getdents", e.path, unix.EIO}
			}
			off := bo.Uint64(rec[8:16])
			reclen := int(bo.Uint16(rec[16:18]))
			dtype := rec[18]
			if reclen < direntHeaderSize || reclen > len(rec) {
				return nil, &pathError{"getdents", e.path, unix.EIO}
			}
			name := rec[direntHeaderSize:reclen]
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			pos += reclen

			// The exported tree never surfaces the dot entries.
			if string(name) == "." || string(name) == ".." {
				lastOff = off
				continue
			}

			var st unix.Stat_t
			if err := unix.Fstatat(fd, string(name), &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
				// Entry raced away between getdents and stat.
				lastOff = off
				continue
			}
			if dtype == unix.DT_UNKNOWN {
				dtype = direntTypeForMode(st.Mode)
			}

			d := Dirent{
				Qid:    qidForStat(&st),
				Offset: off,
				DType:  dtype,
				Name:   string(name),
			}
			if out.Len()+d.WireSize() > int(count) {
				// Over budget: rewind the stream to the last entry we
				// actually returned so the next call resumes after it.
				if _, err := unix.Seek(fd, int64(lastOff), unix.SEEK_SET); err != nil {
					return nil, &pathError{"seekdir", e.path, err}
				}
				e.dirOffset = lastOff
				return out.Bytes(), nil
			}
			d.Encode(out)
			lastOff = off
		}
	}

	e.dirOffset = lastOff
	return out.Bytes(), nil
}
