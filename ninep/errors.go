package ninep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	ErrInvalidMessage = errors.New("invalid 9P message")

	ErrUnrecognizedFid = errors.New("referred to unknown fid")
	ErrFidInUse        = errors.New("attempted to create a new fid where one already exists")
	ErrFidNotOpen      = errors.New("fid has no open handle")

	ErrInvalidSegment = fmt.Errorf("%w: walk segment must name exactly one child", fs.ErrInvalid)
	ErrBadOpenFlags   = fmt.Errorf("%w: incompatible open flags", fs.ErrInvalid)

	ErrChangeModeNotAllowed  = fmt.Errorf("%w: changing mode is not allowed", fs.ErrPermission)
	ErrChangeOwnerNotAllowed = fmt.Errorf("%w: changing uid/gid is not allowed", fs.ErrPermission)

	ErrNoAuthRequired = errors.New("authentication is not required")
	ErrUnsupported    = errors.New("unsupported")
)

// ToErrno collapses an error into the Linux errno carried by Rlerror.
// Filesystem errors keep whatever errno the kernel produced; protocol
// violations get the closest POSIX category.
func ToErrno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		err = syscallErr.Err
	}
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrUnrecognizedFid):
		return unix.ENOENT
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, ErrInvalidMessage):
		return unix.EINVAL
	case errors.Is(err, ErrFidNotOpen):
		return unix.EBADF
	case errors.Is(err, ErrFidInUse):
		return unix.EBUSY
	case errors.Is(err, ErrUnsupported):
		return unix.EOPNOTSUPP
	}
	return unix.EIO
}
