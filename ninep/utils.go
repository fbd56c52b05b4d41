package ninep

import (
	"errors"
	"io"
	"net"
	"syscall"
)

func isTemporaryErr(err error) bool {
	type temporary interface {
		Temporary() bool
	}
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// isClosedErr reports errors that just mean the peer went away.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
