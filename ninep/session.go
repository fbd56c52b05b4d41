//go:build linux

package ninep

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"aqwari.net/retry"
	"golang.org/x/sys/unix"
)

// Frame layout: size[4] type[1] tag[2] body. size covers the header too.
const frameHeaderSize = 7

// ReadMessage reads one framed message. A nil Message with a nil error
// means the frame was readable but its body was malformed; a nil Message
// with an error wrapping ErrUnsupported means the type byte names a
// message this server does not speak. In both cases the frame was fully
// consumed, so the caller answers that tag with Rlerror and keeps the
// session alive.
func ReadMessage(r io.Reader, maxSize uint32) (Tag, Message, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return NO_TAG, nil, err
	}
	size := bo.Uint32(hdr[0:4])
	mt := MsgType(hdr[4])
	tag := Tag(bo.Uint16(hdr[5:7]))
	if size < frameHeaderSize || size > maxSize {
		return tag, nil, fmt.Errorf("%w: frame size %d out of bounds", ErrInvalidMessage, size)
	}

	body := make([]byte, size-frameHeaderSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return tag, nil, err
	}

	m, err := newMessage(mt)
	if err != nil {
		return tag, nil, err
	}
	b := NewBuffer(body)
	m.Decode(b)
	if b.Overrun() {
		return tag, nil, nil
	}
	return tag, m, nil
}

// WriteMessage writes one framed message.
func WriteMessage(w io.Writer, tag Tag, m Message) error {
	b := NewBuffer(make([]byte, 0, 64))
	b.Write32(0) // size, patched below
	b.Write8(uint8(m.Type()))
	b.Write16(uint16(tag))
	m.Encode(b)
	frame := b.Bytes()
	bo.PutUint32(frame[0:4], uint32(len(frame)))
	_, err := w.Write(frame)
	return err
}

// NetServer accepts byte-stream connections and runs one protocol Server
// per connection; each client gets its own fid space.
type NetServer struct {
	Root string

	MaxMsgSize   uint32
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	ErrorLog, TraceLog Logger
}

func (s *NetServer) errorf(format string, values ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, values...)
	}
}

func (s *NetServer) tracef(format string, values ...interface{}) {
	if s.TraceLog != nil {
		s.TraceLog.Printf(format, values...)
	}
}

// ListenAndServe listens on addr and serves. An addr containing a path
// separator selects a unix socket, anything else TCP.
func (s *NetServer) ListenAndServe(addr string) error {
	network := "tcp"
	if strings.ContainsRune(addr, '/') {
		network = "unix"
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *NetServer) Serve(l net.Listener) error {
	s.tracef("listening on %s", l.Addr())
	backoff := retry.Exponential(10 * time.Millisecond).Max(2 * time.Second)
	try := 0
	for {
		conn, err := l.Accept()
		if err != nil {
			if isTemporaryErr(err) {
				try++
				wait := backoff(try)
				s.tracef("accept error: %s; retrying in %v", err, wait)
				time.Sleep(wait)
				continue
			}
			return err
		}
		try = 0
		s.tracef("accepted connection from %s", conn.RemoteAddr())
		go s.serveConn(conn)
	}
}

func (s *NetServer) serveConn(conn net.Conn) {
	defer conn.Close()
	srv, err := NewServer(s.Root, s.ErrorLog, s.TraceLog)
	if err != nil {
		s.errorf("cannot export %s: %s", s.Root, err)
		return
	}
	defer srv.fids.Clear()

	// The frame reader and version negotiation share one cap, so a
	// client writing at its negotiated msize is never cut off.
	max := s.MaxMsgSize
	if max < MIN_MESSAGE_SIZE {
		max = DEFAULT_MAX_MESSAGE_SIZE
	}
	srv.SetMaxMsize(max)

	sess := &session{
		rwc:          conn,
		srv:          srv,
		maxMsgSize:   max,
		readTimeout:  s.ReadTimeout,
		writeTimeout: s.WriteTimeout,
		errorLog:     s.ErrorLog,
		traceLog:     s.TraceLog,
	}
	sess.serve()
}

type session struct {
	rwc net.Conn
	srv *Server

	maxMsgSize   uint32
	readTimeout  time.Duration
	writeTimeout time.Duration

	errorLog, traceLog Logger
}

func (s *session) errorf(format string, values ...interface{}) {
	if s.errorLog != nil {
		s.errorLog.Printf(format, values...)
	}
}

func (s *session) serve() {
	if s.maxMsgSize < MIN_MESSAGE_SIZE {
		s.maxMsgSize = DEFAULT_MAX_MESSAGE_SIZE
	}
	for {
		if s.readTimeout > 0 {
			s.rwc.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		tag, req, err := ReadMessage(s.rwc, s.maxMsgSize)
		if err != nil && !errors.Is(err, ErrUnsupported) {
			if !isClosedErr(err) {
				s.errorf("read error: %s", err)
			}
			return
		}

		// A single unsupported or malformed request fails alone; the fid
		// table is untouched and the session carries on.
		var reply Message
		switch {
		case err != nil:
			reply = &Rlerror{Ecode: uint32(ToErrno(err))}
		case req == nil:
			reply = &Rlerror{Ecode: uint32(unix.EINVAL)}
		default:
			reply = s.srv.Handle(req)
		}

		if s.writeTimeout > 0 {
			s.rwc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if err := WriteMessage(s.rwc, tag, reply); err != nil {
			if !isClosedErr(err) {
				s.errorf("write error: %s", err)
			}
			return
		}
	}
}
