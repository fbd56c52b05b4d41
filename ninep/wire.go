package ninep

import "encoding/binary"

var bo = binary.LittleEndian

// Buffer is the wire-format scratch space shared by every message type.
// Encoding appends little-endian fields to the underlying slice; decoding
// consumes from the front. A short decode marks the buffer overrun instead
// of panicking, and the caller rejects the whole message afterwards with a
// single Overrun check.
type Buffer struct {
	data    []byte
	overrun bool
}

func NewBuffer(data []byte) *Buffer { return &Buffer{data: data} }

func (b *Buffer) Bytes() []byte { return b.data }
func (b *Buffer) Len() int      { return len(b.data) }
func (b *Buffer) Overrun() bool { return b.overrun }

func (b *Buffer) take(n int) []byte {
	if b.overrun || len(b.data) < n {
		b.overrun = true
		return nil
	}
	p := b.data[:n]
	b.data = b.data[n:]
	return p
}

func (b *Buffer) Read8() uint8 {
	p := b.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (b *Buffer) Read16() uint16 {
	p := b.take(2)
	if p == nil {
		return 0
	}
	return bo.Uint16(p)
}

func (b *Buffer) Read32() uint32 {
	p := b.take(4)
	if p == nil {
		return 0
	}
	return bo.Uint32(p)
}

func (b *Buffer) Read64() uint64 {
	p := b.take(8)
	if p == nil {
		return 0
	}
	return bo.Uint64(p)
}

// ReadString reads a u16 length-prefixed UTF-8 string.
func (b *Buffer) ReadString() string {
	n := int(b.Read16())
	p := b.take(n)
	if p == nil {
		return ""
	}
	return string(p)
}

// ReadBlob reads a u32 length-prefixed byte blob. The result aliases the
// decode buffer and must be copied if retained.
func (b *Buffer) ReadBlob() []byte {
	n := int(b.Read32())
	return b.take(n)
}

func (b *Buffer) Write8(v uint8)   { b.data = append(b.data, v) }
func (b *Buffer) Write16(v uint16) { b.data = bo.AppendUint16(b.data, v) }
func (b *Buffer) Write32(v uint32) { b.data = bo.AppendUint32(b.data, v) }
func (b *Buffer) Write64(v uint64) { b.data = bo.AppendUint64(b.data, v) }

func (b *Buffer) WriteString(s string) {
	b.Write16(uint16(len(s)))
	b.data = append(b.data, s...)
}

func (b *Buffer) WriteBlob(p []byte) {
	b.Write32(uint32(len(p)))
	b.data = append(b.data, p...)
}
