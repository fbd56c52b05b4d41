package ninep

import "fmt"

// QidType is the server's file-type byte inside a Qid.
type QidType uint8

const (
	TypeRegular QidType = 0x00
	TypeSymlink QidType = 0x02
	TypeDir     QidType = 0x80
)

func (t QidType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeSymlink:
		return "symlink"
	case TypeDir:
		return "dir"
	}
	return fmt.Sprintf("QidType(%#x)", uint8(t))
}

// Qid is the server-computed identity of a filesystem object. Two walks
// that land on the same underlying file always produce the same Qid:
// Version tracks the file's modification time and Path its inode number,
// so identity survives renames and repeated walks.
type Qid struct {
	Type    QidType
	Version uint32
	Path    uint64
}

const qidSize = 13

func (q *Qid) Encode(b *Buffer) {
	b.Write8(uint8(q.Type))
	b.Write32(q.Version)
	b.Write64(q.Path)
}

func (q *Qid) Decode(b *Buffer) {
	q.Type = QidType(b.Read8())
	q.Version = b.Read32()
	q.Path = b.Read64()
}

func (q Qid) String() string {
	return fmt.Sprintf("Qid{%s v=%d path=%d}", q.Type, q.Version, q.Path)
}

// Dirent is one entry in a readdir stream. Offset is the resume cookie a
// client echoes back to continue enumeration directly after this entry.
type Dirent struct {
	Qid    Qid
	Offset uint64
	DType  uint8
	Name   string
}

// WireSize returns the encoded size of the entry, used to honor the
// client's byte budget before serializing it.
func (d *Dirent) WireSize() int {
	return qidSize + 8 + 1 + 2 + len(d.Name)
}

func (d *Dirent) Encode(b *Buffer) {
	d.Qid.Encode(b)
	b.Write64(d.Offset)
	b.Write8(d.DType)
	b.WriteString(d.Name)
}

func (d *Dirent) Decode(b *Buffer) {
	d.Qid.Decode(b)
	d.Offset = b.Read64()
	d.DType = b.Read8()
	d.Name = b.ReadString()
}

func (d Dirent) String() string {
	return fmt.Sprintf("Dirent{%q %s offset=%d}", d.Name, d.Qid, d.Offset)
}
