package ninep

import (
	"fmt"
	"os"
	"strings"
)

const (
	// Version is the only protocol dialect this server speaks.
	Version = "9P2000.L"

	NO_TAG Tag = ^Tag(0)
	NO_FID Fid = ^Fid(0)

	// MIN_MESSAGE_SIZE is the smallest msize a client may negotiate. It
	// must leave room for a header plus one maximal walk element.
	MIN_MESSAGE_SIZE uint32 = 256

	// DEFAULT_MAX_MESSAGE_SIZE bounds frames when the caller does not
	// configure a size.
	DEFAULT_MAX_MESSAGE_SIZE uint32 = 64 * 1024
)

type Tag uint16

type Fid uint32

func (f Fid) String() string { return fmt.Sprintf("Fid(%d)", uint32(f)) }

type MsgType uint8

// 9P2000.L message types. The numbering below 100 comes from the Linux
// extension; version/attach/walk and friends keep their 9P2000 values.
const (
	msgRlerror   MsgType = 7
	msgTlopen    MsgType = 12
	msgRlopen    MsgType = 13
	msgTlcreate  MsgType = 14
	msgRlcreate  MsgType = 15
	msgTrename   MsgType = 20
	msgRrename   MsgType = 21
	msgTgetattr  MsgType = 24
	msgRgetattr  MsgType = 25
	msgTsetattr  MsgType = 26
	msgRsetattr  MsgType = 27
	msgTreaddir  MsgType = 40
	msgRreaddir  MsgType = 41
	msgTfsync    MsgType = 50
	msgRfsync    MsgType = 51
	msgTmkdir    MsgType = 72
	msgRmkdir    MsgType = 73
	msgTrenameat MsgType = 74
	msgRrenameat MsgType = 75
	msgTunlinkat MsgType = 76
	msgRunlinkat MsgType = 77
	msgTversion  MsgType = 100
	msgRversion  MsgType = 101
	msgTattach   MsgType = 104
	msgRattach   MsgType = 105
	msgTflush    MsgType = 108
	msgRflush    MsgType = 109
	msgTwalk     MsgType = 110
	msgRwalk     MsgType = 111
	msgTread     MsgType = 116
	msgRread     MsgType = 117
	msgTwrite    MsgType = 118
	msgRwrite    MsgType = 119
	msgTclunk    MsgType = 120
	msgRclunk    MsgType = 121
	msgTremove   MsgType = 122
	msgRremove   MsgType = 123
)

func (t MsgType) String() string {
	switch t {
	case msgRlerror:
		return "Rlerror"
	case msgTlopen:
		return "Tlopen"
	case msgRlopen:
		return "Rlopen"
	case msgTlcreate:
		return "Tlcreate"
	case msgRlcreate:
		return "Rlcreate"
	case msgTrename:
		return "Trename"
	case msgRrename:
		return "Rrename"
	case msgTgetattr:
		return "Tgetattr"
	case msgRgetattr:
		return "Rgetattr"
	case msgTsetattr:
		return "Tsetattr"
	case msgRsetattr:
		return "Rsetattr"
	case msgTreaddir:
		return "Treaddir"
	case msgRreaddir:
		return "Rreaddir"
	case msgTfsync:
		return "Tfsync"
	case msgRfsync:
		return "Rfsync"
	case msgTmkdir:
		return "Tmkdir"
	case msgRmkdir:
		return "Rmkdir"
	case msgTrenameat:
		return "Trenameat"
	case msgRrenameat:
		return "Rrenameat"
	case msgTunlinkat:
		return "Tunlinkat"
	case msgRunlinkat:
		return "Runlinkat"
	case msgTversion:
		return "Tversion"
	case msgRversion:
		return "Rversion"
	case msgTattach:
		return "Tattach"
	case msgRattach:
		return "Rattach"
	case msgTflush:
		return "Tflush"
	case msgRflush:
		return "Rflush"
	case msgTwalk:
		return "Twalk"
	case msgRwalk:
		return "Rwalk"
	case msgTread:
		return "Tread"
	case msgRread:
		return "Rread"
	case msgTwrite:
		return "Twrite"
	case msgRwrite:
		return "Rwrite"
	case msgTclunk:
		return "Tclunk"
	case msgRclunk:
		return "Rclunk"
	case msgTremove:
		return "Tremove"
	case msgRremove:
		return "Rremove"
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}

// OpenFlags mirrors the Linux open(2) flag bits carried by Tlopen and
// Tlcreate.
type OpenFlags uint32

const (
	OpenReadOnly  OpenFlags = 0x0
	OpenWriteOnly OpenFlags = 0x1
	OpenReadWrite OpenFlags = 0x2
	OpenModeMask  OpenFlags = 0x3

	OpenCreate OpenFlags = 0x40
	OpenExcl   OpenFlags = 0x80
	OpenTrunc  OpenFlags = 0x200
	OpenAppend OpenFlags = 0x400

	openKnownFlags = OpenModeMask | OpenCreate | OpenExcl | OpenTrunc | OpenAppend
)

func (f OpenFlags) Mode() OpenFlags { return f & OpenModeMask }

// IsWriteable reports whether writes through the handle can land. An
// append-only handle is writeable even with a read-only access mode.
func (f OpenFlags) IsWriteable() bool {
	return f.Mode() == OpenWriteOnly || f.Mode() == OpenReadWrite || f&OpenAppend != 0
}

// ToOsFlags converts to os.OpenFile flag bits, dropping anything this
// profile does not recognize. Append with a read-only access mode is
// upgraded to read-write so appends through the handle succeed.
func (f OpenFlags) ToOsFlags() int {
	f &= openKnownFlags
	var flags int
	switch f.Mode() {
	case OpenWriteOnly:
		flags = os.O_WRONLY
	case OpenReadWrite:
		flags = os.O_RDWR
	default:
		if f&OpenAppend != 0 {
			flags = os.O_RDWR
		} else {
			flags = os.O_RDONLY
		}
	}
	if f&OpenCreate != 0 {
		flags |= os.O_CREATE
	}
	if f&OpenExcl != 0 {
		flags |= os.O_EXCL
	}
	if f&OpenTrunc != 0 {
		flags |= os.O_TRUNC
	}
	if f&OpenAppend != 0 {
		flags |= os.O_APPEND
	}
	return flags
}

func (f OpenFlags) String() string {
	var res []string
	switch f.Mode() {
	case OpenReadOnly:
		res = append(res, "RDONLY")
	case OpenWriteOnly:
		res = append(res, "WRONLY")
	case OpenReadWrite:
		res = append(res, "RDWR")
	}
	if f&OpenCreate != 0 {
		res = append(res, "CREATE")
	}
	if f&OpenExcl != 0 {
		res = append(res, "EXCL")
	}
	if f&OpenTrunc != 0 {
		res = append(res, "TRUNC")
	}
	if f&OpenAppend != 0 {
		res = append(res, "APPEND")
	}
	return strings.Join(res, "|")
}

// Tgetattr request mask and Rgetattr valid bits.
const (
	GetAttrMode   uint64 = 0x1
	GetAttrNlink  uint64 = 0x2
	GetAttrUid    uint64 = 0x4
	GetAttrGid    uint64 = 0x8
	GetAttrRdev   uint64 = 0x10
	GetAttrAtime  uint64 = 0x20
	GetAttrMtime  uint64 = 0x40
	GetAttrCtime  uint64 = 0x80
	GetAttrIno    uint64 = 0x100
	GetAttrSize   uint64 = 0x200
	GetAttrBlocks uint64 = 0x400

	GetAttrBasic uint64 = 0x7ff
)

// Tsetattr valid bits.
const (
	SetAttrMode     uint32 = 0x1
	SetAttrUid      uint32 = 0x2
	SetAttrGid      uint32 = 0x4
	SetAttrSize     uint32 = 0x8
	SetAttrAtime    uint32 = 0x10
	SetAttrMtime    uint32 = 0x20
	SetAttrCtime    uint32 = 0x40
	SetAttrAtimeSet uint32 = 0x80
	SetAttrMtimeSet uint32 = 0x100
)

// Tunlinkat flag selecting rmdir over unlink.
const UnlinkAtRemoveDir uint32 = 0x200

// Message is one protocol message body, without the size/type/tag frame
// header. Decoding never fails partway: a short buffer marks itself
// overrun and the frame layer rejects the message as a whole, so
// decode(encode(m)) always reproduces m exactly.
type Message interface {
	Type() MsgType
	Encode(b *Buffer)
	Decode(b *Buffer)
	fmt.Stringer
}

// newMessage returns an empty instance for a wire message type. The
// switch is the closed catalog: a type absent here is unsupported by this
// profile and answered with Rlerror at the transport layer.
func newMessage(t MsgType) (Message, error) {
	switch t {
	case msgRlerror:
		return &Rlerror{}, nil
	case msgTlopen:
		return &Tlopen{}, nil
	case msgRlopen:
		return &Rlopen{}, nil
	case msgTlcreate:
		return &Tlcreate{}, nil
	case msgRlcreate:
		return &Rlcreate{}, nil
	case msgTrename:
		return &Trename{}, nil
	case msgRrename:
		return &Rrename{}, nil
	case msgTgetattr:
		return &Tgetattr{}, nil
	case msgRgetattr:
		return &Rgetattr{}, nil
	case msgTsetattr:
		return &Tsetattr{}, nil
	case msgRsetattr:
		return &Rsetattr{}, nil
	case msgTreaddir:
		return &Treaddir{}, nil
	case msgRreaddir:
		return &Rreaddir{}, nil
	case msgTfsync:
		return &Tfsync{}, nil
	case msgRfsync:
		return &Rfsync{}, nil
	case msgTmkdir:
		return &Tmkdir{}, nil
	case msgRmkdir:
		return &Rmkdir{}, nil
	case msgTrenameat:
		return &Trenameat{}, nil
	case msgRrenameat:
		return &Rrenameat{}, nil
	case msgTunlinkat:
		return &Tunlinkat{}, nil
	case msgRunlinkat:
		return &Runlinkat{}, nil
	case msgTversion:
		return &Tversion{}, nil
	case msgRversion:
		return &Rversion{}, nil
	case msgTattach:
		return &Tattach{}, nil
	case msgRattach:
		return &Rattach{}, nil
	case msgTflush:
		return &Tflush{}, nil
	case msgRflush:
		return &Rflush{}, nil
	case msgTwalk:
		return &Twalk{}, nil
	case msgRwalk:
		return &Rwalk{}, nil
	case msgTread:
		return &Tread{}, nil
	case msgRread:
		return &Rread{}, nil
	case msgTwrite:
		return &Twrite{}, nil
	case msgRwrite:
		return &Rwrite{}, nil
	case msgTclunk:
		return &Tclunk{}, nil
	case msgRclunk:
		return &Rclunk{}, nil
	case msgTremove:
		return &Tremove{}, nil
	case msgRremove:
		return &Rremove{}, nil
	}
	return nil, fmt.Errorf("%w: unknown message type %d", ErrUnsupported, t)
}

////////////////////////////////////////////////////////////////////////////////

// Rlerror carries a Linux errno in place of the matching R-message.
type Rlerror struct {
	Ecode uint32
}

func (*Rlerror) Type() MsgType      { return msgRlerror }
func (m *Rlerror) Encode(b *Buffer) { b.Write32(m.Ecode) }
func (m *Rlerror) Decode(b *Buffer) { m.Ecode = b.Read32() }
func (m *Rlerror) String() string   { return fmt.Sprintf("Rlerror{ecode=%d}", m.Ecode) }

type Tversion struct {
	MSize   uint32
	Version string
}

func (*Tversion) Type() MsgType { return msgTversion }
func (m *Tversion) Encode(b *Buffer) {
	b.Write32(m.MSize)
	b.WriteString(m.Version)
}
func (m *Tversion) Decode(b *Buffer) {
	m.MSize = b.Read32()
	m.Version = b.ReadString()
}
func (m *Tversion) String() string {
	return fmt.Sprintf("Tversion{msize=%d version=%q}", m.MSize, m.Version)
}

type Rversion struct {
	MSize   uint32
	Version string
}

func (*Rversion) Type() MsgType { return msgRversion }
func (m *Rversion) Encode(b *Buffer) {
	b.Write32(m.MSize)
	b.WriteString(m.Version)
}
func (m *Rversion) Decode(b *Buffer) {
	m.MSize = b.Read32()
	m.Version = b.ReadString()
}
func (m *Rversion) String() string {
	return fmt.Sprintf("Rversion{msize=%d version=%q}", m.MSize, m.Version)
}

type Tattach struct {
	Fid    Fid
	Afid   Fid
	Uname  string
	Aname  string
	NUname uint32
}

func (*Tattach) Type() MsgType { return msgTattach }
func (m *Tattach) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(uint32(m.Afid))
	b.WriteString(m.Uname)
	b.WriteString(m.Aname)
	b.Write32(m.NUname)
}
func (m *Tattach) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Afid = Fid(b.Read32())
	m.Uname = b.ReadString()
	m.Aname = b.ReadString()
	m.NUname = b.Read32()
}
func (m *Tattach) String() string {
	return fmt.Sprintf("Tattach{fid=%d afid=%d uname=%q aname=%q n_uname=%d}",
		m.Fid, m.Afid, m.Uname, m.Aname, m.NUname)
}

type Rattach struct {
	Qid Qid
}

func (*Rattach) Type() MsgType      { return msgRattach }
func (m *Rattach) Encode(b *Buffer) { m.Qid.Encode(b) }
func (m *Rattach) Decode(b *Buffer) { m.Qid.Decode(b) }
func (m *Rattach) String() string   { return fmt.Sprintf("Rattach{%s}", m.Qid) }

type Tflush struct {
	OldTag Tag
}

func (*Tflush) Type() MsgType      { return msgTflush }
func (m *Tflush) Encode(b *Buffer) { b.Write16(uint16(m.OldTag)) }
func (m *Tflush) Decode(b *Buffer) { m.OldTag = Tag(b.Read16()) }
func (m *Tflush) String() string   { return fmt.Sprintf("Tflush{oldtag=%d}", m.OldTag) }

type Rflush struct{}

func (*Rflush) Type() MsgType    { return msgRflush }
func (*Rflush) Encode(b *Buffer) {}
func (*Rflush) Decode(b *Buffer) {}
func (*Rflush) String() string   { return "Rflush{}" }

type Twalk struct {
	Fid    Fid
	NewFid Fid
	Wnames []string
}

func (*Twalk) Type() MsgType { return msgTwalk }
func (m *Twalk) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(uint32(m.NewFid))
	b.Write16(uint16(len(m.Wnames)))
	for _, name := range m.Wnames {
		b.WriteString(name)
	}
}
func (m *Twalk) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.NewFid = Fid(b.Read32())
	n := int(b.Read16())
	m.Wnames = nil
	for i := 0; i < n && !b.Overrun(); i++ {
		m.Wnames = append(m.Wnames, b.ReadString())
	}
}
func (m *Twalk) String() string {
	return fmt.Sprintf("Twalk{fid=%d newfid=%d wnames=%q}", m.Fid, m.NewFid, m.Wnames)
}

type Rwalk struct {
	Wqids []Qid
}

func (*Rwalk) Type() MsgType { return msgRwalk }
func (m *Rwalk) Encode(b *Buffer) {
	b.Write16(uint16(len(m.Wqids)))
	for i := range m.Wqids {
		m.Wqids[i].Encode(b)
	}
}
func (m *Rwalk) Decode(b *Buffer) {
	n := int(b.Read16())
	m.Wqids = nil
	for i := 0; i < n && !b.Overrun(); i++ {
		var q Qid
		q.Decode(b)
		m.Wqids = append(m.Wqids, q)
	}
}
func (m *Rwalk) String() string { return fmt.Sprintf("Rwalk{wqids=%v}", m.Wqids) }

type Tlopen struct {
	Fid   Fid
	Flags OpenFlags
}

func (*Tlopen) Type() MsgType { return msgTlopen }
func (m *Tlopen) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(uint32(m.Flags))
}
func (m *Tlopen) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Flags = OpenFlags(b.Read32())
}
func (m *Tlopen) String() string {
	return fmt.Sprintf("Tlopen{fid=%d flags=%s}", m.Fid, m.Flags)
}

type Rlopen struct {
	Qid    Qid
	IoUnit uint32
}

func (*Rlopen) Type() MsgType { return msgRlopen }
func (m *Rlopen) Encode(b *Buffer) {
	m.Qid.Encode(b)
	b.Write32(m.IoUnit)
}
func (m *Rlopen) Decode(b *Buffer) {
	m.Qid.Decode(b)
	m.IoUnit = b.Read32()
}
func (m *Rlopen) String() string {
	return fmt.Sprintf("Rlopen{%s iounit=%d}", m.Qid, m.IoUnit)
}

type Tlcreate struct {
	Fid   Fid
	Name  string
	Flags OpenFlags
	Mode  uint32
	Gid   uint32
}

func (*Tlcreate) Type() MsgType { return msgTlcreate }
func (m *Tlcreate) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.WriteString(m.Name)
	b.Write32(uint32(m.Flags))
	b.Write32(m.Mode)
	b.Write32(m.Gid)
}
func (m *Tlcreate) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Name = b.ReadString()
	m.Flags = OpenFlags(b.Read32())
	m.Mode = b.Read32()
	m.Gid = b.Read32()
}
func (m *Tlcreate) String() string {
	return fmt.Sprintf("Tlcreate{fid=%d name=%q flags=%s mode=%#o gid=%d}",
		m.Fid, m.Name, m.Flags, m.Mode, m.Gid)
}

type Rlcreate struct {
	Qid    Qid
	IoUnit uint32
}

func (*Rlcreate) Type() MsgType { return msgRlcreate }
func (m *Rlcreate) Encode(b *Buffer) {
	m.Qid.Encode(b)
	b.Write32(m.IoUnit)
}
func (m *Rlcreate) Decode(b *Buffer) {
	m.Qid.Decode(b)
	m.IoUnit = b.Read32()
}
func (m *Rlcreate) String() string {
	return fmt.Sprintf("Rlcreate{%s iounit=%d}", m.Qid, m.IoUnit)
}

type Tread struct {
	Fid    Fid
	Offset uint64
	Count  uint32
}

func (*Tread) Type() MsgType { return msgTread }
func (m *Tread) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write64(m.Offset)
	b.Write32(m.Count)
}
func (m *Tread) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Offset = b.Read64()
	m.Count = b.Read32()
}
func (m *Tread) String() string {
	return fmt.Sprintf("Tread{fid=%d offset=%d count=%d}", m.Fid, m.Offset, m.Count)
}

type Rread struct {
	Data []byte
}

func (*Rread) Type() MsgType      { return msgRread }
func (m *Rread) Encode(b *Buffer) { b.WriteBlob(m.Data) }
func (m *Rread) Decode(b *Buffer) {
	m.Data = append([]byte(nil), b.ReadBlob()...)
}
func (m *Rread) String() string { return fmt.Sprintf("Rread{%d bytes}", len(m.Data)) }

type Twrite struct {
	Fid    Fid
	Offset uint64
	Data   []byte
}

func (*Twrite) Type() MsgType { return msgTwrite }
func (m *Twrite) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write64(m.Offset)
	b.WriteBlob(m.Data)
}
func (m *Twrite) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Offset = b.Read64()
	m.Data = append([]byte(nil), b.ReadBlob()...)
}
func (m *Twrite) String() string {
	return fmt.Sprintf("Twrite{fid=%d offset=%d %d bytes}", m.Fid, m.Offset, len(m.Data))
}

type Rwrite struct {
	Count uint32
}

func (*Rwrite) Type() MsgType      { return msgRwrite }
func (m *Rwrite) Encode(b *Buffer) { b.Write32(m.Count) }
func (m *Rwrite) Decode(b *Buffer) { m.Count = b.Read32() }
func (m *Rwrite) String() string   { return fmt.Sprintf("Rwrite{count=%d}", m.Count) }

type Tclunk struct {
	Fid Fid
}

func (*Tclunk) Type() MsgType      { return msgTclunk }
func (m *Tclunk) Encode(b *Buffer) { b.Write32(uint32(m.Fid)) }
func (m *Tclunk) Decode(b *Buffer) { m.Fid = Fid(b.Read32()) }
func (m *Tclunk) String() string   { return fmt.Sprintf("Tclunk{fid=%d}", m.Fid) }

type Rclunk struct{}

func (*Rclunk) Type() MsgType    { return msgRclunk }
func (*Rclunk) Encode(b *Buffer) {}
func (*Rclunk) Decode(b *Buffer) {}
func (*Rclunk) String() string   { return "Rclunk{}" }

type Tremove struct {
	Fid Fid
}

func (*Tremove) Type() MsgType      { return msgTremove }
func (m *Tremove) Encode(b *Buffer) { b.Write32(uint32(m.Fid)) }
func (m *Tremove) Decode(b *Buffer) { m.Fid = Fid(b.Read32()) }
func (m *Tremove) String() string   { return fmt.Sprintf("Tremove{fid=%d}", m.Fid) }

type Rremove struct{}

func (*Rremove) Type() MsgType    { return msgRremove }
func (*Rremove) Encode(b *Buffer) {}
func (*Rremove) Decode(b *Buffer) {}
func (*Rremove) String() string   { return "Rremove{}" }

type Tfsync struct {
	Fid      Fid
	Datasync uint32
}

func (*Tfsync) Type() MsgType { return msgTfsync }
func (m *Tfsync) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(m.Datasync)
}
func (m *Tfsync) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Datasync = b.Read32()
}
func (m *Tfsync) String() string {
	return fmt.Sprintf("Tfsync{fid=%d datasync=%d}", m.Fid, m.Datasync)
}

type Rfsync struct{}

func (*Rfsync) Type() MsgType    { return msgRfsync }
func (*Rfsync) Encode(b *Buffer) {}
func (*Rfsync) Decode(b *Buffer) {}
func (*Rfsync) String() string   { return "Rfsync{}" }

type Tgetattr struct {
	Fid         Fid
	RequestMask uint64
}

func (*Tgetattr) Type() MsgType { return msgTgetattr }
func (m *Tgetattr) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write64(m.RequestMask)
}
func (m *Tgetattr) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.RequestMask = b.Read64()
}
func (m *Tgetattr) String() string {
	return fmt.Sprintf("Tgetattr{fid=%d mask=%#x}", m.Fid, m.RequestMask)
}

// Rgetattr carries the full attribute block. Fields outside the basic set
// (btime, gen, data version) stay zero: this profile does not support
// them and Valid never includes their bits.
type Rgetattr struct {
	Valid       uint64
	Qid         Qid
	Mode        uint32
	Uid         uint32
	Gid         uint32
	Nlink       uint64
	Rdev        uint64
	Size        uint64
	BlkSize     uint64
	Blocks      uint64
	AtimeSec    uint64
	AtimeNsec   uint64
	MtimeSec    uint64
	MtimeNsec   uint64
	CtimeSec    uint64
	CtimeNsec   uint64
	BtimeSec    uint64
	BtimeNsec   uint64
	Gen         uint64
	DataVersion uint64
}

func (*Rgetattr) Type() MsgType { return msgRgetattr }
func (m *Rgetattr) Encode(b *Buffer) {
	b.Write64(m.Valid)
	m.Qid.Encode(b)
	b.Write32(m.Mode)
	b.Write32(m.Uid)
	b.Write32(m.Gid)
	b.Write64(m.Nlink)
	b.Write64(m.Rdev)
	b.Write64(m.Size)
	b.Write64(m.BlkSize)
	b.Write64(m.Blocks)
	b.Write64(m.AtimeSec)
	b.Write64(m.AtimeNsec)
	b.Write64(m.MtimeSec)
	b.Write64(m.MtimeNsec)
	b.Write64(m.CtimeSec)
	b.Write64(m.CtimeNsec)
	b.Write64(m.BtimeSec)
	b.Write64(m.BtimeNsec)
	b.Write64(m.Gen)
	b.Write64(m.DataVersion)
}
func (m *Rgetattr) Decode(b *Buffer) {
	m.Valid = b.Read64()
	m.Qid.Decode(b)
	m.Mode = b.Read32()
	m.Uid = b.Read32()
	m.Gid = b.Read32()
	m.Nlink = b.Read64()
	m.Rdev = b.Read64()
	m.Size = b.Read64()
	m.BlkSize = b.Read64()
	m.Blocks = b.Read64()
	m.AtimeSec = b.Read64()
	m.AtimeNsec = b.Read64()
	m.MtimeSec = b.Read64()
	m.MtimeNsec = b.Read64()
	m.CtimeSec = b.Read64()
	m.CtimeNsec = b.Read64()
	m.BtimeSec = b.Read64()
	m.BtimeNsec = b.Read64()
	m.Gen = b.Read64()
	m.DataVersion = b.Read64()
}
func (m *Rgetattr) String() string {
	return fmt.Sprintf("Rgetattr{%s mode=%#o size=%d}", m.Qid, m.Mode, m.Size)
}

type Tsetattr struct {
	Fid       Fid
	Valid     uint32
	Mode      uint32
	Uid       uint32
	Gid       uint32
	Size      uint64
	AtimeSec  uint64
	AtimeNsec uint64
	MtimeSec  uint64
	MtimeNsec uint64
}

func (*Tsetattr) Type() MsgType { return msgTsetattr }
func (m *Tsetattr) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(m.Valid)
	b.Write32(m.Mode)
	b.Write32(m.Uid)
	b.Write32(m.Gid)
	b.Write64(m.Size)
	b.Write64(m.AtimeSec)
	b.Write64(m.AtimeNsec)
	b.Write64(m.MtimeSec)
	b.Write64(m.MtimeNsec)
}
func (m *Tsetattr) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Valid = b.Read32()
	m.Mode = b.Read32()
	m.Uid = b.Read32()
	m.Gid = b.Read32()
	m.Size = b.Read64()
	m.AtimeSec = b.Read64()
	m.AtimeNsec = b.Read64()
	m.MtimeSec = b.Read64()
	m.MtimeNsec = b.Read64()
}
func (m *Tsetattr) String() string {
	return fmt.Sprintf("Tsetattr{fid=%d valid=%#x}", m.Fid, m.Valid)
}

type Rsetattr struct{}

func (*Rsetattr) Type() MsgType    { return msgRsetattr }
func (*Rsetattr) Encode(b *Buffer) {}
func (*Rsetattr) Decode(b *Buffer) {}
func (*Rsetattr) String() string   { return "Rsetattr{}" }

type Treaddir struct {
	Fid    Fid
	Offset uint64
	Count  uint32
}

func (*Treaddir) Type() MsgType { return msgTreaddir }
func (m *Treaddir) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write64(m.Offset)
	b.Write32(m.Count)
}
func (m *Treaddir) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Offset = b.Read64()
	m.Count = b.Read32()
}
func (m *Treaddir) String() string {
	return fmt.Sprintf("Treaddir{fid=%d offset=%d count=%d}", m.Fid, m.Offset, m.Count)
}

// Rreaddir carries a packed run of Dirent encodings. An empty blob means
// end of directory.
type Rreaddir struct {
	Data []byte
}

func (*Rreaddir) Type() MsgType      { return msgRreaddir }
func (m *Rreaddir) Encode(b *Buffer) { b.WriteBlob(m.Data) }
func (m *Rreaddir) Decode(b *Buffer) {
	m.Data = append([]byte(nil), b.ReadBlob()...)
}
func (m *Rreaddir) String() string { return fmt.Sprintf("Rreaddir{%d bytes}", len(m.Data)) }

type Tmkdir struct {
	Dfid Fid
	Name string
	Mode uint32
	Gid  uint32
}

func (*Tmkdir) Type() MsgType { return msgTmkdir }
func (m *Tmkdir) Encode(b *Buffer) {
	b.Write32(uint32(m.Dfid))
	b.WriteString(m.Name)
	b.Write32(m.Mode)
	b.Write32(m.Gid)
}
func (m *Tmkdir) Decode(b *Buffer) {
	m.Dfid = Fid(b.Read32())
	m.Name = b.ReadString()
	m.Mode = b.Read32()
	m.Gid = b.Read32()
}
func (m *Tmkdir) String() string {
	return fmt.Sprintf("Tmkdir{dfid=%d name=%q mode=%#o gid=%d}", m.Dfid, m.Name, m.Mode, m.Gid)
}

type Rmkdir struct {
	Qid Qid
}

func (*Rmkdir) Type() MsgType      { return msgRmkdir }
func (m *Rmkdir) Encode(b *Buffer) { m.Qid.Encode(b) }
func (m *Rmkdir) Decode(b *Buffer) { m.Qid.Decode(b) }
func (m *Rmkdir) String() string   { return fmt.Sprintf("Rmkdir{%s}", m.Qid) }

type Trename struct {
	Fid  Fid
	Dfid Fid
	Name string
}

func (*Trename) Type() MsgType { return msgTrename }
func (m *Trename) Encode(b *Buffer) {
	b.Write32(uint32(m.Fid))
	b.Write32(uint32(m.Dfid))
	b.WriteString(m.Name)
}
func (m *Trename) Decode(b *Buffer) {
	m.Fid = Fid(b.Read32())
	m.Dfid = Fid(b.Read32())
	m.Name = b.ReadString()
}
func (m *Trename) String() string {
	return fmt.Sprintf("Trename{fid=%d dfid=%d name=%q}", m.Fid, m.Dfid, m.Name)
}

type Rrename struct{}

func (*Rrename) Type() MsgType    { return msgRrename }
func (*Rrename) Encode(b *Buffer) {}
func (*Rrename) Decode(b *Buffer) {}
func (*Rrename) String() string   { return "Rrename{}" }

type Trenameat struct {
	OldDirFid Fid
	OldName   string
	NewDirFid Fid
	NewName   string
}

func (*Trenameat) Type() MsgType { return msgTrenameat }
func (m *Trenameat) Encode(b *Buffer) {
	b.Write32(uint32(m.OldDirFid))
	b.WriteString(m.OldName)
	b.Write32(uint32(m.NewDirFid))
	b.WriteString(m.NewName)
}
func (m *Trenameat) Decode(b *Buffer) {
	m.OldDirFid = Fid(b.Read32())
	m.OldName = b.ReadString()
	m.NewDirFid = Fid(b.Read32())
	m.NewName = b.ReadString()
}
func (m *Trenameat) String() string {
	return fmt.Sprintf("Trenameat{olddirfid=%d oldname=%q newdirfid=%d newname=%q}",
		m.OldDirFid, m.OldName, m.NewDirFid, m.NewName)
}

type Rrenameat struct{}

func (*Rrenameat) Type() MsgType    { return msgRrenameat }
func (*Rrenameat) Encode(b *Buffer) {}
func (*Rrenameat) Decode(b *Buffer) {}
func (*Rrenameat) String() string   { return "Rrenameat{}" }

type Tunlinkat struct {
	DirFid Fid
	Name   string
	Flags  uint32
}

func (*Tunlinkat) Type() MsgType { return msgTunlinkat }
func (m *Tunlinkat) Encode(b *Buffer) {
	b.Write32(uint32(m.DirFid))
	b.WriteString(m.Name)
	b.Write32(m.Flags)
}
func (m *Tunlinkat) Decode(b *Buffer) {
	m.DirFid = Fid(b.Read32())
	m.Name = b.ReadString()
	m.Flags = b.Read32()
}
func (m *Tunlinkat) String() string {
	return fmt.Sprintf("Tunlinkat{dirfid=%d name=%q flags=%#x}", m.DirFid, m.Name, m.Flags)
}

type Runlinkat struct{}

func (*Runlinkat) Type() MsgType    { return msgRunlinkat }
func (*Runlinkat) Encode(b *Buffer) {}
func (*Runlinkat) Decode(b *Buffer) {}
func (*Runlinkat) String() string   { return "Runlinkat{}" }
