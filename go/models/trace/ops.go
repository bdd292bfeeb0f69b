package trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var order = binary.LittleEndian

const (
	OP_NOP       = 0
	OP_KEYFRAME  = 1
	OP_JMP       = 2
	OP_STEP      = 3
	OP_REG       = 4
	OP_MEM_READ  = 5
	OP_MEM_WRITE = 6
	OP_MEM_MAP   = 7
	OP_EXIT      = 8
)

// Op is one trace record. Pack writes exactly Sizeof bytes, leading with the op number.
// Unpack reads the record body that follows the op number.
type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}

var opTypes = map[byte]func() Op{
	OP_NOP:       func() Op { return &OpNop{} },
	OP_KEYFRAME:  func() Op { return &OpKeyframe{} },
	OP_JMP:       func() Op { return &OpJmp{} },
	OP_STEP:      func() Op { return &OpStep{} },
	OP_REG:       func() Op { return &OpReg{} },
	OP_MEM_READ:  func() Op { return &OpMemRead{} },
	OP_MEM_WRITE: func() Op { return &OpMemWrite{} },
	OP_MEM_MAP:   func() Op { return &OpMemMap{} },
	OP_EXIT:      func() Op { return &OpExit{} },
}

// Unpack reads one op. Keyframes cannot nest.
func Unpack(r io.Reader, nested bool) (Op, int, error) {
	var num [1]byte
	if _, err := io.ReadFull(r, num[:]); err != nil {
		return nil, 0, err
	}
	mk, ok := opTypes[num[0]]
	if !ok {
		return nil, 1, errors.Errorf("unknown op: %d", num[0])
	}
	if nested && num[0] == OP_KEYFRAME {
		return nil, 1, errors.New("nested keyframe")
	}
	op := mk()
	n, err := op.Unpack(r)
	return op, n + 1, err
}

// sliceWriter fills a preallocated record.
type sliceWriter struct{ p []byte }

func (s *sliceWriter) Write(b []byte) (int, error) {
	n := copy(s.p, b)
	s.p = s.p[n:]
	return n, nil
}

// fixed-size records are their struct fields in order, after the op number
func fixedSize(v interface{}) int { return 1 + binary.Size(v) }

func packFixed(p []byte, num byte, v interface{}) {
	p[0] = num
	binary.Write(&sliceWriter{p[1:]}, order, v)
}

func unpackFixed(r io.Reader, v interface{}) (int, error) {
	if err := binary.Read(r, order, v); err != nil {
		return 0, err
	}
	return binary.Size(v), nil
}

type OpNop struct{}

func (o *OpNop) Sizeof() int                     { return 1 }
func (o *OpNop) Pack(p []byte)                   { p[0] = OP_NOP }
func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

// OpKeyframe carries the machine state when tracing starts.
type OpKeyframe struct {
	Ops []Op
}

func (o *OpKeyframe) Sizeof() int {
	size := 1 + 4
	for _, op := range o.Ops {
		size += op.Sizeof()
	}
	return size
}

func (o *OpKeyframe) Pack(p []byte) {
	p[0] = OP_KEYFRAME
	order.PutUint32(p[1:], uint32(len(o.Ops)))
	p = p[5:]
	for _, op := range o.Ops {
		op.Pack(p)
		p = p[op.Sizeof():]
	}
}

func (o *OpKeyframe) Unpack(r io.Reader) (int, error) {
	var count uint32
	if err := binary.Read(r, order, &count); err != nil {
		return 0, errors.Wrap(err, "keyframe unpack")
	}
	total := 4
	o.Ops = make([]Op, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		op, n, err := Unpack(r, true)
		total += n
		if err != nil {
			return total, errors.Wrap(err, "unpacking keyframe ops")
		}
		o.Ops = append(o.Ops, op)
	}
	return total, nil
}

// OpJmp marks entry to a basic block.
type OpJmp struct {
	Addr uint64
	Size uint32
}

func (o *OpJmp) Sizeof() int                     { return fixedSize(o) }
func (o *OpJmp) Pack(p []byte)                   { packFixed(p, OP_JMP, o) }
func (o *OpJmp) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }

// OpStep is one executed instruction, at the address following the previous one.
type OpStep struct {
	Size uint8
}

func (o *OpStep) Sizeof() int                     { return fixedSize(o) }
func (o *OpStep) Pack(p []byte)                   { packFixed(p, OP_STEP, o) }
func (o *OpStep) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }

type OpReg struct {
	Num uint16
	Val uint64
}

func (o *OpReg) Sizeof() int                     { return fixedSize(o) }
func (o *OpReg) Pack(p []byte)                   { packFixed(p, OP_REG, o) }
func (o *OpReg) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }

type OpMemRead struct {
	Addr uint64
	Size uint32
}

func (o *OpMemRead) Sizeof() int                     { return fixedSize(o) }
func (o *OpMemRead) Pack(p []byte)                   { packFixed(p, OP_MEM_READ, o) }
func (o *OpMemRead) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }

// OpMemWrite is the only record with a variable body: addr, length, then data.
type OpMemWrite struct {
	Addr uint64
	Data []byte
}

func (o *OpMemWrite) Sizeof() int { return 1 + 8 + 4 + len(o.Data) }
func (o *OpMemWrite) Pack(p []byte) {
	p[0] = OP_MEM_WRITE
	order.PutUint64(p[1:], o.Addr)
	order.PutUint32(p[9:], uint32(len(o.Data)))
	copy(p[13:], o.Data)
}

func (o *OpMemWrite) Unpack(r io.Reader) (int, error) {
	var head struct {
		Addr uint64
		Len  uint32
	}
	if err := binary.Read(r, order, &head); err != nil {
		return 0, err
	}
	o.Addr = head.Addr
	o.Data = make([]byte, head.Len)
	n, err := io.ReadFull(r, o.Data)
	return 12 + n, err
}

type OpMemMap struct {
	Addr uint64
	Size uint64
	Prot uint8
}

func (o *OpMemMap) Sizeof() int                     { return fixedSize(o) }
func (o *OpMemMap) Pack(p []byte)                   { packFixed(p, OP_MEM_MAP, o) }
func (o *OpMemMap) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }

// OpExit ends a run. Err is the error kind the run returned, zero for a clean stop.
type OpExit struct {
	Err uint32
}

func (o *OpExit) Sizeof() int                     { return fixedSize(o) }
func (o *OpExit) Pack(p []byte)                   { packFixed(p, OP_EXIT, o) }
func (o *OpExit) Unpack(r io.Reader) (int, error) { return unpackFixed(r, o) }
