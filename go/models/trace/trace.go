package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	corral "github.com/lunixbochs/corral/go"
	"github.com/lunixbochs/corral/go/models/cpu"
)

const (
	TRACE_MAGIC   = "CRTR"
	TRACE_VERSION = 1
)

type Header struct {
	// MAGIC ("CRTR")
	Magic   string `struc:"[4]byte"`
	Version uint32
	// architecture name, right-null-padded
	Arch string `struc:"[32]byte"`
	Mode uint32
	// 0 for little, 1 for big
	OrderNum uint8
	Order    binary.ByteOrder `struc:"skip"`
}

// Config selects which events are recorded.
type Config struct {
	Block bool
	Ins   bool
	Mem   bool
	Reg   bool
}

// Writer records an engine's execution as a snappy-compressed op stream.
type Writer struct {
	w   io.Writer
	zw  *snappy.Writer
	buf []byte
	// first error from a write made inside a hook
	err error

	e      *corral.Engine
	hooks  []*corral.Hook
	regs   map[int]uint64
	config Config
}

func NewWriter(w io.Writer, e *corral.Engine) (*Writer, error) {
	header := &Header{
		Magic:   TRACE_MAGIC,
		Version: TRACE_VERSION,
		Arch:    e.Arch().Name,
		Mode:    uint32(e.Mode()),
	}
	if e.ByteOrder() == binary.BigEndian {
		header.OrderNum = 1
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{w: w, zw: snappy.NewBufferedWriter(w), e: e}, nil
}

// Pack writes one op.
func (t *Writer) Pack(op Op) error {
	if t.err != nil {
		return t.err
	}
	size := op.Sizeof()
	if cap(t.buf) < size {
		t.buf = make([]byte, size)
	}
	p := t.buf[:size]
	op.Pack(p)
	if _, err := t.zw.Write(p); err != nil {
		t.err = errors.Wrap(err, "trace write failed")
	}
	return t.err
}

func (t *Writer) hook(htype int, cb interface{}) error {
	hh, err := t.e.HookAdd(htype, cb, 1, 0)
	if err != nil {
		return errors.Wrap(err, "HookAdd failed")
	}
	t.hooks = append(t.hooks, hh)
	return nil
}

// keyframe captures registers and every mapped region.
func (t *Writer) keyframe() (*OpKeyframe, error) {
	kf := &OpKeyframe{}
	regs, err := t.e.RegDump()
	if err != nil {
		return nil, err
	}
	t.regs = make(map[int]uint64, len(regs))
	for _, r := range regs {
		t.regs[r.Enum] = r.Val
		kf.Ops = append(kf.Ops, &OpReg{Num: uint16(r.Enum), Val: r.Val})
	}
	regions, err := t.e.MemRegions()
	if err != nil {
		return nil, err
	}
	for _, m := range regions {
		kf.Ops = append(kf.Ops, &OpMemMap{Addr: m.Addr, Size: m.Size, Prot: uint8(m.Prot)})
		// write-only regions are recorded without contents
		if m.Prot&cpu.PROT_READ == 0 {
			continue
		}
		data, err := t.e.MemRead(m.Addr, m.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read mapping at %#x", m.Addr)
		}
		kf.Ops = append(kf.Ops, &OpMemWrite{Addr: m.Addr, Data: data})
	}
	return kf, nil
}

// OnRegUpdate records every register that changed since the last update.
func (t *Writer) OnRegUpdate() {
	regs, err := t.e.RegDump()
	if err != nil {
		return
	}
	for _, r := range regs {
		if old, ok := t.regs[r.Enum]; !ok || old != r.Val {
			t.regs[r.Enum] = r.Val
			t.Pack(&OpReg{Num: uint16(r.Enum), Val: r.Val})
		}
	}
}

// Attach writes a keyframe and installs the hooks selected by config.
func (t *Writer) Attach(config Config) error {
	if t.hooks != nil {
		return errors.New("trace already attached")
	}
	kf, err := t.keyframe()
	if err != nil {
		return errors.Wrap(err, "keyframe failed")
	}
	if err := t.Pack(kf); err != nil {
		return err
	}
	t.config = config
	if config.Block || config.Ins || config.Reg {
		err := t.hook(cpu.HOOK_BLOCK, func(_ *corral.Engine, addr uint64, size uint32) {
			if config.Reg {
				t.OnRegUpdate()
			}
			t.Pack(&OpJmp{Addr: addr, Size: size})
		})
		if err != nil {
			return err
		}
	}
	if config.Ins {
		err := t.hook(cpu.HOOK_CODE, func(_ *corral.Engine, addr uint64, size uint32) {
			t.Pack(&OpStep{Size: uint8(size)})
		})
		if err != nil {
			t.Detach()
			return err
		}
	}
	if config.Mem {
		err := t.hook(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, func(e *corral.Engine, access int, addr uint64, size int, val int64) {
			if access == cpu.MEM_WRITE {
				var tmp [8]byte
				if data, err := cpu.PackUint(e.ByteOrder(), size, tmp[:], uint64(val)); err == nil {
					t.Pack(&OpMemWrite{Addr: addr, Data: data})
				}
			} else {
				t.Pack(&OpMemRead{Addr: addr, Size: uint32(size)})
			}
		})
		if err != nil {
			t.Detach()
			return err
		}
	}
	return nil
}

// Detach removes the trace hooks. Hooks already gone with their engine are ignored.
func (t *Writer) Detach() {
	for _, hh := range t.hooks {
		if hh.Active() {
			hh.Remove()
		}
	}
	t.hooks = nil
}

// Exit records the result of a run.
func (t *Writer) Exit(err error) error {
	if t.config.Reg {
		t.OnRegUpdate()
	}
	return t.Pack(&OpExit{Err: uint32(corral.ErrOf(err))})
}

// Close detaches and flushes the op stream. The underlying writer is left open.
func (t *Writer) Close() error {
	t.Detach()
	if err := t.zw.Close(); err != nil && t.err == nil {
		t.err = err
	}
	return t.err
}

type Reader struct {
	zr     *snappy.Reader
	Header Header
}

func NewReader(r io.Reader) (*Reader, error) {
	t := &Reader{}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	switch t.Header.OrderNum {
	case 0:
		t.Header.Order = binary.LittleEndian
	case 1:
		t.Header.Order = binary.BigEndian
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns the next op, or io.EOF at the end of the stream.
func (t *Reader) Next() (Op, error) {
	op, _, err := Unpack(t.zr, false)
	return op, err
}
