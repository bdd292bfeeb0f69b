package corral

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lunixbochs/corral/go/models"
	"github.com/lunixbochs/corral/go/models/cpu"
)

// RegVal pairs a register with a value for RegWriteBatch.
type RegVal struct {
	Reg int
	Val uint64
}

// RegSize returns the declared width of reg in bytes.
func (e *Engine) RegSize(reg int) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	size, ok := e.mode.RegSize(reg)
	if !ok {
		return 0, errors.Wrapf(ErrArg, "unknown %s register %d", e.arch.Name, reg)
	}
	return size, nil
}

func (e *Engine) checkRegs(regs []int) error {
	for _, reg := range regs {
		if _, ok := e.mode.RegSize(reg); !ok {
			return errors.Wrapf(ErrArg, "unknown %s register %d", e.arch.Name, reg)
		}
	}
	return nil
}

func (e *Engine) RegRead(reg int) (uint64, error) {
	if _, err := e.RegSize(reg); err != nil {
		return 0, err
	}
	val, err := e.cpu.RegRead(reg)
	return val, backendErr(err, "reg read")
}

func (e *Engine) RegWrite(reg int, val uint64) error {
	if _, err := e.RegSize(reg); err != nil {
		return err
	}
	return backendErr(e.cpu.RegWrite(reg, val), "reg write")
}

func (e *Engine) RegReadBatch(regs []int) ([]uint64, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if err := e.checkRegs(regs); err != nil {
		return nil, err
	}
	vals, err := e.cpu.RegReadBatch(regs)
	return vals, backendErr(err, "reg read batch")
}

// RegWriteBatch writes every pair or, if any register is unknown, none of them.
func (e *Engine) RegWriteBatch(vals []RegVal) error {
	if err := e.check(); err != nil {
		return err
	}
	regs := make([]int, len(vals))
	nums := make([]uint64, len(vals))
	for i, v := range vals {
		regs[i], nums[i] = v.Reg, v.Val
	}
	if err := e.checkRegs(regs); err != nil {
		return err
	}
	return backendErr(e.cpu.RegWriteBatch(regs, nums), "reg write batch")
}

// RegReadBytes returns reg as its declared width in host byte order.
func (e *Engine) RegReadBytes(reg int) ([]byte, error) {
	size, err := e.RegSize(reg)
	if err != nil {
		return nil, err
	}
	p := make([]byte, size)
	if size > 8 {
		wide, ok := e.cpu.(cpu.WideRegs)
		if !ok {
			return nil, errors.Wrapf(ErrArg, "engine cannot read %d byte registers", size)
		}
		return p, backendErr(wide.RegReadBytes(reg, p), "reg read")
	}
	val, err := e.cpu.RegRead(reg)
	if err != nil {
		return nil, backendErr(err, "reg read")
	}
	return cpu.PackUint(binary.NativeEndian, size, p, val)
}

// RegWriteBytes sets reg from p, which must be exactly the declared width.
func (e *Engine) RegWriteBytes(reg int, p []byte) error {
	size, err := e.RegSize(reg)
	if err != nil {
		return err
	}
	if len(p) != size {
		return errors.Wrapf(ErrArg, "register %d is %d bytes, got %d", reg, size, len(p))
	}
	if size > 8 {
		wide, ok := e.cpu.(cpu.WideRegs)
		if !ok {
			return errors.Wrapf(ErrArg, "engine cannot write %d byte registers", size)
		}
		return backendErr(wide.RegWriteBytes(reg, p), "reg write")
	}
	val, err := cpu.UnpackUint(binary.NativeEndian, size, p)
	if err != nil {
		return err
	}
	return backendErr(e.cpu.RegWrite(reg, val), "reg write")
}

// RegDump reads every declared register up to eight bytes wide, in natural name order.
func (e *Engine) RegDump() ([]models.RegVal, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.mode.RegDump(e)
}

func (e *Engine) PC() (uint64, error) { return e.RegRead(e.mode.PC) }

func (e *Engine) SP() (uint64, error) { return e.RegRead(e.mode.SP) }

// PushBytes moves the stack pointer down by len(p) and writes p there.
func (e *Engine) PushBytes(p []byte) (uint64, error) {
	sp, err := e.SP()
	if err != nil {
		return 0, err
	}
	sp -= uint64(len(p))
	if err := e.MemWrite(sp, p); err != nil {
		return 0, err
	}
	return sp, e.RegWrite(e.mode.SP, sp)
}

// PopBytes fills p from the stack and moves the stack pointer up.
func (e *Engine) PopBytes(p []byte) error {
	sp, err := e.SP()
	if err != nil {
		return err
	}
	if err := e.MemReadInto(p, sp); err != nil {
		return err
	}
	return e.RegWrite(e.mode.SP, sp+uint64(len(p)))
}

// Push pushes a pointer-sized value.
func (e *Engine) Push(n uint64) (uint64, error) {
	var tmp [8]byte
	buf, err := cpu.PackUint(e.mode.Order, e.mode.Bits/8, tmp[:], n)
	if err != nil {
		return 0, err
	}
	return e.PushBytes(buf)
}

func (e *Engine) Pop() (uint64, error) {
	var buf [8]byte
	size := e.mode.Bits / 8
	if err := e.PopBytes(buf[:size]); err != nil {
		return 0, err
	}
	return cpu.UnpackUint(e.mode.Order, size, buf[:size])
}
