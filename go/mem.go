package corral

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// checkRange validates page alignment and that the range fits the address space.
func (e *Engine) checkRange(addr, size uint64) error {
	mask := e.pageSize - 1
	if size == 0 || addr&mask != 0 || size&mask != 0 {
		return errors.Wrapf(ErrArg, "range %#x+%#x is not aligned to %#x", addr, size, e.pageSize)
	}
	if last := addr + size - 1; last < addr || last > e.mask {
		return errors.Wrapf(ErrArg, "range %#x+%#x is outside the address space", addr, size)
	}
	return nil
}

func checkProt(prot int) error {
	if prot&^cpu.PROT_ALL != 0 {
		return errors.Wrapf(ErrArg, "invalid protection %#x", prot)
	}
	return nil
}

func (e *Engine) checkMap(addr, size uint64, prot int) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.checkRange(addr, size); err != nil {
		return err
	}
	return checkProt(prot)
}

// MemMap maps zeroed memory at [addr, addr+size).
func (e *Engine) MemMap(addr, size uint64, prot int) error {
	if err := e.checkMap(addr, size, prot); err != nil {
		return err
	}
	return e.memMap(addr, size, prot, nil)
}

// MemMapPtr maps buf as the backing memory of [addr, addr+size). The buffer is not
// copied and must stay alive until the range is unmapped or the engine is closed.
func (e *Engine) MemMapPtr(addr, size uint64, prot int, buf []byte) error {
	if err := e.checkMap(addr, size, prot); err != nil {
		return err
	}
	if uint64(len(buf)) < size {
		return errors.Wrapf(ErrArg, "%d byte buffer cannot back %#x bytes", len(buf), size)
	}
	return e.memMap(addr, size, prot, buf[:size])
}

func (e *Engine) memMap(addr, size uint64, prot int, buf []byte) error {
	if len(e.regions.overlapping(addr, size)) > 0 {
		return errors.Wrapf(ErrMap, "%#x+%#x overlaps a mapped region", addr, size)
	}
	var err error
	if buf != nil {
		err = e.cpu.MemMapPtr(addr, size, prot, buf)
	} else {
		err = e.cpu.MemMapProt(addr, size, prot)
	}
	if err != nil {
		return backendErr(err, "mem map")
	}
	e.regions.insert(&region{addr: addr, size: size, prot: prot, ext: buf})
	e.log.Debug("mem map", zap.Uint64("addr", addr), zap.Uint64("size", size),
		zap.String("prot", cpu.ProtString(prot)), zap.Bool("ext", buf != nil))
	return nil
}

// MemUnmap removes every mapped byte in [addr, addr+size), splitting regions that
// straddle the edges. Holes inside the range are allowed.
func (e *Engine) MemUnmap(addr, size uint64) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.checkRange(addr, size); err != nil {
		return err
	}
	last := addr + size - 1
	for _, r := range e.regions.overlapping(addr, size) {
		lo, hi := max(r.addr, addr), min(r.last(), last)
		if err := e.cpu.MemUnmap(lo, hi-lo+1); err != nil {
			return backendErr(err, "mem unmap")
		}
		for _, rr := range e.regions.isolate(lo, hi-lo+1) {
			e.regions.remove(rr)
		}
	}
	e.log.Debug("mem unmap", zap.Uint64("addr", addr), zap.Uint64("size", size))
	return nil
}

// MemProtect replaces the protection of a fully mapped range.
func (e *Engine) MemProtect(addr, size uint64, prot int) error {
	if err := e.checkMap(addr, size, prot); err != nil {
		return err
	}
	if !e.regions.covered(addr, size) {
		return errors.Wrapf(ErrMap, "%#x+%#x is not fully mapped", addr, size)
	}
	if err := e.cpu.MemProt(addr, size, prot); err != nil {
		return backendErr(err, "mem protect")
	}
	for _, r := range e.regions.isolate(addr, size) {
		r.prot = prot
	}
	e.log.Debug("mem protect", zap.Uint64("addr", addr), zap.Uint64("size", size),
		zap.String("prot", cpu.ProtString(prot)))
	return nil
}

// MemRegions returns the mapped regions in address order.
func (e *Engine) MemRegions() ([]MemRegion, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.regions.list(), nil
}

// access checks a host access against the region index before touching the engine.
func (e *Engine) access(addr uint64, size int, write bool) error {
	if size == 0 {
		return nil
	}
	prot, unmapped, denied := cpu.PROT_READ, cpu.MEM_READ_UNMAPPED, cpu.MEM_READ_PROT
	if write {
		prot, unmapped, denied = cpu.PROT_WRITE, cpu.MEM_WRITE_UNMAPPED, cpu.MEM_WRITE_PROT
	}
	if addr+uint64(size)-1 < addr {
		return &cpu.MemError{Addr: addr, Size: size, Enum: unmapped}
	}
	mapped, allowed := e.regions.access(addr, uint64(size), prot)
	if !mapped {
		return &cpu.MemError{Addr: addr, Size: size, Enum: unmapped}
	} else if !allowed {
		return &cpu.MemError{Addr: addr, Size: size, Enum: denied}
	}
	return nil
}

func (e *Engine) MemRead(addr, size uint64) ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if size > math.MaxInt32 {
		return nil, errors.Wrapf(ErrArg, "read of %#x bytes", size)
	}
	p := make([]byte, size)
	if err := e.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

// MemReadInto fills p from addr. Every byte must be mapped readable.
func (e *Engine) MemReadInto(p []byte, addr uint64) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.access(addr, len(p), false); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return backendErr(e.cpu.MemReadInto(p, addr), "mem read")
}

// MemWrite writes p at addr. Nothing is written unless every byte is mapped writable.
func (e *Engine) MemWrite(addr uint64, p []byte) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.access(addr, len(p), true); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return backendErr(e.cpu.MemWrite(addr, p), "mem write")
}

// MemReadUint reads a size byte integer in the engine's byte order.
func (e *Engine) MemReadUint(addr uint64, size int) (uint64, error) {
	if size <= 0 || size > 8 {
		return 0, errors.Wrapf(ErrArg, "MemReadUint size %d", size)
	}
	var buf [8]byte
	if err := e.MemReadInto(buf[:size], addr); err != nil {
		return 0, err
	}
	return cpu.UnpackUint(e.mode.Order, size, buf[:size])
}

func (e *Engine) MemWriteUint(addr uint64, size int, val uint64) error {
	var buf [8]byte
	p, err := cpu.PackUint(e.mode.Order, size, buf[:], val)
	if err != nil {
		return err
	}
	return e.MemWrite(addr, p)
}

// MemReadString reads a NUL-terminated string, a page at a time.
func (e *Engine) MemReadString(addr uint64) (string, error) {
	var out []byte
	for {
		n := e.pageSize - addr&(e.pageSize-1)
		p, err := e.MemRead(addr, n)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(p, 0); i >= 0 {
			return string(append(out, p[:i]...)), nil
		}
		out = append(out, p...)
		if addr+n < addr {
			return "", &cpu.MemError{Addr: 0, Size: 1, Enum: cpu.MEM_READ_UNMAPPED}
		}
		addr += n
	}
}

// Mmap maps size bytes, rounded up to a page, at the first free address at or above hint.
func (e *Engine) Mmap(hint, size uint64, prot int) (uint64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	mask := e.pageSize - 1
	size = (size + mask) &^ mask
	addr := (hint + mask) &^ mask
	if size == 0 || addr < hint {
		return 0, errors.Wrapf(ErrArg, "mmap %#x+%#x", hint, size)
	}
	for {
		if last := addr + size - 1; last < addr || last > e.mask {
			return 0, errors.Wrapf(ErrNoMem, "no %#x byte hole above %#x", size, hint)
		}
		used := e.regions.overlapping(addr, size)
		if len(used) == 0 {
			return addr, e.MemMap(addr, size, prot)
		}
		last := used[len(used)-1].last()
		if last == math.MaxUint64 {
			return 0, errors.Wrapf(ErrNoMem, "no %#x byte hole above %#x", size, hint)
		}
		addr = last + 1
	}
}

// MemReader reads sequentially from guest memory.
type MemReader struct {
	E    *Engine
	Addr uint64
}

func (m *MemReader) Read(p []byte) (int, error) {
	if err := m.E.MemReadInto(p, m.Addr); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

// MemWriter writes sequentially into guest memory.
type MemWriter struct {
	E    *Engine
	Addr uint64
}

func (m *MemWriter) Write(p []byte) (int, error) {
	if err := m.E.MemWrite(m.Addr, p); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}
