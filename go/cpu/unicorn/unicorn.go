//go:build unicorn

package unicorn

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// Builder opens Unicorn engines for one architecture. UcMode is or'd into
// the mode passed to New, for flags the control layer does not track.
type Builder struct {
	Arch   int
	UcMode int
}

func (b *Builder) New(mode int) (cpu.Cpu, error) {
	u, err := uc.NewUnicorn(b.Arch, mode|b.UcMode)
	if err != nil {
		return nil, convert(errors.Wrap(err, "NewUnicorn() failed"))
	}
	Logger().Debug("unicorn open", zap.Int("arch", b.Arch), zap.Int("mode", mode|b.UcMode))
	return &UnicornCpu{Unicorn: u}, nil
}

// pin keeps a caller buffer in place for as long as any of it is mapped.
type pin struct {
	pinner     runtime.Pinner
	addr, size uint64
	mapped     uint64
}

type UnicornCpu struct {
	uc.Unicorn
	pins []*pin
}

// convert turns binding errors into the cpu error taxonomy.
func convert(err error) error {
	if err == nil {
		return nil
	}
	var ue uc.UcError
	if errors.As(err, &ue) {
		if e := cpu.Err(ue); e.Valid() {
			return e
		}
	}
	return err
}

func (u *UnicornCpu) Backend() interface{} {
	return u.Unicorn
}

func (u *UnicornCpu) MemMapProt(addr, size uint64, prot int) error {
	return convert(u.Unicorn.MemMapProt(addr, size, prot))
}

func (u *UnicornCpu) MemMapPtr(addr, size uint64, prot int, data []byte) error {
	if size == 0 || uint64(len(data)) < size {
		return cpu.ERR_ARG
	}
	p := &pin{addr: addr, size: size, mapped: size}
	p.pinner.Pin(&data[0])
	if err := u.Unicorn.MemMapPtr(addr, size, prot, unsafe.Pointer(&data[0])); err != nil {
		p.pinner.Unpin()
		return convert(err)
	}
	u.pins = append(u.pins, p)
	return nil
}

func (u *UnicornCpu) MemProt(addr, size uint64, prot int) error {
	return convert(u.Unicorn.MemProtect(addr, size, prot))
}

func (u *UnicornCpu) MemUnmap(addr, size uint64) error {
	if err := u.Unicorn.MemUnmap(addr, size); err != nil {
		return convert(err)
	}
	u.release(addr, size)
	return nil
}

// release unpins any caller buffer that no longer backs a mapping.
func (u *UnicornCpu) release(addr, size uint64) {
	end := addr + size
	kept := u.pins[:0]
	for _, p := range u.pins {
		if lo, hi := max(addr, p.addr), min(end, p.addr+p.size); lo < hi {
			p.mapped -= hi - lo
		}
		if p.mapped == 0 {
			p.pinner.Unpin()
		} else {
			kept = append(kept, p)
		}
	}
	u.pins = kept
}

func (u *UnicornCpu) MemRegions() ([]cpu.MemRegion, error) {
	regions, err := u.Unicorn.MemRegions()
	if err != nil {
		return nil, convert(err)
	}
	ret := make([]cpu.MemRegion, len(regions))
	for i, r := range regions {
		ret[i] = cpu.MemRegion{Addr: r.Begin, Size: r.End - r.Begin + 1, Prot: r.Prot}
	}
	return ret, nil
}

func (u *UnicornCpu) MemRead(addr, size uint64) ([]byte, error) {
	p, err := u.Unicorn.MemRead(addr, size)
	return p, convert(err)
}

func (u *UnicornCpu) MemReadInto(p []byte, addr uint64) error {
	return convert(u.Unicorn.MemReadInto(p, addr))
}

func (u *UnicornCpu) MemWrite(addr uint64, p []byte) error {
	return convert(u.Unicorn.MemWrite(addr, p))
}

func (u *UnicornCpu) RegRead(reg int) (uint64, error) {
	val, err := u.Unicorn.RegRead(reg)
	return val, convert(err)
}

func (u *UnicornCpu) RegWrite(reg int, val uint64) error {
	return convert(u.Unicorn.RegWrite(reg, val))
}

func (u *UnicornCpu) RegReadBatch(regs []int) ([]uint64, error) {
	vals, err := u.Unicorn.RegReadBatch(regs)
	return vals, convert(err)
}

func (u *UnicornCpu) RegWriteBatch(regs []int, vals []uint64) error {
	return convert(u.Unicorn.RegWriteBatch(regs, vals))
}

func (u *UnicornCpu) Start(begin, until uint64) error {
	return convert(u.Unicorn.Start(begin, until))
}

func (u *UnicornCpu) StartWithOptions(begin, until uint64, opts *cpu.StartOptions) error {
	var ucOpts uc.UcOptions
	if opts != nil {
		ucOpts.Count = opts.Count
		if opts.Timeout > 0 {
			// unicorn counts in microseconds, and zero means no timeout
			ucOpts.Timeout = uint64(max(opts.Timeout/time.Microsecond, 1))
		}
	}
	return convert(u.Unicorn.StartWithOptions(begin, until, &ucOpts))
}

func (u *UnicornCpu) Stop() error {
	return convert(u.Unicorn.Stop())
}

func (u *UnicornCpu) Query(q int) (uint64, error) {
	val, err := u.Unicorn.Query(q)
	return val, convert(err)
}

// HookAdd wraps every callback so it receives this adapter instead of the raw binding.
func (u *UnicornCpu) HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (cpu.Hook, error) {
	var wrap interface{}
	switch cbc := cb.(type) {
	case cpu.CodeCb:
		wrap = func(_ uc.Unicorn, addr uint64, size uint32) { cbc(u, addr, size) }
	case cpu.IntrCb:
		wrap = func(_ uc.Unicorn, intno uint32) { cbc(u, intno) }
	case cpu.IntrHandledCb:
		// unicorn has no notion of an unhandled interrupt
		wrap = func(_ uc.Unicorn, intno uint32) { cbc(u, intno) }
	case cpu.MemCb:
		wrap = func(_ uc.Unicorn, access int, addr uint64, size int, val int64) { cbc(u, access, addr, size, val) }
	case cpu.MemFaultCb:
		wrap = func(_ uc.Unicorn, access int, addr uint64, size int, val int64) bool {
			return cbc(u, access, addr, size, val)
		}
	case cpu.InCb:
		wrap = func(_ uc.Unicorn, port, size uint32) uint32 { return cbc(u, port, size) }
	case cpu.OutCb:
		wrap = func(_ uc.Unicorn, port, size, val uint32) { cbc(u, port, size, val) }
	case cpu.SyscallCb:
		wrap = func(_ uc.Unicorn) { cbc(u) }
	case cpu.InvalidCb:
		wrap = func(_ uc.Unicorn) bool { return cbc(u) }
	default:
		return nil, cpu.ERR_ARG
	}
	hh, err := u.Unicorn.HookAdd(htype, wrap, begin, end, extra...)
	if err != nil {
		// the binding rejects hook kinds it cannot wrap with a plain error
		if e := convert(err); e != err {
			return nil, e
		}
		return nil, errors.Wrap(cpu.ERR_HOOK, err.Error())
	}
	return hh, nil
}

func (u *UnicornCpu) HookDel(hh cpu.Hook) error {
	h, ok := hh.(uc.Hook)
	if !ok {
		return cpu.ERR_ARG
	}
	return convert(u.Unicorn.HookDel(h))
}

func (u *UnicornCpu) ContextSave(reuse interface{}) (interface{}, error) {
	ctx, _ := reuse.(uc.Context)
	ctx, err := u.Unicorn.ContextSave(ctx)
	if err != nil {
		return nil, convert(err)
	}
	return ctx, nil
}

func (u *UnicornCpu) ContextRestore(ctx interface{}) error {
	c, ok := ctx.(uc.Context)
	if !ok {
		return cpu.ERR_ARG
	}
	return convert(u.Unicorn.ContextRestore(c))
}

func (u *UnicornCpu) Close() error {
	err := u.Unicorn.Close()
	for _, p := range u.pins {
		p.pinner.Unpin()
	}
	u.pins = nil
	return convert(err)
}

func (u *UnicornCpu) String() string {
	return fmt.Sprintf("<UnicornCpu %d pinned>", len(u.pins))
}
