package corral

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// Hook callback shapes. Fault and invalid instruction hooks return true to resume
// the run and IN hooks supply the value read. Every other kind is a notification.
type (
	CodeFunc     func(e *Engine, addr uint64, size uint32)
	IntrFunc     func(e *Engine, intno uint32)
	MemFunc      func(e *Engine, access int, addr uint64, size int, value int64)
	MemFaultFunc func(e *Engine, access int, addr uint64, size int, value int64) bool
	InFunc       func(e *Engine, port, size uint32) uint32
	OutFunc      func(e *Engine, port, size, value uint32)
	SyscallFunc  func(e *Engine)
	InvalidFunc  func(e *Engine) bool
)

// family groups hook kinds that share one native engine hook
type family int

const (
	famCode family = iota
	famBlock
	famIntr
	famMem
	famFault
	famInsn
	famInvalid
)

func familyOf(htype int) (family, error) {
	switch {
	case htype == cpu.HOOK_CODE:
		return famCode, nil
	case htype == cpu.HOOK_BLOCK:
		return famBlock, nil
	case htype == cpu.HOOK_INTR:
		return famIntr, nil
	case htype == cpu.HOOK_INSN:
		return famInsn, nil
	case htype == cpu.HOOK_INSN_INVALID:
		return famInvalid, nil
	case htype != 0 && htype&^cpu.HOOK_MEM_INVALID == 0:
		return famFault, nil
	case htype != 0 && htype&^(cpu.HOOK_MEM_VALID|cpu.HOOK_MEM_READ_AFTER) == 0:
		return famMem, nil
	}
	return 0, errors.Wrapf(ErrHook, "invalid hook type %#x", htype)
}

// Hook is one registered callback. It stays valid until removed or until its engine closes.
type Hook struct {
	e          *Engine
	kind       int
	insn       int
	begin, end uint64
	cb         interface{}
	group      *hookGroup
	removed    bool
}

// Kind returns the HOOK_* bits the hook was registered with.
func (h *Hook) Kind() int { return h.kind }

// Insn returns the instruction id of a HOOK_INSN hook.
func (h *Hook) Insn() int { return h.insn }

// Range returns the address range. begin > end covers every address.
func (h *Hook) Range() (begin, end uint64) { return h.begin, h.end }

func (h *Hook) Active() bool { return !h.removed }

// Remove unregisters the hook. A removed hook never fires again, even later in
// the dispatch that removed it.
func (h *Hook) Remove() error { return h.e.HookDel(h) }

func (h *Hook) ranged() bool { return h.begin <= h.end }

func (h *Hook) contains(addr uint64) bool {
	return !h.ranged() || addr >= h.begin && addr <= h.end
}

func (h *Hook) String() string {
	state := "active"
	if h.removed {
		state = "removed"
	}
	if !h.ranged() {
		return fmt.Sprintf("<Hook %#x %s>", h.kind, state)
	}
	return fmt.Sprintf("<Hook %#x [%#x, %#x] %s>", h.kind, h.begin, h.end, state)
}

type groupKey struct {
	fam  family
	insn int
}

// hookGroup multiplexes its members onto a single native hook whose type and
// range cover all of them. members is replaced on every change, so a dispatch
// in progress keeps iterating the slice it started with.
type hookGroup struct {
	key     groupKey
	native  cpu.Hook
	htype   int
	begin   uint64
	end     uint64
	members []*Hook
}

type hookTable struct {
	e      *Engine
	groups map[groupKey]*hookGroup
}

func newHookTable(e *Engine) *hookTable {
	return &hookTable{e: e, groups: make(map[groupKey]*hookGroup)}
}

// span computes the native hook type and range covering members.
func span(fam family, members []*Hook) (htype int, begin, end uint64) {
	begin, end = ^uint64(0), 0
	all := false
	for _, h := range members {
		if fam == famMem || fam == famFault {
			htype |= h.kind
		} else {
			htype = h.kind
		}
		if !h.ranged() {
			all = true
		} else {
			begin, end = min(begin, h.begin), max(end, h.end)
		}
	}
	if all {
		begin, end = 1, 0
	}
	return htype, begin, end
}

// sync makes the native hook match members, installing the replacement before
// removing the old one so a failure leaves the group untouched.
func (t *hookTable) sync(g *hookGroup, members []*Hook) error {
	c := t.e.cpu
	if len(members) == 0 {
		if g.native == nil {
			return nil
		}
		err := c.HookDel(g.native)
		g.native = nil
		return backendErr(err, "hook del")
	}
	htype, begin, end := span(g.key.fam, members)
	if g.native != nil && htype == g.htype && begin == g.begin && end == g.end {
		return nil
	}
	var extra []int
	if g.key.fam == famInsn {
		extra = []int{g.key.insn}
	}
	native, err := c.HookAdd(htype, t.dispatcher(g), begin, end, extra...)
	if err != nil {
		return backendErr(err, "hook add")
	}
	if g.native != nil {
		if err := c.HookDel(g.native); err != nil {
			c.HookDel(native)
			return backendErr(err, "hook del")
		}
	}
	g.native, g.htype, g.begin, g.end = native, htype, begin, end
	return nil
}

func (t *hookTable) add(h *Hook, fam family) error {
	key := groupKey{fam, h.insn}
	g := t.groups[key]
	if g == nil {
		g = &hookGroup{key: key}
	}
	members := make([]*Hook, len(g.members), len(g.members)+1)
	copy(members, g.members)
	members = append(members, h)
	if err := t.sync(g, members); err != nil {
		return err
	}
	g.members = members
	t.groups[key] = g
	h.group = g
	return nil
}

func (t *hookTable) del(h *Hook) error {
	g := h.group
	members := make([]*Hook, 0, len(g.members))
	for _, m := range g.members {
		if m != h {
			members = append(members, m)
		}
	}
	if err := t.sync(g, members); err != nil {
		return err
	}
	g.members = members
	if len(members) == 0 {
		delete(t.groups, g.key)
	}
	h.removed = true
	return nil
}

// clear marks every hook removed and drops the native hooks.
func (t *hookTable) clear() {
	for key, g := range t.groups {
		if g.native != nil {
			t.e.cpu.HookDel(g.native)
		}
		for _, h := range g.members {
			h.removed = true
		}
		delete(t.groups, key)
	}
}

// recoverHook turns a hook panic into a stopped run. Start raises it again
// once the engine has unwound.
func (e *Engine) recoverHook() {
	if r := recover(); r != nil {
		if e.panicked == nil {
			e.panicked = r
			e.log.Error("hook panic", zap.Any("panic", r))
		}
		e.cpu.Stop()
	}
}

func (t *hookTable) dispatcher(g *hookGroup) interface{} {
	e := t.e
	switch g.key.fam {
	case famCode, famBlock:
		return func(_ cpu.Cpu, addr uint64, size uint32) {
			defer e.recoverHook()
			for _, h := range g.members {
				if e.panicked == nil && !h.removed && h.contains(addr) {
					h.cb.(CodeFunc)(e, addr, size)
				}
			}
		}
	case famIntr:
		// an interrupt nobody in range saw stays unhandled
		return func(_ cpu.Cpu, intno uint32) (handled bool) {
			defer e.recoverHook()
			pc := e.pcOnce()
			for _, h := range g.members {
				if e.panicked == nil && !h.removed && (!h.ranged() || h.contains(pc())) {
					h.cb.(IntrFunc)(e, intno)
					handled = true
				}
			}
			return handled
		}
	case famMem:
		return func(_ cpu.Cpu, access int, addr uint64, size int, value int64) {
			defer e.recoverHook()
			bit := cpu.HookBit(access)
			for _, h := range g.members {
				if e.panicked == nil && !h.removed && h.kind&bit != 0 && h.contains(addr) {
					h.cb.(MemFunc)(e, access, addr, size, value)
				}
			}
		}
	case famFault:
		return func(_ cpu.Cpu, access int, addr uint64, size int, value int64) (resume bool) {
			defer e.recoverHook()
			bit := cpu.HookBit(access)
			for _, h := range g.members {
				if e.panicked == nil && !h.removed && h.kind&bit != 0 && h.contains(addr) {
					if h.cb.(MemFaultFunc)(e, access, addr, size, value) {
						return true
					}
				}
			}
			return false
		}
	case famInvalid:
		return func(_ cpu.Cpu) (resume bool) {
			defer e.recoverHook()
			pc := e.pcOnce()
			for _, h := range g.members {
				if e.panicked == nil && !h.removed && (!h.ranged() || h.contains(pc())) {
					if h.cb.(InvalidFunc)(e) {
						return true
					}
				}
			}
			return false
		}
	}
	// instruction hooks take the shape of their instruction
	switch e.arch.Insns[g.key.insn] {
	case "in":
		return func(_ cpu.Cpu, port, size uint32) (val uint32) {
			defer e.recoverHook()
			for _, h := range g.members {
				if e.panicked == nil && !h.removed {
					val = h.cb.(InFunc)(e, port, size)
				}
			}
			return val
		}
	case "out":
		return func(_ cpu.Cpu, port, size, value uint32) {
			defer e.recoverHook()
			for _, h := range g.members {
				if e.panicked == nil && !h.removed {
					h.cb.(OutFunc)(e, port, size, value)
				}
			}
		}
	}
	return func(_ cpu.Cpu) {
		defer e.recoverHook()
		pc := e.pcOnce()
		for _, h := range g.members {
			if e.panicked == nil && !h.removed && (!h.ranged() || h.contains(pc())) {
				h.cb.(SyscallFunc)(e)
			}
		}
	}
}

// pcOnce reads pc at most once per dispatch.
func (e *Engine) pcOnce() func() uint64 {
	var pc uint64
	read := false
	return func() uint64 {
		if !read {
			pc, _ = e.cpu.RegRead(e.mode.PC)
			read = true
		}
		return pc
	}
}

// callback normalizes cb to the named callback type of its family, accepting
// either the named type or a plain func literal of the same shape.
func (e *Engine) callback(fam family, insn int, cb interface{}) (interface{}, bool) {
	switch fam {
	case famCode, famBlock:
		switch f := cb.(type) {
		case CodeFunc:
			return f, f != nil
		case func(*Engine, uint64, uint32):
			return CodeFunc(f), f != nil
		}
	case famIntr:
		switch f := cb.(type) {
		case IntrFunc:
			return f, f != nil
		case func(*Engine, uint32):
			return IntrFunc(f), f != nil
		}
	case famMem:
		switch f := cb.(type) {
		case MemFunc:
			return f, f != nil
		case func(*Engine, int, uint64, int, int64):
			return MemFunc(f), f != nil
		}
	case famFault:
		switch f := cb.(type) {
		case MemFaultFunc:
			return f, f != nil
		case func(*Engine, int, uint64, int, int64) bool:
			return MemFaultFunc(f), f != nil
		}
	case famInvalid:
		switch f := cb.(type) {
		case InvalidFunc:
			return f, f != nil
		case func(*Engine) bool:
			return InvalidFunc(f), f != nil
		}
	case famInsn:
		switch e.arch.Insns[insn] {
		case "in":
			switch f := cb.(type) {
			case InFunc:
				return f, f != nil
			case func(*Engine, uint32, uint32) uint32:
				return InFunc(f), f != nil
			}
		case "out":
			switch f := cb.(type) {
			case OutFunc:
				return f, f != nil
			case func(*Engine, uint32, uint32, uint32):
				return OutFunc(f), f != nil
			}
		default:
			switch f := cb.(type) {
			case SyscallFunc:
				return f, f != nil
			case func(*Engine):
				return SyscallFunc(f), f != nil
			}
		}
	}
	return nil, false
}

// HookAdd registers cb for htype events with an address in [begin, end], or for
// every address when begin > end. HOOK_INSN takes the instruction id in extra.
func (e *Engine) HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (*Hook, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	fam, err := familyOf(htype)
	if err != nil {
		return nil, err
	}
	insn := 0
	if fam == famInsn {
		if len(extra) == 0 {
			return nil, errors.Wrap(ErrHook, "instruction hook without an instruction")
		}
		insn = extra[0]
		if _, ok := e.arch.Insns[insn]; !ok {
			return nil, errors.Wrapf(ErrHook, "%s has no hookable instruction %d", e.arch.Name, insn)
		}
	}
	typed, ok := e.callback(fam, insn, cb)
	if !ok {
		return nil, errors.Wrapf(ErrArg, "callback %T does not fit hook type %#x", cb, htype)
	}
	h := &Hook{e: e, kind: htype, insn: insn, begin: begin, end: end, cb: typed}
	if err := e.hooks.add(h, fam); err != nil {
		return nil, err
	}
	e.log.Debug("hook add", zap.Int("type", htype), zap.Int("insn", insn),
		zap.Uint64("begin", begin), zap.Uint64("end", end))
	return h, nil
}

// HookDel removes h. Removing it twice fails with ErrHandle.
func (e *Engine) HookDel(h *Hook) error {
	if h == nil || h.e != e {
		return errors.Wrap(ErrArg, "hook belongs to another engine")
	}
	if err := e.check(); err != nil {
		return err
	}
	if h.removed {
		return ErrHandle
	}
	if err := e.hooks.del(h); err != nil {
		return err
	}
	e.log.Debug("hook del", zap.Int("type", h.kind), zap.Int("insn", h.insn))
	return nil
}

func (e *Engine) HookCode(begin, end uint64, cb CodeFunc) (*Hook, error) {
	return e.HookAdd(cpu.HOOK_CODE, cb, begin, end)
}

func (e *Engine) HookBlock(begin, end uint64, cb CodeFunc) (*Hook, error) {
	return e.HookAdd(cpu.HOOK_BLOCK, cb, begin, end)
}

func (e *Engine) HookIntr(cb IntrFunc) (*Hook, error) {
	return e.HookAdd(cpu.HOOK_INTR, cb, 1, 0)
}

// HookMem observes valid accesses. kind combines HOOK_MEM_READ, HOOK_MEM_WRITE,
// HOOK_MEM_FETCH and HOOK_MEM_READ_AFTER.
func (e *Engine) HookMem(kind int, begin, end uint64, cb MemFunc) (*Hook, error) {
	if kind == 0 || kind&^(cpu.HOOK_MEM_VALID|cpu.HOOK_MEM_READ_AFTER) != 0 {
		return nil, errors.Wrapf(ErrHook, "invalid memory hook type %#x", kind)
	}
	return e.HookAdd(kind, cb, begin, end)
}

// HookMemFault observes unmapped and protected accesses. kind is a subset of HOOK_MEM_INVALID.
func (e *Engine) HookMemFault(kind int, begin, end uint64, cb MemFaultFunc) (*Hook, error) {
	if kind == 0 || kind&^cpu.HOOK_MEM_INVALID != 0 {
		return nil, errors.Wrapf(ErrHook, "invalid fault hook type %#x", kind)
	}
	return e.HookAdd(kind, cb, begin, end)
}

func (e *Engine) hookInsn(name string, cb interface{}) (*Hook, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	insn, ok := e.arch.Insn(name)
	if !ok {
		return nil, errors.Wrapf(ErrHook, "%s has no %s instruction hook", e.arch.Name, name)
	}
	return e.HookAdd(cpu.HOOK_INSN, cb, 1, 0, insn)
}

func (e *Engine) HookIn(cb InFunc) (*Hook, error) { return e.hookInsn("in", cb) }

func (e *Engine) HookOut(cb OutFunc) (*Hook, error) { return e.hookInsn("out", cb) }

func (e *Engine) HookSyscall(cb SyscallFunc) (*Hook, error) { return e.hookInsn("syscall", cb) }

func (e *Engine) HookInvalid(cb InvalidFunc) (*Hook, error) {
	return e.HookAdd(cpu.HOOK_INSN_INVALID, cb, 1, 0)
}
