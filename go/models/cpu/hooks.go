package cpu

type hookInfo struct {
	htype int
	start uint64
	end   uint64
}

func (h *hookInfo) Type() int {
	return h.htype
}

// start > end covers every address
func (h *hookInfo) Contains(addr uint64) bool {
	return h.start > h.end || addr >= h.start && addr <= h.end
}

type codeHook struct {
	hookInfo
	cb CodeCb
}

type intrHook struct {
	hookInfo
	cb IntrHandledCb
}

type memHook struct {
	hookInfo
	cb MemCb
}

type memFaultHook struct {
	hookInfo
	cb MemFaultCb
}

type insnHook struct {
	hookInfo
	insn int
	cb   interface{}
}

type invalidHook struct {
	hookInfo
	cb InvalidCb
}

// Hooks is a hook table for Go-implemented engines.
// Removal swaps in a fresh slice, so dispatch loops never see mid-iteration edits.
type Hooks struct {
	cpu Cpu

	code     []*codeHook
	block    []*codeHook
	intr     []*intrHook
	mem      []*memHook
	memFault []*memFaultHook
	insn     []*insnHook
	invalid  []*invalidHook

	// instruction ids accepted by HOOK_INSN
	insns map[int]bool
}

// creates &Hook{}, optionally attaching to a *Mem instance
func NewHooks(cpu Cpu, mem *Mem, insns ...int) *Hooks {
	h := &Hooks{cpu: cpu, insns: make(map[int]bool)}
	for _, v := range insns {
		h.insns[v] = true
	}
	if mem != nil {
		// mem/memsim will dispatch hooks automatically
		mem.hooks = h
	}
	return h
}

func (h *Hooks) HookAdd(htype int, cb interface{}, start uint64, end uint64, extra ...int) (Hook, error) {
	info := hookInfo{htype, start, end}
	var ok bool
	var hook Hook
	switch {
	case htype == HOOK_BLOCK:
		hh := &codeHook{hookInfo: info}
		if hh.cb, ok = cb.(CodeCb); ok {
			h.block, hook = append(h.block, hh), hh
		}

	case htype == HOOK_CODE:
		hh := &codeHook{hookInfo: info}
		if hh.cb, ok = cb.(CodeCb); ok {
			h.code, hook = append(h.code, hh), hh
		}

	case htype == HOOK_INTR:
		hh := &intrHook{hookInfo: info}
		switch cbc := cb.(type) {
		case IntrCb:
			hh.cb = func(c Cpu, intno uint32) bool { cbc(c, intno); return true }
		case IntrHandledCb:
			hh.cb = cbc
		}
		if ok = hh.cb != nil; ok {
			h.intr, hook = append(h.intr, hh), hh
		}

	case htype == HOOK_INSN:
		if len(extra) == 0 || !h.insns[extra[0]] {
			return nil, ERR_HOOK
		}
		switch cb.(type) {
		case SyscallCb, InCb, OutCb:
			hh := &insnHook{info, extra[0], cb}
			h.insn, hook, ok = append(h.insn, hh), hh, true
		}

	case htype == HOOK_INSN_INVALID:
		hh := &invalidHook{hookInfo: info}
		if hh.cb, ok = cb.(InvalidCb); ok {
			h.invalid, hook = append(h.invalid, hh), hh
		}

	case htype != 0 && htype&^HOOK_MEM_INVALID == 0:
		hh := &memFaultHook{hookInfo: info}
		if hh.cb, ok = cb.(MemFaultCb); ok {
			h.memFault, hook = append(h.memFault, hh), hh
		}

	case htype != 0 && htype&^(HOOK_MEM_VALID|HOOK_MEM_READ_AFTER) == 0:
		hh := &memHook{hookInfo: info}
		if hh.cb, ok = cb.(MemCb); ok {
			h.mem, hook = append(h.mem, hh), hh
		}

	default:
		return nil, ERR_HOOK
	}
	if !ok {
		return nil, ERR_ARG
	}
	return hook, nil
}

func remove[T comparable](list []T, v T) ([]T, bool) {
	tmp := make([]T, 0, len(list))
	found := false
	for _, hh := range list {
		if hh == v {
			found = true
		} else {
			tmp = append(tmp, hh)
		}
	}
	return tmp, found
}

func (h *Hooks) HookDel(hh Hook) error {
	var found bool
	switch v := hh.(type) {
	case *codeHook:
		if v.htype == HOOK_BLOCK {
			h.block, found = remove(h.block, v)
		} else {
			h.code, found = remove(h.code, v)
		}
	case *intrHook:
		h.intr, found = remove(h.intr, v)
	case *memHook:
		h.mem, found = remove(h.mem, v)
	case *memFaultHook:
		h.memFault, found = remove(h.memFault, v)
	case *insnHook:
		h.insn, found = remove(h.insn, v)
	case *invalidHook:
		h.invalid, found = remove(h.invalid, v)
	}
	if !found {
		return ERR_HANDLE
	}
	return nil
}

func (h *Hooks) OnBlock(addr uint64, size uint32) {
	for _, v := range h.block {
		if v.Contains(addr) {
			v.cb(h.cpu, addr, size)
		}
	}
}

func (h *Hooks) OnCode(addr uint64, size uint32) {
	for _, v := range h.code {
		if v.Contains(addr) {
			v.cb(h.cpu, addr, size)
		}
	}
}

// OnIntr reports whether any hook handled the interrupt.
// Every hook runs; a plain IntrCb always counts as handled.
func (h *Hooks) OnIntr(intno uint32) bool {
	handled := false
	for _, v := range h.intr {
		if v.cb(h.cpu, intno) {
			handled = true
		}
	}
	return handled
}

func (h *Hooks) OnMem(access int, addr uint64, size int, val int64) {
	mask := HookBit(access)
	for _, v := range h.mem {
		if v.htype&mask != 0 && v.Contains(addr) {
			v.cb(h.cpu, access, addr, size, val)
		}
	}
}

// OnFault stops at the first hook that returns true.
func (h *Hooks) OnFault(access int, addr uint64, size int, val int64) bool {
	mask := HookBit(access)
	for _, v := range h.memFault {
		if v.htype&mask != 0 && v.Contains(addr) {
			if v.cb(h.cpu, access, addr, size, val) {
				return true
			}
		}
	}
	return false
}

// OnInsn runs hooks for instruction insn at pc. args are (port, size[, value]) for IN/OUT style hooks.
// The result of the last IN-style hook is returned, and handled reports whether any hook ran.
func (h *Hooks) OnInsn(pc uint64, insn int, args ...uint32) (ret uint32, handled bool) {
	for _, v := range h.insn {
		if v.insn != insn || !v.Contains(pc) {
			continue
		}
		switch cb := v.cb.(type) {
		case SyscallCb:
			cb(h.cpu)
		case InCb:
			if len(args) >= 2 {
				ret = cb(h.cpu, args[0], args[1])
			}
		case OutCb:
			if len(args) >= 3 {
				cb(h.cpu, args[0], args[1], args[2])
			}
		}
		handled = true
	}
	return ret, handled
}

// OnInvalid stops at the first hook that returns true.
func (h *Hooks) OnInvalid() bool {
	for _, v := range h.invalid {
		if v.cb(h.cpu) {
			return true
		}
	}
	return false
}

// HasFault reports whether a fault hook would observe access at addr.
func (h *Hooks) HasFault(access int, addr uint64) bool {
	mask := HookBit(access)
	for _, v := range h.memFault {
		if v.htype&mask != 0 && v.Contains(addr) {
			return true
		}
	}
	return false
}
