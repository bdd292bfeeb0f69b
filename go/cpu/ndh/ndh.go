package ndh

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

func rbool(i bool) uint64 {
	if i {
		return 1
	}
	return 0
}

var allRegs = []int{
	R0, R1, R2, R3, R4, R5, R6, R7,
	BP, SP, PC,
	ZF, AF, BF,
}

type Builder struct{}

func (b *Builder) New(mode int) (cpu.Cpu, error) {
	if mode != cpu.MODE_LITTLE_ENDIAN {
		return nil, cpu.ERR_MODE
	}
	c := &NdhCpu{
		Regs: cpu.NewRegs(16, allRegs),
		Mem:  cpu.NewMem(16, binary.LittleEndian),
	}
	c.Regs.Narrow(1, ZF, AF, BF)
	c.Hooks = cpu.NewHooks(c, c.Mem, INS_SYSCALL)
	return c, nil
}

type NdhCpu struct {
	*cpu.Hooks
	*cpu.Regs
	*cpu.Mem

	running  atomic.Bool
	stop     atomic.Bool
	timedOut bool
	closed   bool

	// first fault raised while executing the current instruction
	err error
	// register writes staged until the current instruction completes
	pending []regWrite
}

type regWrite struct {
	num int
	val uint64
}

func (n *NdhCpu) fault(err error) {
	if n.err == nil {
		n.err = err
	}
}

// set does nothing once the instruction has faulted.
func (n *NdhCpu) set(a arg, val uint64) {
	if n.err != nil {
		return
	}
	switch v := a.(type) {
	case *reg:
		if _, err := n.RegRead(int(v.num)); err != nil {
			n.fault(cpu.ERR_INSN_INVALID)
			return
		}
		n.pending = append(n.pending, regWrite{int(v.num), val})
	case *indirect:
		addr := n.get(v.arg)
		n.write(addr, 1, val)
	default:
		n.fault(cpu.ERR_INSN_INVALID)
	}
}

// write stores to memory unless the instruction has already faulted.
func (n *NdhCpu) write(addr uint64, size int, val uint64) {
	if n.err != nil {
		return
	}
	if err := n.WriteUint(addr&0xffff, size, cpu.PROT_WRITE, val); err != nil {
		n.fault(err)
	}
}

func (n *NdhCpu) get(a arg) uint64 {
	if n.err != nil {
		return 0
	}
	var val uint64
	var err error
	switch v := a.(type) {
	case *u8:
		val = uint64(v.val)
	case *u16:
		val = uint64(v.val)
	case *reg:
		if val, err = n.RegRead(int(v.num)); err != nil {
			err = cpu.ERR_INSN_INVALID
		}
	case *indirect:
		addr := n.get(v.arg)
		val, err = n.ReadUint(addr, 1, cpu.PROT_READ)
	default:
		err = cpu.ERR_INSN_INVALID
	}
	if err != nil {
		n.fault(err)
	}
	return val
}

// fetch reads the instruction at pc. Its length is worked out from an unhooked
// peek, so fetch hooks see exactly one access per instruction. A nil *ins means invalid.
func (n *NdhCpu) fetch(pc uint64) (*ins, error) {
	var head []byte
	for _, size := range []uint64{2, 1} {
		if p, err := n.MemRead(pc, size); err == nil {
			head = p
			break
		}
	}
	size := insLen(head)
	if size == 0 {
		// invalid opcodes still count as a fetch of their first byte
		if _, err := n.ReadProt(pc, 1, cpu.PROT_EXEC); err != nil {
			return nil, err
		}
		return nil, nil
	}
	mem, err := n.ReadProt(pc, uint64(size), cpu.PROT_EXEC)
	if err != nil {
		return nil, err
	}
	// a fault hook may have mapped different code than the peek saw
	if insLen(mem) != size {
		return nil, nil
	}
	return decode(mem, pc), nil
}

func (n *NdhCpu) Start(begin, until uint64) error {
	return n.StartWithOptions(begin, until, nil)
}

func (n *NdhCpu) StartWithOptions(begin, until uint64, opts *cpu.StartOptions) error {
	if n.closed {
		return cpu.ERR_HANDLE
	}
	if !n.running.CompareAndSwap(false, true) {
		return cpu.ERR_ARG
	}
	defer n.running.Store(false)
	n.stop.Store(false)
	n.timedOut = false

	var count uint64
	var deadline time.Time
	if opts != nil {
		count = opts.Count
		if opts.Timeout > 0 {
			deadline = time.Now().Add(opts.Timeout)
		}
	}
	Logger().Debug("ndh start",
		zap.Uint64("begin", begin), zap.Uint64("until", until),
		zap.Uint64("count", count), zap.Time("deadline", deadline))
	err := n.run(begin&0xffff, until, count, deadline)
	Logger().Debug("ndh stop", zap.Error(err))
	return err
}

func (n *NdhCpu) run(pc, until, count uint64, deadline time.Time) error {
	n.RegWrite(PC, pc)
	newBlock := true
	var executed uint64
	for {
		if pc == until || n.stop.Load() {
			return nil
		}
		if count > 0 && executed >= count {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			n.timedOut = true
			return nil
		}
		ins, err := n.fetch(pc)
		if err != nil {
			return err
		}
		if ins == nil {
			if !n.OnInvalid() {
				return cpu.ERR_INSN_INVALID
			}
			// the hook is expected to have moved pc past the bad instruction
			hpc, _ := n.RegRead(PC)
			if hpc == pc {
				return cpu.ERR_INSN_INVALID
			}
			pc, newBlock = hpc, true
			executed++
			continue
		}
		size := uint32(len(ins.bytes))
		if newBlock {
			n.OnBlock(pc, size)
			newBlock = false
		}
		n.OnCode(pc, size)
		// a hook can interrupt the emulator or redirect it
		if n.stop.Load() {
			return nil
		}
		if hpc, _ := n.RegRead(PC); hpc != pc {
			pc, newBlock = hpc, true
			continue
		}

		next, jump, halt, err := n.step(ins)
		if err != nil {
			return err
		}
		executed++
		if halt {
			return nil
		}
		if hpc, _ := n.RegRead(PC); hpc != pc {
			// a hook fired during the instruction moved pc
			next, jump = hpc, true
		}
		pc = next & 0xffff
		newBlock = newBlock || jump
		n.RegWrite(PC, pc)
	}
}

// step executes one instruction and returns the next pc.
// Register and flag updates are only committed when the instruction completes.
func (n *NdhCpu) step(ins *ins) (next uint64, jump, halt bool, err error) {
	n.err = nil
	n.pending = n.pending[:0]
	var a, b arg
	switch len(ins.args) {
	case 2:
		a = ins.args[0]
		b = ins.args[1]
	case 1:
		a = ins.args[0]
	}

	next = ins.addr + uint64(len(ins.bytes))
	var off uint64
	afr, _ := n.RegRead(AF)
	bfr, _ := n.RegRead(BF)
	zfr, _ := n.RegRead(ZF)
	sp, _ := n.RegRead(SP)
	af, bf, zf := afr == 1, bfr == 1, zfr == 1

	zfcheck := func(val uint64) uint64 {
		zf = val&0xffff == 0
		return val
	}

	switch ins.op {
	case OP_DEC:
		n.set(a, n.get(a)-1)
	case OP_INC:
		n.set(a, n.get(a)+1)
	case OP_XCHG:
		xa, xb := n.get(a), n.get(b)
		n.set(a, xb)
		n.set(b, xa)
	case OP_MOV:
		n.set(a, n.get(b))

	case OP_ADD:
		n.set(a, zfcheck(n.get(a)+n.get(b)))
	case OP_AND:
		n.set(a, zfcheck(n.get(a)&n.get(b)))
	case OP_DIV:
		va, vb := n.get(a), n.get(b)
		if n.err == nil && vb == 0 {
			if !n.OnIntr(INTR_DIVIDE) {
				return 0, false, false, cpu.ERR_EXCEPTION
			}
			break
		}
		if vb != 0 {
			n.set(a, zfcheck(va/vb))
		}
	case OP_MUL:
		n.set(a, zfcheck(n.get(a)*n.get(b)))
	case OP_NOT:
		n.set(a, zfcheck(^n.get(a)))
	case OP_OR:
		n.set(a, zfcheck(n.get(a)|n.get(b)))
	case OP_SUB:
		n.set(a, zfcheck(n.get(a)-n.get(b)))
	case OP_XOR:
		n.set(a, zfcheck(n.get(a)^n.get(b)))

	case OP_CMP:
		va, vb := n.get(a), n.get(b)
		af, bf, zf = false, false, false
		if va == vb {
			zf = true
		} else if va < vb {
			af = true
		} else if va > vb {
			bf = true
		}
	case OP_TEST:
		zf = n.get(a) == 0 && n.get(b) == 0

	case OP_SYSCALL:
		if _, ok := n.OnInsn(ins.addr, INS_SYSCALL); !ok {
			if !n.OnIntr(INTR_SYSCALL) {
				return 0, false, false, cpu.ERR_EXCEPTION
			}
		}
	case OP_NOP:
	case OP_END:
		return next, false, true, nil
	case OP_JA:
		if af {
			off, jump = n.get(a), true
		}
	case OP_JB:
		if bf {
			off, jump = n.get(a), true
		}
	case OP_JMPL:
		off, jump = n.get(a), true
	case OP_JMPS:
		// short jumps are signed
		off, jump = uint64(int8(n.get(a))), true
	case OP_JNZ:
		if !zf {
			off, jump = n.get(a), true
		}
	case OP_JZ:
		if zf {
			off, jump = n.get(a), true
		}

	case OP_CALL:
		off, jump = n.get(a), true
		sp -= 2
		n.write(sp, 2, next)
	case OP_RET:
		next, jump = n.pop(sp), true
		sp += 2

	case OP_PUSH:
		size := 2
		if _, ok := a.(*u8); ok {
			size = 1
		}
		sp -= uint64(size)
		n.write(sp, size, n.get(a))
	case OP_POP:
		n.set(a, n.pop(sp))
		sp += 2

	default:
		return 0, false, false, errors.Wrapf(cpu.ERR_INSN_INVALID, "invalid op: %#x", ins.op)
	}
	if n.err != nil {
		return 0, false, false, n.err
	}
	for _, w := range n.pending {
		n.RegWrite(w.num, w.val)
	}
	n.RegWrite(AF, rbool(af))
	n.RegWrite(BF, rbool(bf))
	n.RegWrite(ZF, rbool(zf))
	n.RegWrite(SP, sp)

	if jump && ins.op != OP_RET {
		next += off
	}
	return next, jump, false, nil
}

func (n *NdhCpu) pop(sp uint64) uint64 {
	if n.err != nil {
		return 0
	}
	val, err := n.ReadUint(sp&0xffff, 2, cpu.PROT_READ)
	if err != nil {
		n.fault(err)
	}
	return val
}

func (n *NdhCpu) Stop() error {
	if n.running.Load() {
		n.stop.Store(true)
	}
	return nil
}

func (n *NdhCpu) Query(q int) (uint64, error) {
	switch q {
	case cpu.QUERY_MODE:
		return cpu.MODE_LITTLE_ENDIAN, nil
	case cpu.QUERY_PAGE_SIZE:
		return n.PageSize(), nil
	case cpu.QUERY_ARCH:
		return cpu.ARCH_NDH, nil
	case cpu.QUERY_TIMEOUT:
		return rbool(n.timedOut), nil
	}
	return 0, cpu.ERR_ARG
}

func (n *NdhCpu) Close() error {
	if n.closed {
		return cpu.ERR_HANDLE
	}
	n.closed = true
	return nil
}

func (n *NdhCpu) String() string {
	pc, _ := n.RegRead(PC)
	return fmt.Sprintf("<NdhCpu pc=%#x>", pc)
}
