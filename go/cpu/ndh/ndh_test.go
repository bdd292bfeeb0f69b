package ndh

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// nop; nop; jmpl -5
var loop = []byte{0x02, 0x02, 0x1b, 0xfb, 0xff}

func makeCpu(t testing.TB, code []byte) *NdhCpu {
	c, err := (&Builder{}).New(cpu.MODE_LITTLE_ENDIAN)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.MemMapProt(0x1000, 0x1000, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	if err := c.MemWrite(0x1000, code); err != nil {
		t.Fatal(err)
	}
	return c.(*NdhCpu)
}

func TestNdhMode(t *testing.T) {
	if _, err := (&Builder{}).New(cpu.MODE_BIG_ENDIAN); err != cpu.ERR_MODE {
		t.Fatalf("New(big endian) = %v, expected ERR_MODE", err)
	}
}

func TestNdhCount(t *testing.T) {
	c := makeCpu(t, loop)
	var calls int
	c.HookAdd(cpu.HOOK_CODE, func(_ cpu.Cpu, addr uint64, size uint32) { calls++ }, 1, 0)
	if err := c.StartWithOptions(0x1000, 0x1005, &cpu.StartOptions{Count: 1}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 instruction, got %d", calls)
	}
	if pc, _ := c.RegRead(PC); pc != 0x1001 {
		t.Fatalf("pc = %#x, expected 0x1001", pc)
	}
}

func TestNdhStopFromHook(t *testing.T) {
	c := makeCpu(t, loop)
	calls, stopAt := 0, 2
	c.HookAdd(cpu.HOOK_CODE, func(u cpu.Cpu, addr uint64, size uint32) {
		calls++
		if calls == stopAt {
			u.Stop()
		}
	}, 1, 0)
	if err := c.Start(0x1000, 0x1005); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 hook calls, got %d", calls)
	}
	// stop with no run active is a no-op and does not leak into the next run
	c.Stop()
	calls, stopAt = 0, -1
	if err := c.StartWithOptions(0x1000, 0x1005, &cpu.StartOptions{Count: 3}); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 hook calls after idle Stop, got %d", calls)
	}
}

func TestNdhTimeout(t *testing.T) {
	c := makeCpu(t, loop)
	start := time.Now()
	if err := c.StartWithOptions(0x1000, 0x1005, &cpu.StartOptions{Timeout: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("run returned before timeout")
	}
	if v, err := c.Query(cpu.QUERY_TIMEOUT); err != nil || v != 1 {
		t.Fatalf("QUERY_TIMEOUT = %d, %v", v, err)
	}
}

func TestNdhUntil(t *testing.T) {
	c := makeCpu(t, []byte{0x02, 0x02, 0x02, 0x1c})
	var blocks, calls int
	c.HookAdd(cpu.HOOK_BLOCK, func(_ cpu.Cpu, addr uint64, size uint32) { blocks++ }, 1, 0)
	c.HookAdd(cpu.HOOK_CODE, func(_ cpu.Cpu, addr uint64, size uint32) { calls++ }, 1, 0)
	if err := c.Start(0x1000, 0x1002); err != nil {
		t.Fatal(err)
	}
	if calls != 2 || blocks != 1 {
		t.Fatalf("expected 2 instructions in 1 block, got %d in %d", calls, blocks)
	}
	// end halts cleanly
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
}

func TestNdhFetchUnmapped(t *testing.T) {
	c := makeCpu(t, loop)
	err := c.Start(0x5000, 0x5005)
	if !errors.Is(err, cpu.ERR_FETCH_UNMAPPED) {
		t.Fatalf("expected ERR_FETCH_UNMAPPED, got %v", err)
	}
	c.MemProt(0x1000, 0x1000, cpu.PROT_READ)
	if err := c.Start(0x1000, 0x1005); !errors.Is(err, cpu.ERR_FETCH_PROT) {
		t.Fatalf("expected ERR_FETCH_PROT, got %v", err)
	}
}

func TestNdhDivZero(t *testing.T) {
	// mov r1, 0; div r0, r1; end
	code := []byte{0x04, 0x01, 0x01, 0x00, 0x09, 0x00, 0x00, 0x01, 0x1c}
	c := makeCpu(t, code)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_EXCEPTION) {
		t.Fatalf("expected ERR_EXCEPTION, got %v", err)
	}
	var intnos []uint32
	c.HookAdd(cpu.HOOK_INTR, func(_ cpu.Cpu, intno uint32) { intnos = append(intnos, intno) }, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if len(intnos) != 1 || intnos[0] != INTR_DIVIDE {
		t.Fatalf("bad interrupts: %v", intnos)
	}
}

func TestNdhSyscall(t *testing.T) {
	// mov r0, 0x42; syscall; end
	code := []byte{0x04, 0x01, 0x00, 0x42, 0x30, 0x1c}
	c := makeCpu(t, code)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_EXCEPTION) {
		t.Fatalf("unhandled syscall: expected ERR_EXCEPTION, got %v", err)
	}

	var intno uint32
	intr, _ := c.HookAdd(cpu.HOOK_INTR, func(_ cpu.Cpu, n uint32) { intno = n }, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if intno != INTR_SYSCALL {
		t.Fatalf("syscall raised interrupt %#x", intno)
	}
	c.HookDel(intr)

	var r0 uint64
	_, err := c.HookAdd(cpu.HOOK_INSN, func(u cpu.Cpu) {
		r0, _ = u.RegRead(R0)
		u.RegWrite(R0, 0)
	}, 1, 0, INS_SYSCALL)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if r0 != 0x42 {
		t.Fatalf("syscall hook saw r0=%#x", r0)
	}
	if v, _ := c.RegRead(R0); v != 0 {
		t.Fatal("syscall hook register write lost")
	}
}

func TestNdhFaultRetry(t *testing.T) {
	// push 0x1234; end
	code := []byte{0x01, 0x04, 0x34, 0x12, 0x1c}
	c := makeCpu(t, code)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_WRITE_UNMAPPED) {
		t.Fatalf("expected ERR_WRITE_UNMAPPED, got %v", err)
	}
	if sp, _ := c.RegRead(SP); sp != 0 {
		t.Fatalf("faulting push committed sp=%#x", sp)
	}
	c.HookAdd(cpu.HOOK_MEM_WRITE_UNMAPPED, func(u cpu.Cpu, access int, addr uint64, size int, val int64) bool {
		return u.MemMapProt(addr&^0xfff, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE) == nil
	}, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if sp, _ := c.RegRead(SP); sp != 0xfffe {
		t.Fatalf("sp = %#x, expected 0xfffe", sp)
	}
	if v, err := c.ReadUint(0xfffe, 2, 0); err != nil || v != 0x1234 {
		t.Fatalf("pushed value = %#x, %v", v, err)
	}
}

func TestNdhInvalid(t *testing.T) {
	code := []byte{0xff, 0x1c}
	c := makeCpu(t, code)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_INSN_INVALID) {
		t.Fatalf("expected ERR_INSN_INVALID, got %v", err)
	}
	c.HookAdd(cpu.HOOK_INSN_INVALID, func(u cpu.Cpu) bool {
		pc, _ := u.RegRead(PC)
		u.RegWrite(PC, pc+1)
		return true
	}, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if pc, _ := c.RegRead(PC); pc != 0x1001 {
		t.Fatalf("pc = %#x, expected to halt at 0x1001", pc)
	}
}

func TestNdhInvalidStuck(t *testing.T) {
	c := makeCpu(t, []byte{0xff, 0x1c})
	var calls int
	c.HookAdd(cpu.HOOK_INSN_INVALID, func(cpu.Cpu) bool {
		calls++
		return true
	}, 1, 0)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_INSN_INVALID) {
		t.Fatalf("expected ERR_INSN_INVALID, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("invalid hook called %d times", calls)
	}
}

func TestNdhFaultKeepsRegs(t *testing.T) {
	// mov r0, [r1]; end
	c := makeCpu(t, []byte{0x04, 0x0a, 0x00, 0x01, 0x1c})
	c.RegWrite(R0, 0x55)
	c.RegWrite(R1, 0x3000)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_READ_UNMAPPED) {
		t.Fatalf("expected ERR_READ_UNMAPPED, got %v", err)
	}
	if v, _ := c.RegRead(R0); v != 0x55 {
		t.Fatalf("r0 = %#x after a faulting load, expected 0x55", v)
	}
	if pc, _ := c.RegRead(PC); pc != 0x1000 {
		t.Fatalf("pc = %#x, expected 0x1000", pc)
	}

	// pop r0; end
	c = makeCpu(t, []byte{0x03, 0x00, 0x1c})
	c.RegWrite(R0, 0x55)
	c.RegWrite(SP, 0x3000)
	if err := c.Start(0x1000, 0); !errors.Is(err, cpu.ERR_READ_UNMAPPED) {
		t.Fatalf("expected ERR_READ_UNMAPPED, got %v", err)
	}
	if v, _ := c.RegRead(R0); v != 0x55 {
		t.Fatalf("r0 = %#x after a faulting pop, expected 0x55", v)
	}
	if sp, _ := c.RegRead(SP); sp != 0x3000 {
		t.Fatalf("sp = %#x after a faulting pop, expected 0x3000", sp)
	}
}

func TestNdhFetchOnce(t *testing.T) {
	// mov r1, 0x2000; mov [r1], r2; mov r0, [r1]; nop; end
	code := []byte{
		0x04, 0x02, 0x01, 0x00, 0x20,
		0x04, 0x06, 0x01, 0x02,
		0x04, 0x0a, 0x00, 0x01,
		0x02, 0x1c,
	}
	c := makeCpu(t, code)
	c.MemMapProt(0x2000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	var sizes []int
	c.HookAdd(cpu.HOOK_MEM_FETCH, func(_ cpu.Cpu, _ int, _ uint64, size int, _ int64) {
		sizes = append(sizes, size)
	}, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	want := []int{5, 4, 4, 1, 1}
	if len(sizes) != len(want) {
		t.Fatalf("fetch sizes %v, expected %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("fetch sizes %v, expected %v", sizes, want)
		}
	}
}

func TestNdhMemHooks(t *testing.T) {
	// mov r1, 0x2000; mov [r1], r2; mov r0, [r1]; end
	code := []byte{
		0x04, 0x02, 0x01, 0x00, 0x20,
		0x04, 0x06, 0x01, 0x02,
		0x04, 0x0a, 0x00, 0x01,
		0x1c,
	}
	c := makeCpu(t, code)
	c.MemMapProt(0x2000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	c.RegWrite(R2, 0x77)
	var access []int
	c.HookAdd(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, func(_ cpu.Cpu, a int, addr uint64, size int, val int64) {
		if addr != 0x2000 || size != 1 {
			t.Errorf("bad mem hook args (%#x, %d)", addr, size)
		}
		access = append(access, a)
	}, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.RegRead(R0); v != 0x77 {
		t.Fatalf("r0 = %#x, expected 0x77", v)
	}
	if len(access) != 2 || access[0] != cpu.MEM_WRITE || access[1] != cpu.MEM_READ {
		t.Fatalf("bad access sequence: %v", access)
	}
}

func TestNdhRedirect(t *testing.T) {
	// 0x1000: jmpl +0x10 (never executed); 0x1013: end
	code := make([]byte, 0x20)
	copy(code, []byte{0x1b, 0x10, 0x00})
	code[0x13] = 0x1c
	c := makeCpu(t, code)
	c.HookAdd(cpu.HOOK_CODE, func(u cpu.Cpu, addr uint64, size uint32) {
		if addr == 0x1000 {
			u.RegWrite(PC, 0x1013)
		}
	}, 1, 0)
	var blocks []uint64
	c.HookAdd(cpu.HOOK_BLOCK, func(_ cpu.Cpu, addr uint64, size uint32) { blocks = append(blocks, addr) }, 1, 0)
	if err := c.Start(0x1000, 0); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 || blocks[1] != 0x1013 {
		t.Fatalf("bad blocks: %#x", blocks)
	}
}

func TestNdhNested(t *testing.T) {
	c := makeCpu(t, loop)
	var nested error
	c.HookAdd(cpu.HOOK_CODE, func(u cpu.Cpu, addr uint64, size uint32) {
		nested = u.Start(0x1000, 0x1005)
		u.Stop()
	}, 1, 0)
	c.Start(0x1000, 0x1005)
	if nested != cpu.ERR_ARG {
		t.Fatalf("nested Start() = %v, expected ERR_ARG", nested)
	}
}

func BenchmarkNdhLoop(b *testing.B) {
	c := makeCpu(b, loop)
	b.ResetTimer()
	c.StartWithOptions(0x1000, 0x1005, &cpu.StartOptions{Count: uint64(b.N)})
}
