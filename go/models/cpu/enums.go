package cpu

// base enums on Unicorn's so an adapter can pass them straight through
// https://github.com/unicorn-engine/unicorn/blob/master/bindings/go/unicorn/unicorn_const.go
const (
	ARCH_ARM     = 1
	ARCH_ARM64   = 2
	ARCH_MIPS    = 3
	ARCH_X86     = 4
	ARCH_PPC     = 5
	ARCH_SPARC   = 6
	ARCH_M68K    = 7
	ARCH_RISCV   = 8
	ARCH_S390X   = 9
	ARCH_TRICORE = 10

	// architectures implemented in Go live above Unicorn's range
	ARCH_NDH = 0x100
)

// mode flags, combined per architecture
const (
	MODE_LITTLE_ENDIAN = 0
	MODE_BIG_ENDIAN    = 1 << 30

	MODE_ARM     = 0
	MODE_16      = 1 << 1
	MODE_32      = 1 << 2
	MODE_64      = 1 << 3
	MODE_THUMB   = 1 << 4
	MODE_MCLASS  = 1 << 5
	MODE_V8      = 1 << 6
	MODE_MICRO   = 1 << 4
	MODE_MIPS3   = 1 << 5
	MODE_MIPS32  = MODE_32
	MODE_MIPS64  = MODE_64
	MODE_PPC32   = MODE_32
	MODE_PPC64   = MODE_64
	MODE_SPARC32 = MODE_32
	MODE_SPARC64 = MODE_64
	MODE_RISCV32 = MODE_32
	MODE_RISCV64 = MODE_64
)

const (
	// hook CPU interrupts
	HOOK_INTR = 1

	// hook one instruction (cpu-specific)
	HOOK_INSN = 2

	// hook each executed instruction
	HOOK_CODE = 4

	// hook each executed basic block
	HOOK_BLOCK = 8

	// memory faults, return true to resume
	HOOK_MEM_READ_UNMAPPED  = 16
	HOOK_MEM_WRITE_UNMAPPED = 32
	HOOK_MEM_FETCH_UNMAPPED = 64
	HOOK_MEM_READ_PROT      = 128
	HOOK_MEM_WRITE_PROT     = 256
	HOOK_MEM_FETCH_PROT     = 512

	// hook (before) each memory read/write/fetch
	HOOK_MEM_READ       = 1024
	HOOK_MEM_WRITE      = 2048
	HOOK_MEM_FETCH      = 4096
	HOOK_MEM_READ_AFTER = 8192

	// hook invalid instructions, return true to resume
	HOOK_INSN_INVALID = 16384

	HOOK_MEM_UNMAPPED = HOOK_MEM_READ_UNMAPPED | HOOK_MEM_WRITE_UNMAPPED | HOOK_MEM_FETCH_UNMAPPED
	HOOK_MEM_PROT     = HOOK_MEM_READ_PROT | HOOK_MEM_WRITE_PROT | HOOK_MEM_FETCH_PROT
	HOOK_MEM_INVALID  = HOOK_MEM_UNMAPPED | HOOK_MEM_PROT
	HOOK_MEM_VALID    = HOOK_MEM_READ | HOOK_MEM_WRITE | HOOK_MEM_FETCH
	HOOK_MEM_ALL      = HOOK_MEM_INVALID | HOOK_MEM_VALID
)

// these constants are used in a hook to specify the type of memory access
const (
	MEM_READ           = 16
	MEM_WRITE          = 17
	MEM_FETCH          = 18
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 22
	MEM_READ_PROT      = 23
	MEM_FETCH_PROT     = 24
	MEM_READ_AFTER     = 25
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// Query types
const (
	QUERY_MODE      = 1
	QUERY_PAGE_SIZE = 2
	QUERY_ARCH      = 3
	QUERY_TIMEOUT   = 4
)

// Instruction ids for HOOK_INSN on x86, matching Unicorn's X86_INS_* values.
const (
	X86_INS_IN       = 218
	X86_INS_OUT      = 500
	X86_INS_SYSCALL  = 699
	X86_INS_SYSENTER = 700
	X86_INS_CPUID    = 149
)

// HookBit maps a MEM_* access type to the HOOK_* bit that observes it.
func HookBit(access int) int {
	switch access {
	case MEM_READ_UNMAPPED:
		return HOOK_MEM_READ_UNMAPPED
	case MEM_WRITE_UNMAPPED:
		return HOOK_MEM_WRITE_UNMAPPED
	case MEM_FETCH_UNMAPPED:
		return HOOK_MEM_FETCH_UNMAPPED
	case MEM_READ_PROT:
		return HOOK_MEM_READ_PROT
	case MEM_WRITE_PROT:
		return HOOK_MEM_WRITE_PROT
	case MEM_FETCH_PROT:
		return HOOK_MEM_FETCH_PROT
	case MEM_READ:
		return HOOK_MEM_READ
	case MEM_WRITE:
		return HOOK_MEM_WRITE
	case MEM_FETCH:
		return HOOK_MEM_FETCH
	case MEM_READ_AFTER:
		return HOOK_MEM_READ_AFTER
	}
	return 0
}
