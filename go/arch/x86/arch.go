//go:build unicorn

package x86

import (
	"encoding/binary"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cpu/unicorn"
	"github.com/lunixbochs/corral/go/models"
)

// segment selectors are 16 bits and eflags is 32 bits in every mode
var regSizes = map[int]int{
	uc.X86_REG_CS:     2,
	uc.X86_REG_DS:     2,
	uc.X86_REG_ES:     2,
	uc.X86_REG_FS:     2,
	uc.X86_REG_GS:     2,
	uc.X86_REG_SS:     2,
	uc.X86_REG_EFLAGS: 4,
}

var Mode16 = &models.Mode{
	Flags: uc.MODE_16,
	Bits:  16,
	Order: binary.LittleEndian,

	PC: uc.X86_REG_IP,
	SP: uc.X86_REG_SP,
	Regs: map[string]int{
		"ip": uc.X86_REG_IP,
		"sp": uc.X86_REG_SP,
		"bp": uc.X86_REG_BP,
		"ax": uc.X86_REG_AX,
		"bx": uc.X86_REG_BX,
		"cx": uc.X86_REG_CX,
		"dx": uc.X86_REG_DX,
		"si": uc.X86_REG_SI,
		"di": uc.X86_REG_DI,

		"flags": uc.X86_REG_EFLAGS,

		"cs": uc.X86_REG_CS,
		"ds": uc.X86_REG_DS,
		"es": uc.X86_REG_ES,
		"ss": uc.X86_REG_SS,
	},
	RegSizes: regSizes,
	DefaultRegs: []string{
		"ax", "bx", "cx", "dx", "si", "di", "bp",
	},
}

var Mode32 = &models.Mode{
	Flags: uc.MODE_32,
	Bits:  32,
	Order: binary.LittleEndian,

	PC: uc.X86_REG_EIP,
	SP: uc.X86_REG_ESP,
	Regs: map[string]int{
		"eip": uc.X86_REG_EIP,
		"esp": uc.X86_REG_ESP,
		"ebp": uc.X86_REG_EBP,
		"eax": uc.X86_REG_EAX,
		"ebx": uc.X86_REG_EBX,
		"ecx": uc.X86_REG_ECX,
		"edx": uc.X86_REG_EDX,
		"esi": uc.X86_REG_ESI,
		"edi": uc.X86_REG_EDI,

		"eflags": uc.X86_REG_EFLAGS,

		"cs": uc.X86_REG_CS,
		"ds": uc.X86_REG_DS,
		"es": uc.X86_REG_ES,
		"fs": uc.X86_REG_FS,
		"gs": uc.X86_REG_GS,
		"ss": uc.X86_REG_SS,
	},
	RegSizes: regSizes,
	DefaultRegs: []string{
		"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp",
	},
}

var Mode64 = &models.Mode{
	Flags: uc.MODE_64,
	Bits:  64,
	Order: binary.LittleEndian,

	PC: uc.X86_REG_RIP,
	SP: uc.X86_REG_RSP,
	Regs: map[string]int{
		"rip": uc.X86_REG_RIP,
		"rsp": uc.X86_REG_RSP,
		"rbp": uc.X86_REG_RBP,
		"rax": uc.X86_REG_RAX,
		"rbx": uc.X86_REG_RBX,
		"rcx": uc.X86_REG_RCX,
		"rdx": uc.X86_REG_RDX,
		"rsi": uc.X86_REG_RSI,
		"rdi": uc.X86_REG_RDI,
		"r8":  uc.X86_REG_R8,
		"r9":  uc.X86_REG_R9,
		"r10": uc.X86_REG_R10,
		"r11": uc.X86_REG_R11,
		"r12": uc.X86_REG_R12,
		"r13": uc.X86_REG_R13,
		"r14": uc.X86_REG_R14,
		"r15": uc.X86_REG_R15,

		"eflags": uc.X86_REG_EFLAGS,

		"cs": uc.X86_REG_CS,
		"ds": uc.X86_REG_DS,
		"es": uc.X86_REG_ES,
		"fs": uc.X86_REG_FS,
		"gs": uc.X86_REG_GS,
		"ss": uc.X86_REG_SS,
	},
	RegSizes: regSizes,
	DefaultRegs: []string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "r8", "r9", "r10",
		"r11", "r12", "r13", "r14", "r15",
	},
}

var Arch = &models.Arch{
	Name:     "x86",
	Enum:     uc.ARCH_X86,
	PageSize: 0x1000,
	Cpu:      &unicorn.Builder{Arch: uc.ARCH_X86},

	Insns: map[int]string{
		uc.X86_INS_IN:       "in",
		uc.X86_INS_OUT:      "out",
		uc.X86_INS_SYSCALL:  "syscall",
		uc.X86_INS_SYSENTER: "sysenter",
	},
	Modes: []*models.Mode{Mode16, Mode32, Mode64},
}

func init() {
	arch.Register(Arch)
}
