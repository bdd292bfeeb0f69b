package ndh

import (
	"encoding/binary"

	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cpu/ndh"
	"github.com/lunixbochs/corral/go/models"
	"github.com/lunixbochs/corral/go/models/cpu"
)

var Arch = &models.Arch{
	Name:     "ndh",
	Enum:     cpu.ARCH_NDH,
	PageSize: 0x1000,
	Cpu:      &ndh.Builder{},

	Insns: map[int]string{
		ndh.INS_SYSCALL: "syscall",
	},
	Modes: []*models.Mode{{
		Flags: cpu.MODE_LITTLE_ENDIAN,
		Bits:  16,
		Order: binary.LittleEndian,

		PC: ndh.PC,
		SP: ndh.SP,
		Regs: map[string]int{
			"r0": ndh.R0,
			"r1": ndh.R1,
			"r2": ndh.R2,
			"r3": ndh.R3,
			"r4": ndh.R4,
			"r5": ndh.R5,
			"r6": ndh.R6,
			"r7": ndh.R7,
			"bp": ndh.BP,
			"sp": ndh.SP,
			"pc": ndh.PC,
			"zf": ndh.ZF,
			"af": ndh.AF,
			"bf": ndh.BF,
		},
		RegSizes: map[int]int{
			ndh.ZF: 1,
			ndh.AF: 1,
			ndh.BF: 1,
		},
		DefaultRegs: []string{
			"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "bp",
		},
	}},
}

func init() {
	arch.Register(Arch)
}
