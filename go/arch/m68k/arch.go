//go:build unicorn

package m68k

import (
	"encoding/binary"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/lunixbochs/corral/go/arch"
	"github.com/lunixbochs/corral/go/cpu/unicorn"
	"github.com/lunixbochs/corral/go/models"
)

var regs = map[string]int{
	"d0": uc.M68K_REG_D0,
	"d1": uc.M68K_REG_D1,
	"d2": uc.M68K_REG_D2,
	"d3": uc.M68K_REG_D3,
	"d4": uc.M68K_REG_D4,
	"d5": uc.M68K_REG_D5,
	"d6": uc.M68K_REG_D6,
	"d7": uc.M68K_REG_D7,
	"a0": uc.M68K_REG_A0,
	"a1": uc.M68K_REG_A1,
	"a2": uc.M68K_REG_A2,
	"a3": uc.M68K_REG_A3,
	"a4": uc.M68K_REG_A4,
	"a5": uc.M68K_REG_A5,
	"a6": uc.M68K_REG_A6,

	"sp": uc.M68K_REG_A7,
	"pc": uc.M68K_REG_PC,
	"sr": uc.M68K_REG_SR,
}

var defaultRegs = []string{
	"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7", "a0", "a1", "a2",
	"a3", "a4", "a5", "a6",
}

var ModeBE = &models.Mode{
	Flags: uc.MODE_BIG_ENDIAN,
	Bits:  32,
	Order: binary.BigEndian,

	PC:          uc.M68K_REG_PC,
	SP:          uc.M68K_REG_A7,
	Regs:        regs,
	DefaultRegs: defaultRegs,
}

var Arch = &models.Arch{
	Name:     "m68k",
	Enum:     uc.ARCH_M68K,
	PageSize: 0x1000,
	Cpu:      &unicorn.Builder{Arch: uc.ARCH_M68K},
	Modes:    []*models.Mode{ModeBE},
}

func init() {
	arch.Register(Arch)
}
