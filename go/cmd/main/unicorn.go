//go:build unicorn

package main

import (
	_ "github.com/lunixbochs/corral/go/arch/arm"
	_ "github.com/lunixbochs/corral/go/arch/arm64"
	_ "github.com/lunixbochs/corral/go/arch/m68k"
	_ "github.com/lunixbochs/corral/go/arch/mips"
	_ "github.com/lunixbochs/corral/go/arch/sparc"
	_ "github.com/lunixbochs/corral/go/arch/x86"
)
