package main

import (
	"github.com/lunixbochs/corral/go/cmd"

	_ "github.com/lunixbochs/corral/go/cmd/archs"
	_ "github.com/lunixbochs/corral/go/cmd/run"
	_ "github.com/lunixbochs/corral/go/cmd/state"
)

func main() { cmd.Main() }
