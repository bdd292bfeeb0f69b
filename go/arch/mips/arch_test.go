//go:build unicorn

package mips

import (
	"testing"
)

func TestMips(t *testing.T) { Arch.SmokeTest(t) }
