//go:build unicorn

package sparc

import (
	"testing"
)

func TestSparc(t *testing.T) { Arch.SmokeTest(t) }
