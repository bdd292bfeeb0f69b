//go:build unicorn

package arm64

import (
	"testing"
)

func TestArm64(t *testing.T) { Arch.SmokeTest(t) }
