package archs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lunixbochs/corral/go/cmd"
)

func TestArchsNdh(t *testing.T) {
	var out bytes.Buffer
	if err := cmd.Execute([]string{"archs", "ndh"}, &out); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"ndh (arch 256", "16-bit little endian", "r0 r1 r2", "insn hooks: syscall"} {
		if !strings.Contains(s, want) {
			t.Errorf("output is missing %q:\n%s", want, s)
		}
	}
}

func TestArchsUnknown(t *testing.T) {
	if err := cmd.Execute([]string{"archs", "vax"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for an unknown arch")
	}
}
