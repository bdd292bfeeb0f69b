package state

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	corral "github.com/lunixbochs/corral/go"
	"github.com/lunixbochs/corral/go/cmd"
	"github.com/lunixbochs/corral/go/cpu/ndh"
	"github.com/lunixbochs/corral/go/models/cpu"
	"github.com/lunixbochs/corral/go/savestate"
)

func TestStatePrint(t *testing.T) {
	e, err := corral.Open(cpu.ARCH_NDH, cpu.MODE_LITTLE_ENDIAN)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	e.MemMap(0x1000, 0x1000, cpu.PROT_READ|cpu.PROT_EXEC)
	e.RegWrite(ndh.R3, 0x1234)

	var buf bytes.Buffer
	if err := savestate.Save(&buf, e); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "test.state")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := cmd.Execute([]string{"state", path}, &out); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"ndh mode 0x0, savestate v1", "r3 0x1234", "0x1000-0x2000 r-x"} {
		if !strings.Contains(s, want) {
			t.Errorf("output is missing %q:\n%s", want, s)
		}
	}
}

func TestStateMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	if err := cmd.Execute([]string{"state", path}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
