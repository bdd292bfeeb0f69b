package corral

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lunixbochs/corral/go/cpu/ndh"
	"github.com/lunixbochs/corral/go/models/cpu"
)

func TestRegReadWrite(t *testing.T) {
	e := openNdh(t)
	if err := e.RegWrite(ndh.R3, 0x1234); err != nil {
		t.Fatal(err)
	}
	if v, err := e.RegRead(ndh.R3); err != nil || v != 0x1234 {
		t.Fatalf("RegRead = %#x, %v", v, err)
	}
	_, err := e.RegRead(99)
	expectErr(t, err, ErrArg)
	expectErr(t, e.RegWrite(99, 1), ErrArg)
}

func TestRegBatch(t *testing.T) {
	e := openNdh(t)
	vals := []RegVal{{ndh.R0, 1}, {ndh.R1, 2}, {ndh.SP, 0x8000}}
	if err := e.RegWriteBatch(vals); err != nil {
		t.Fatal(err)
	}
	got, err := e.RegReadBatch([]int{ndh.R0, ndh.R1, ndh.SP})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{1, 2, 0x8000}, got); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}

	// one bad id fails the whole batch before anything is written
	expectErr(t, e.RegWriteBatch([]RegVal{{ndh.R0, 7}, {99, 7}}), ErrArg)
	if v, _ := e.RegRead(ndh.R0); v != 1 {
		t.Fatalf("failed batch wrote r0 = %#x", v)
	}
	_, err = e.RegReadBatch([]int{ndh.R0, 99})
	expectErr(t, err, ErrArg)
}

func TestRegBytes(t *testing.T) {
	e := openNdh(t)
	if size, err := e.RegSize(ndh.R0); err != nil || size != 2 {
		t.Fatalf("RegSize(r0) = %d, %v", size, err)
	}
	if size, err := e.RegSize(ndh.ZF); err != nil || size != 1 {
		t.Fatalf("RegSize(zf) = %d, %v", size, err)
	}
	e.RegWrite(ndh.R0, 0xbeef)
	p, err := e.RegReadBytes(ndh.R0)
	if err != nil {
		t.Fatal(err)
	}
	if binary.NativeEndian.Uint16(p) != 0xbeef {
		t.Fatalf("RegReadBytes(r0) = %x", p)
	}

	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, 0x4242)
	if err := e.RegWriteBytes(ndh.R1, buf); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.RegRead(ndh.R1); v != 0x4242 {
		t.Fatalf("r1 = %#x", v)
	}
	expectErr(t, e.RegWriteBytes(ndh.R1, []byte{1}), ErrArg)
	expectErr(t, e.RegWriteBytes(ndh.ZF, []byte{1, 0}), ErrArg)
	if err := e.RegWriteBytes(ndh.ZF, []byte{1}); err != nil {
		t.Fatal(err)
	}
}

func TestRegDump(t *testing.T) {
	e := openNdh(t)
	e.RegWrite(ndh.R7, 7)
	regs, err := e.RegDump()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range regs {
		names = append(names, r.Name)
		if r.Name == "r7" && r.Val != 7 {
			t.Errorf("r7 = %d", r.Val)
		}
	}
	expected := []string{"af", "bf", "bp", "pc", "r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "sp", "zf"}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Fatalf("dump order (-want +got):\n%s", diff)
	}
}

func TestPushPop(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	e.RegWrite(ndh.SP, 0x2000)
	sp, err := e.Push(0x1234)
	if err != nil {
		t.Fatal(err)
	}
	if sp != 0x1ffe {
		t.Fatalf("sp = %#x after push", sp)
	}
	if v, _ := e.MemReadUint(0x1ffe, 2); v != 0x1234 {
		t.Fatalf("pushed %#x", v)
	}
	if v, err := e.Pop(); err != nil || v != 0x1234 {
		t.Fatalf("Pop = %#x, %v", v, err)
	}
	if sp, _ := e.SP(); sp != 0x2000 {
		t.Fatalf("sp = %#x after pop", sp)
	}
}
