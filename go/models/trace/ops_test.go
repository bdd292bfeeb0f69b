package trace

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var allOps = []Op{
	&OpNop{},
	&OpMemMap{0x1000, 0x1000, 7},
	&OpMemWrite{0x1000, []byte{0x02, 0x02, 0x1c}},
	&OpJmp{0x1000, 0x3},
	&OpStep{0x1},
	&OpReg{10, 0x1001},
	&OpMemRead{0x2000, 2},
	&OpExit{0},
}

var testKeyframe = &OpKeyframe{Ops: allOps}

func TestOpKeyframe(t *testing.T) {
	buf := make([]byte, testKeyframe.Sizeof())
	testKeyframe.Pack(buf)
	op, n, err := Unpack(bytes.NewReader(buf), false)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("unpacked %d bytes, expected %d", n, len(buf))
	}
	if diff := cmp.Diff(testKeyframe, op); diff != "" {
		t.Fatalf("keyframe mismatch (-want +got):\n%s", diff)
	}
}

func TestNestedKeyframe(t *testing.T) {
	nested := &OpKeyframe{Ops: []Op{&OpKeyframe{}}}
	buf := make([]byte, nested.Sizeof())
	nested.Pack(buf)
	if _, _, err := Unpack(bytes.NewReader(buf), false); err == nil {
		t.Fatal("nested keyframe unpacked")
	}
}

func TestUnknownOp(t *testing.T) {
	if _, _, err := Unpack(bytes.NewReader([]byte{0xff}), false); err == nil {
		t.Fatal("unknown op unpacked")
	}
}

func BenchmarkPack(b *testing.B) {
	buf := make([]byte, testKeyframe.Sizeof())
	for i := 0; i < b.N; i++ {
		testKeyframe.Pack(buf)
	}
}
