package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

func bigEndian(order binary.ByteOrder) bool {
	return order.Uint16([]byte{0, 1}) == 1
}

func checkUint(size, have int) error {
	if size < 1 || size > 8 {
		return errors.Wrapf(ERR_ARG, "unsupported uint size: %d", size)
	}
	if have < size {
		return errors.Wrapf(ERR_ARG, "buffer too small (%d < %d)", have, size)
	}
	return nil
}

// PackUint encodes the low size bytes of n into buf, allocating when buf is nil.
// Any size from 1 to 8 is accepted. Errors wrap ERR_ARG.
func PackUint(order binary.ByteOrder, size int, buf []byte, n uint64) ([]byte, error) {
	if buf == nil {
		buf = make([]byte, max(size, 0))
	}
	if err := checkUint(size, len(buf)); err != nil {
		return nil, err
	}
	out := buf[:size]
	big := bigEndian(order)
	for i := range out {
		shift := uint(i) * 8
		if big {
			shift = uint(size-1-i) * 8
		}
		out[i] = byte(n >> shift)
	}
	return out, nil
}

// UnpackUint decodes the first size bytes of buf.
func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	if err := checkUint(size, len(buf)); err != nil {
		return 0, err
	}
	var n uint64
	if bigEndian(order) {
		for _, b := range buf[:size] {
			n = n<<8 | uint64(b)
		}
	} else {
		for i := size - 1; i >= 0; i-- {
			n = n<<8 | uint64(buf[i])
		}
	}
	return n, nil
}
