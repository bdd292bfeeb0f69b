package savestate

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

// strucStream packs and unpacks a sequence of records with one byte order.
type strucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
}

func (s *strucStream) Pack(vals ...interface{}) error {
	for _, v := range vals {
		if err := struc.PackWithOrder(s.Stream, v, s.Order); err != nil {
			return err
		}
	}
	return nil
}

func (s *strucStream) Unpack(vals ...interface{}) error {
	for _, v := range vals {
		if err := struc.UnpackWithOrder(s.Stream, v, s.Order); err != nil {
			return err
		}
	}
	return nil
}
