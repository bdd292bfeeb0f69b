// Package savestate persists a machine's registers and memory through the public engine API.
//
// File layout, big endian:
//
//	header: magic "CRLS", uint32 version, uint32 arch, uint32 mode,
//	        uint32 crc32 of the compressed body, uint64 compressed body length
//	body (snappy block):
//	        uint32 register count, then {uint32 enum, uint64 value} per register
//	        uint32 region count, then {uint64 addr, uint64 size, uint32 prot} and size raw bytes per region
package savestate

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	corral "github.com/lunixbochs/corral/go"
	"github.com/lunixbochs/corral/go/models/cpu"
)

const (
	MAGIC   = "CRLS"
	VERSION = 1
)

// bodies larger than this are rejected before decompression
const maxBody = 1 << 32

// encoded sizes of a register and a region header
const (
	regSize    = 4 + 8
	regionSize = 8 + 8 + 4
)

type Header struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Arch    uint32
	Mode    uint32
	Crc     uint32
	Length  uint64
}

type Reg struct {
	Enum uint32
	Val  uint64
}

type Region struct {
	Addr, Size uint64
	Prot       uint32
	Data       []byte `struc:"skip"`
}

// State is a decoded savestate.
type State struct {
	Header
	Regs    []Reg
	Regions []Region
}

var options = &struc.Options{Order: binary.BigEndian}

// Capture reads the engine's registers and readable memory into a State.
func Capture(e *corral.Engine) (*State, error) {
	s := &State{Header: Header{Magic: MAGIC, Version: VERSION, Arch: uint32(e.Arch().Enum), Mode: uint32(e.Mode())}}
	regs, err := e.RegDump()
	if err != nil {
		return nil, errors.Wrap(err, "register dump failed")
	}
	for _, r := range regs {
		s.Regs = append(s.Regs, Reg{Enum: uint32(r.Enum), Val: r.Val})
	}
	regions, err := e.MemRegions()
	if err != nil {
		return nil, err
	}
	for _, m := range regions {
		data := make([]byte, m.Size)
		// contents of unreadable regions are not saved
		if m.Prot&cpu.PROT_READ != 0 {
			if err := e.MemReadInto(data, m.Addr); err != nil {
				return nil, errors.Wrapf(err, "failed to read region at %#x", m.Addr)
			}
		}
		s.Regions = append(s.Regions, Region{Addr: m.Addr, Size: m.Size, Prot: uint32(m.Prot), Data: data})
	}
	return s, nil
}

// WriteTo encodes the state to w.
func (s *State) WriteTo(w io.Writer) (int64, error) {
	var body bytes.Buffer
	stream := &strucStream{&body, options.Order}
	if err := stream.Pack(uint32(len(s.Regs))); err != nil {
		return 0, err
	}
	for i := range s.Regs {
		if err := stream.Pack(&s.Regs[i]); err != nil {
			return 0, err
		}
	}
	if err := stream.Pack(uint32(len(s.Regions))); err != nil {
		return 0, err
	}
	for i := range s.Regions {
		r := &s.Regions[i]
		if err := stream.Pack(r); err != nil {
			return 0, err
		}
		body.Write(r.Data)
	}
	data := snappy.Encode(nil, body.Bytes())

	header := s.Header
	header.Magic, header.Version = MAGIC, VERSION
	header.Crc = crc32.ChecksumIEEE(data)
	header.Length = uint64(len(data))
	var final bytes.Buffer
	if err := struc.PackWithOptions(&final, &header, options); err != nil {
		return 0, errors.Wrap(err, "failed to pack header")
	}
	final.Write(data)
	return final.WriteTo(w)
}

// Read decodes a savestate without touching any engine.
func Read(r io.Reader) (*State, error) {
	s := &State{}
	if err := struc.UnpackWithOptions(r, &s.Header, options); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if s.Magic != MAGIC {
		return nil, errors.New("invalid savestate magic")
	}
	if s.Version != VERSION {
		return nil, errors.Errorf("unsupported savestate version %d", s.Version)
	}
	if s.Length > maxBody {
		return nil, errors.Errorf("savestate body too large: %d", s.Length)
	}
	// the buffer only grows with bytes actually read
	var raw bytes.Buffer
	n, err := raw.ReadFrom(io.LimitReader(r, int64(s.Length)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read savestate body")
	}
	if uint64(n) != s.Length {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "truncated savestate: %d of %d bytes", n, s.Length)
	}
	data := raw.Bytes()
	if crc32.ChecksumIEEE(data) != s.Crc {
		return nil, errors.New("savestate checksum mismatch")
	}
	body, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress savestate")
	}
	buf := bytes.NewBuffer(body)
	stream := &strucStream{buf, options.Order}
	var count uint32
	if err := stream.Unpack(&count); err != nil {
		return nil, err
	}
	if uint64(count) > uint64(buf.Len()/regSize) {
		return nil, errors.Errorf("register count %d exceeds savestate body", count)
	}
	s.Regs = make([]Reg, count)
	for i := range s.Regs {
		if err := stream.Unpack(&s.Regs[i]); err != nil {
			return nil, errors.Wrap(err, "failed to unpack register")
		}
	}
	if err := stream.Unpack(&count); err != nil {
		return nil, err
	}
	if uint64(count) > uint64(buf.Len()/regionSize) {
		return nil, errors.Errorf("region count %d exceeds savestate body", count)
	}
	s.Regions = make([]Region, count)
	for i := range s.Regions {
		reg := &s.Regions[i]
		if err := stream.Unpack(reg); err != nil {
			return nil, errors.Wrap(err, "failed to unpack region")
		}
		if reg.Size > uint64(buf.Len()) {
			return nil, errors.Errorf("region at %#x is truncated", reg.Addr)
		}
		reg.Data = buf.Next(int(reg.Size))
	}
	return s, nil
}

// Validate checks that the state can be applied to e without changing it.
func (s *State) Validate(e *corral.Engine) error {
	if int(s.Arch) != e.Arch().Enum || int(s.Mode) != e.Mode() {
		return errors.Wrapf(corral.ErrArg, "savestate is for arch %d mode %#x", s.Arch, s.Mode)
	}
	mask := e.PageSize() - 1
	order := make([]*Region, len(s.Regions))
	for i := range s.Regions {
		r := &s.Regions[i]
		switch {
		case r.Size == 0 || r.Addr&mask != 0 || r.Size&mask != 0:
			return errors.Wrapf(corral.ErrArg, "region %#x+%#x is not page aligned", r.Addr, r.Size)
		case r.Addr+r.Size < r.Addr:
			return errors.Wrapf(corral.ErrArg, "region %#x+%#x wraps", r.Addr, r.Size)
		case uint64(len(r.Data)) != r.Size:
			return errors.Wrapf(corral.ErrArg, "region at %#x holds %d bytes, expected %d", r.Addr, len(r.Data), r.Size)
		case r.Prot&^uint32(cpu.PROT_ALL) != 0:
			return errors.Wrapf(corral.ErrArg, "region at %#x has bad prot %#x", r.Addr, r.Prot)
		}
		order[i] = r
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Addr < order[j].Addr })
	for i := 1; i < len(order); i++ {
		if prev := order[i-1]; prev.Addr+prev.Size > order[i].Addr {
			return errors.Wrapf(corral.ErrArg, "region at %#x overlaps %#x", order[i].Addr, prev.Addr)
		}
	}
	for _, r := range s.Regs {
		if _, err := e.RegSize(int(r.Enum)); err != nil {
			return err
		}
	}
	return nil
}

// Apply replaces the engine's memory and registers with the state.
// The engine is left untouched if the state does not validate.
func (s *State) Apply(e *corral.Engine) error {
	if err := s.Validate(e); err != nil {
		return err
	}
	regions, err := e.MemRegions()
	if err != nil {
		return err
	}
	for _, m := range regions {
		if err := e.MemUnmap(m.Addr, m.Size); err != nil {
			return err
		}
	}
	for _, r := range s.Regions {
		// map writable first so read-only and exec-only regions can be filled
		if err := e.MemMap(r.Addr, r.Size, cpu.PROT_ALL); err != nil {
			return errors.Wrapf(err, "failed to map region at %#x", r.Addr)
		}
		if err := e.MemWrite(r.Addr, r.Data); err != nil {
			return err
		}
		if r.Prot != cpu.PROT_ALL {
			if err := e.MemProtect(r.Addr, r.Size, int(r.Prot)); err != nil {
				return err
			}
		}
	}
	vals := make([]corral.RegVal, len(s.Regs))
	for i, r := range s.Regs {
		vals[i] = corral.RegVal{Reg: int(r.Enum), Val: r.Val}
	}
	return e.RegWriteBatch(vals)
}

// Save writes a savestate of e to w.
func Save(w io.Writer, e *corral.Engine) error {
	s, err := Capture(e)
	if err != nil {
		return err
	}
	_, err = s.WriteTo(w)
	Logger().Debug("savestate save", zap.Int("regs", len(s.Regs)), zap.Int("regions", len(s.Regions)), zap.Error(err))
	return err
}

// Load reads a savestate from r and applies it to e.
func Load(r io.Reader, e *corral.Engine) error {
	s, err := Read(r)
	if err != nil {
		return err
	}
	err = s.Apply(e)
	Logger().Debug("savestate load", zap.Int("regs", len(s.Regs)), zap.Int("regions", len(s.Regions)), zap.Error(err))
	return err
}
