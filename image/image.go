// Package image models the read-only byte image a binary loader hands to
// the decompiler core: sections, addresses and little/big-endian reads.
// It is the concrete shape of the "Byte image" collaborator in §6 of the
// decompiler pipeline specification.
package image

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// Address is a virtual address inside the image.
type Address uint64

// Flag describes one property of a Section.
type Flag uint16

// Section flags.
const (
	FlagAllocated Flag = 1 << iota
	FlagReadable
	FlagWritable
	FlagExecutable
	FlagCode
	FlagData
	FlagBSS
)

// Has reports whether f includes all bits of want.
func (f Flag) Has(want Flag) bool { return f&want == want }

// ByteOrder is the byte order a section's contents are encoded in.
type ByteOrder int

const (
	// LittleEndian sections are read with binary.LittleEndian.
	LittleEndian ByteOrder = iota
	// BigEndian sections are read with binary.BigEndian.
	BigEndian
)

func (o ByteOrder) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Section is one mapped region of the image.
type Section struct {
	Name      string
	Addr      Address
	Size      uint64
	Flags     Flag
	ByteOrder ByteOrder
	Data      []byte
}

// Contains reports whether addr falls inside the section.
func (s *Section) Contains(addr Address) bool {
	return addr >= s.Addr && uint64(addr-s.Addr) < s.Size
}

// ErrOutOfRange is returned when a read starts outside every section.
var ErrOutOfRange = errors.New("image: address out of range")

// Image is the read-only byte image consumed by the disassembler and the
// jump-table reader that structural analysis uses for switch recognition
// (pipeline.ImageJumpTableResolver).
type Image struct {
	sections []*Section
	byName   map[string]*Section
}

// New builds an Image over the given sections, sorted by address.
func New(sections []*Section) *Image {
	img := &Image{byName: make(map[string]*Section, len(sections))}
	img.sections = append(img.sections, sections...)
	sort.SliceStable(img.sections, func(i, j int) bool { return img.sections[i].Addr < img.sections[j].Addr })
	for _, s := range img.sections {
		img.byName[s.Name] = s
	}
	return img
}

// Sections returns all sections in the image.
func (img *Image) Sections() []*Section { return img.sections }

// SectionAt returns the section containing addr, or nil.
func (img *Image) SectionAt(addr Address) *Section {
	for _, s := range img.sections {
		if s.Contains(addr) {
			return s
		}
	}
	return nil
}

// SectionByName returns the section with the given name, or nil.
func (img *Image) SectionByName(name string) *Section {
	return img.byName[name]
}

// ReadBytes reads up to len(buf) bytes at addr, returning fewer if the
// section ends first, per the "may read less if at end" contract in §6.
func (img *Image) ReadBytes(addr Address, buf []byte) (int, error) {
	s := img.SectionAt(addr)
	if s == nil {
		return 0, errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	off := uint64(addr - s.Addr)
	if off >= uint64(len(s.Data)) {
		return 0, nil
	}
	n := copy(buf, s.Data[off:])
	return n, nil
}

// ReadASCIIZ reads a NUL-terminated string starting at addr.
func (img *Image) ReadASCIIZ(addr Address) (string, error) {
	s := img.SectionAt(addr)
	if s == nil {
		return "", errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	off := uint64(addr - s.Addr)
	end := off
	for end < uint64(len(s.Data)) && s.Data[end] != 0 {
		end++
	}
	return string(s.Data[off:end]), nil
}

// ReadU8 reads one byte at addr.
func (img *Image) ReadU8(addr Address) (uint8, error) {
	var buf [1]byte
	n, err := img.ReadBytes(addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	return buf[0], nil
}

// ReadU16 reads a 16-bit value at addr using its section's byte order.
func (img *Image) ReadU16(addr Address) (uint16, error) {
	s := img.SectionAt(addr)
	var buf [2]byte
	n, err := img.ReadBytes(addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 2 {
		return 0, errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	return s.ByteOrder.binary().Uint16(buf[:]), nil
}

// ReadU32 reads a 32-bit value at addr using its section's byte order.
func (img *Image) ReadU32(addr Address) (uint32, error) {
	s := img.SectionAt(addr)
	var buf [4]byte
	n, err := img.ReadBytes(addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	return s.ByteOrder.binary().Uint32(buf[:]), nil
}

// ReadU64 reads a 64-bit value at addr using its section's byte order.
func (img *Image) ReadU64(addr Address) (uint64, error) {
	s := img.SectionAt(addr)
	var buf [8]byte
	n, err := img.ReadBytes(addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 8 {
		return 0, errors.WithMessagef(ErrOutOfRange, "0x%x", uint64(addr))
	}
	return s.ByteOrder.binary().Uint64(buf[:]), nil
}
