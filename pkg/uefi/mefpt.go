// Copyright 2019 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MEFPTSignature is the 4-byte tag that opens the Intel Management Engine
// Flash Partition Table, "$FPT".
var MEFPTSignature = []byte{'$', 'F', 'P', 'T'}

// MEName is a fixed 4-byte ASCII partition name as used by the $FPT entry
// table; short names are NUL padded.
type MEName [4]byte

// MarshalText renders the name with its NUL padding stripped.
func (n MEName) MarshalText() ([]byte, error) {
	return bytes.TrimRight(n[:], "\x00"), nil
}

// UnmarshalText fills the name from a string, failing if it doesn't fit.
func (n *MEName) UnmarshalText(b []byte) error {
	if len(b) > len(n) {
		return fmt.Errorf("can’t unmarshal %q to MEName, %d > %d", b, len(b), len(n))
	}
	*n = MEName{}
	copy(n[:], b)
	return nil
}

func (n MEName) String() string {
	b, _ := n.MarshalText()
	return string(b)
}

// meFPTHeader is the fixed portion of the $FPT header, ahead of the entry
// array.
type meFPTHeader struct {
	Signature      [4]byte
	NumEntries     uint32
	HeaderVersion  uint8
	EntryVersion   uint8
	HeaderLength   uint8
	HeaderChecksum uint8
	TicksToAdd     uint16
	TokensToAdd    uint16
	UMASize        uint32
	Flags          uint32
	FitMajor       uint16
	FitMinor       uint16
	FitHotfix      uint16
	FitBuild       uint16
}

const meFPTHeaderLen = 32

// meFPTRawEntry mirrors the on-disk $FPT partition entry.
type meFPTRawEntry struct {
	Name       MEName
	Reserved1  [4]byte
	Offset     uint32
	Length     uint32
	Reserved2  [12]byte
	EntryFlags uint32
}

const meFPTEntryLen = 32

// MEFPTEntry describes one partition listed in an ME $FPT table.
type MEFPTEntry struct {
	Name       MEName
	Offset     uint32
	Length     uint32
	EntryFlags uint32
}

// OffsetIsValid reports whether the entry carries a real partition offset,
// as opposed to an entry type that has none (e.g. a state or info marker).
func (e MEFPTEntry) OffsetIsValid() bool {
	return e.Offset != 0 && e.Offset != 0xFFFFFFFF
}

// Type returns the low byte of EntryFlags, the partition type per the ME
// $FPT entry format.
func (e MEFPTEntry) Type() uint8 {
	return uint8(e.EntryFlags)
}

// MEFPT represents the Flash Partition Table found inside an ME region. It
// is not a full parse of the ME region, just the directory of partitions,
// which is all the imaging tool needs to know where things live.
type MEFPT struct {
	meFPTHeader
	PartitionCount uint32
	Entries        []MEFPTEntry

	buf         []byte
	AbsOffSet   uint64
	ExtractPath string
}

// FindMEDescriptor searches buf for the "$FPT" signature and returns the
// byte offset just past it, where the header fields that follow the
// signature begin, or -1 with an error if it isn't found.
func FindMEDescriptor(buf []byte) (int, error) {
	idx := bytes.Index(buf, MEFPTSignature)
	if idx == -1 {
		return -1, fmt.Errorf("$FPT signature not found")
	}
	return idx + len(MEFPTSignature), nil
}

// NewMEFPT locates and parses the $FPT table inside an ME region buffer.
func NewMEFPT(buf []byte) (*MEFPT, error) {
	off, err := FindMEDescriptor(buf)
	if err != nil {
		return nil, err
	}
	// meFPTHeader starts with the signature itself.
	off -= len(MEFPTSignature)
	if off+meFPTHeaderLen > len(buf) {
		return nil, fmt.Errorf("$FPT header runs past end of ME region")
	}
	f := &MEFPT{}
	r := bytes.NewReader(buf[off : off+meFPTHeaderLen])
	if err := binary.Read(r, binary.LittleEndian, &f.meFPTHeader); err != nil {
		return nil, err
	}
	f.PartitionCount = f.NumEntries

	entriesStart := off + meFPTHeaderLen
	for i := uint32(0); i < f.NumEntries; i++ {
		entryOff := entriesStart + int(i)*meFPTEntryLen
		if entryOff+meFPTEntryLen > len(buf) {
			return nil, fmt.Errorf("$FPT entry %d runs past end of ME region", i)
		}
		var raw meFPTRawEntry
		er := bytes.NewReader(buf[entryOff : entryOff+meFPTEntryLen])
		if err := binary.Read(er, binary.LittleEndian, &raw); err != nil {
			return nil, err
		}
		f.Entries = append(f.Entries, MEFPTEntry{
			Name:       raw.Name,
			Offset:     raw.Offset,
			Length:     raw.Length,
			EntryFlags: raw.EntryFlags,
		})
	}

	end := entriesStart + int(f.NumEntries)*meFPTEntryLen
	if end > len(buf) {
		end = len(buf)
	}
	f.buf = buf[off:end]
	return f, nil
}

// Buf returns the buffer.
func (f *MEFPT) Buf() []byte {
	return f.buf
}

// SetBuf sets the buffer.
func (f *MEFPT) SetBuf(buf []byte) {
	f.buf = buf
}

// Apply calls the visitor on the MEFPT.
func (f *MEFPT) Apply(v Visitor) error {
	return v.Visit(f)
}

// ApplyChildren calls the visitor on each child node of MEFPT. MEFPT has no
// parsed children; its entries just describe offsets into the raw ME
// region, which this package doesn't otherwise decode.
func (f *MEFPT) ApplyChildren(v Visitor) error {
	return nil
}

// Position returns the absolute offset of the $FPT table within the image.
func (f *MEFPT) Position() uint64 {
	return f.AbsOffSet
}
