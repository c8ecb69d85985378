// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
)

// Image base relocation types that actually occur in UEFI PE32/TE images.
// The full COFF relocation type list has many machine-specific entries
// that never appear in firmware; we only decode the ones rebasing needs.
const (
	imageRelBasedAbsolute = 0
	imageRelBasedHighLow  = 3
	imageRelBasedDir64    = 10
)

// imageBaseRelocationBlockHeader is the 8-byte header ahead of each block
// of .reloc entries.
type imageBaseRelocationBlockHeader struct {
	VirtualAddress uint32
	SizeOfBlock    uint32
}

// peRelocation is a single decoded fixup: an absolute offset into the
// image and the relocation type to apply there.
type peRelocation struct {
	Offset uint32
	Type   uint8
}

// teImageHeaderSize is the size of EFI_TE_IMAGE_HEADER, the lightweight
// header EDK2 substitutes for PE32/PE32+ in PEI-phase images.
const teImageHeaderSize = 40

// peImage holds just enough of a parsed PE32/PE32+/TE image to support
// rebasing: where its image base and relocation table live, and the
// decoded relocation list.
type peImage struct {
	isTE             bool
	imageBase        uint64
	imageBaseOffset  int // file offset of the ImageBase field, for rewriting.
	imageBaseIs32Bit bool
	relocTableRVA    uint32
	relocTableSize   uint32
	strippedBytes    uint32 // TE images drop everything before the header RVA.
	relocations      []peRelocation
}

// parsePEImage inspects a PE32/PE32+ or TE image and extracts its image
// base and relocation directory. It returns an error if buf doesn't look
// like an image this package understands.
func parsePEImage(buf []byte) (*peImage, error) {
	if len(buf) >= 2 && buf[0] == 'V' && buf[1] == 'Z' {
		return parseTEImage(buf)
	}
	if len(buf) < 0x40 || buf[0] != 'M' || buf[1] != 'Z' {
		return nil, fmt.Errorf("%w: not a PE or TE image", ErrUnknownImageType)
	}
	peOffset := binary.LittleEndian.Uint32(buf[0x3c:0x40])
	if uint64(peOffset)+4+20 > uint64(len(buf)) {
		return nil, ErrTruncatedImage
	}
	if string(buf[peOffset:peOffset+4]) != "PE\x00\x00" {
		return nil, fmt.Errorf("%w: missing PE signature", ErrUnknownImageType)
	}
	coffOff := peOffset + 4
	sizeOfOptionalHeader := binary.LittleEndian.Uint16(buf[coffOff+16 : coffOff+18])
	optOff := coffOff + 20
	if uint64(optOff)+uint64(sizeOfOptionalHeader) > uint64(len(buf)) {
		return nil, ErrTruncatedImage
	}
	magic := binary.LittleEndian.Uint16(buf[optOff : optOff+2])

	img := &peImage{}
	var dataDirOff uint32
	switch magic {
	case 0x10b: // PE32
		img.imageBase = uint64(binary.LittleEndian.Uint32(buf[optOff+28 : optOff+32]))
		img.imageBaseOffset = int(optOff + 28)
		img.imageBaseIs32Bit = true
		dataDirOff = optOff + 96
	case 0x20b: // PE32+
		img.imageBase = binary.LittleEndian.Uint64(buf[optOff+24 : optOff+32])
		img.imageBaseOffset = int(optOff + 24)
		dataDirOff = optOff + 112
	default:
		return nil, fmt.Errorf("%w: unrecognized optional header magic %#x", ErrUnknownPeOptionalHeaderType, magic)
	}
	// Data directory entry 5 is the base relocation table.
	const baseRelocDirIndex = 5
	dirEntOff := dataDirOff + baseRelocDirIndex*8
	if uint64(dirEntOff)+8 <= uint64(len(buf)) {
		img.relocTableRVA = binary.LittleEndian.Uint32(buf[dirEntOff : dirEntOff+4])
		img.relocTableSize = binary.LittleEndian.Uint32(buf[dirEntOff+4 : dirEntOff+8])
	}

	if err := img.decodeRelocations(buf, img.relocTableRVA, img.relocTableSize); err != nil {
		return nil, err
	}
	return img, nil
}

// parseTEImage handles EFI_TE_IMAGE_HEADER, which EDK2 uses in place of a
// full PE header for PEI-phase modules to save space.
func parseTEImage(buf []byte) (*peImage, error) {
	if len(buf) < teImageHeaderSize {
		return nil, ErrTruncatedImage
	}
	img := &peImage{isTE: true}
	img.strippedBytes = uint32(binary.LittleEndian.Uint16(buf[6:8]))
	img.imageBase = binary.LittleEndian.Uint64(buf[16:24])
	img.imageBaseOffset = 16
	img.relocTableRVA = binary.LittleEndian.Uint32(buf[32:36])
	img.relocTableSize = binary.LittleEndian.Uint32(buf[36:40])

	fileOff := int64(img.relocTableRVA) - int64(img.strippedBytes) + teImageHeaderSize
	if fileOff < 0 {
		return img, nil
	}
	if err := img.decodeRelocations(buf, uint32(fileOff), img.relocTableSize); err != nil {
		return nil, err
	}
	return img, nil
}

// decodeRelocations walks the .reloc blocks starting at the given file
// offset (for TE images the caller has already converted RVA to file
// offset; for PE images RVA and file offset coincide for the unpacked,
// uncompressed sections this package deals with).
func (img *peImage) decodeRelocations(buf []byte, off, size uint32) error {
	if size == 0 {
		return nil
	}
	end := uint64(off) + uint64(size)
	if end > uint64(len(buf)) {
		return fmt.Errorf("%w: relocation table extends past end of image", ErrBadRelocationEntry)
	}
	pos := uint64(off)
	for pos < end {
		if pos+8 > end {
			return fmt.Errorf("%w: truncated relocation block header", ErrBadRelocationEntry)
		}
		var hdr imageBaseRelocationBlockHeader
		hdr.VirtualAddress = binary.LittleEndian.Uint32(buf[pos : pos+4])
		hdr.SizeOfBlock = binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		if hdr.SizeOfBlock < 8 || pos+uint64(hdr.SizeOfBlock) > end {
			return fmt.Errorf("%w: block size %d out of range", ErrBadRelocationEntry, hdr.SizeOfBlock)
		}
		entryCount := (hdr.SizeOfBlock - 8) / 2
		for i := uint32(0); i < entryCount; i++ {
			entOff := pos + 8 + uint64(i)*2
			raw := binary.LittleEndian.Uint16(buf[entOff : entOff+2])
			relType := uint8(raw >> 12)
			relOffset := uint32(raw&0x0fff) + hdr.VirtualAddress
			if relType == imageRelBasedAbsolute {
				continue
			}
			img.relocations = append(img.relocations, peRelocation{Offset: relOffset, Type: relType})
		}
		pos += uint64(hdr.SizeOfBlock)
	}
	return nil
}

// RebaseImageSection parses the PE32/PE32+/TE image carried by a PE32 or TE
// section and rewrites its image base and relocations in place to newBase.
// It is a no-op if the section's buffer doesn't parse as a recognized
// image; firmware occasionally carries PE32 sections UEFITool itself
// can't rebase, and a rebase failure there shouldn't abort the whole
// reconstruction.
func RebaseImageSection(s *Section, newBase uint64) error {
	buf := s.Buf()
	// The image starts after the section header; body shares buf's memory.
	body := s.Body()
	img, err := parsePEImage(body)
	if err != nil {
		return nil
	}
	identity := func(rva uint32) uint32 { return rva }
	if err := img.rebase(body, newBase, identity); err != nil {
		return err
	}
	s.SetBuf(buf)
	return nil
}

// rebase rewrites buf's ImageBase field and every relocation entry's
// target by delta = newBase - img.imageBase. rvaToFileOffset converts an
// RVA found in a relocation entry to a byte offset within buf; for the
// sections this package rebases (already-decompressed PEI PE32/TE
// images), RVA and file offset coincide, so callers pass identity.
func (img *peImage) rebase(buf []byte, newBase uint64, rvaToFileOffset func(uint32) uint32) error {
	delta := int64(newBase) - int64(img.imageBase)
	if delta == 0 {
		return nil
	}
	if img.imageBaseIs32Bit {
		binary.LittleEndian.PutUint32(buf[img.imageBaseOffset:img.imageBaseOffset+4], uint32(newBase))
	} else {
		binary.LittleEndian.PutUint64(buf[img.imageBaseOffset:img.imageBaseOffset+8], newBase)
	}
	for _, r := range img.relocations {
		fo := rvaToFileOffset(r.Offset)
		switch r.Type {
		case imageRelBasedHighLow:
			if uint64(fo)+4 > uint64(len(buf)) {
				return fmt.Errorf("%w: relocation at %#x out of bounds", ErrBadRelocationEntry, fo)
			}
			v := binary.LittleEndian.Uint32(buf[fo : fo+4])
			binary.LittleEndian.PutUint32(buf[fo:fo+4], uint32(int64(v)+delta))
		case imageRelBasedDir64:
			if uint64(fo)+8 > uint64(len(buf)) {
				return fmt.Errorf("%w: relocation at %#x out of bounds", ErrBadRelocationEntry, fo)
			}
			v := binary.LittleEndian.Uint64(buf[fo : fo+8])
			binary.LittleEndian.PutUint64(buf[fo:fo+8], uint64(int64(v)+delta))
		default:
			return fmt.Errorf("%w: type %d", ErrUnknownRelocationType, r.Type)
		}
	}
	img.imageBase = newBase
	return nil
}
