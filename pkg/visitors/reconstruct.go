// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package visitors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/linuxboot/fiano/pkg/compression"
	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/log"
	"github.com/linuxboot/fiano/pkg/uefi"
)

// Assemble reassembles the firmware tree from its leaf buffers. It is
// action-aware: a node whose Action is NoAction or DoNotRebuild is left
// exactly as parsed instead of being rebuilt from its children, so an
// image nothing has touched round-trips byte for byte.
type Assemble struct {
	// Set when a file or section >=16MiB is encountered during assembly.
	// This tells the enclosing FV to use the FFSV3 GUID instead of the
	// FFSV2 GUID, and the enclosing FV resets it.
	useFFS3 bool
}

// Run just applies the visitor.
func (v *Assemble) Run(f uefi.Firmware) error {
	return f.Apply(v)
}

// childActions returns the current Action of every direct child of f that
// carries one, so a composite node can promote its own action to match the
// strongest edit made anywhere below it.
func childActions(f uefi.Firmware) []uefi.Action {
	var actionable func(uefi.Firmware) (uefi.Action, bool)
	actionable = func(f uefi.Firmware) (uefi.Action, bool) {
		a, ok := f.(uefi.Actionable)
		if !ok {
			return uefi.NoAction, false
		}
		return a.GetAction(), true
	}

	var out []uefi.Action
	switch f := f.(type) {
	case *uefi.FirmwareVolume:
		for _, file := range f.Files {
			out = append(out, file.GetAction())
		}
	case *uefi.File:
		for _, s := range f.Sections {
			out = append(out, s.GetAction())
		}
		if f.NVarStore != nil {
			out = append(out, f.NVarStore.GetAction())
		}
	case *uefi.Section:
		for _, es := range f.Encapsulated {
			if a, ok := actionable(es.Value); ok {
				out = append(out, a)
			}
		}
	case *uefi.NVarStore:
		for _, nv := range f.Entries {
			out = append(out, nv.GetAction())
		}
	case *uefi.BIOSRegion:
		for _, e := range f.Elements {
			if a, ok := actionable(e.Value); ok {
				out = append(out, a)
			}
		}
	case *uefi.FlashImage:
		out = append(out, f.IFD.GetAction())
		for _, r := range f.Regions {
			if a, ok := actionable(r); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// Visit applies the Assemble visitor to any Firmware type.
func (v *Assemble) Visit(f uefi.Firmware) error {
	a, actionable := f.(uefi.Actionable)
	selfAction := uefi.NoAction
	if actionable {
		selfAction = a.GetAction()
	}

	// DoNotRebuild is an explicit "leave this subtree alone" override; it
	// is never discovered by descending into children, only set directly
	// on this node.
	if selfAction == uefi.DoNotRebuild {
		return nil
	}

	var err error

	if fv, ok := f.(*uefi.FirmwareVolume); ok {
		if err = uefi.SetErasePolarity(fv.GetErasePolarity()); err != nil {
			return err
		}
	}

	// Assemble the children first, so that by the time this node decides
	// whether it needs rebuilding, every child's action already reflects
	// whatever edit touched it.
	if err = f.ApplyChildren(v); err != nil {
		return err
	}

	if actionable {
		for _, child := range childActions(f) {
			selfAction = uefi.Promote(selfAction, child)
		}
		a.SetAction(selfAction)
	}

	if selfAction == uefi.NoAction {
		// Nothing below touched this node either; keep its parsed buffer
		// so the image round-trips byte for byte.
		return nil
	}

	switch f := f.(type) {

	case *uefi.FirmwareVolume:
		if f.GetAction() == uefi.Rebase {
			if err := v.rebaseVolume(f); err != nil {
				return err
			}
		}
		if len(f.Files) == 0 {
			return nil
		}
		fBuf := f.Buf()
		fBufLen := uint64(len(fBuf))
		if f.Length < fBufLen {
			return fmt.Errorf("buffer read in bigger than FV length!, expected %v got %v bytes",
				f.Length, fBufLen)
		}

		fileOffset := f.DataOffset
		if f.DataOffset != fBufLen {
			fBuf = fBuf[:f.DataOffset]
			f.SetBuf(fBuf)
		}

		files := assembleRemoved(f.Files)
		for _, file := range files {
			fileBuf := file.Buf()
			fileLen := uint64(len(fileBuf))
			if fileLen == 0 {
				log.Fatalf("%v", file.Header.GUID)
			}

			alignedOffset := uefi.Align8(fileOffset)
			if alignBase := file.Header.Attributes.GetAlignment(); alignBase != 1 {
				hl := file.HeaderLen()
				fileDataOffset := uefi.Align(alignedOffset+hl, alignBase)
				newOffset := fileDataOffset - hl
				if gap := (newOffset - alignedOffset); gap >= 8 && gap < uefi.FileHeaderMinLength {
					fileDataOffset = uefi.Align(fileDataOffset+1, alignBase)
					newOffset = fileDataOffset - hl
				}
				if newOffset != alignedOffset {
					pfile, err := uefi.CreatePadFile(newOffset - alignedOffset)
					if err != nil {
						return err
					}
					if err = f.InsertFile(alignedOffset, pfile.Buf()); err != nil {
						return fmt.Errorf("File %s: %v", pfile.Header.GUID, err)
					}
				}
				alignedOffset = newOffset
			}
			if err = f.InsertFile(alignedOffset, fileBuf); err != nil {
				return fmt.Errorf("File %s: %v", file.Header.GUID, err)
			}
			fileOffset = alignedOffset + fileLen
		}

		newFVLen := uint64(len(f.Buf()))
		if f.Length < newFVLen && !f.Resizable {
			return fmt.Errorf("out of space in firmware volume. space available: %v bytes, new size: %v, reduce size by %v bytes", f.Length, newFVLen, newFVLen-f.Length)
		}

		if f.Length < newFVLen {
			if f.Blocks[0].Size == 0 {
				return fmt.Errorf("first block in FV has zero size! block was %v", f.Blocks[0])
			}
			f.Length = uefi.Align(newFVLen, uint64(f.Blocks[0].Size))
			f.Blocks[0].Count = uint32(f.Length / uint64(f.Blocks[0].Size))
		}
		if f.Length > newFVLen {
			extLen := f.Length - newFVLen
			emptyBuf := make([]byte, extLen)
			uefi.Erase(emptyBuf, uefi.Attributes.ErasePolarity)
			f.SetBuf(append(f.Buf(), emptyBuf...))
		}

		f.FreeSpace = f.Length - uefi.Align8(newFVLen)
		fBuf = f.Buf()

		binary.LittleEndian.PutUint64(fBuf[32:], f.Length)

		if v.useFFS3 && f.FileSystemGUID == *uefi.FFS2 {
			f.FileSystemGUID = *uefi.FFS3
			copy(fBuf[16:32], f.FileSystemGUID[:])
		}
		v.useFFS3 = false

		binary.LittleEndian.PutUint32(fBuf[56:], f.Blocks[0].Count)
		binary.LittleEndian.PutUint16(fBuf[50:], 0)
		sum, err := uefi.Checksum16(fBuf[:f.HeaderLen])
		if err != nil {
			return err
		}
		newSum := 0 - sum
		binary.LittleEndian.PutUint16(fBuf[50:], newSum)

		f.SetBuf(fBuf)

	case *uefi.File:
		if f.GetAction() == uefi.Remove {
			return nil
		}
		if len(f.Sections) == 0 && f.NVarStore == nil {
			return nil
		}

		fileData := []byte{}
		dLen := uint64(0)
		if f.NVarStore != nil {
			fileData = f.NVarStore.Buf()
			dLen = f.NVarStore.Length
		} else {
			for _, s := range f.Sections {
				for count := uefi.Align4(dLen) - dLen; count > 0; count-- {
					fileData = append(fileData, 0x00)
				}
				dLen = uefi.Align4(dLen)

				sData := s.Buf()
				dLen += uint64(len(sData))
				fileData = append(fileData, sData...)
			}
		}

		f.SetSize(uefi.FileHeaderMinLength+dLen, true)
		if f.Header.ExtendedSize > 0xFFFFFF {
			v.useFFS3 = true
		}

		if err = f.ChecksumAndAssemble(fileData); err != nil {
			return err
		}
		return nil

	case *uefi.Section:
		if len(f.Encapsulated) == 0 {
			switch f.Header.Type {
			default:
				return nil
			case uefi.SectionTypeUserInterface:
				f.SetBuf(uefi.EncodeUCS2(f.Name))
			case uefi.SectionTypeVersion:
				newBuf := make([]byte, 2)
				newBuf = append(newBuf, uefi.EncodeUCS2(f.VersionString)...)
				f.SetBuf(newBuf)
			case uefi.SectionTypeDXEDepEx, uefi.SectionTypePEIDepEx,
				uefi.SectionTypeMMDepEx:
				depExBuf, err := uefi.EncodeDepEx(f.DepEx)
				if err != nil {
					return err
				}
				f.SetBuf(depExBuf)
			}

			err = f.GenSecHeader()
			if f.Header.ExtendedSize > 0xFFFFFF {
				v.useFFS3 = true
			}
			return err
		}

		secData := []byte{}
		dLen := uint64(0)
		for _, es := range f.Encapsulated {
			for count := uefi.Align4(dLen) - dLen; count > 0; count-- {
				secData = append(secData, 0x00)
			}
			dLen = uefi.Align4(dLen)

			esData := es.Value.Buf()
			dLen += uint64(len(esData))
			secData = append(secData, esData...)
		}

		switch f.Header.Type {
		case uefi.SectionTypeGUIDDefined:
			ts := f.TypeSpecific.Header.(*uefi.SectionGUIDDefined)
			if ts.Attributes&uint16(uefi.GUIDEDSectionProcessingRequired) != 0 {
				compressor := compression.CompressorFromGUID(&ts.GUID)
				if compressor == nil {
					return fmt.Errorf("unknown guid defined from section %v, should not have encapsulated sections", f)
				}
				if fBuf, err := compressor.Encode(secData); err == nil {
					f.SetBuf(fBuf)
				} else {
					return err
				}
			}
		case uefi.SectionTypeCompression:
			ts := f.TypeSpecific.Header.(*uefi.SectionCompressionHeader)
			compressor := compression.StandardCompressorFromType(ts.CompressionType)
			if compressor == nil {
				return fmt.Errorf("unknown compression type %v in section %v", ts.CompressionType, f)
			}
			fBuf, err := compressor.Encode(secData)
			if err != nil {
				return err
			}
			ts.UncompressedLength = uint32(dLen)
			f.SetBuf(fBuf)
		default:
			f.SetBuf(secData)
		}

		err = f.GenSecHeader()
		if f.Header.ExtendedSize > 0xFFFFFF {
			v.useFFS3 = true
		}

	case *uefi.NVarStore:
		nvData := []byte{}
		nvLen := uint64(0)
		for _, nv := range f.Entries {
			vData := nv.Buf()
			nvLen += uint64(len(vData))
			nvData = append(nvData, vData...)
		}

		f.FreeSpaceOffset = nvLen
		f.GUIDStoreOffset = f.Length - uint64(binary.Size(guid.GUID{}))*uint64(len(f.GUIDStore))
		erased := make([]byte, f.GUIDStoreOffset-f.FreeSpaceOffset)
		uefi.Erase(erased, uefi.Attributes.ErasePolarity)
		nvData = append(nvData, erased...)

		var guidStoreBuf []byte
		guidStoreBuf, err = f.GetGUIDStoreBuf()
		if err != nil {
			return err
		}
		nvData = append(nvData, guidStoreBuf...)

		f.SetBuf(nvData)

	case *uefi.NVar:
		if f.IsValid() {
			var content []byte
			if f.NVarStore == nil {
				content = f.Buf()[f.DataOffset:]
			} else {
				content = f.NVarStore.Buf()
			}
			err = f.Assemble(content, true)
		}

	case *uefi.FlashDescriptor:
		fBuf := f.Buf()
		desc := new(bytes.Buffer)
		if err = binary.Write(desc, binary.LittleEndian, f.DescriptorMap); err != nil {
			return fmt.Errorf("unable to construct binary DescriptorMap of IFD: got %v", err)
		}
		copy(fBuf[f.DescriptorMapStart:f.DescriptorMapStart+uint(uefi.FlashDescriptorMapSize)], desc.Bytes())

		region := new(bytes.Buffer)
		if err = binary.Write(region, binary.LittleEndian, f.Region); err != nil {
			return fmt.Errorf("unable to construct binary Region of IFD: got %v", err)
		}
		copy(fBuf[f.RegionStart:f.RegionStart+uint(uefi.FlashRegionSectionSize)], region.Bytes())

		master := new(bytes.Buffer)
		if err = binary.Write(master, binary.LittleEndian, f.Master); err != nil {
			return fmt.Errorf("unable to construct binary Master of IFD: got %v", err)
		}
		copy(fBuf[f.MasterStart:f.MasterStart+uint(uefi.FlashMasterSectionSize)], master.Bytes())

		f.SetBuf(fBuf)
		return nil

	case *uefi.BIOSRegion:
		fBuf := make([]byte, f.Length)
		firstFV, err := f.FirstFV()
		if err != nil {
			return err
		}
		if err = uefi.SetErasePolarity(firstFV.GetErasePolarity()); err != nil {
			return err
		}
		uefi.Erase(fBuf, uefi.Attributes.ErasePolarity)
		offset := uint64(0)
		for _, e := range f.Elements {
			ebuf := e.Value.Buf()
			copy(fBuf[offset:offset+uint64(len(ebuf))], ebuf)
			offset += uint64(len(ebuf))
		}
		f.SetBuf(fBuf)
		return nil

	case *uefi.FlashImage:
		ifdbuf := f.IFD.Buf()
		if !f.IFD.Region.FlashRegions[uefi.RegionTypeBIOS].Valid() {
			return fmt.Errorf("no BIOS region: invalid region parameters %v",
				f.IFD.Region.FlashRegions[uefi.RegionTypeBIOS])
		}

		nr := int(f.IFD.DescriptorMap.NumberOfRegions)
		for _, r := range f.Regions {
			if r.Type() == uefi.RegionTypeUnknown {
				continue
			}
			if nr != 0 && int(r.Type()) > nr {
				continue
			}
			if int(r.Type()) >= len(f.IFD.Region.FlashRegions) {
				continue
			}
			r.SetFlashRegion(&f.IFD.Region.FlashRegions[r.Type()])
		}

		sort.Slice(f.Regions, func(i, j int) bool {
			return f.Regions[i].FlashRegion().Base < f.Regions[j].FlashRegion().Base
		})

		offset := uint64(uefi.FlashDescriptorLength)
		fBuf := make([]byte, 0)
		fBuf = append(fBuf, ifdbuf...)
		for _, r := range f.Regions {
			nextBase := uint64(r.FlashRegion().BaseOffset())
			if nextBase < offset {
				return fmt.Errorf("overlapping regions! region %v overlaps with the previous region", r)
			}
			if nextBase > offset {
				return fmt.Errorf("gap between regions from %v to %v", offset, nextBase)
			}
			offset = uint64(r.FlashRegion().EndOffset())
			fBuf = append(fBuf, r.Buf()...)
		}
		if offset != f.FlashSize {
			return fmt.Errorf("gap between at end of flash from %v to %v", offset, f.FlashSize)
		}

		f.SetBuf(fBuf)
		return nil

	}

	return err
}

// removed filters out files whose action is Remove from a volume's file
// list, so the next assembly pass drops them from the rebuilt buffer.
func assembleRemoved(files []*uefi.File) []*uefi.File {
	out := make([]*uefi.File, 0, len(files))
	for _, f := range files {
		if f.GetAction() == uefi.Remove {
			continue
		}
		out = append(out, f)
	}
	return out
}

// rebaseVolume walks every PE32/TE section of every file in a volume whose
// action is Rebase, patching its ImageBase and relocations to the volume's
// top-aligned load address. The Volume Top File's PEI core entry point is
// not patched.
func (v *Assemble) rebaseVolume(fv *uefi.FirmwareVolume) error {
	newBase := uefi.TopAlignedBase(fv.Length)
	for _, file := range fv.Files {
		for _, s := range file.Sections {
			if s.Header.Type != uefi.SectionTypePE32 && s.Header.Type != uefi.SectionTypeTE {
				continue
			}
			if err := uefi.RebaseImageSection(s, newBase); err != nil {
				return fmt.Errorf("rebasing file %v: %v", file.Header.GUID, err)
			}
		}
	}
	return nil
}
