// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
)

// topOfAddressSpace is where the 32-bit address space wraps at 4GiB; a
// VTF's base is always computed relative to this boundary.
const topOfAddressSpace = uint64(0x100000000)

// IsVolumeTopFile reports whether f is the last file in a volume's file
// list, the structural definition of a Volume Top File: there is no GUID
// that marks it, only its position.
func IsVolumeTopFile(fv *FirmwareVolume, f *File) bool {
	if len(fv.Files) == 0 {
		return false
	}
	return fv.Files[len(fv.Files)-1] == f
}

// TopAlignedBase returns the absolute load address of a firmware volume
// of the given size when it is the topmost volume in the address space:
// x86 firmware is mapped so the very last byte of the top volume lands
// at the top of the 32-bit address space.
func TopAlignedBase(volumeSize uint64) uint64 {
	return topOfAddressSpace - volumeSize
}

// PatchVTFEntryPoint rewrites the last occurrence of oldEntryPoint inside
// vtf with newEntryPoint, the way the original tool patches a Volume Top
// File's PEI core entry point after a rebase changes it. It returns false
// if oldEntryPoint doesn't appear in vtf, which is not an error: a VTF
// with no PEI core has nothing to patch.
func PatchVTFEntryPoint(vtf []byte, oldEntryPoint, newEntryPoint uint32) bool {
	if oldEntryPoint == 0 || oldEntryPoint == newEntryPoint {
		return false
	}
	var needle [4]byte
	binary.LittleEndian.PutUint32(needle[:], oldEntryPoint)
	idx := bytes.LastIndex(vtf, needle[:])
	if idx < 0 {
		return false
	}
	binary.LittleEndian.PutUint32(vtf[idx:idx+4], newEntryPoint)
	return true
}
