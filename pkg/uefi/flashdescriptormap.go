// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FlashDescriptorMapSize is the size in bytes of the three FLMAP dwords
// that make up the descriptor map.
const FlashDescriptorMapSize = 12

// flashDescriptorMapRaw mirrors the three FLMAPx dwords bit for bit. Each
// base field is a block index that must be multiplied by 0x10 to get a
// byte offset.
type flashDescriptorMapRaw struct {
	// FLMAP0
	RegionBase      uint8
	NumberOfRegions uint8
	ComponentBase   uint8
	_               uint8
	// FLMAP1
	PchStrapsBase uint8
	PchStrapsLen  uint8
	MasterBase    uint8
	_             uint8
	// FLMAP2
	IccTableBase uint8
	IccTableLen  uint8
	_            uint16
}

// FlashDescriptorMap holds the decoded base addresses for the region,
// component/strap, and master tables that live in the descriptor.
type FlashDescriptorMap struct {
	RegionBase      uint8
	NumberOfRegions uint8
	ComponentBase   uint8
	PchStrapsBase   uint8
	PchStrapsLen    uint8
	MasterBase      uint8
	IccTableBase    uint8
	IccTableLen     uint8
}

func (m *FlashDescriptorMap) String() string {
	return fmt.Sprintf("FlashDescriptorMap{RegionBase=%#x, MasterBase=%#x, ComponentBase=%#x}",
		m.RegionBase, m.MasterBase, m.ComponentBase)
}

// maxDescriptorMapBase is the largest legal block index for any of the
// map's base fields.
const maxDescriptorMapBase = 0xE0

// NewFlashDescriptorMap parses the three FLMAP dwords, validating that
// the base fields are sane and don't alias one another.
func NewFlashDescriptorMap(buf []byte) (*FlashDescriptorMap, error) {
	if len(buf) < FlashDescriptorMapSize {
		return nil, fmt.Errorf("flash Descriptor Map size too small: expected %v bytes, got %v",
			FlashDescriptorMapSize, len(buf))
	}
	var raw flashDescriptorMapRaw
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	m := &FlashDescriptorMap{
		RegionBase:      raw.RegionBase,
		NumberOfRegions: raw.NumberOfRegions,
		ComponentBase:   raw.ComponentBase,
		PchStrapsBase:   raw.PchStrapsBase,
		PchStrapsLen:    raw.PchStrapsLen,
		MasterBase:      raw.MasterBase,
		IccTableBase:    raw.IccTableBase,
		IccTableLen:     raw.IccTableLen,
	}

	bases := map[string]uint8{
		"region base":    m.RegionBase,
		"component base": m.ComponentBase,
		"master base":    m.MasterBase,
	}
	seen := map[uint8]string{}
	for name, base := range bases {
		if base > maxDescriptorMapBase {
			return nil, fmt.Errorf("invalid flash descriptor: %s %#x exceeds max of %#x", name, base, maxDescriptorMapBase)
		}
		if other, ok := seen[base]; ok {
			return nil, fmt.Errorf("invalid flash descriptor: %s aliases %s at block %#x", name, other, base)
		}
		seen[base] = name
	}
	return m, nil
}
