// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import "errors"

// Sentinel errors returned by the parser and reconstructor. Callers should
// use errors.Is against these rather than matching on message text; the
// messages themselves stay free to carry offsets and GUIDs for humans.
var (
	ErrInvalidParameter               = errors.New("invalid parameter")
	ErrBufferTooSmall                 = errors.New("buffer too small")
	ErrOutOfResources                 = errors.New("out of resources")
	ErrItemNotFound                   = errors.New("item not found")
	ErrInvalidFlashDescriptor         = errors.New("invalid flash descriptor")
	ErrInvalidRegion                  = errors.New("invalid region")
	ErrEmptyRegion                    = errors.New("empty region")
	ErrBiosRegionNotFound             = errors.New("BIOS region not found")
	ErrInvalidVolume                  = errors.New("invalid firmware volume")
	ErrVolumeRevisionNotSupported     = errors.New("firmware volume revision not supported")
	ErrVolumeGrowFailed               = errors.New("firmware volume could not grow to fit new content")
	ErrInvalidFile                    = errors.New("invalid firmware file")
	ErrInvalidSection                 = errors.New("invalid firmware file section")
	ErrUnknownSection                 = errors.New("unknown firmware file section type")
	ErrStandardCompressionFailed      = errors.New("standard compression failed")
	ErrStandardDecompressionFailed    = errors.New("standard decompression failed")
	ErrCustomizedCompressionFailed    = errors.New("customized compression failed")
	ErrCustomizedDecompressionFailed  = errors.New("customized decompression failed")
	ErrUnknownCompressionAlgorithm    = errors.New("unknown compression algorithm")
	ErrUnknownImageType               = errors.New("unknown image type")
	ErrUnknownPeOptionalHeaderType    = errors.New("unknown PE optional header type")
	ErrUnknownRelocationType          = errors.New("unknown relocation type")
	ErrComplexBlockMap                = errors.New("firmware volume has a block map this package can't rebuild")
	ErrPeiCoreEntryPointNotFound      = errors.New("PEI core entry point not found")
	ErrTruncatedImage                 = errors.New("truncated image")
	ErrBadRelocationEntry             = errors.New("bad relocation entry")
	ErrDepexParseFailed               = errors.New("dependency expression parse failed")
	ErrNothingToPatch                 = errors.New("nothing to patch")
)
