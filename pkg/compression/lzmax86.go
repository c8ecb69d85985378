// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"github.com/linuxboot/fiano/pkg/lzma"
)

// LZMAX86 applies the x86 BCJ filter before LZMA encoding and reverses it
// after LZMA decoding, used for the LZMAX86 GUID-defined section type.
// Encode and Decode always use the Go-native codec in pkg/lzma; the inner
// Compressor held in the struct is not used by either.
type LZMAX86 struct {
	inner Compressor
}

// Name returns the type of compression employed.
func (c *LZMAX86) Name() string {
	return "LZMAX86"
}

// Decode decodes a byte slice of LZMAX86 data.
func (c *LZMAX86) Decode(encodedData []byte) ([]byte, error) {
	return lzma.DecodeX86(encodedData)
}

// Encode encodes a byte slice with LZMAX86.
func (c *LZMAX86) Encode(decodedData []byte) ([]byte, error) {
	return lzma.EncodeX86(decodedData)
}
