// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"github.com/linuxboot/fiano/pkg/lzma"
)

// LZMA implements Compressor using the Go-native LZMA codec. It is the
// fallback used when the system xz binary isn't on the path.
type LZMA struct{}

// Name returns the type of compression employed.
func (c *LZMA) Name() string {
	return "LZMA"
}

// Decode decodes a byte slice of LZMA data.
func (c *LZMA) Decode(encodedData []byte) ([]byte, error) {
	return lzma.Decode(encodedData)
}

// Encode encodes a byte slice with LZMA.
func (c *LZMA) Encode(decodedData []byte) ([]byte, error) {
	return lzma.Encode(decodedData)
}
