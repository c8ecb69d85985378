// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lzma

// x86Converter implements the BCJ (branch-call-jump) filter used ahead of
// LZMA for x86 code sections: CALL (0xE8) and JMP (0xE9) instruction
// operands are rewritten from relative to absolute addresses (or back)
// so that repeated call targets compress better. The filter is a
// streaming single pass and must see the same prevMask/prevPos state on
// encode and decode, which is why it's implemented once parameterized by
// the encoding direction rather than as two independent functions.
type x86Converter struct {
	encoding bool
}

var maskToAllowedStatus = [8]bool{true, true, true, false, true, false, false, false}
var maskToBitNumber = [8]uint32{0, 1, 2, 2, 3, 3, 3, 3}

func test86MSByte(b byte) bool {
	return b == 0x00 || b == 0xFF
}

// convert rewrites data in place, treating data[0] as stream position ip.
func (c x86Converter) convert(data []byte, ip uint32) {
	if len(data) < 5 {
		return
	}
	prevMask := uint32(0)
	prevPos := -5
	i := 0
	for i <= len(data)-5 {
		if data[i]&0xFE != 0xE8 {
			i++
			continue
		}
		d := i - prevPos
		prevPos = i
		if d > 3 {
			prevMask = 0
		} else {
			prevMask = (prevMask << uint(d-1)) & 0x7
			if prevMask != 0 {
				b := data[i+4-int(maskToBitNumber[prevMask])]
				if !maskToAllowedStatus[prevMask] || test86MSByte(b) {
					prevMask = ((prevMask << 1) & 0x7) | 1
					i++
					continue
				}
			}
		}

		if test86MSByte(data[i+4]) {
			src := uint32(data[i+1]) | uint32(data[i+2])<<8 | uint32(data[i+3])<<16 | uint32(data[i+4])<<24
			var dest uint32
			for {
				if c.encoding {
					dest = src + (ip + uint32(i) + 5)
				} else {
					dest = src - (ip + uint32(i) + 5)
				}
				if prevMask == 0 {
					break
				}
				idx := maskToBitNumber[prevMask] * 8
				b := byte(dest >> (24 - idx))
				if !test86MSByte(b) {
					break
				}
				src = dest ^ ((1 << (32 - idx)) - 1)
			}
			data[i+4] = byte(^(((dest >> 24) & 1) - 1))
			data[i+3] = byte(dest >> 16)
			data[i+2] = byte(dest >> 8)
			data[i+1] = byte(dest)
			i += 5
		} else {
			prevMask = ((prevMask << 1) & 0x7) | 1
			i++
		}
	}
}

// EncodeX86 applies the x86 BCJ filter and then LZMA-compresses the
// result.
func EncodeX86(decodedData []byte) ([]byte, error) {
	filtered := make([]byte, len(decodedData))
	copy(filtered, decodedData)
	x86Converter{encoding: true}.convert(filtered, 0)
	return Encode(filtered)
}

// DecodeX86 LZMA-decompresses encodedData and then reverses the x86 BCJ
// filter.
func DecodeX86(encodedData []byte) ([]byte, error) {
	decoded, err := Decode(encodedData)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(decoded))
	copy(out, decoded)
	x86Converter{encoding: false}.convert(out, 0)
	return out, nil
}
