// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package search implements pattern search and recursive extraction over a
// parsed firmware tree, the way pkg/visitors' Find and Extract visitors
// locate and pull out a single node, generalized to hex/GUID/text patterns
// and whole-subtree dumps.
package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/uefi"
	"github.com/linuxboot/fiano/pkg/visitors"
)

// Scope selects which bytes of a node a search pattern is matched against.
type Scope int

// Search scopes.
const (
	// Header restricts matching to a node's header bytes.
	Header Scope = iota
	// Body restricts matching to a node's payload, past its header.
	Body
	// All matches over the node's whole buffer.
	All
)

// Match reports one pattern occurrence.
type Match struct {
	Node   uefi.Firmware
	Scope  Scope
	Offset int
}

// nodeHeader splits a node's buffer into header and body bytes the way
// pkg/visitors.Extract already does per type, reusing the uefi package's own
// Body() accessors instead of re-deriving header length.
func nodeHeader(f uefi.Firmware) (header, body []byte) {
	buf := f.Buf()
	switch f := f.(type) {
	case *uefi.File:
		body = f.Body()
	case *uefi.Section:
		body = f.Body()
	case *uefi.FirmwareVolume:
		body = f.Body()
	default:
		return nil, buf
	}
	header = buf[:len(buf)-len(body)]
	return header, body
}

// scopeBytes returns the bytes of f that scope selects.
func scopeBytes(f uefi.Firmware, scope Scope) []byte {
	header, body := nodeHeader(f)
	switch scope {
	case Header:
		return header
	case Body:
		return body
	default:
		return f.Buf()
	}
}

// collector walks the whole tree, the same unconditional descent
// pkg/visitors.Count uses, gathering every node so patterns can be matched
// against each one in turn.
type collector struct {
	nodes []uefi.Firmware
}

// Run wraps Visit.
func (c *collector) Run(f uefi.Firmware) error {
	return f.Apply(c)
}

func (c *collector) Visit(f uefi.Firmware) error {
	c.nodes = append(c.nodes, f)
	return f.ApplyChildren(c)
}

func allNodes(root uefi.Firmware) ([]uefi.Firmware, error) {
	c := &collector{}
	if err := root.Apply(c); err != nil {
		return nil, err
	}
	return c.nodes, nil
}

// HexPattern is a compiled hex search pattern: each nibble of the original
// pattern string is either a literal hex digit or a '.' wildcard that
// matches any nibble.
type HexPattern struct {
	re *regexp.Regexp
}

// CompileHexPattern parses a hex pattern such as "DEAD..EF" (nibble-level
// wildcards spelled with '.') into a matcher. The pattern must have an even
// number of nibbles so matches stay byte-aligned.
func CompileHexPattern(pattern string) (*HexPattern, error) {
	pattern = strings.ToLower(strings.ReplaceAll(pattern, " ", ""))
	if len(pattern)%2 != 0 {
		return nil, fmt.Errorf("search: hex pattern %q has an odd number of nibbles", pattern)
	}
	var b strings.Builder
	for _, r := range pattern {
		switch {
		case r == '.':
			b.WriteByte('.')
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			b.WriteRune(r)
		default:
			return nil, fmt.Errorf("search: invalid nibble %q in hex pattern %q", r, pattern)
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &HexPattern{re: re}, nil
}

// FindHex reports every byte-aligned occurrence of pattern in scope, across
// every node reachable from root.
func FindHex(root uefi.Firmware, pattern *HexPattern, scope Scope) ([]Match, error) {
	nodes, err := allNodes(root)
	if err != nil {
		return nil, err
	}
	var matches []Match
	for _, f := range nodes {
		haystack := fmt.Sprintf("%x", scopeBytes(f, scope))
		for start := 0; start <= len(haystack); {
			loc := pattern.re.FindStringIndex(haystack[start:])
			if loc == nil {
				break
			}
			pos := start + loc[0]
			if pos%2 != 0 {
				// Not byte-aligned, a wildcard run matched a nibble pair
				// straddling two bytes; retry from the next nibble.
				start = pos + 1
				continue
			}
			matches = append(matches, Match{Node: f, Scope: scope, Offset: pos / 2})
			start = pos + 2
		}
	}
	return matches, nil
}

// FindGUID searches for a GUID pattern, which may use '.' wildcard nibbles
// the same way FindHex does. The pattern is given in the canonical dashed
// GUID layout (8-4-4-4-12 hex digits); the first three groups are swapped
// from their display byte order to their little-endian in-memory order the
// same way guid.Parse does for a fully literal GUID, before delegating to
// FindHex.
func FindGUID(root uefi.Firmware, pattern string, scope Scope) ([]Match, error) {
	hexPattern, err := guidPatternToHex(pattern)
	if err != nil {
		return nil, err
	}
	compiled, err := CompileHexPattern(hexPattern)
	if err != nil {
		return nil, err
	}
	return FindHex(root, compiled, scope)
}

func guidPatternToHex(pattern string) (string, error) {
	groups := strings.Split(pattern, "-")
	wantLens := []int{8, 4, 4, 4, 12}
	if len(groups) != len(wantLens) {
		return "", fmt.Errorf("search: GUID pattern %q must have 5 dash-separated groups", pattern)
	}
	for i, g := range groups {
		if len(g) != wantLens[i] {
			return "", fmt.Errorf("search: GUID pattern group %q should have %d hex digits, has %d", g, wantLens[i], len(g))
		}
	}
	// guid.Parse reverses the first three dash groups byte-by-byte (4, 2 and
	// 2 bytes) to go from display order to little-endian storage order; the
	// last two groups are stored in display order already.
	var b strings.Builder
	for i, g := range groups[:3] {
		_ = i
		b.WriteString(reverseHexBytes(g))
	}
	b.WriteString(groups[3])
	b.WriteString(groups[4])
	return b.String(), nil
}

func reverseHexBytes(s string) string {
	n := len(s) / 2
	out := make([]byte, len(s))
	for i := 0; i < n; i++ {
		copy(out[(n-1-i)*2:(n-1-i)*2+2], s[i*2:i*2+2])
	}
	return string(out)
}

// FindText searches node bodies for a text pattern, encoded either as
// Latin-1 (one byte per character) or UTF-16LE the way UEFI UI strings are
// stored (see uefi.EncodeUCS2).
func FindText(root uefi.Firmware, text string, unicode, caseSensitive bool) ([]Match, error) {
	nodes, err := allNodes(root)
	if err != nil {
		return nil, err
	}
	needle := text
	if !caseSensitive {
		needle = strings.ToLower(needle)
	}
	var target []byte
	if unicode {
		for _, r := range utf16.Encode([]rune(needle)) {
			target = append(target, byte(r), byte(r>>8))
		}
	} else {
		for _, r := range needle {
			if r > 0xFF {
				return nil, fmt.Errorf("search: text pattern %q is not representable in Latin-1", text)
			}
			target = append(target, byte(r))
		}
	}
	if len(target) == 0 {
		return nil, fmt.Errorf("search: empty text pattern")
	}

	var matches []Match
	for _, f := range nodes {
		_, body := nodeHeader(f)
		haystack := body
		if !caseSensitive {
			// Fold byte by byte so offsets into body stay valid.
			haystack = make([]byte, len(body))
			for i, c := range body {
				if (c >= 'A' && c <= 'Z') || (c >= 0xC0 && c <= 0xDE && c != 0xD7) {
					c += 0x20
				}
				haystack[i] = c
			}
		}
		for offset := 0; offset+len(target) <= len(haystack); offset++ {
			if string(haystack[offset:offset+len(target)]) == string(target) {
				matches = append(matches, Match{Node: f, Scope: Body, Offset: offset})
			}
		}
	}
	return matches, nil
}

// FindFileByGUID is a convenience wrapper around visitors.FindFileGUIDPredicate
// for callers that already hold a parsed guid.GUID.
func FindFileByGUID(root uefi.Firmware, g guid.GUID) (*uefi.File, error) {
	pred := visitors.FindFileGUIDPredicate(g)
	match, err := visitors.FindExactlyOne(root, pred)
	if err != nil {
		return nil, err
	}
	return match.(*uefi.File), nil
}
