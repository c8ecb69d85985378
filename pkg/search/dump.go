// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package search

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/uefi"
)

// TreeDump recursively extracts a parsed tree to disk, one directory per
// node, each holding header.bin, body.bin and info.txt. If GUIDFilter is
// set, only the subtrees rooted at Files carrying that GUID (and everything
// below them) are written; the rest of the tree is still walked,
// the same way pkg/visitors.Find keeps descending past non-matching nodes
// to find a match nested deeper.
type TreeDump struct {
	Dir        string
	GUIDFilter *guid.GUID

	index *uint64
}

// Dump runs a TreeDump over root.
func Dump(root uefi.Firmware, dir string, guidFilter *guid.GUID) error {
	var idx uint64
	v := &TreeDump{Dir: dir, GUIDFilter: guidFilter, index: &idx}
	active := guidFilter == nil
	return v.visit(root, active)
}

func (v *TreeDump) visit(f uefi.Firmware, active bool) error {
	if file, ok := f.(*uefi.File); ok && v.GUIDFilter != nil && file.Header.GUID == *v.GUIDFilter {
		active = true
	}

	dir := v.Dir
	if active {
		*v.index++
		dir = filepath.Join(v.Dir, fmt.Sprintf("%03d_%s", *v.index, nodeKind(f)))
		if err := writeNode(dir, f); err != nil {
			return err
		}
	}

	child := &TreeDump{Dir: dir, GUIDFilter: v.GUIDFilter, index: v.index}
	return f.ApplyChildren(&childVisitor{dump: child, active: active})
}

// childVisitor adapts TreeDump.visit to the uefi.Visitor interface so it can
// be passed to ApplyChildren, which only knows how to call Visit(Firmware).
type childVisitor struct {
	dump   *TreeDump
	active bool
}

// Run wraps Visit.
func (c *childVisitor) Run(f uefi.Firmware) error {
	return f.Apply(c)
}

func (c *childVisitor) Visit(f uefi.Firmware) error {
	return c.dump.visit(f, c.active)
}

func nodeKind(f uefi.Firmware) string {
	switch f := f.(type) {
	case *uefi.File:
		return "file_" + f.Header.GUID.String()
	case *uefi.Section:
		return fmt.Sprintf("section_%d", f.FileOrder)
	case *uefi.FirmwareVolume:
		return "volume"
	default:
		return fmt.Sprintf("%T", f)
	}
}

func writeNode(dir string, f uefi.Firmware) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	header, body := nodeHeader(f)
	if err := os.WriteFile(filepath.Join(dir, "header.bin"), header, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "body.bin"), body, 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "info.txt"), []byte(nodeInfo(f)), 0644)
}

func nodeInfo(f uefi.Firmware) string {
	var typ, subtype, text string
	switch f := f.(type) {
	case *uefi.File:
		typ = "File"
		subtype = f.Header.Type.String()
		text = f.Header.GUID.String()
	case *uefi.Section:
		typ = "Section"
		subtype = f.Type
		text = f.Name
	case *uefi.FirmwareVolume:
		typ = "FirmwareVolume"
		subtype = f.FileSystemGUID.String()
		text = f.String()
	default:
		typ = fmt.Sprintf("%T", f)
	}
	return fmt.Sprintf("Type: %s\nSubtype: %s\nText: %s\n", typ, subtype, text)
}
