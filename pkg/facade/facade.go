// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package facade exposes the firmware tree to host applications through a
// small set of index-addressed operations, instead of handing out raw
// *uefi.File/*uefi.Section pointers the way the CLI visitors do. Every node
// parsed out of an image (and every node created afterwards) gets a stable
// NodeID the host can hold onto across edits, mirroring how pkg/diag already
// addresses diagnostics by node rather than by pointer.
package facade

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/linuxboot/fiano/pkg/compression"
	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/uefi"
	"github.com/linuxboot/fiano/pkg/visitors"
)

// NodeID addresses a single node in a Tree. IDs are assigned once, in
// pre-order, and never reused or renumbered by later edits, so a host can
// cache one across a parse/edit/reconstruct cycle. Shares its type with
// pkg/diag.Message.NodeID so diagnostics can be cross-referenced directly.
type NodeID uint64

// ErrNodeNotFound is returned by any operation given an unknown NodeID.
var ErrNodeNotFound = errors.New("facade: no such node")

// InsertMode describes where a new node lands relative to its parent's
// existing children, the same four placements Inserter already supports.
type InsertMode int

// Insert placements.
const (
	InsertModeFront InsertMode = iota
	InsertModeEnd
	InsertModeBefore
	InsertModeAfter
)

// ExtractMode selects whether Extract/Replace operate on a node's full
// on-disk representation (header and body) or just its body.
type ExtractMode int

// Extract/Replace modes.
const (
	// AsIs returns or replaces the node's whole serialized buffer.
	AsIs ExtractMode = iota
	// Body returns or replaces only the payload past the node's header.
	Body
)

// Tree is a parsed firmware image plus its node-ID arena. The zero value is
// not usable; build one with ParseImageFile.
type Tree struct {
	root  uefi.Firmware
	nodes map[NodeID]uefi.Firmware
	next  NodeID
}

// ParseImageFile parses a raw image and assigns every node a NodeID in
// pre-order (root first, then each child left to right), the traversal
// order spec'd for message emission during parsing.
func ParseImageFile(data []byte) (*Tree, error) {
	root, err := uefi.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("facade: parse image: %w", err)
	}
	t := &Tree{
		root:  root,
		nodes: map[NodeID]uefi.Firmware{},
	}
	idx := &indexer{tree: t}
	if err := root.Apply(idx); err != nil {
		return nil, fmt.Errorf("facade: index parsed tree: %w", err)
	}
	return t, nil
}

// indexer walks a freshly parsed tree assigning NodeIDs, the same traversal
// shape as visitors.Flatten but without discarding the tree's children.
type indexer struct {
	tree *Tree
}

// Run wraps Visit.
func (idx *indexer) Run(f uefi.Firmware) error {
	return f.Apply(idx)
}

func (idx *indexer) Visit(f uefi.Firmware) error {
	idx.tree.assign(f)
	return f.ApplyChildren(idx)
}

// assign gives f the next free NodeID and returns it.
func (t *Tree) assign(f uefi.Firmware) NodeID {
	id := t.next
	t.next++
	t.nodes[id] = f
	return id
}

func (t *Tree) lookup(id NodeID) (uefi.Firmware, error) {
	f, ok := t.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return f, nil
}

// Root returns the NodeID of the image's top-level node. Valid on any
// non-empty Tree since ParseImageFile always assigns the root ID 0.
func (t *Tree) Root() NodeID {
	return 0
}

// ReconstructImage reassembles every node whose Action is stronger than
// NoAction and returns the resulting image bytes. Equivalent to running the
// `save` visitor but returning the buffer instead of writing it to disk.
func (t *Tree) ReconstructImage() ([]byte, error) {
	a := &visitors.Assemble{}
	if err := t.root.Apply(a); err != nil {
		return nil, fmt.Errorf("facade: reconstruct image: %w", err)
	}
	return t.root.Buf(), nil
}

// Extract returns a node's serialized bytes. Body skips the node's header
// when the node type has one; AsIs always returns the full buffer.
func (t *Tree) Extract(id NodeID, mode ExtractMode) ([]byte, error) {
	f, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	buf := f.Buf()
	if mode == AsIs {
		return buf, nil
	}
	switch f := f.(type) {
	case *uefi.File:
		return f.Body(), nil
	case *uefi.Section:
		return f.Body(), nil
	case *uefi.FirmwareVolume:
		return f.Body(), nil
	default:
		return buf, nil
	}
}

// Remove deletes a node from its parent. Mirrors visitors.Remove's
// FirmwareVolume/File splice, but addresses the target by identity (the
// facade already holds the pointer) instead of re-running Find.
func (t *Tree) Remove(id NodeID) error {
	f, err := t.lookup(id)
	if err != nil {
		return err
	}
	removed := false
	t.forEachContainer(func(fv *uefi.FirmwareVolume) {
		for i, file := range fv.Files {
			if uefi.Firmware(file) == f {
				fv.Files = append(fv.Files[:i], fv.Files[i+1:]...)
				fv.SetAction(uefi.Rebuild)
				removed = true
				return
			}
		}
	}, func(file *uefi.File) {
		for i, s := range file.Sections {
			if uefi.Firmware(s) == f {
				file.Sections = append(file.Sections[:i], file.Sections[i+1:]...)
				file.SetAction(uefi.Rebuild)
				removed = true
				return
			}
		}
	})
	if !removed {
		return fmt.Errorf("facade: node %d (%T) is not a File or Section, Remove only splices those out of their parent", id, f)
	}
	delete(t.nodes, id)
	return nil
}

// forEachContainer walks the whole tree looking for the containers Remove
// and Insert know how to splice (FirmwareVolume.Files, File.Sections).
func (t *Tree) forEachContainer(onFV func(*uefi.FirmwareVolume), onFile func(*uefi.File)) {
	v := &containerWalker{onFV: onFV, onFile: onFile}
	_ = t.root.Apply(v)
}

type containerWalker struct {
	onFV   func(*uefi.FirmwareVolume)
	onFile func(*uefi.File)
}

// Run wraps Visit.
func (w *containerWalker) Run(f uefi.Firmware) error {
	return f.Apply(w)
}

func (w *containerWalker) Visit(f uefi.Firmware) error {
	switch f := f.(type) {
	case *uefi.FirmwareVolume:
		if w.onFV != nil {
			w.onFV(f)
		}
	case *uefi.File:
		if w.onFile != nil {
			w.onFile(f)
		}
	}
	return f.ApplyChildren(w)
}

// Rebuild marks a node to be rebuilt from its children on the next
// ReconstructImage, without requiring a structural edit first.
func (t *Tree) Rebuild(id NodeID) error {
	f, err := t.lookup(id)
	if err != nil {
		return err
	}
	a, ok := f.(uefi.Actionable)
	if !ok {
		return fmt.Errorf("facade: node %d (%T) does not carry a reconstruction action", id, f)
	}
	a.SetAction(uefi.Rebuild)
	return nil
}

// DoNotRebuild pins a node (and, transitively, everything under it) as
// untouched: Assemble short-circuits on it even if a descendant's action
// would otherwise promote it, per uefi.Promote's DoNotRebuild handling.
func (t *Tree) DoNotRebuild(id NodeID) error {
	f, err := t.lookup(id)
	if err != nil {
		return err
	}
	a, ok := f.(uefi.Actionable)
	if !ok {
		return fmt.Errorf("facade: node %d (%T) does not carry a reconstruction action", id, f)
	}
	a.SetAction(uefi.DoNotRebuild)
	return nil
}

// Insert parses object (a fully headered File or Section buffer, the header
// size for which is inferred from its own leading size field the same way
// NewSection always has) and splices it into parent at mode. Returns the
// new node's NodeID.
func (t *Tree) Insert(parent NodeID, object []byte, mode InsertMode) (NodeID, error) {
	pf, err := t.lookup(parent)
	if err != nil {
		return 0, err
	}
	switch pf := pf.(type) {
	case *uefi.FirmwareVolume:
		file, err := uefi.NewFile(object)
		if err != nil {
			return 0, fmt.Errorf("facade: insert: parse file: %w", err)
		}
		pf.Files = spliceFiles(pf.Files, file, mode)
		pf.SetAction(uefi.Rebuild)
		return t.assign(file), nil
	case *uefi.File:
		section, err := uefi.NewSection(object, len(pf.Sections))
		if err != nil {
			return 0, fmt.Errorf("facade: insert: parse section: %w", err)
		}
		pf.Sections = spliceSections(pf.Sections, section, mode)
		pf.SetAction(uefi.Rebuild)
		return t.assign(section), nil
	default:
		return 0, fmt.Errorf("facade: node %d (%T) cannot hold inserted children", parent, pf)
	}
}

// Create builds a new node from a caller-supplied header and body, exactly
// as Insert does for an already-headered object, except the header and body
// arrive separately and an explicit Action is recorded on the new node
// instead of always promoting to Rebuild. When a Compressor is given, body
// is encoded before being appended to header, for GUID-defined or
// standard-compression sections whose header already declares the
// compressed length.
func (t *Tree) Create(parent NodeID, header, body []byte, mode InsertMode, action uefi.Action, c compression.Compressor) (NodeID, error) {
	if c != nil {
		encoded, err := c.Encode(body)
		if err != nil {
			return 0, fmt.Errorf("facade: create: compress body: %w", err)
		}
		body = encoded
	}
	object := append(append([]byte{}, header...), body...)
	id, err := t.Insert(parent, object, mode)
	if err != nil {
		return 0, err
	}
	f, _ := t.lookup(id)
	if a, ok := f.(uefi.Actionable); ok {
		a.SetAction(action)
	}
	return id, nil
}

// Replace overwrites a node's contents in place: AsIs replaces header and
// body together (object must be a fully headered buffer, reparsed with
// Insert's same New*/NewSection logic); Body keeps the existing header and
// replaces only the payload, recomputing checksums the way
// visitors.ReplacePE32 does for a PE32 section.
func (t *Tree) Replace(id NodeID, object []byte, mode ExtractMode) error {
	f, err := t.lookup(id)
	if err != nil {
		return err
	}
	switch f := f.(type) {
	case *uefi.File:
		if mode == AsIs {
			replacement, err := uefi.NewFile(object)
			if err != nil {
				return fmt.Errorf("facade: replace: parse file: %w", err)
			}
			*f = *replacement
		} else if err := f.ChecksumAndAssemble(object); err != nil {
			return fmt.Errorf("facade: replace: reassemble file body: %w", err)
		}
		f.SetAction(uefi.Replace)
		return nil
	case *uefi.Section:
		if mode == AsIs {
			replacement, err := uefi.NewSection(object, f.FileOrder)
			if err != nil {
				return fmt.Errorf("facade: replace: parse section: %w", err)
			}
			*f = *replacement
		} else {
			// Same recipe as visitors.ReplacePE32: drop the encapsulated
			// tree (the new body isn't parsed into one), set the new body,
			// then regenerate the header over it.
			f.SetBuf(object)
			f.Encapsulated = nil
			if err := f.GenSecHeader(); err != nil {
				return fmt.Errorf("facade: replace: regenerate section header: %w", err)
			}
		}
		f.SetAction(uefi.Replace)
		return nil
	default:
		return fmt.Errorf("facade: node %d (%T) does not support Replace", id, f)
	}
}

// spliceFiles places file among files per mode. The facade's Insert has no
// separate anchor argument (unlike the CLI's Inserter, which locates
// InsertAfter/InsertBefore's anchor via a Find predicate), so Before/After
// fall back to Front/End respectively.
func spliceFiles(files []*uefi.File, file *uefi.File, mode InsertMode) []*uefi.File {
	if mode == InsertModeFront || mode == InsertModeBefore {
		return append([]*uefi.File{file}, files...)
	}
	return append(files, file)
}

func spliceSections(sections []*uefi.Section, section *uefi.Section, mode InsertMode) []*uefi.Section {
	if mode == InsertModeFront || mode == InsertModeBefore {
		return append([]*uefi.Section{section}, sections...)
	}
	return append(sections, section)
}

// BatchError aggregates failures from operations applied to more than one
// NodeID in a single call, the way ExecuteCLI's callers already do for
// multi-visitor pipelines.
type BatchError = multierror.Error

// RemoveAll removes every listed node, continuing past individual failures
// and returning them together instead of stopping at the first one.
func (t *Tree) RemoveAll(ids []NodeID) error {
	var result *multierror.Error
	for _, id := range ids {
		if err := t.Remove(id); err != nil {
			result = multierror.Append(result, fmt.Errorf("node %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// FindFileByGUID returns the NodeID of the File with the given GUID, or
// ErrNodeNotFound if no such file exists in the tree.
func (t *Tree) FindFileByGUID(g guid.GUID) (NodeID, error) {
	pred := visitors.FindFileGUIDPredicate(g)
	for id, f := range t.nodes {
		if file, ok := f.(*uefi.File); ok && pred(file) {
			return id, nil
		}
	}
	return 0, ErrNodeNotFound
}
