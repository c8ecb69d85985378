// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package facade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/fiano/pkg/uefi"
)

// newTestVolume builds a one-file FirmwareVolume directly, the same
// struct-literal approach pkg/visitors/assemble_test.go uses for a bare
// Section, so these tests don't depend on a real flash image fixture.
func newTestVolume(t *testing.T) (*uefi.FirmwareVolume, *uefi.File) {
	t.Helper()
	file, err := uefi.CreatePadFile(0x40)
	require.NoError(t, err)
	fv := &uefi.FirmwareVolume{
		Files: []*uefi.File{file},
	}
	return fv, file
}

func newTestTree(t *testing.T) (*Tree, NodeID, NodeID) {
	t.Helper()
	fv, file := newTestVolume(t)
	tree := &Tree{
		root: fv,
		nodes: map[NodeID]uefi.Firmware{
			0: fv,
			1: file,
		},
		next: 2,
	}
	return tree, 0, 1
}

func TestTreeRemove(t *testing.T) {
	tree, fvID, fileID := newTestTree(t)
	fv := tree.nodes[fvID].(*uefi.FirmwareVolume)

	require.NoError(t, tree.Remove(fileID))
	assert.Empty(t, fv.Files)
	assert.Equal(t, uefi.Rebuild, fv.GetAction())

	_, err := tree.lookup(fileID)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	// Removing it again should fail: the node is gone from the arena.
	assert.Error(t, tree.Remove(fileID))
}

func TestTreeInsertRoundTrip(t *testing.T) {
	tree, fvID, _ := newTestTree(t)
	fv := tree.nodes[fvID].(*uefi.FirmwareVolume)

	newFile, err := uefi.CreatePadFile(0x80)
	require.NoError(t, err)

	id, err := tree.Insert(fvID, newFile.Buf(), InsertModeEnd)
	require.NoError(t, err)
	assert.Len(t, fv.Files, 2)
	assert.Equal(t, uefi.Rebuild, fv.GetAction())

	inserted, err := tree.lookup(id)
	require.NoError(t, err)
	assert.Equal(t, newFile.Buf(), inserted.Buf())
}

func TestTreeRebuildAndDoNotRebuild(t *testing.T) {
	tree, _, fileID := newTestTree(t)
	file := tree.nodes[fileID].(*uefi.File)

	require.NoError(t, tree.Rebuild(fileID))
	assert.Equal(t, uefi.Rebuild, file.GetAction())

	require.NoError(t, tree.DoNotRebuild(fileID))
	assert.Equal(t, uefi.DoNotRebuild, file.GetAction())
}

func TestTreeExtractModes(t *testing.T) {
	tree, _, fileID := newTestTree(t)
	file := tree.nodes[fileID].(*uefi.File)

	asIs, err := tree.Extract(fileID, AsIs)
	require.NoError(t, err)
	assert.Equal(t, file.Buf(), asIs)

	body, err := tree.Extract(fileID, Body)
	require.NoError(t, err)
	assert.Len(t, body, len(file.Buf())-int(file.DataOffset))
}

func TestTreeReplaceBody(t *testing.T) {
	tree, _, fileID := newTestTree(t)
	file := tree.nodes[fileID].(*uefi.File)
	oldLen := len(file.Buf())

	newBody := make([]byte, 0x10)
	for i := range newBody {
		newBody[i] = 0xAA
	}
	require.NoError(t, tree.Replace(fileID, newBody, Body))
	assert.Equal(t, uefi.Replace, file.GetAction())
	assert.NotEqual(t, oldLen, len(file.Buf()))
}

func TestTreeUnknownNode(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const bogus NodeID = 999

	_, err := tree.Extract(bogus, AsIs)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, tree.Remove(bogus), ErrNodeNotFound)
	assert.ErrorIs(t, tree.Rebuild(bogus), ErrNodeNotFound)
}
