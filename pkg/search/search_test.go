// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/uefi"
)

var testGUID = guid.MustParse("12345678-9ABC-DEF0-1234-567890ABCDEF")

func newTestFile(t *testing.T) *uefi.File {
	t.Helper()
	file, err := uefi.CreatePadFile(0x20)
	require.NoError(t, err)
	file.Header.GUID = *testGUID
	file.SetBuf(append(file.Buf(), []byte("hello world")...))
	return file
}

func TestCompileHexPattern(t *testing.T) {
	_, err := CompileHexPattern("DEAD..EF")
	require.NoError(t, err)

	_, err = CompileHexPattern("ABC")
	assert.Error(t, err, "odd number of nibbles should be rejected")

	_, err = CompileHexPattern("ZZ")
	assert.Error(t, err, "non-hex nibble should be rejected")
}

func TestFindHexInBody(t *testing.T) {
	file := newTestFile(t)
	pattern, err := CompileHexPattern("68656c6c6f") // "hello"
	require.NoError(t, err)

	matches, err := FindHex(file, pattern, Body)
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "expected to find the literal text encoded as a hex pattern")
}

func TestFindHexWildcard(t *testing.T) {
	file := newTestFile(t)
	pattern, err := CompileHexPattern("68..6c6c6f") // "h.llo"
	require.NoError(t, err)

	matches, err := FindHex(file, pattern, All)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestFindGUID(t *testing.T) {
	file := newTestFile(t)
	matches, err := FindGUID(file, testGUID.String(), All)
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "GUID search should find the file's own header GUID")
}

func TestFindGUIDWildcard(t *testing.T) {
	file := newTestFile(t)
	matches, err := FindGUID(file, "12345678-9ABC-DEF0-1234-............", All)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestFindText(t *testing.T) {
	file := newTestFile(t)

	matches, err := FindText(file, "world", false, true)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	matches, err = FindText(file, "WORLD", false, false)
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "case-insensitive search should still match")

	matches, err = FindText(file, "WORLD", false, true)
	require.NoError(t, err)
	assert.Empty(t, matches, "case-sensitive search should not match differing case")
}

func TestDump(t *testing.T) {
	file := newTestFile(t)
	dir := t.TempDir()

	require.NoError(t, Dump(file, dir, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	nodeDir := filepath.Join(dir, entries[0].Name())
	for _, name := range []string{"header.bin", "body.bin", "info.txt"} {
		_, err := os.Stat(filepath.Join(nodeDir, name))
		assert.NoError(t, err, "expected %s to be written", name)
	}
}

func TestDumpGUIDFilter(t *testing.T) {
	file := newTestFile(t)
	dir := t.TempDir()

	other := guid.MustParse("00000000-0000-0000-0000-000000000000")
	require.NoError(t, Dump(file, dir, other))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no node matches the filter GUID, nothing should be written")
}
