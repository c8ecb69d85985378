// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The fsearch command searches a parsed firmware image for a hex, GUID or
// text pattern, and can recursively dump the matching subtree to disk.
//
// Synopsis:
//
//	fsearch [flags] IMAGE
//
// Examples:
//
//	# Find a byte pattern with nibble wildcards in every node's body:
//	fsearch --hex "DEAD..EF" winterfell.rom
//
//	# Find a GUID, wildcarding the last field:
//	fsearch --guid "12345678-9ABC-DEF0-1234-............" winterfell.rom
//
//	# Dump every node whose enclosing File carries a GUID to a directory:
//	fsearch --dump-guid 12345678-9abc-def0-1234-567890abcdef --dump out/ winterfell.rom
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/search"
	"github.com/linuxboot/fiano/pkg/uefi"
	flag "github.com/spf13/pflag"
)

var (
	hexPattern  = flag.String("hex", "", "hex pattern to search for, '.' as a nibble wildcard")
	guidPattern = flag.String("guid", "", "GUID pattern to search for, '.' as a nibble wildcard")
	textPattern = flag.String("text", "", "text pattern to search for")
	unicode     = flag.Bool("unicode", false, "encode --text as UTF-16LE instead of Latin-1")
	ignoreCase  = flag.Bool("ignore-case", false, "case-insensitive --text search")
	scopeFlag   = flag.String("scope", "body", "search scope: header, body or all")

	dumpDir  = flag.String("dump", "", "recursively dump the matched tree to this directory")
	dumpGUID = flag.String("dump-guid", "", "restrict --dump to the subtree at this File GUID")
)

func parseScope(s string) (search.Scope, error) {
	switch s {
	case "header":
		return search.Header, nil
	case "body":
		return search.Body, nil
	case "all":
		return search.All, nil
	default:
		return 0, fmt.Errorf("unknown scope %q, want header, body or all", s)
	}
}

func run(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fsearch [flags] IMAGE")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	root, err := uefi.Parse(data)
	if err != nil {
		return fmt.Errorf("parse image: %w", err)
	}

	scope, err := parseScope(*scopeFlag)
	if err != nil {
		return err
	}

	var matches []search.Match
	switch {
	case *hexPattern != "":
		pattern, err := search.CompileHexPattern(*hexPattern)
		if err != nil {
			return err
		}
		matches, err = search.FindHex(root, pattern, scope)
		if err != nil {
			return err
		}
	case *guidPattern != "":
		matches, err = search.FindGUID(root, *guidPattern, scope)
		if err != nil {
			return err
		}
	case *textPattern != "":
		matches, err = search.FindText(root, *textPattern, *unicode, !*ignoreCase)
		if err != nil {
			return err
		}
	}

	if len(matches) > 0 {
		printMatches(matches)
	}

	if *dumpDir != "" {
		var filter *guid.GUID
		if *dumpGUID != "" {
			filter, err = guid.Parse(*dumpGUID)
			if err != nil {
				return fmt.Errorf("parse --dump-guid: %w", err)
			}
		}
		if err := search.Dump(root, *dumpDir, filter); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}

	return nil
}

func printMatches(matches []search.Match) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Offset", "Scope", "Type", "Node size"})
	for _, m := range matches {
		t.AppendRow(table.Row{
			fmt.Sprintf("%#x", m.Offset),
			scopeName(m.Scope),
			fmt.Sprintf("%T", m.Node),
			humanize.Bytes(uint64(len(m.Node.Buf()))),
		})
	}
	t.Render()
}

func scopeName(s search.Scope) string {
	switch s {
	case search.Header:
		return "header"
	case search.Body:
		return "body"
	default:
		return "all"
	}
}

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		log.Fatal(err)
	}
}
