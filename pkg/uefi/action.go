// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

// Action describes what the Assemble visitor should do with a node and,
// transitively, its ancestors: leave it exactly as parsed, or rebuild its
// buffer from its children because something underneath it changed.
// Every editable node carries one of these so that an image nothing has
// touched round-trips byte for byte.
type Action uint8

// Action values. The zero value is NoAction so nodes created by the
// parser default to "leave me alone".
const (
	NoAction Action = iota
	Create
	Insert
	Replace
	Remove
	Rebuild
	Rebase
	DoNotRebuild
)

var actionNames = map[Action]string{
	NoAction:     "NoAction",
	Create:       "Create",
	Insert:       "Insert",
	Replace:      "Replace",
	Remove:       "Remove",
	Rebuild:      "Rebuild",
	Rebase:       "Rebase",
	DoNotRebuild: "DoNotRebuild",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "UnknownAction"
}

// rank orders actions by how strongly they force a rebuild, so that
// promoting a parent's action never weakens it.
var actionRank = map[Action]int{
	NoAction:     0,
	DoNotRebuild: 0,
	Remove:       1,
	Create:       2,
	Insert:       2,
	Replace:      2,
	Rebuild:      2,
	Rebase:       3,
}

// Promote returns the stronger of two actions, used when a child's
// action forces its parent to at least Rebuild.
func Promote(current, child Action) Action {
	if child == NoAction || child == DoNotRebuild {
		return current
	}
	if current == DoNotRebuild {
		// An explicit "leave me alone" is only overridden by Rebase,
		// never silently upgraded to Rebuild by a child.
		if child == Rebase {
			return Rebase
		}
		return current
	}
	if actionRank[child] > actionRank[current] {
		if child == Remove {
			// A child being removed forces the parent to rebuild, not
			// to also be removed.
			return Rebuild
		}
		return child
	}
	return current
}

// Actionable is implemented by any tree node whose reconstruction
// behavior is governed by an Action.
type Actionable interface {
	GetAction() Action
	SetAction(Action)
}
