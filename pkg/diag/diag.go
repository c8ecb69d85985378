// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag collects node-addressable parse and reconstruction
// messages, the way pkg/log collects free-form ones, except each message
// here is tied to the node that produced it so a host can show it next
// to the right row in a tree view.
package diag

import "fmt"

// Severity classifies a Message.
type Severity uint8

// Severity levels, ordered from least to most alarming.
const (
	Info Severity = iota
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	}
	return "unknown"
}

// Message is a single diagnostic tied to a node.
type Message struct {
	NodeID   uint64
	Severity Severity
	Text     string
}

func (m Message) String() string {
	return fmt.Sprintf("[%s] node %d: %s", m.Severity, m.NodeID, m.Text)
}

// Log accumulates Messages during a parse or reconstruct pass. The zero
// value is ready to use.
type Log struct {
	messages []Message
}

// Add appends a formatted message for the given node.
func (l *Log) Add(nodeID uint64, sev Severity, format string, args ...interface{}) {
	l.messages = append(l.messages, Message{
		NodeID:   nodeID,
		Severity: sev,
		Text:     fmt.Sprintf(format, args...),
	})
}

// Messages returns every message recorded so far, in recording order.
func (l *Log) Messages() []Message {
	return l.messages
}

// ForNode returns only the messages recorded against a specific node.
func (l *Log) ForNode(nodeID uint64) []Message {
	var out []Message
	for _, m := range l.messages {
		if m.NodeID == nodeID {
			out = append(out, m)
		}
	}
	return out
}

// HasSeverity reports whether any recorded message meets or exceeds sev.
func (l *Log) HasSeverity(sev Severity) bool {
	for _, m := range l.messages {
		if m.Severity >= sev {
			return true
		}
	}
	return false
}
