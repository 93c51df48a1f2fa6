// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.
// These functions handle strings correctly regardless of character encoding,
// preventing mid-character truncation that would corrupt UTF-8 strings.

// TruncateRunes truncates a string to a maximum number of runes (characters).
// This is safe for UTF-8 strings as it counts characters, not bytes.
// If the string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// WrapWidth splits a string into lines no wider than maxWidth columns.
// Existing newlines are respected; overlong words are hard-broken.
// A non-positive maxWidth returns the logical lines unchanged.
func WrapWidth(s string, maxWidth int) []string {
	logical := strings.Split(s, "\n")
	if maxWidth <= 0 {
		return logical
	}

	var out []string
	for _, line := range logical {
		if runewidth.StringWidth(line) <= maxWidth {
			out = append(out, line)
			continue
		}
		out = append(out, wrapLine(line, maxWidth)...)
	}
	return out
}

// wrapLine breaks a single logical line on word boundaries where possible.
func wrapLine(line string, maxWidth int) []string {
	var out []string
	var cur strings.Builder
	curWidth := 0

	flush := func() {
		out = append(out, cur.String())
		cur.Reset()
		curWidth = 0
	}

	for _, word := range strings.Split(line, " ") {
		w := runewidth.StringWidth(word)
		sep := 0
		if curWidth > 0 {
			sep = 1
		}
		if curWidth+sep+w <= maxWidth {
			if sep == 1 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
			curWidth += sep + w
			continue
		}
		if curWidth > 0 {
			flush()
		}
		// Hard-break words wider than the whole line.
		for runewidth.StringWidth(word) > maxWidth {
			head := runewidth.Truncate(word, maxWidth, "")
			out = append(out, head)
			word = strings.TrimPrefix(word, head)
		}
		cur.WriteString(word)
		curWidth = runewidth.StringWidth(word)
	}
	if curWidth > 0 || len(out) == 0 {
		flush()
	}
	return out
}
