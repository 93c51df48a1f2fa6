// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package linestore implements the renderer's target: a mutable, taggable
// sequence of displayed lines modeling a terminal scrollback.
package linestore

// =============================================================================
// LINE TYPE
// =============================================================================

// Line is one displayed line with its opaque string tags.
type Line struct {
	Text string
	Tags []string
}

// HasTag reports whether the line carries the given tag.
func (l *Line) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// =============================================================================
// STORE TYPE
// =============================================================================

// Span is a half-open [Start, End) index range of lines.
type Span struct {
	Start int
	End   int
}

// Len returns the number of lines in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Empty reports whether the span covers no lines.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

// Store is an append-ordered line sequence. Lines can be replaced in place
// and have their tags stripped, but never inserted or removed from the
// middle: a scrollback cannot shift lines below an edit.
//
// An auxiliary tag→span index gives O(1) lookup of the contiguous range
// carrying a tag; it is maintained on append and invalidated on strip.
type Store struct {
	lines []Line
	index map[string]Span
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[string]Span)}
}

// Len returns the number of lines.
func (s *Store) Len() int {
	return len(s.lines)
}

// Text returns the text of line i, or "" when out of range.
func (s *Store) Text(i int) string {
	if i < 0 || i >= len(s.lines) {
		return ""
	}
	return s.lines[i].Text
}

// TagsAt returns the tags of line i.
func (s *Store) TagsAt(i int) []string {
	if i < 0 || i >= len(s.lines) {
		return nil
	}
	return s.lines[i].Tags
}

// Append adds a line at the end carrying the given tags and returns its
// index. Tag spans grow only while appends for that tag stay contiguous;
// the contract's tags (one post's lines are appended together) keep them so.
func (s *Store) Append(text string, tags ...string) int {
	i := len(s.lines)
	s.lines = append(s.lines, Line{Text: text, Tags: append([]string(nil), tags...)})
	for _, tag := range tags {
		span, ok := s.index[tag]
		if ok && span.End == i {
			span.End = i + 1
			s.index[tag] = span
			continue
		}
		s.index[tag] = Span{Start: i, End: i + 1}
	}
	return i
}

// FindLines returns the contiguous span of lines tagged with tag. The empty
// span (ok=false) means the tag was never appended or has been stripped.
func (s *Store) FindLines(tag string) (Span, bool) {
	span, ok := s.index[tag]
	return span, ok
}

// Replace rewrites the text of line i in place, leaving tags untouched.
// Out-of-range indices are ignored.
func (s *Store) Replace(i int, text string) {
	if i < 0 || i >= len(s.lines) {
		return
	}
	s.lines[i].Text = text
}

// Blank clears the text of line i, leaving tags untouched.
func (s *Store) Blank(i int) {
	s.Replace(i, "")
}

// StripTags removes every tag from the lines of the span and drops the
// affected entries from the index, so later lookups of those tags miss.
func (s *Store) StripTags(span Span) {
	for i := span.Start; i < span.End && i < len(s.lines); i++ {
		for _, tag := range s.lines[i].Tags {
			delete(s.index, tag)
		}
		s.lines[i].Tags = nil
	}
}

// Lines returns a copy of the current line texts, for assertions and dumps.
func (s *Store) Lines() []string {
	out := make([]string, len(s.lines))
	for i := range s.lines {
		out[i] = s.lines[i].Text
	}
	return out
}
