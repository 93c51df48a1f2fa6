// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
package model

import "time"

// =============================================================================
// REACTION TYPE
// =============================================================================

// Reaction is one (user, emoji) pair attached to a post.
type Reaction struct {
	UserID    string `json:"user_id"`
	EmojiName string `json:"emoji_name"`
}

// =============================================================================
// FILE AND ATTACHMENT TYPES
// =============================================================================

// File references an uploaded file attached to a post. Content handling is
// out of scope; only the identifier and display metadata are kept.
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

// Attachment is an opaque rich-attachment blob carried on a post.
type Attachment struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Fallback string `json:"fallback"`
}

// =============================================================================
// POST TYPE
// =============================================================================

// Post is a single message in a channel. A post with a non-empty RootID is a
// thread reply; the post it replies to is the thread root.
type Post struct {
	ID        string `json:"id"`
	RootID    string `json:"root_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	CreateAt  int64  `json:"create_at"` // milliseconds since epoch
	Edited    bool   `json:"-"`
	FromBot   bool   `json:"-"`

	// ThreadRoot is derived: set the first time a reply to this post is
	// observed. Presentational only (controls the thread prefix).
	ThreadRoot bool `json:"-"`

	Attachments []Attachment `json:"-"`
	Files       []File       `json:"-"`
	Reactions   []Reaction   `json:"-"`
}

// IsReply reports whether the post is a thread reply.
func (p *Post) IsReply() bool {
	return p.RootID != ""
}

// CreatedTime returns the creation timestamp as a time.Time.
func (p *Post) CreatedTime() time.Time {
	return time.UnixMilli(p.CreateAt)
}

// AddReaction records a (user, emoji) pair. Adding a pair that is already
// present is a no-op, so replayed reaction events cannot duplicate entries.
func (p *Post) AddReaction(userID, emojiName string) bool {
	for _, r := range p.Reactions {
		if r.UserID == userID && r.EmojiName == emojiName {
			return false
		}
	}
	p.Reactions = append(p.Reactions, Reaction{UserID: userID, EmojiName: emojiName})
	return true
}

// RemoveReaction deletes a (user, emoji) pair if present.
func (p *Post) RemoveReaction(userID, emojiName string) bool {
	for i, r := range p.Reactions {
		if r.UserID == userID && r.EmojiName == emojiName {
			p.Reactions = append(p.Reactions[:i], p.Reactions[i+1:]...)
			return true
		}
	}
	return false
}

// ReactionCounts returns emoji names with their counts, in first-seen order.
func (p *Post) ReactionCounts() []ReactionCount {
	var out []ReactionCount
	index := make(map[string]int)
	for _, r := range p.Reactions {
		if i, ok := index[r.EmojiName]; ok {
			out[i].Count++
			continue
		}
		index[r.EmojiName] = len(out)
		out = append(out, ReactionCount{EmojiName: r.EmojiName, Count: 1})
	}
	return out
}

// ReactionCount is an aggregated reaction tally for display.
type ReactionCount struct {
	EmojiName string
	Count     int
}
