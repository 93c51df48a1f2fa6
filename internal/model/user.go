// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
package model

// =============================================================================
// PRESENCE STATUS
// =============================================================================

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Glyph returns the single-character presence indicator used in prefixes.
func (s Status) Glyph() string {
	switch s {
	case StatusOnline:
		return "+"
	case StatusAway:
		return "~"
	case StatusDND:
		return "@"
	case StatusOffline:
		return "-"
	default:
		return "?"
	}
}

// ParseStatus maps a wire status string onto a Status, defaulting to unknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusOnline, StatusAway, StatusDND, StatusOffline:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// =============================================================================
// USER TYPE
// =============================================================================

// User is a member of a server. Users are created lazily the first time any
// post, membership or presence event references them, and are never removed:
// historical posts keep referencing past authors, so departure only sets the
// Deleted flag.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	IsBot    bool   `json:"is_bot"`
	Deleted  bool   `json:"-"`
	Status   Status `json:"-"`
}

// NewUser creates a user with unknown presence.
func NewUser(id string) *User {
	return &User{ID: id, Status: StatusUnknown}
}

// DisplayName returns the nickname if set, else the username, else the id.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}
