// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
package model

import "sort"

// =============================================================================
// CHANNEL TYPE ENUM
// =============================================================================

// ChannelType distinguishes the four channel variants.
type ChannelType string

const (
	ChannelPublic  ChannelType = "O"
	ChannelPrivate ChannelType = "P"
	ChannelGroup   ChannelType = "G"
	ChannelDirect  ChannelType = "D"
)

// IsTeamScoped reports whether channels of this type live under a team.
// Direct and group conversations attach to the server directly.
func (t ChannelType) IsTeamScoped() bool {
	return t == ChannelPublic || t == ChannelPrivate
}

// =============================================================================
// CHANNEL TYPE
// =============================================================================

// Channel is one conversation scope. Posts is an unordered container;
// display order is reconstructed from Post.CreateAt, never container order.
type Channel struct {
	ID          string      `json:"id"`
	Type        ChannelType `json:"type"`
	DisplayName string      `json:"display_name"`
	Name        string      `json:"name"`
	TeamID      string      `json:"team_id"`

	Muted   bool `json:"-"`
	Loading bool `json:"-"` // history hydration in flight

	Posts   map[string]*Post    `json:"-"`
	Members map[string]struct{} `json:"-"`

	// LastPostID is the id of the newest post appended to the line store.
	// Once set it never moves backward; LastPostAt carries the ordering.
	LastPostID string `json:"-"`
	LastPostAt int64  `json:"-"`

	// Read cursor.
	LastViewedAt   int64  `json:"-"`
	LastReadPostID string `json:"-"`
}

// NewChannel creates an empty channel of the given type.
func NewChannel(id string, t ChannelType) *Channel {
	return &Channel{
		ID:      id,
		Type:    t,
		Posts:   make(map[string]*Post),
		Members: make(map[string]struct{}),
	}
}

// WritePost stores a post in the channel. If the post is a reply and its
// thread root is known, the root acquires the derived ThreadRoot flag.
// Returns the thread root when that flag was newly set, else nil.
func (c *Channel) WritePost(p *Post) *Post {
	c.Posts[p.ID] = p
	if p.RootID == "" {
		return nil
	}
	root, ok := c.Posts[p.RootID]
	if !ok || root.ThreadRoot {
		return nil
	}
	root.ThreadRoot = true
	return root
}

// RemovePost deletes a post from the container. The rendered lines are the
// caller's concern (they become a tombstone, not removed).
func (c *Channel) RemovePost(id string) *Post {
	p, ok := c.Posts[id]
	if !ok {
		return nil
	}
	delete(c.Posts, id)
	return p
}

// AdvanceLastPost records the newest appended post. Calls carrying an older
// CreateAt than the current cursor are ignored, keeping the cursor monotonic.
func (c *Channel) AdvanceLastPost(p *Post) bool {
	if c.LastPostID != "" && p.CreateAt < c.LastPostAt {
		return false
	}
	c.LastPostID = p.ID
	c.LastPostAt = p.CreateAt
	return true
}

// MarkViewed advances the read cursor. Backward moves are ignored.
func (c *Channel) MarkViewed(at int64) {
	if at < c.LastViewedAt {
		return
	}
	c.LastViewedAt = at
	c.LastReadPostID = c.LastPostID
}

// HasUnread reports whether posts newer than the read cursor exist.
func (c *Channel) HasUnread() bool {
	return c.LastPostAt > c.LastViewedAt
}

// OrderedPosts returns the channel's posts sorted by creation time, with the
// post id as a tiebreaker so the order is deterministic.
func (c *Channel) OrderedPosts() []*Post {
	out := make([]*Post, 0, len(c.Posts))
	for _, p := range c.Posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateAt != out[j].CreateAt {
			return out[i].CreateAt < out[j].CreateAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddMember records channel membership.
func (c *Channel) AddMember(userID string) {
	c.Members[userID] = struct{}{}
}

// RemoveMember drops channel membership.
func (c *Channel) RemoveMember(userID string) {
	delete(c.Members, userID)
}

// =============================================================================
// TEAM TYPE
// =============================================================================

// Team groups public and private channels.
type Team struct {
	ID          string              `json:"id"`
	DisplayName string              `json:"display_name"`
	Name        string              `json:"name"`
	Channels    map[string]*Channel `json:"-"`
}

// NewTeam creates an empty team.
func NewTeam(id, displayName string) *Team {
	return &Team{
		ID:          id,
		DisplayName: displayName,
		Channels:    make(map[string]*Channel),
	}
}
