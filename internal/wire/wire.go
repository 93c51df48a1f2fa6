// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire defines the JSON shapes exchanged with the messaging server:
// the streaming event envelope and the REST payloads.
//
// The streaming envelope nests JSON-encoded sub-objects as strings inside
// "data" (a post event carries data.post as a string of JSON), so decoding
// is a two-step affair handled by the typed accessors here.
package wire

import (
	"encoding/json"
	"errors"
)

// =============================================================================
// STREAMING ENVELOPE
// =============================================================================

// ErrMalformedEvent is returned when a frame cannot be decoded. Per the
// protocol error policy it aborts only the single event's handling.
var ErrMalformedEvent = errors.New("malformed stream event")

// Broadcast scopes an event to a channel and/or user.
type Broadcast struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	TeamID    string `json:"team_id"`
}

// Event is one decoded streaming frame.
type Event struct {
	Event     string                     `json:"event"`
	Data      map[string]json.RawMessage `json:"data"`
	Broadcast Broadcast                  `json:"broadcast"`
	Seq       int64                      `json:"seq"`
}

// DecodeEvent parses a streaming frame. Frames without an event type are
// control replies (e.g. the authentication acknowledgment) and decode with
// Event == "".
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, ErrMalformedEvent
	}
	return &ev, nil
}

// String extracts a plain string field from the event data.
func (e *Event) String(key string) string {
	raw, ok := e.Data[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Bool extracts a boolean field from the event data.
func (e *Event) Bool(key string) bool {
	raw, ok := e.Data[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

// Nested decodes a data field holding a JSON-encoded string of JSON into
// out. This is the envelope's double-encoding: data.post is a string whose
// content is a post object.
func (e *Event) Nested(key string, out any) error {
	raw, ok := e.Data[key]
	if !ok {
		return ErrMalformedEvent
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return ErrMalformedEvent
	}
	if err := json.Unmarshal([]byte(inner), out); err != nil {
		return ErrMalformedEvent
	}
	return nil
}

// Post decodes the nested data.post JSON string.
func (e *Event) Post() (*Post, error) {
	var p Post
	if err := e.Nested("post", &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrMalformedEvent
	}
	return &p, nil
}

// Reaction decodes the nested data.reaction JSON string.
func (e *Event) Reaction() (*Reaction, error) {
	var r Reaction
	if err := e.Nested("reaction", &r); err != nil {
		return nil, err
	}
	if r.PostID == "" {
		return nil, ErrMalformedEvent
	}
	return &r, nil
}

// AuthChallenge is the first frame sent on a new streaming connection.
type AuthChallenge struct {
	Seq    int64          `json:"seq"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

// NewAuthChallenge builds the authentication frame for a token.
func NewAuthChallenge(token string) AuthChallenge {
	return AuthChallenge{
		Seq:    1,
		Action: "authentication_challenge",
		Data:   map[string]any{"token": token},
	}
}

// =============================================================================
// REST PAYLOADS
// =============================================================================

// Post is the wire shape of a message.
type Post struct {
	ID        string         `json:"id"`
	RootID    string         `json:"root_id"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	CreateAt  int64          `json:"create_at"`
	EditAt    int64          `json:"edit_at"`
	Type      string         `json:"type"`
	Props     map[string]any `json:"props"`
	Metadata  *PostMetadata  `json:"metadata"`
}

// FromBot reports whether the post props carry the bot marker.
func (p *Post) FromBot() bool {
	if p.Props == nil {
		return false
	}
	v, ok := p.Props["from_bot"]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == "true"
}

// PostMetadata carries files and reactions inline with a post.
type PostMetadata struct {
	Files     []FileInfo   `json:"files"`
	Reactions []Reaction   `json:"reactions"`
	Embeds    []PostEmbed  `json:"embeds"`
}

// FileInfo is the wire shape of an uploaded file reference.
type FileInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

// Reaction is the wire shape of a reaction.
type Reaction struct {
	UserID    string `json:"user_id"`
	PostID    string `json:"post_id"`
	EmojiName string `json:"emoji_name"`
}

// PostEmbed is an opaque rich embed.
type PostEmbed struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// PostList is the history-fetch response: an unordered post map plus the
// server's ordering (newest first).
type PostList struct {
	Order []string         `json:"order"`
	Posts map[string]*Post `json:"posts"`
}

// User is the wire shape of a user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	IsBot    bool   `json:"is_bot"`
	DeleteAt int64  `json:"delete_at"`
}

// Team is the wire shape of a team.
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Channel is the wire shape of a channel.
type Channel struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ChannelMember is the wire shape of one membership record.
type ChannelMember struct {
	ChannelID    string            `json:"channel_id"`
	UserID       string            `json:"user_id"`
	LastViewedAt int64             `json:"last_viewed_at"`
	NotifyProps  map[string]string `json:"notify_props"`
}

// Muted reports whether the member has the channel muted.
func (m *ChannelMember) Muted() bool {
	return m.NotifyProps["mark_unread"] == "mention"
}

// Preference is one user preference record (channel visibility lives here).
type Preference struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// Emoji is the wire shape of a custom emoji.
type Emoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is the error body the server returns on non-2xx responses.
type APIError struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}
