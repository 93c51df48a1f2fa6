// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// =============================================================================
// CONNECTION STATE
// =============================================================================

// ConnState is the streaming connection state machine for one server.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a readable state name for status notices.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// =============================================================================
// SERVER TYPE
// =============================================================================

// Server is one remote messaging server: identity, auth token, connection
// state, owned teams and directly-joined channels, and the user registry.
// It lives from connect to disconnect; the token is replaced on every
// successful login and held only in memory.
type Server struct {
	ID      string
	Name    string
	BaseURL string

	UserID string // local user's id, set by login
	token  string

	State ConnState

	Teams map[string]*Team
	// Direct holds direct and group channels, which are not team-scoped.
	Direct map[string]*Channel
	Users  map[string]*User

	// Closed tracks channel ids the user explicitly closed, so pushed
	// "channel created" events do not recreate them.
	Closed map[string]struct{}

	// Emoji maps custom emoji names to ids, hydrated lazily.
	Emoji map[string]string
}

// NewServer creates a disconnected server shell.
func NewServer(id, name, baseURL string) *Server {
	return &Server{
		ID:      id,
		Name:    name,
		BaseURL: baseURL,
		State:   StateDisconnected,
		Teams:   make(map[string]*Team),
		Direct:  make(map[string]*Channel),
		Users:   make(map[string]*User),
		Closed:  make(map[string]struct{}),
		Emoji:   make(map[string]string),
	}
}

// SetToken replaces the auth token after a successful login.
func (s *Server) SetToken(token string) {
	s.token = token
}

// Token returns the current auth token.
func (s *Server) Token() string {
	return s.token
}

// TokenFingerprint returns a short SHA-256 fingerprint of the token for
// logging. The token itself is never logged.
func (s *Server) TokenFingerprint() string {
	if s.token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(s.token))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// CHANNEL AND USER LOOKUP
// =============================================================================

// ChannelByID finds a channel in any team or in the direct set.
func (s *Server) ChannelByID(id string) *Channel {
	if c, ok := s.Direct[id]; ok {
		return c
	}
	for _, t := range s.Teams {
		if c, ok := t.Channels[id]; ok {
			return c
		}
	}
	return nil
}

// Channels returns every channel owned by the server, team-scoped or not.
func (s *Server) Channels() []*Channel {
	var out []*Channel
	for _, t := range s.Teams {
		for _, c := range t.Channels {
			out = append(out, c)
		}
	}
	for _, c := range s.Direct {
		out = append(out, c)
	}
	return out
}

// AttachChannel inserts a channel under its team, or into the direct set for
// non-team-scoped types. Returns false if the owning team is unknown.
func (s *Server) AttachChannel(c *Channel) bool {
	if !c.Type.IsTeamScoped() {
		s.Direct[c.ID] = c
		return true
	}
	t, ok := s.Teams[c.TeamID]
	if !ok {
		return false
	}
	t.Channels[c.ID] = c
	return true
}

// DetachChannel removes a channel from whichever container owns it.
func (s *Server) DetachChannel(id string) *Channel {
	if c, ok := s.Direct[id]; ok {
		delete(s.Direct, id)
		return c
	}
	for _, t := range s.Teams {
		if c, ok := t.Channels[id]; ok {
			delete(t.Channels, id)
			return c
		}
	}
	return nil
}

// UserByID returns the registered user, creating an unknown-presence stub on
// first reference. Users are never removed (see User).
func (s *Server) UserByID(id string) *User {
	if u, ok := s.Users[id]; ok {
		return u
	}
	u := NewUser(id)
	s.Users[id] = u
	return u
}

// CloseChannel marks a channel id as explicitly closed by the user.
func (s *Server) CloseChannel(id string) {
	s.Closed[id] = struct{}{}
}

// ReopenChannel clears the closed marker.
func (s *Server) ReopenChannel(id string) {
	delete(s.Closed, id)
}

// IsClosed reports whether the user explicitly closed this channel id.
func (s *Server) IsClosed(id string) bool {
	_, ok := s.Closed[id]
	return ok
}

// DirectChannelWith returns the open direct channel whose other member is
// the given user, or nil.
func (s *Server) DirectChannelWith(userID string) *Channel {
	for _, c := range s.Direct {
		if c.Type != ChannelDirect {
			continue
		}
		if _, ok := c.Members[userID]; ok {
			return c
		}
	}
	return nil
}
