// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
package model

import "github.com/jeranaias/relay-tui/internal/wire"

// PostFromWire converts a wire post into the domain shape, lifting files
// and reactions out of the metadata envelope.
func PostFromWire(w *wire.Post) *Post {
	p := &Post{
		ID:        w.ID,
		RootID:    w.RootID,
		ChannelID: w.ChannelID,
		UserID:    w.UserID,
		Message:   w.Message,
		CreateAt:  w.CreateAt,
		Edited:    w.EditAt > 0,
		FromBot:   w.FromBot(),
	}
	if w.Metadata != nil {
		for _, f := range w.Metadata.Files {
			p.Files = append(p.Files, File{ID: f.ID, Name: f.Name, Extension: f.Extension})
		}
		for _, r := range w.Metadata.Reactions {
			p.AddReaction(r.UserID, r.EmojiName)
		}
		for _, e := range w.Metadata.Embeds {
			a := Attachment{Type: e.Type}
			if t, ok := e.Data["title"].(string); ok {
				a.Title = t
			}
			if t, ok := e.Data["text"].(string); ok {
				a.Text = t
			}
			if t, ok := e.Data["fallback"].(string); ok {
				a.Fallback = t
			}
			p.Attachments = append(p.Attachments, a)
		}
	}
	return p
}

// UserFromWire converts a wire user into the domain shape, preserving the
// existing presence status when merging into a known user.
func UserFromWire(w *wire.User) *User {
	return &User{
		ID:       w.ID,
		Username: w.Username,
		Nickname: w.Nickname,
		IsBot:    w.IsBot,
		Deleted:  w.DeleteAt > 0,
		Status:   StatusUnknown,
	}
}

// ChannelFromWire converts a wire channel into the domain shape.
func ChannelFromWire(w *wire.Channel) *Channel {
	c := NewChannel(w.ID, ChannelType(w.Type))
	c.Name = w.Name
	c.DisplayName = w.DisplayName
	c.TeamID = w.TeamID
	return c
}

// TeamFromWire converts a wire team into the domain shape.
func TeamFromWire(w *wire.Team) *Team {
	t := NewTeam(w.ID, w.DisplayName)
	t.Name = w.Name
	return t
}
