// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"encoding/json"

	"github.com/jeranaias/relay-tui/internal/router"
	"github.com/jeranaias/relay-tui/internal/wire"
)

// User-initiated operations. Each enqueues a REST call and returns at once;
// the visible effect arrives later through the streaming event (posted,
// reaction_added, ...), which is the single source of truth for rendering.
// The continuation only reports failures.

// SendPost sends a message, optionally as a thread reply.
func (c *Core) SendPost(serverID, channelID, message, rootID string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.router.Enqueue(&router.Operation{
			Method: "POST",
			Path:   "/posts",
			Body: map[string]string{
				"channel_id": channelID,
				"message":    message,
				"root_id":    rootID,
			},
			Name: "create_post",
			Done: c.reportOnError(serverID, "send"),
		})
	})
}

// DeletePost removes one of the user's posts. The tombstone appears when the
// deletion event comes back.
func (c *Core) DeletePost(serverID, postID string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.router.Enqueue(&router.Operation{
			Method: "DELETE",
			Path:   "/posts/" + postID,
			Name:   "delete_post",
			Done:   c.reportOnError(serverID, "delete"),
		})
	})
}

// React attaches the local user's reaction to a post.
func (c *Core) React(serverID, postID, emojiName string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.router.Enqueue(&router.Operation{
			Method: "POST",
			Path:   "/reactions",
			Body: wire.Reaction{
				UserID:    s.srv.UserID,
				PostID:    postID,
				EmojiName: emojiName,
			},
			Name: "add_reaction",
			Done: c.reportOnError(serverID, "react"),
		})
	})
}

// Unreact removes the local user's reaction from a post.
func (c *Core) Unreact(serverID, postID, emojiName string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.router.Enqueue(&router.Operation{
			Method: "DELETE",
			Path:   "/users/" + s.srv.UserID + "/posts/" + postID + "/reactions/" + emojiName,
			Name:   "remove_reaction",
			Done:   c.reportOnError(serverID, "unreact"),
		})
	})
}

// OpenDirect opens (or reopens) the direct channel with another user and
// attaches it when the server responds.
func (c *Core) OpenDirect(serverID, otherUserID string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.router.Enqueue(&router.Operation{
			Method: "POST",
			Path:   "/channels/direct",
			Body:   []string{s.srv.UserID, otherUserID},
			Name:   "open_direct",
			Done: func(body []byte, err error) {
				if err != nil {
					c.notice(serverID, "open direct failed: "+err.Error())
					return
				}
				var w wire.Channel
				if json.Unmarshal(body, &w) != nil || w.ID == "" {
					return
				}
				s.srv.ReopenChannel(w.ID)
				c.attachChannel(s, &w)
				c.setChannelVisibility(s, w.ID, true)
			},
		})
	})
}

// CloseChannel hides a direct or group conversation. The channel unloads
// locally and the server-side preference flips so it stays hidden across
// sessions and does not come back on the next pushed event.
func (c *Core) CloseChannel(serverID, channelID string) {
	c.Do(func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.srv.CloseChannel(channelID)
		c.UnloadChannel(serverID, channelID)
		c.setChannelVisibility(s, channelID, false)
	})
}

// setChannelVisibility records the show/hide preference on the server.
func (c *Core) setChannelVisibility(s *serverState, channelID string, visible bool) {
	value := "false"
	if visible {
		value = "true"
	}
	serverID := s.cfg.ID
	s.router.Enqueue(&router.Operation{
		Method: "PUT",
		Path:   "/users/" + s.srv.UserID + "/preferences",
		Body: []wire.Preference{{
			UserID:   s.srv.UserID,
			Category: "direct_channel_show",
			Name:     channelID,
			Value:    value,
		}},
		Name: "set_visibility",
		Done: c.reportOnError(serverID, "channel visibility"),
	})
}
