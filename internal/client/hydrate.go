// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"encoding/json"
	"sort"

	"github.com/jeranaias/relay-tui/internal/linestore"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/router"
	"github.com/jeranaias/relay-tui/internal/stream"
	"github.com/jeranaias/relay-tui/internal/util"
	"github.com/jeranaias/relay-tui/internal/wire"
)

// resyncPageSize is the per-request page size used when filling the gap
// after a reconnect. A page this full means more posts may follow, so the
// resync keeps paging until a short page arrives.
const resyncPageSize = 200

// =============================================================================
// LOGIN
// =============================================================================

// login authenticates with credentials. The login endpoint returns the
// session token in a response header, which the router's body-only transport
// cannot surface, so this one call runs on its own goroutine and hands the
// result back to the owner loop.
func (c *Core) login(s *serverState) {
	cfg := s.cfg
	api := s.api
	go func() {
		user, token, err := api.Login(c.ctx, cfg.LoginID, cfg.Password)
		c.deliver(func() {
			if err != nil {
				c.notice(cfg.ID, "login failed: "+err.Error())
				return
			}
			s.srv.SetToken(token)
			s.srv.UserID = user.ID
			c.mergeUser(s.srv, user)
			c.notice(cfg.ID, "logged in as "+user.Username)
			c.bootstrap(s)
		})
	}()
}

// startLogin verifies a pre-provisioned token by fetching the local user,
// then proceeds to hydration.
func (c *Core) startLogin(s *serverState) {
	serverID := s.cfg.ID
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/users/me",
		Name:   "whoami",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "token rejected: "+err.Error())
				return
			}
			var u wire.User
			if jerr := json.Unmarshal(body, &u); jerr != nil || u.ID == "" {
				c.notice(serverID, "token check returned an unreadable user")
				return
			}
			s.srv.UserID = u.ID
			c.mergeUser(s.srv, &u)
			c.bootstrap(s)
		},
	})
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

// bootstrap hydrates a freshly authenticated server: preferences first (so
// closed channels are known before any channel attaches), then teams and
// their channels. The streaming worker starts in parallel; its events are
// idempotent against hydration, so the two racing is harmless.
func (c *Core) bootstrap(s *serverState) {
	serverID := s.cfg.ID

	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/users/" + s.srv.UserID + "/preferences",
		Name:   "preferences",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "preference fetch failed: "+err.Error())
				return
			}
			var prefs []wire.Preference
			if json.Unmarshal(body, &prefs) != nil {
				return
			}
			for _, p := range prefs {
				if p.Category != "direct_channel_show" && p.Category != "group_channel_show" {
					continue
				}
				if p.Value == "false" {
					s.srv.CloseChannel(p.Name)
				}
			}
		},
	})

	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/users/me/teams",
		Name:   "teams",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "team fetch failed: "+err.Error())
				return
			}
			var teams []wire.Team
			if json.Unmarshal(body, &teams) != nil {
				return
			}
			for i := range teams {
				t := model.TeamFromWire(&teams[i])
				s.srv.Teams[t.ID] = t
				c.fetchTeamChannels(s, t.ID)
			}
		},
	})

	c.startStream(s)
}

// startStream registers the streaming worker and makes the first dial.
func (c *Core) startStream(s *serverState) {
	if c.supervisor.Worker(s.cfg.ID) != nil {
		return
	}
	srv := s.srv
	w := stream.NewWorker(
		s.cfg.ID,
		stream.EndpointURL(s.cfg.URL),
		func() string { return srv.Token() },
		c.dialer,
		c,
		stream.Options{HeartbeatInterval: c.opts.Heartbeat},
	)
	c.supervisor.Add(w)
	ctx := c.ctx
	go func() {
		// First dial; failures fall to the supervisor's reconnect loop.
		_ = w.Connect(ctx)
	}()
}

// fetchTeamChannels hydrates one team's channel list.
func (c *Core) fetchTeamChannels(s *serverState, teamID string) {
	serverID := s.cfg.ID
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/users/me/teams/" + teamID + "/channels",
		Name:   "channels",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "channel list failed: "+err.Error())
				return
			}
			var channels []wire.Channel
			if json.Unmarshal(body, &channels) != nil {
				return
			}
			for i := range channels {
				c.attachChannel(s, &channels[i])
			}
		},
	})
}

// attachChannel inserts a wire channel into the model and starts its
// hydration. Closed and already-known channels are skipped.
func (c *Core) attachChannel(s *serverState, w *wire.Channel) {
	if s.srv.IsClosed(w.ID) || s.srv.ChannelByID(w.ID) != nil {
		return
	}
	ch := model.ChannelFromWire(w)
	if !s.srv.AttachChannel(ch) {
		return // owning team unknown; a later team fetch retries via events
	}
	c.stores[ch.ID] = linestore.New()
	ch.Loading = true
	c.fetchMembers(s, ch.ID)
	c.fetchHistory(s, ch.ID)
}

// fetchMembers hydrates a channel's membership and the local mute flag.
func (c *Core) fetchMembers(s *serverState, channelID string) {
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/channels/" + channelID + "/members",
		Name:   "members",
		Done: func(body []byte, err error) {
			if err != nil {
				return // membership is an enrichment, not a requirement
			}
			var members []wire.ChannelMember
			if json.Unmarshal(body, &members) != nil {
				return
			}
			ch := s.srv.ChannelByID(channelID)
			if ch == nil {
				return
			}
			for i := range members {
				m := &members[i]
				ch.AddMember(m.UserID)
				if m.UserID == s.srv.UserID {
					ch.Muted = m.Muted()
					ch.MarkViewed(m.LastViewedAt)
				}
			}
			if ch.Type == model.ChannelDirect {
				c.hydrateDirectPeer(s, ch)
			}
		},
	})
}

// hydrateDirectPeer fetches the other member of a direct channel so its
// display name and presence render properly.
func (c *Core) hydrateDirectPeer(s *serverState, ch *model.Channel) {
	for userID := range ch.Members {
		if userID == s.srv.UserID {
			continue
		}
		if s.srv.UserByID(userID).Username == "" {
			c.FetchUser(s.cfg.ID, userID)
		}
	}
}

// fetchHistory loads the newest page of a channel's scrollback.
func (c *Core) fetchHistory(s *serverState, channelID string) {
	serverID := s.cfg.ID
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/channels/" + channelID + "/posts?per_page=60",
		Name:   "history",
		Done: func(body []byte, err error) {
			ch := s.srv.ChannelByID(channelID)
			if ch != nil {
				ch.Loading = false
			}
			if err != nil {
				c.notice(serverID, "history fetch failed: "+err.Error())
				return
			}
			var list wire.PostList
			if json.Unmarshal(body, &list) != nil {
				return
			}
			c.applyPostList(s, channelID, &list)
		},
	})
}

// =============================================================================
// POST LIST APPLICATION
// =============================================================================

// applyPostList renders a fetched post list oldest-first, so thread roots
// land before their replies and the scrollback reads in time order. Posts
// already rendered (a live push raced the fetch) append as no-ops.
func (c *Core) applyPostList(s *serverState, channelID string, list *wire.PostList) {
	ch := s.srv.ChannelByID(channelID)
	store := c.stores[channelID]
	if ch == nil || store == nil {
		return
	}

	posts := make([]*model.Post, 0, len(list.Order))
	for _, id := range list.Order {
		wp, ok := list.Posts[id]
		if !ok || wp.ID == "" {
			continue
		}
		posts = append(posts, model.PostFromWire(wp))
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreateAt != posts[j].CreateAt {
			return posts[i].CreateAt < posts[j].CreateAt
		}
		return posts[i].ID < posts[j].ID
	})

	for _, p := range posts {
		ch.WritePost(p)
		if s.srv.UserByID(p.UserID).Username == "" {
			c.FetchUser(s.cfg.ID, p.UserID)
		}
		c.renderer.Append(store, s.srv, ch, p)
	}
}

// =============================================================================
// RESYNC
// =============================================================================

// resyncServer fills the outage gap for every channel of a server: posts
// newer than the channel's last rendered post are fetched and fed through
// the normal hydration path. Channels that never rendered anything refetch
// their newest page instead.
func (c *Core) resyncServer(serverID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	c.notice(serverID, "resyncing")
	for _, ch := range s.srv.Channels() {
		if ch.LastPostID == "" {
			c.fetchHistory(s, ch.ID)
			continue
		}
		c.resyncChannel(s, ch.ID, ch.LastPostID)
	}
}

// resyncChannel fetches one gap page and keeps paging while pages come back
// full. Idempotent appends make overlap with live pushes harmless.
func (c *Core) resyncChannel(s *serverState, channelID, afterID string) {
	serverID := s.cfg.ID
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path: "/channels/" + channelID + "/posts?per_page=" +
			util.IntToString(resyncPageSize) + "&after=" + afterID,
		Name: "resync",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "resync failed: "+err.Error())
				return
			}
			var list wire.PostList
			if json.Unmarshal(body, &list) != nil {
				return
			}
			c.applyPostList(s, channelID, &list)
			if len(list.Order) == resyncPageSize {
				if ch := s.srv.ChannelByID(channelID); ch != nil && ch.LastPostID != afterID {
					c.resyncChannel(s, channelID, ch.LastPostID)
				}
			}
		},
	})
}

// =============================================================================
// ON-DEMAND FETCHES (dispatch.Env)
// =============================================================================

// FetchChannel fetches, attaches and hydrates one channel.
func (c *Core) FetchChannel(serverID, channelID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/channels/" + channelID,
		Name:   "channel",
		Done: func(body []byte, err error) {
			if err != nil {
				c.notice(serverID, "channel fetch failed: "+err.Error())
				return
			}
			var w wire.Channel
			if json.Unmarshal(body, &w) != nil || w.ID == "" {
				return
			}
			c.attachChannel(s, &w)
		},
	})
}

// FetchUser enriches a stub user record. Merges preserve presence.
func (c *Core) FetchUser(serverID, userID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	u := s.srv.UserByID(userID)
	if u.Username != "" {
		return
	}
	u.Username = userID // placeholder; also suppresses duplicate fetches
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/users/" + userID,
		Name:   "user",
		Done: func(body []byte, err error) {
			if err != nil {
				return
			}
			var w wire.User
			if json.Unmarshal(body, &w) != nil || w.ID == "" {
				return
			}
			c.mergeUser(s.srv, &w)
		},
	})
}

// FetchEmoji resolves a custom emoji name to its id.
func (c *Core) FetchEmoji(serverID, name string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	if _, known := s.srv.Emoji[name]; known {
		return
	}
	s.srv.Emoji[name] = "" // pending marker; overwritten on success
	s.router.Enqueue(&router.Operation{
		Method: "GET",
		Path:   "/emoji/name/" + name,
		Name:   "emoji",
		Done: func(body []byte, err error) {
			if err != nil {
				return // unknown names stay unresolved, which is fine
			}
			var e wire.Emoji
			if json.Unmarshal(body, &e) != nil {
				return
			}
			s.srv.Emoji[name] = e.ID
		},
	})
}

// UnloadChannel detaches a channel whole: model container, line store, any
// pending read intent, and focus if it pointed there.
func (c *Core) UnloadChannel(serverID, channelID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	s.srv.DetachChannel(channelID)
	delete(c.stores, channelID)
	delete(c.pendingRead, serverID+"/"+channelID)
	if c.focused == channelID {
		c.focused = ""
	}
}

// mergeUser folds a wire user into the registry, keeping known presence.
func (c *Core) mergeUser(srv *model.Server, w *wire.User) {
	u := srv.UserByID(w.ID)
	status := u.Status
	*u = *model.UserFromWire(w)
	u.Status = status
}
