// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch maps streaming events onto model and renderer mutations.
//
// Dispatch is a static lookup from the event type tag to a typed handler.
// Unknown event types are ignored, and a malformed frame aborts only that
// single event's handling; the connection is never dropped from here.
package dispatch

import (
	"log"
	"time"

	"github.com/jeranaias/relay-tui/internal/linestore"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/render"
	"github.com/jeranaias/relay-tui/internal/wire"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType tags a streaming event.
type EventType string

const (
	EventPosted              EventType = "posted"
	EventPostEdited          EventType = "post_edited"
	EventPostDeleted         EventType = "post_deleted"
	EventReactionAdded       EventType = "reaction_added"
	EventReactionRemoved     EventType = "reaction_removed"
	EventChannelCreated      EventType = "channel_created"
	EventChannelConverted    EventType = "channel_converted"
	EventUserAdded           EventType = "user_added"
	EventUserRemoved         EventType = "user_removed"
	EventMemberUpdated       EventType = "channel_member_updated"
	EventChannelViewed       EventType = "channel_viewed"
	EventStatusChange        EventType = "status_change"
	EventPreferencesChanged  EventType = "preferences_changed"
	EventDirectAdded         EventType = "direct_added"
	EventGroupAdded          EventType = "group_added"
	EventTyping              EventType = "typing"
	EventHello               EventType = "hello"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env is what handlers need from the client core. All methods are called on
// the mutation-owner goroutine; the async ones (Fetch*, Unload*) enqueue
// work and return immediately.
type Env interface {
	// Server returns the server for an id, or nil after disconnect.
	Server(serverID string) *model.Server
	// Store returns the line store backing a channel's scrollback, or nil
	// for channels that were never attached.
	Store(channelID string) *linestore.Store
	// Renderer returns the shared renderer.
	Renderer() *render.Renderer

	// FocusedChannelID is the channel currently displayed, or "".
	FocusedChannelID() string
	// MarkRead advances the read cursor for the focused channel (debounced).
	MarkRead(serverID, channelID string)

	// FetchChannel asynchronously fetches, attaches and hydrates a channel.
	FetchChannel(serverID, channelID string)
	// FetchUser asynchronously enriches a stub user record.
	FetchUser(serverID, userID string)
	// FetchEmoji asynchronously resolves an unknown custom emoji name.
	FetchEmoji(serverID, name string)
	// UnloadChannel detaches a channel and abandons its renderer region.
	UnloadChannel(serverID, channelID string)

	// ChannelMetaChanged signals a presentational change (mute, presence
	// prefix) that does not touch the scrollback.
	ChannelMetaChanged(serverID, channelID string)
	// Notice emits a user-visible status line for a server.
	Notice(serverID, text string)
}

// HandlerFunc handles one decoded event.
type HandlerFunc func(env Env, serverID string, ev *wire.Event)

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher is the static event-type table.
type Dispatcher struct {
	handlers map[EventType]HandlerFunc
}

// New creates the dispatcher with the full handler table installed.
func New() *Dispatcher {
	d := &Dispatcher{handlers: make(map[EventType]HandlerFunc)}
	d.handlers[EventPosted] = handlePosted
	d.handlers[EventPostEdited] = handlePostEdited
	d.handlers[EventPostDeleted] = handlePostDeleted
	d.handlers[EventReactionAdded] = handleReactionAdded
	d.handlers[EventReactionRemoved] = handleReactionRemoved
	d.handlers[EventChannelCreated] = handleChannelCreated
	d.handlers[EventDirectAdded] = handleChannelCreated
	d.handlers[EventGroupAdded] = handleChannelCreated
	d.handlers[EventUserAdded] = handleUserAdded
	d.handlers[EventUserRemoved] = handleUserRemoved
	d.handlers[EventMemberUpdated] = handleMemberUpdated
	d.handlers[EventChannelViewed] = handleChannelViewed
	d.handlers[EventStatusChange] = handleStatusChange
	d.handlers[EventPreferencesChanged] = handlePreferencesChanged
	// Decoded and deliberately dropped, so the common stream is total.
	d.handlers[EventTyping] = handleIgnore
	d.handlers[EventHello] = handleIgnore
	return d
}

// Dispatch decodes one raw frame and runs its handler. Unknown types and
// undecodable frames are skipped.
func (d *Dispatcher) Dispatch(env Env, serverID string, raw []byte) {
	ev, err := wire.DecodeEvent(raw)
	if err != nil {
		log.Printf("dispatch[%s]: skipping malformed frame", serverID)
		return
	}
	if ev.Event == "" {
		return // control reply (auth ack), not an event
	}
	h, ok := d.handlers[EventType(ev.Event)]
	if !ok {
		return
	}
	h(env, serverID, ev)
}

// =============================================================================
// POST HANDLERS
// =============================================================================

func handleIgnore(Env, string, *wire.Event) {}

// findChannel resolves the event's channel, preferring the broadcast scope.
func findChannel(srv *model.Server, ev *wire.Event, channelID string) *model.Channel {
	if ev.Broadcast.ChannelID != "" {
		if c := srv.ChannelByID(ev.Broadcast.ChannelID); c != nil {
			return c
		}
	}
	if channelID != "" {
		return srv.ChannelByID(channelID)
	}
	return nil
}

func handlePosted(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	wp, err := ev.Post()
	if err != nil {
		return
	}
	ch := findChannel(srv, ev, wp.ChannelID)
	if ch == nil {
		return // channel not attached (closed or not yet fetched)
	}
	store := env.Store(ch.ID)
	if store == nil {
		return
	}

	p := model.PostFromWire(wp)
	ch.WritePost(p)

	author := srv.UserByID(p.UserID)
	if author.Username == "" {
		env.FetchUser(serverID, p.UserID)
	}

	env.Renderer().Append(store, srv, ch, p)

	if env.FocusedChannelID() == ch.ID {
		env.MarkRead(serverID, ch.ID)
	}
}

func handlePostEdited(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	wp, err := ev.Post()
	if err != nil {
		return
	}
	ch := findChannel(srv, ev, wp.ChannelID)
	if ch == nil {
		return
	}
	old, known := ch.Posts[wp.ID]
	if !known {
		return // edit of a post never seen locally: benign no-op
	}

	p := model.PostFromWire(wp)
	p.Edited = true
	p.ThreadRoot = old.ThreadRoot
	if len(p.Reactions) == 0 {
		p.Reactions = old.Reactions
	}
	ch.Posts[p.ID] = p

	if store := env.Store(ch.ID); store != nil {
		env.Renderer().Edit(store, srv, ch, p)
	}
}

func handlePostDeleted(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	wp, err := ev.Post()
	if err != nil {
		return
	}
	ch := findChannel(srv, ev, wp.ChannelID)
	if ch == nil {
		return
	}
	if ch.RemovePost(wp.ID) == nil {
		return
	}
	if store := env.Store(ch.ID); store != nil {
		env.Renderer().Delete(store, wp.ID)
	}
}

// =============================================================================
// REACTION HANDLERS
// =============================================================================

func handleReactionAdded(env Env, serverID string, ev *wire.Event) {
	mutateReaction(env, serverID, ev, func(p *model.Post, r *wire.Reaction) bool {
		return p.AddReaction(r.UserID, r.EmojiName)
	})
}

func handleReactionRemoved(env Env, serverID string, ev *wire.Event) {
	mutateReaction(env, serverID, ev, func(p *model.Post, r *wire.Reaction) bool {
		return p.RemoveReaction(r.UserID, r.EmojiName)
	})
}

func mutateReaction(env Env, serverID string, ev *wire.Event, mutate func(*model.Post, *wire.Reaction) bool) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	r, err := ev.Reaction()
	if err != nil {
		return
	}
	ch := findChannel(srv, ev, "")
	if ch == nil {
		// Reaction events broadcast on the channel; without it, search.
		for _, c := range srv.Channels() {
			if _, ok := c.Posts[r.PostID]; ok {
				ch = c
				break
			}
		}
		if ch == nil {
			return
		}
	}
	p, ok := ch.Posts[r.PostID]
	if !ok {
		return
	}
	if !mutate(p, r) {
		return // idempotent duplicate or removal of an absent pair
	}
	if _, known := srv.Emoji[r.EmojiName]; !known {
		env.FetchEmoji(serverID, r.EmojiName)
	}
	if store := env.Store(ch.ID); store != nil {
		env.Renderer().UpdateReactions(store, srv, ch, p)
	}
}

// =============================================================================
// CHANNEL MEMBERSHIP HANDLERS
// =============================================================================

func handleChannelCreated(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	channelID := ev.String("channel_id")
	if channelID == "" {
		channelID = ev.Broadcast.ChannelID
	}
	if channelID == "" {
		return
	}
	if srv.IsClosed(channelID) {
		return // user explicitly closed it; do not recreate
	}
	if srv.ChannelByID(channelID) != nil {
		return
	}
	env.FetchChannel(serverID, channelID)
}

func handleUserAdded(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	userID := ev.String("user_id")
	channelID := ev.Broadcast.ChannelID
	if channelID == "" {
		channelID = ev.String("channel_id")
	}
	ch := srv.ChannelByID(channelID)
	if ch == nil {
		if userID == srv.UserID && !srv.IsClosed(channelID) {
			env.FetchChannel(serverID, channelID)
		}
		return
	}
	ch.AddMember(userID)
}

func handleUserRemoved(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	userID := ev.String("user_id")
	channelID := ev.String("channel_id")
	if channelID == "" {
		channelID = ev.Broadcast.ChannelID
	}
	if userID == srv.UserID {
		// The local user left or was removed: the channel unloads whole and
		// its renderer region is abandoned, not deleted.
		env.UnloadChannel(serverID, channelID)
		return
	}
	if ch := srv.ChannelByID(channelID); ch != nil {
		ch.RemoveMember(userID)
	}
}

func handleMemberUpdated(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	var m wire.ChannelMember
	if err := ev.Nested("channelMember", &m); err != nil {
		return
	}
	ch := srv.ChannelByID(m.ChannelID)
	if ch == nil {
		return
	}
	muted := m.Muted()
	if ch.Muted != muted {
		ch.Muted = muted
		env.ChannelMetaChanged(serverID, ch.ID)
	}
}

func handleChannelViewed(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	channelID := ev.String("channel_id")
	ch := srv.ChannelByID(channelID)
	if ch == nil {
		return
	}
	ch.MarkViewed(time.Now().UnixMilli())
	env.ChannelMetaChanged(serverID, ch.ID)
}

// =============================================================================
// PRESENCE AND PREFERENCES
// =============================================================================

func handleStatusChange(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	userID := ev.String("user_id")
	if userID == "" {
		return
	}
	u := srv.UserByID(userID)
	u.Status = model.ParseStatus(ev.String("status"))
	if dc := srv.DirectChannelWith(userID); dc != nil {
		env.ChannelMetaChanged(serverID, dc.ID)
	}
}

func handlePreferencesChanged(env Env, serverID string, ev *wire.Event) {
	srv := env.Server(serverID)
	if srv == nil {
		return
	}
	var prefs []wire.Preference
	if err := ev.Nested("preferences", &prefs); err != nil {
		return
	}
	for _, p := range prefs {
		if p.Category != "direct_channel_show" && p.Category != "group_channel_show" {
			continue
		}
		// For these categories the preference name carries the channel id
		// (direct) or the other user's id; resolve both ways.
		channelID := p.Name
		if ch := srv.ChannelByID(channelID); ch == nil {
			if dc := srv.DirectChannelWith(p.Name); dc != nil {
				channelID = dc.ID
			}
		}
		if p.Value == "false" {
			srv.CloseChannel(channelID)
			env.UnloadChannel(serverID, channelID)
		} else {
			srv.ReopenChannel(channelID)
			if srv.ChannelByID(channelID) == nil {
				env.FetchChannel(serverID, channelID)
			}
		}
	}
}
