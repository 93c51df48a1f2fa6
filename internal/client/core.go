// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is the coordination core: it owns the domain model, the
// per-channel line stores, and the single goroutine on which all of them
// are mutated.
//
// Everything asynchronous funnels into the owner loop. REST continuations
// arrive through the router's deliver hook, streaming frames and state
// changes through the Sink methods, and external callers through Do. No
// model or store is ever touched from any other goroutine.
package client

import (
	"context"
	"log"
	"time"

	"github.com/jeranaias/relay-tui/internal/dispatch"
	"github.com/jeranaias/relay-tui/internal/linestore"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/render"
	"github.com/jeranaias/relay-tui/internal/rest"
	"github.com/jeranaias/relay-tui/internal/router"
	"github.com/jeranaias/relay-tui/internal/stream"
)

// Loop pacing and debounce defaults.
const (
	// DefaultTickInterval paces router dispatch: one new REST request may
	// start per server per tick.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultMarkReadDebounce coalesces read-cursor updates while posts
	// stream into the focused channel.
	DefaultMarkReadDebounce = 750 * time.Millisecond

	// taskBacklog sizes the owner loop's inbox. Producers block rather
	// than drop when the loop falls this far behind.
	taskBacklog = 256
)

// ServerConfig describes one server to connect to.
type ServerConfig struct {
	ID       string
	Name     string
	URL      string
	LoginID  string
	Password string
	// Token, when set, skips password login on connect.
	Token string
}

// Options configures the core.
type Options struct {
	TickInterval     time.Duration
	MarkReadDebounce time.Duration
	Render           render.Options
	Heartbeat        time.Duration
	Reconnect        time.Duration
}

// Notice is a user-visible status line emitted by the core.
type Notice struct {
	ServerID string
	Text     string
}

// =============================================================================
// CORE
// =============================================================================

// serverState bundles everything the core holds per server. The REST client
// and router exist for the server's whole lifetime; the worker is registered
// with the supervisor, which owns reconnection.
type serverState struct {
	cfg    ServerConfig
	srv    *model.Server
	api    *rest.Client
	router *router.Router
}

// Core is the mutation owner. Lifecycle and action methods (AddServer,
// SendPost, Focus, Do and the like) are safe from any goroutine; they
// enqueue onto the owner loop. The dispatch.Env methods (Server, Store,
// MarkRead, FocusedChannelID, the Fetch* family) read and write owner-loop
// state directly and must only run on the loop itself.
type Core struct {
	opts Options

	// ctx is the lifetime context, installed by Run; outbound I/O
	// (logins, dials) inherits it.
	ctx context.Context

	tasks      chan func()
	renderer   *render.Renderer
	dispatcher *dispatch.Dispatcher
	supervisor *stream.Supervisor
	dialer     stream.Dialer

	// Owner-loop state. Only loop-delivered functions touch these.
	servers map[string]*serverState
	stores  map[string]*linestore.Store
	focused string

	// markRead debounce: channel key -> deadline.
	pendingRead map[string]readIntent

	notices chan Notice
}

type readIntent struct {
	serverID  string
	channelID string
	due       time.Time
}

// New creates a core. The returned core does nothing until Run is called.
func New(opts Options) *Core {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MarkReadDebounce <= 0 {
		opts.MarkReadDebounce = DefaultMarkReadDebounce
	}
	c := &Core{
		opts:        opts,
		ctx:         context.Background(),
		tasks:       make(chan func(), taskBacklog),
		renderer:    render.New(opts.Render),
		dispatcher:  dispatch.New(),
		dialer:      &stream.WebsocketDialer{},
		servers:     make(map[string]*serverState),
		stores:      make(map[string]*linestore.Store),
		pendingRead: make(map[string]readIntent),
		notices:     make(chan Notice, 64),
	}
	c.supervisor = stream.NewSupervisor(opts.Reconnect, c)
	return c
}

// WithDialer substitutes the streaming dialer, used by tests.
func (c *Core) WithDialer(d stream.Dialer) *Core {
	c.dialer = d
	return c
}

// Notices returns the channel of user-visible status lines. The host drains
// it; when nobody listens, notices are dropped rather than blocking the loop.
func (c *Core) Notices() <-chan Notice {
	return c.notices
}

// Renderer returns the shared renderer (dispatch.Env).
func (c *Core) Renderer() *render.Renderer {
	return c.renderer
}

// Do enqueues fn onto the owner loop. It is the only way in.
func (c *Core) Do(fn func()) {
	c.tasks <- fn
}

// deliver is the router's continuation hook. Same as Do; named separately
// so the wiring reads clearly.
func (c *Core) deliver(fn func()) {
	c.tasks <- fn
}

// =============================================================================
// OWNER LOOP
// =============================================================================

// Run drives the owner loop until the context is cancelled. It also starts
// the reconnection supervisor. Run must be called exactly once.
func (c *Core) Run(ctx context.Context) {
	c.ctx = ctx
	go c.supervisor.Run(ctx)

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.tasks:
			fn()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs once per scheduler interval: dispatch at most one queued REST
// operation per server and flush due read-cursor updates.
func (c *Core) tick(ctx context.Context) {
	for _, s := range c.servers {
		s.router.Tick(ctx)
	}
	c.flushMarkRead(ctx)
}

// notice emits a status line without ever blocking the loop.
func (c *Core) notice(serverID, text string) {
	select {
	case c.notices <- Notice{ServerID: serverID, Text: text}:
	default:
		log.Printf("notice[%s]: %s", serverID, text)
	}
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// AddServer registers a server and begins connecting: login, hydration, then
// the streaming connection.
func (c *Core) AddServer(cfg ServerConfig) {
	c.Do(func() { c.addServer(cfg) })
}

func (c *Core) addServer(cfg ServerConfig) {
	if _, ok := c.servers[cfg.ID]; ok {
		return
	}
	srv := model.NewServer(cfg.ID, cfg.Name, cfg.URL)
	api := rest.NewClient(cfg.URL)
	s := &serverState{cfg: cfg, srv: srv, api: api}
	s.router = router.New(api, c.deliver)
	c.servers[cfg.ID] = s

	if cfg.Token != "" {
		srv.SetToken(cfg.Token)
		api.SetToken(cfg.Token)
		c.startLogin(s)
		return
	}
	c.login(s)
}

// RemoveServer disconnects and forgets a server. Its channels unload whole.
func (c *Core) RemoveServer(serverID string) {
	c.Do(func() { c.removeServer(serverID) })
}

func (c *Core) removeServer(serverID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	if w := c.supervisor.Worker(serverID); w != nil {
		w.Disconnect()
	}
	c.supervisor.Remove(serverID)
	for _, ch := range s.srv.Channels() {
		delete(c.stores, ch.ID)
	}
	delete(c.servers, serverID)
	c.notice(serverID, "server removed")
}

// Server returns the model for a server id (dispatch.Env).
func (c *Core) Server(serverID string) *model.Server {
	s, ok := c.servers[serverID]
	if !ok {
		return nil
	}
	return s.srv
}

// Store returns the line store for a channel (dispatch.Env).
func (c *Core) Store(channelID string) *linestore.Store {
	return c.stores[channelID]
}

// =============================================================================
// STREAM SINK (called from I/O goroutines)
// =============================================================================

// HandleFrame implements stream.Sink: the raw frame crosses onto the owner
// loop before anything decodes it.
func (c *Core) HandleFrame(serverID string, raw []byte) {
	c.tasks <- func() {
		c.dispatcher.Dispatch(c, serverID, raw)
	}
}

// StateChanged implements stream.Sink.
func (c *Core) StateChanged(serverID string, state model.ConnState) {
	c.tasks <- func() {
		s, ok := c.servers[serverID]
		if !ok {
			return
		}
		s.srv.State = state
		c.notice(serverID, "connection "+state.String())
	}
}

// Resync implements stream.Resyncer: called by the supervisor after a
// successful reconnect.
func (c *Core) Resync(serverID string) {
	c.tasks <- func() { c.resyncServer(serverID) }
}

// =============================================================================
// FOCUS AND READ CURSOR
// =============================================================================

// Focus sets the displayed channel. An empty id means no channel is shown.
func (c *Core) Focus(serverID, channelID string) {
	c.Do(func() {
		c.focused = channelID
		if channelID != "" {
			c.MarkRead(serverID, channelID)
		}
	})
}

// FocusedChannelID implements dispatch.Env.
func (c *Core) FocusedChannelID() string {
	return c.focused
}

// MarkRead schedules a debounced read-cursor update (dispatch.Env). Repeated
// calls within the debounce window collapse into one REST call.
func (c *Core) MarkRead(serverID, channelID string) {
	key := serverID + "/" + channelID
	if _, ok := c.pendingRead[key]; ok {
		return // already scheduled; keep the earlier deadline
	}
	c.pendingRead[key] = readIntent{
		serverID:  serverID,
		channelID: channelID,
		due:       time.Now().Add(c.opts.MarkReadDebounce),
	}
}

// flushMarkRead sends the due read-cursor updates.
func (c *Core) flushMarkRead(ctx context.Context) {
	now := time.Now()
	for key, intent := range c.pendingRead {
		if now.Before(intent.due) {
			continue
		}
		delete(c.pendingRead, key)

		s, ok := c.servers[intent.serverID]
		if !ok {
			continue
		}
		ch := s.srv.ChannelByID(intent.channelID)
		if ch == nil {
			continue
		}
		ch.MarkViewed(now.UnixMilli())

		channelID := intent.channelID
		s.router.Enqueue(&router.Operation{
			Method: "POST",
			Path:   "/channels/members/me/view",
			Body:   map[string]string{"channel_id": channelID},
			Name:   "mark_viewed",
			Done:   c.reportOnError(intent.serverID, "mark read"),
		})
	}
}

// reportOnError is the generic continuation for fire-and-forget operations:
// report the failure as a notice, otherwise do nothing.
func (c *Core) reportOnError(serverID, what string) router.Continuation {
	return func(_ []byte, err error) {
		if err != nil {
			c.notice(serverID, what+" failed: "+err.Error())
		}
	}
}

// ChannelMetaChanged implements dispatch.Env. Presentation-only changes are
// surfaced as notices; the scrollback itself is untouched.
func (c *Core) ChannelMetaChanged(serverID, channelID string) {
	s, ok := c.servers[serverID]
	if !ok {
		return
	}
	if ch := s.srv.ChannelByID(channelID); ch != nil && ch.Muted {
		c.notice(serverID, "channel "+ch.DisplayName+" muted")
	}
}

// Notice implements dispatch.Env.
func (c *Core) Notice(serverID, text string) {
	c.notice(serverID, text)
}
