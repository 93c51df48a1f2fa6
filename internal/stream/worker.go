// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream owns the persistent streaming connection to each server.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/wire"
)

// Default intervals. The heartbeat interval doubles as the liveness
// timeout: a probe unanswered by the next tick is a lost connection.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultReconnectInterval = 5 * time.Second

	writeControlWait = 5 * time.Second
)

// Sink receives the worker's output. HandleFrame is called from the reader
// goroutine and StateChanged from worker goroutines; implementations must
// hand the work to the single mutation owner (the client loop does this by
// enqueueing onto itself).
type Sink interface {
	// HandleFrame delivers one raw streaming frame.
	HandleFrame(serverID string, raw []byte)
	// StateChanged reports a connection state transition.
	StateChanged(serverID string, state model.ConnState)
}

// Options configures a worker.
type Options struct {
	HeartbeatInterval time.Duration
}

// =============================================================================
// WORKER
// =============================================================================

// link is the per-connection state: one link exists per successful dial,
// and dies whole when the connection fails.
type link struct {
	conn Conn
	done chan struct{}
	once sync.Once
}

// Worker drives the Disconnected -> Connecting -> Connected state machine
// for one server's streaming connection: dial, authentication frame,
// heartbeat, failure detection. Reconnection policy lives in Supervisor.
type Worker struct {
	serverID string
	url      string
	token    func() string // live token accessor; replaced on re-login
	dialer   Dialer
	sink     Sink
	opts     Options

	mu           sync.Mutex
	state        model.ConnState
	current      *link
	awaitingPong bool
}

// NewWorker creates a disconnected worker. token is called at dial time so
// a token replaced by a later login is picked up on reconnect.
func NewWorker(serverID, url string, token func() string, dialer Dialer, sink Sink, opts Options) *Worker {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Worker{
		serverID: serverID,
		url:      url,
		token:    token,
		dialer:   dialer,
		sink:     sink,
		opts:     opts,
		state:    model.StateDisconnected,
	}
}

// State returns the current connection state.
func (w *Worker) State() model.ConnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// setState transitions the state machine and notifies the sink.
func (w *Worker) setState(s model.ConnState) {
	w.mu.Lock()
	if w.state == s {
		w.mu.Unlock()
		return
	}
	w.state = s
	w.mu.Unlock()
	w.sink.StateChanged(w.serverID, s)
}

// Connect dials the streaming endpoint, sends the authentication frame and
// starts the reader and heartbeat goroutines. On any failure the worker is
// left Disconnected for the reconnection loop to retry.
func (w *Worker) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state != model.StateDisconnected {
		w.mu.Unlock()
		return nil
	}
	w.state = model.StateConnecting
	w.mu.Unlock()
	w.sink.StateChanged(w.serverID, model.StateConnecting)

	conn, err := w.dialer.Dial(ctx, w.url, nil)
	if err != nil {
		w.setState(model.StateDisconnected)
		return err
	}

	auth, err := json.Marshal(wire.NewAuthChallenge(w.token()))
	if err == nil {
		err = conn.WriteMessage(TextMessage, auth)
	}
	if err != nil {
		conn.Close()
		w.setState(model.StateDisconnected)
		return err
	}

	l := &link{conn: conn, done: make(chan struct{})}
	conn.SetPongHandler(func(string) error {
		w.mu.Lock()
		w.awaitingPong = false
		w.mu.Unlock()
		return nil
	})

	w.mu.Lock()
	w.current = l
	w.awaitingPong = false
	w.state = model.StateConnected
	w.mu.Unlock()
	w.sink.StateChanged(w.serverID, model.StateConnected)

	go w.readLoop(l)
	go w.heartbeatLoop(l)
	return nil
}

// Disconnect tears down the current connection, if any.
func (w *Worker) Disconnect() {
	w.mu.Lock()
	l := w.current
	w.mu.Unlock()
	if l != nil {
		w.fail(l, "disconnect requested")
	} else {
		w.setState(model.StateDisconnected)
	}
}

// fail tears down one link exactly once and transitions to Disconnected.
// Both the reader (on read error) and the heartbeat (on a missed pong)
// funnel through here.
func (w *Worker) fail(l *link, reason string) {
	l.once.Do(func() {
		log.Printf("stream[%s]: connection lost: %s", w.serverID, reason)
		close(l.done)
		l.conn.Close()

		w.mu.Lock()
		if w.current == l {
			w.current = nil
		}
		w.mu.Unlock()
		w.setState(model.StateDisconnected)
	})
}

// readLoop pulls frames until the connection dies. A read error or orderly
// close is an immediate Disconnected transition.
func (w *Worker) readLoop(l *link) {
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			w.fail(l, "read: "+err.Error())
			return
		}
		w.sink.HandleFrame(w.serverID, raw)
	}
}

// heartbeatLoop sends a liveness probe every interval. If the previous
// probe was not acknowledged before the next tick, the connection is
// declared lost without waiting for an OS-level error.
func (w *Worker) heartbeatLoop(l *link) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			missed := w.awaitingPong
			w.awaitingPong = true
			w.mu.Unlock()

			if missed {
				w.fail(l, "heartbeat timeout")
				return
			}
			if err := l.conn.WriteControl(PingMessage, nil, time.Now().Add(writeControlWait)); err != nil {
				w.fail(l, "ping: "+err.Error())
				return
			}
		}
	}
}
