// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeConn struct {
	mu          sync.Mutex
	writes      [][]byte
	pings       int
	pongHandler func(string) error
	autoPong    bool

	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-c.frames:
		return TextMessage, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	if messageType == PingMessage {
		c.pings++
	}
	h := c.pongHandler
	auto := c.autoPong
	c.mu.Unlock()
	if auto && h != nil {
		h("")
	}
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
	fail  bool
	auto  bool // auto-answer pings on dialed conns
}

func (d *fakeDialer) Dial(context.Context, string, http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	c.autoPong = d.auto
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// recordingSink collects frames and state transitions.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	states chan model.ConnState
}

func newRecordingSink() *recordingSink {
	return &recordingSink{states: make(chan model.ConnState, 16)}
}

func (s *recordingSink) HandleFrame(_ string, raw []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, append([]byte(nil), raw...))
	s.mu.Unlock()
}

func (s *recordingSink) StateChanged(_ string, state model.ConnState) {
	s.states <- state
}

func (s *recordingSink) waitState(t *testing.T, want model.ConnState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// =============================================================================
// WORKER TESTS
// =============================================================================

func TestConnectSendsAuthFrame(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://example.test/api/v4/websocket",
		func() string { return "tok-123" }, d, sink, Options{})

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect()

	sink.waitState(t, model.StateConnected)
	if w.State() != model.StateConnected {
		t.Errorf("State = %v, want Connected", w.State())
	}

	conn := d.last()
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.writes) != 1 {
		t.Fatalf("writes = %d, want 1 auth frame", len(conn.writes))
	}
	var frame struct {
		Action string         `json:"action"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal(conn.writes[0], &frame); err != nil {
		t.Fatalf("auth frame not JSON: %v", err)
	}
	if frame.Action != "authentication_challenge" {
		t.Errorf("action = %q", frame.Action)
	}
	if frame.Data["token"] != "tok-123" {
		t.Errorf("token = %v", frame.Data["token"])
	}
}

func TestConnectDialFailureStaysDisconnected(t *testing.T) {
	d := &fakeDialer{fail: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})

	if err := w.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against a refusing dialer")
	}
	if w.State() != model.StateDisconnected {
		t.Errorf("State = %v, want Disconnected", w.State())
	}
}

func TestFramesReachSink(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect()
	sink.waitState(t, model.StateConnected)

	d.last().frames <- []byte(`{"event":"posted"}`)
	d.last().frames <- []byte(`{"event":"typing"}`)

	deadline := time.Now().Add(2 * time.Second)
	for sink.frameCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("frames delivered = %d, want 2", sink.frameCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReadErrorDisconnects(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, model.StateConnected)

	d.last().Close() // reader sees an error
	sink.waitState(t, model.StateDisconnected)
	if w.State() != model.StateDisconnected {
		t.Errorf("State = %v, want Disconnected", w.State())
	}
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	d := &fakeDialer{auto: false} // pings never answered
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink,
		Options{HeartbeatInterval: 20 * time.Millisecond})
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sink.waitState(t, model.StateConnected)

	// First tick sends the probe; the second, finding it unanswered,
	// declares the connection lost.
	sink.waitState(t, model.StateDisconnected)
	if d.last().pingCount() < 1 {
		t.Error("no ping was ever sent")
	}
}

func TestHeartbeatAnsweredStaysConnected(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink,
		Options{HeartbeatInterval: 10 * time.Millisecond})
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect()
	sink.waitState(t, model.StateConnected)

	deadline := time.Now().Add(200 * time.Millisecond)
	for d.last().pingCount() < 5 {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat stopped sending pings")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if w.State() != model.StateConnected {
		t.Errorf("State = %v, want still Connected with answered pings", w.State())
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect()
	sink.waitState(t, model.StateConnected)

	if err := w.Connect(context.Background()); err != nil {
		t.Errorf("second Connect errored: %v", err)
	}
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}
}

// =============================================================================
// SUPERVISOR TESTS
// =============================================================================

type recordingResyncer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingResyncer) Resync(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, serverID)
}

func (r *recordingResyncer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestSweepReconnectsAndResyncs(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})

	rs := &recordingResyncer{}
	sup := NewSupervisor(50*time.Millisecond, rs)
	sup.Add(w)

	sup.Sweep(context.Background())
	sink.waitState(t, model.StateConnected)
	defer w.Disconnect()

	if rs.count() != 1 {
		t.Errorf("resyncs = %d, want 1", rs.count())
	}
	if rs.ids[0] != "s1" {
		t.Errorf("resync id = %q, want s1", rs.ids[0])
	}
}

func TestSweepSkipsConnectedWorkers(t *testing.T) {
	d := &fakeDialer{auto: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})

	rs := &recordingResyncer{}
	sup := NewSupervisor(time.Hour, rs)
	sup.Add(w)
	sup.Sweep(context.Background())
	sink.waitState(t, model.StateConnected)
	defer w.Disconnect()

	sup.Sweep(context.Background())
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1: connected workers must be skipped", d.dialCount())
	}
}

func TestSweepRateLimited(t *testing.T) {
	d := &fakeDialer{fail: true}
	sink := newRecordingSink()
	w := NewWorker("s1", "wss://x", func() string { return "t" }, d, sink, Options{})

	sup := NewSupervisor(time.Hour, nil)
	sup.Add(w)

	sup.Sweep(context.Background())
	sup.Sweep(context.Background()) // within the interval: limiter blocks

	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1 within one interval", d.dialCount())
	}
}

func TestEndpointURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://chat.example.test", "wss://chat.example.test/api/v4/websocket"},
		{"http://localhost:8065/", "ws://localhost:8065/api/v4/websocket"},
	}
	for _, c := range cases {
		if got := EndpointURL(c.in); got != c.want {
			t.Errorf("EndpointURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
