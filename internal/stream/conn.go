// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream owns the persistent streaming connection to each server.
package stream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
)

// Conn is the slice of the websocket connection the worker uses. Tests
// substitute an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a streaming connection. Tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Message type constants re-exported so callers need not import the
// websocket package directly.
const (
	TextMessage = websocket.TextMessage
	PingMessage = websocket.PingMessage
)

// =============================================================================
// WEBSOCKET DIALER
// =============================================================================

// WebsocketDialer is the production Dialer.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the dial; zero means the library default.
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// EndpointURL converts a REST base URL into the streaming endpoint URL
// (https -> wss, http -> ws).
func EndpointURL(baseURL string) string {
	url := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/v4/websocket"
}
