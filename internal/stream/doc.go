// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream owns the persistent streaming connection to each server.
//
// One Worker exists per server and drives the connection state machine
// (Disconnected -> Connecting -> Connected): dialing the websocket
// endpoint, sending the authentication frame, running the ping/pong
// heartbeat, and declaring the connection lost when a probe goes
// unanswered for a full heartbeat interval. The Supervisor runs the
// reconnection loop over all workers on a fixed interval and triggers a
// resync after each successful reconnect.
//
// Frames are never interpreted here: the raw bytes go to the Sink, whose
// implementation serializes all model mutation onto one owner goroutine.
package stream
