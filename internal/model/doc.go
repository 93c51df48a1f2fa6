// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for servers, channels and posts.
//
// This package defines the core domain types kept in sync with the remote
// messaging server. It holds plain data plus invariant bookkeeping only;
// networking lives in rest/stream and presentation in render.
//
// # Key Types
//
//   - Server: one remote server with its teams, direct channels and users
//   - Team: groups public/private channels
//   - Channel: a conversation scope (public, private, group or direct)
//   - Post: one message, optionally a thread reply, with reactions and files
//   - User: lazily-created member registry entry with presence status
//
// # Invariants
//
//   - Channel.LastPostID never moves backward (AdvanceLastPost)
//   - adding an existing (user, emoji) reaction pair is a no-op
//   - users are never deleted, only flagged, because history references them
//   - post order is derived from CreateAt, never from container order
package model
