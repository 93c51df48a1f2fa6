// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the relay-tui application.
//
// This package contains common helper functions used throughout the
// application for string manipulation and type conversion.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - WrapWidth: display-width line wrapping for the renderer
//
// Type Conversion:
//   - IntToString: numeric to string conversion
//
// # Usage
//
//	// Truncate long strings safely for display
//	display := util.TruncateRunes(longText, 50)
//
//	// Wrap a message body for a fixed-width scrollback
//	lines := util.WrapWidth(post.Message, 80)
package util
