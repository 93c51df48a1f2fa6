// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render maps channel posts onto a line store.
//
// The renderer owns the presentation contract of the scrollback: a post
// becomes one or more tagged lines on append, edits rewrite the existing
// range in place without changing its height, deletes leave a tombstone.
package render

import (
	"hash/fnv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/jeranaias/relay-tui/internal/linestore"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// TAGS AND MARKERS
// =============================================================================

// PostTag returns the line tag for a post id.
func PostTag(postID string) string {
	return "post_id_" + postID
}

// FileTag returns the line tag for a file id.
func FileTag(fileID string) string {
	return "file_id_" + fileID
}

// Default markers. Overridable through Options.
const (
	DefaultTombstone  = "(message deleted)"
	DefaultTruncation = " [...]"
	DefaultEdited     = " (edited)"
	DefaultWidth      = 100

	threadRootPrefix  = "▶ "
	threadReplyPrefix = "↳ "
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Renderer.
type Options struct {
	// Width is the wrap width in display columns (0 disables wrapping).
	Width int
	// Tombstone is the marker left on a deleted post's first line.
	Tombstone string
	// Truncation is the suffix marking collapsed overflow on edits.
	Truncation string
	// Edited is the suffix appended to edited posts.
	Edited string
	// Profile selects the color capability; termenv.Ascii disables color.
	Profile termenv.Profile
}

// DefaultOptions returns the renderer defaults with the terminal's profile.
func DefaultOptions() Options {
	return Options{
		Width:      DefaultWidth,
		Tombstone:  DefaultTombstone,
		Truncation: DefaultTruncation,
		Edited:     DefaultEdited,
		Profile:    termenv.ColorProfile(),
	}
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer turns posts into tagged lines. It is stateless across channels;
// the per-channel line store is passed into every call.
type Renderer struct {
	opts Options
}

// New creates a renderer with the given options, filling zero values with
// defaults.
func New(opts Options) *Renderer {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Tombstone == "" {
		opts.Tombstone = DefaultTombstone
	}
	if opts.Truncation == "" {
		opts.Truncation = DefaultTruncation
	}
	if opts.Edited == "" {
		opts.Edited = DefaultEdited
	}
	return &Renderer{opts: opts}
}

// SetOptions swaps the render options (config hot-reload path). Existing
// lines are not re-rendered; only future renders pick up the change.
func (r *Renderer) SetOptions(opts Options) {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Tombstone == "" {
		opts.Tombstone = DefaultTombstone
	}
	if opts.Truncation == "" {
		opts.Truncation = DefaultTruncation
	}
	if opts.Edited == "" {
		opts.Edited = DefaultEdited
	}
	r.opts = opts
}

// =============================================================================
// APPEND
// =============================================================================

// Append renders a post at the end of the store and advances the channel's
// last-post cursor. A post whose tag is already present is a no-op: this is
// what makes resync and hydration idempotent against live pushes.
//
// If the post is a reply, the thread root's existing lines are re-rendered
// in place so they carry the thread-root prefix.
func (r *Renderer) Append(store *linestore.Store, srv *model.Server, ch *model.Channel, p *model.Post) bool {
	tag := PostTag(p.ID)
	if span, ok := store.FindLines(tag); ok && !span.Empty() {
		return false
	}

	body, files := r.renderPost(srv, ch, p)
	for _, text := range body {
		store.Append(text, tag)
	}
	for i, text := range files {
		store.Append(text, tag, FileTag(p.Files[i].ID))
	}

	ch.AdvanceLastPost(p)

	if p.RootID != "" {
		if root, ok := ch.Posts[p.RootID]; ok {
			r.rerenderInPlace(store, srv, ch, root)
		}
	}
	return true
}

// =============================================================================
// EDIT / REACTIONS / DELETE
// =============================================================================

// Edit re-renders a post into its existing line range. The range never grows
// or shrinks: short content is padded with blank lines below a truncation
// marker, overflow collapses into the last line with the same marker. An
// unrendered post is a silent no-op.
func (r *Renderer) Edit(store *linestore.Store, srv *model.Server, ch *model.Channel, p *model.Post) {
	r.rerenderInPlace(store, srv, ch, p)
}

// UpdateReactions refreshes the reaction suffix of a rendered post under the
// same fixed-height discipline as Edit.
func (r *Renderer) UpdateReactions(store *linestore.Store, srv *model.Server, ch *model.Channel, p *model.Post) {
	r.rerenderInPlace(store, srv, ch, p)
}

// Delete blanks a post's rendered range, leaves a tombstone on its first
// line, and strips all tags so the id can be seen again as a fresh post.
// An unrendered post is a silent no-op.
func (r *Renderer) Delete(store *linestore.Store, postID string) {
	span, ok := store.FindLines(PostTag(postID))
	if !ok || span.Empty() {
		return
	}
	store.Replace(span.Start, r.opts.Tombstone)
	for i := span.Start + 1; i < span.End; i++ {
		store.Blank(i)
	}
	store.StripTags(span)
}

// rerenderInPlace rewrites a post's current range at its existing height.
func (r *Renderer) rerenderInPlace(store *linestore.Store, srv *model.Server, ch *model.Channel, p *model.Post) {
	span, ok := store.FindLines(PostTag(p.ID))
	if !ok || span.Empty() {
		return
	}
	body, files := r.renderPost(srv, ch, p)
	lines := append(body, files...)
	lines = fitHeight(lines, span.Len(), r.opts.Truncation)
	for i, text := range lines {
		store.Replace(span.Start+i, text)
	}
}

// fitHeight forces lines to exactly n entries. Short content gets the
// truncation suffix on its last non-blank line and blank padding below it;
// overflow collapses into the last line with the same suffix.
func fitHeight(lines []string, n int, truncation string) []string {
	if len(lines) == n {
		return lines
	}
	if len(lines) < n {
		for i := len(lines) - 1; i >= 0; i-- {
			if lines[i] != "" {
				lines[i] += truncation
				break
			}
		}
		for len(lines) < n {
			lines = append(lines, "")
		}
		return lines
	}
	out := make([]string, n)
	copy(out, lines[:n-1])
	out[n-1] = strings.Join(lines[n-1:], " ") + truncation
	return out
}

// =============================================================================
// POST RENDERING
// =============================================================================

// renderPost produces the message lines and the trailing file lines
// (one per file, in file order) for a post.
func (r *Renderer) renderPost(srv *model.Server, ch *model.Channel, p *model.Post) (body, files []string) {
	author := srv.UserByID(p.UserID)
	name := author.DisplayName()
	if p.FromBot || author.IsBot {
		name += " [bot]"
	}

	prefix := r.colorize(name, name) + ": "
	if p.ThreadRoot {
		prefix = r.colorize(threadRootPrefix, name) + prefix
	}
	if p.RootID != "" {
		// Reply prefix takes the root author's color, so a thread reads as
		// one visual unit even with interleaved posts.
		rootName := name
		if root, ok := ch.Posts[p.RootID]; ok {
			rootName = srv.UserByID(root.UserID).DisplayName()
		}
		prefix = r.colorize(threadReplyPrefix+rootName+" ", rootName) + prefix
	}

	message := p.Message
	if p.Edited {
		message += r.opts.Edited
	}
	if suffix := r.reactionSuffix(p); suffix != "" {
		message += suffix
	}

	body = util.WrapWidth(message, r.opts.Width)
	body[0] = prefix + body[0]

	for _, a := range p.Attachments {
		text := a.Title
		if text == "" {
			text = a.Fallback
		}
		if a.Text != "" {
			if text != "" {
				text += " - "
			}
			text += a.Text
		}
		body = append(body, util.WrapWidth(text, r.opts.Width)...)
	}

	for _, f := range p.Files {
		name := f.Name
		if f.Extension != "" && !strings.HasSuffix(name, "."+f.Extension) {
			name += "." + f.Extension
		}
		files = append(files, "[file] "+name)
	}
	return body, files
}

// reactionSuffix renders the aggregated reaction tally, e.g. " [:+1: 2]".
func (r *Renderer) reactionSuffix(p *model.Post) string {
	counts := p.ReactionCounts()
	if len(counts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range counts {
		b.WriteString(" [:")
		b.WriteString(c.EmojiName)
		b.WriteString(": ")
		b.WriteString(util.IntToString(c.Count))
		b.WriteString("]")
	}
	return b.String()
}

// =============================================================================
// COLORS
// =============================================================================

// palette holds the ANSI colors author names are hashed onto. Red (1) is
// left out; it reads as an error in most terminal themes.
var palette = []string{"2", "3", "4", "5", "6", "10", "11", "12", "13", "14"}

// colorize styles text with the color derived from key (an author name).
// With the Ascii profile this returns the text unchanged.
func (r *Renderer) colorize(text, key string) string {
	if r.opts.Profile == termenv.Ascii {
		return text
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	c := palette[h.Sum32()%uint32(len(palette))]
	return termenv.String(text).Foreground(r.opts.Profile.Color(c)).String()
}

// StatusPrefix renders the presence glyph for a direct channel's peer.
func (r *Renderer) StatusPrefix(u *model.User) string {
	return r.colorize(u.Status.Glyph(), u.DisplayName())
}
