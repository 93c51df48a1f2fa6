// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"

	"github.com/jeranaias/relay-tui/internal/linestore"
	"github.com/jeranaias/relay-tui/internal/model"
)

// testRenderer returns a color-free renderer so assertions see plain text.
func testRenderer() *Renderer {
	return New(Options{Profile: termenv.Ascii})
}

func testServer() *model.Server {
	srv := model.NewServer("s1", "test", "https://example.test")
	u := srv.UserByID("u-alice")
	u.Username = "alice"
	return srv
}

func TestAppendRendersPost(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", ChannelID: "c1", UserID: "u-alice", Message: "hi", CreateAt: 100}
	ch.WritePost(p)
	if !r.Append(store, srv, ch, p) {
		t.Fatal("Append returned false for a fresh post")
	}

	span, ok := store.FindLines(PostTag("p1"))
	if !ok || span.Len() != 1 {
		t.Fatalf("span = %+v ok=%v, want one line", span, ok)
	}
	if got := store.Text(span.Start); got != "alice: hi" {
		t.Errorf("line = %q, want %q", got, "alice: hi")
	}
	if ch.LastPostID != "p1" {
		t.Error("Append did not advance the last-post cursor")
	}
}

func TestAppendIdempotent(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", ChannelID: "c1", UserID: "u-alice", Message: "hi", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)
	before := store.Lines()

	if r.Append(store, srv, ch, p) {
		t.Error("second Append returned true")
	}
	after := store.Lines()
	if len(before) != len(after) {
		t.Fatalf("line count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("line %d changed: %q -> %q", i, before[i], after[i])
		}
	}
}

// TestPostLifecycle walks a post through create, edit, react, delete and
// checks the rendered block at each step.
func TestPostLifecycle(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", ChannelID: "c1", UserID: "u-alice", Message: "hi", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	span, ok := store.FindLines(PostTag("p1"))
	if !ok || span.Len() != 1 {
		t.Fatalf("after create: span = %+v ok=%v", span, ok)
	}
	if got := store.Text(span.Start); !strings.Contains(got, "hi") {
		t.Errorf("after create: line = %q, want it to contain %q", got, "hi")
	}

	// Edit: content updates, height stays, (edited) suffix appears.
	p.Message = "hi there"
	p.Edited = true
	r.Edit(store, srv, ch, p)

	span2, ok := store.FindLines(PostTag("p1"))
	if !ok || span2 != span {
		t.Fatalf("after edit: span moved %+v -> %+v", span, span2)
	}
	got := store.Text(span.Start)
	if !strings.Contains(got, "hi there") {
		t.Errorf("after edit: line = %q, want new content", got)
	}
	if !strings.Contains(got, "(edited)") {
		t.Errorf("after edit: line = %q, want (edited) suffix", got)
	}

	// Reaction: suffix appears, body and height unchanged.
	p.AddReaction("u-bob", "+1")
	r.UpdateReactions(store, srv, ch, p)

	span3, _ := store.FindLines(PostTag("p1"))
	if span3 != span {
		t.Fatal("reaction changed the span")
	}
	got = store.Text(span.Start)
	if !strings.Contains(got, "[:+1: 1]") {
		t.Errorf("after reaction: line = %q, want reaction suffix", got)
	}
	if !strings.Contains(got, "hi there") {
		t.Errorf("after reaction: line = %q, message body lost", got)
	}

	// Delete: one tombstone line, tags gone.
	r.Delete(store, "p1")
	if _, ok := store.FindLines(PostTag("p1")); ok {
		t.Error("after delete: tag still present")
	}
	if got := store.Text(span.Start); got != DefaultTombstone {
		t.Errorf("after delete: line = %q, want tombstone", got)
	}
}

func TestEditFixedHeightShorter(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", UserID: "u-alice", Message: "one\ntwo\nthree", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	span, _ := store.FindLines(PostTag("p1"))
	if span.Len() != 3 {
		t.Fatalf("initial height = %d, want 3", span.Len())
	}

	p.Message = "short"
	p.Edited = true
	r.Edit(store, srv, ch, p)

	span2, _ := store.FindLines(PostTag("p1"))
	if span2.Len() != 3 {
		t.Fatalf("height after shrink edit = %d, want 3", span2.Len())
	}
	if store.Text(span.Start+1) != "" || store.Text(span.Start+2) != "" {
		t.Error("shrink edit should blank the trailing lines")
	}
	first := store.Text(span.Start)
	if !strings.HasSuffix(first, DefaultTruncation) {
		t.Errorf("last non-blank line = %q, want truncation marker", first)
	}
	if !strings.Contains(first, "short") {
		t.Errorf("line = %q, want the new content", first)
	}
}

func TestEditShrinkMarksLastContentLine(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", UserID: "u-alice", Message: "a\nb\nc\nd", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	p.Message = "x\ny"
	p.Edited = true
	r.Edit(store, srv, ch, p)

	span, _ := store.FindLines(PostTag("p1"))
	if span.Len() != 4 {
		t.Fatalf("height = %d, want 4", span.Len())
	}
	// The marker sits on the last line that still has content, not on the
	// blank padding below it.
	second := store.Text(span.Start + 1)
	if !strings.HasSuffix(second, DefaultTruncation) {
		t.Errorf("line 2 = %q, want truncation marker", second)
	}
	if store.Text(span.Start+2) != "" || store.Text(span.Start+3) != "" {
		t.Error("padding lines should stay blank")
	}
}

func TestEditFixedHeightLonger(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", UserID: "u-alice", Message: "one\ntwo", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	p.Message = "one\ntwo\nthree\nfour"
	p.Edited = true
	r.Edit(store, srv, ch, p)

	span, _ := store.FindLines(PostTag("p1"))
	if span.Len() != 2 {
		t.Fatalf("height after grow edit = %d, want 2", span.Len())
	}
	last := store.Text(span.End - 1)
	if !strings.HasSuffix(last, DefaultTruncation) {
		t.Errorf("last line = %q, want truncation suffix", last)
	}
	if !strings.Contains(last, "four") {
		t.Errorf("last line = %q, overflow content should collapse into it", last)
	}
}

func TestEditUnrenderedPostNoop(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "ghost", UserID: "u-alice", Message: "boo"}
	r.Edit(store, srv, ch, p)
	r.Delete(store, "ghost")
	if store.Len() != 0 {
		t.Error("editing an unrendered post touched the store")
	}
}

func TestDeleteMultiLineTombstone(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", UserID: "u-alice", Message: "one\ntwo\nthree", CreateAt: 100}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)
	span, _ := store.FindLines(PostTag("p1"))

	r.Delete(store, "p1")

	if store.Text(span.Start) != DefaultTombstone {
		t.Errorf("first line = %q, want tombstone", store.Text(span.Start))
	}
	for i := span.Start + 1; i < span.End; i++ {
		if store.Text(i) != "" {
			t.Errorf("line %d = %q, want blank", i, store.Text(i))
		}
	}
}

func TestReplyRerendersThreadRoot(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	bob := srv.UserByID("u-bob")
	bob.Username = "bob"
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	root := &model.Post{ID: "p1", UserID: "u-alice", Message: "question", CreateAt: 100}
	ch.WritePost(root)
	r.Append(store, srv, ch, root)

	reply := &model.Post{ID: "p2", RootID: "p1", UserID: "u-bob", Message: "answer", CreateAt: 200}
	ch.WritePost(reply)
	r.Append(store, srv, ch, reply)

	rootSpan, _ := store.FindLines(PostTag("p1"))
	if got := store.Text(rootSpan.Start); !strings.HasPrefix(got, "▶ ") {
		t.Errorf("root line = %q, want thread-root prefix", got)
	}
	replySpan, _ := store.FindLines(PostTag("p2"))
	got := store.Text(replySpan.Start)
	if !strings.Contains(got, "↳ alice") {
		t.Errorf("reply line = %q, want reply prefix naming the root author", got)
	}
	if !strings.Contains(got, "bob: answer") {
		t.Errorf("reply line = %q, want the reply body", got)
	}
}

func TestFileLines(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{
		ID: "p1", UserID: "u-alice", Message: "see attachment", CreateAt: 100,
		Files: []model.File{{ID: "f1", Name: "report", Extension: "pdf"}},
	}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	span, _ := store.FindLines(PostTag("p1"))
	if span.Len() != 2 {
		t.Fatalf("height = %d, want message + file line", span.Len())
	}
	if got := store.Text(span.End - 1); got != "[file] report.pdf" {
		t.Errorf("file line = %q", got)
	}
	fileSpan, ok := store.FindLines(FileTag("f1"))
	if !ok || fileSpan.Len() != 1 {
		t.Errorf("file tag span = %+v ok=%v", fileSpan, ok)
	}
}

func TestBotMarker(t *testing.T) {
	r := testRenderer()
	srv := testServer()
	ch := model.NewChannel("c1", model.ChannelPublic)
	store := linestore.New()

	p := &model.Post{ID: "p1", UserID: "u-alice", Message: "beep", CreateAt: 100, FromBot: true}
	ch.WritePost(p)
	r.Append(store, srv, ch, p)

	span, _ := store.FindLines(PostTag("p1"))
	if got := store.Text(span.Start); !strings.Contains(got, "[bot]") {
		t.Errorf("line = %q, want bot marker", got)
	}
}
