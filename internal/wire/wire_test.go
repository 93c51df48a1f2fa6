// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEventWithNestedPost(t *testing.T) {
	raw := []byte(`{
		"event": "posted",
		"data": {"post": "{\"id\":\"p1\",\"channel_id\":\"c1\",\"message\":\"hi\",\"create_at\":100}"},
		"broadcast": {"channel_id": "c1"},
		"seq": 7
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.Event != "posted" || ev.Seq != 7 || ev.Broadcast.ChannelID != "c1" {
		t.Errorf("envelope = %+v", ev)
	}

	p, err := ev.Post()
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if p.ID != "p1" || p.Message != "hi" || p.CreateAt != 100 {
		t.Errorf("post = %+v", p)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{truncated`)); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestDecodeControlReply(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"status":"OK","seq_reply":1}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.Event != "" {
		t.Errorf("Event = %q, want empty for a control reply", ev.Event)
	}
}

func TestPostMissingID(t *testing.T) {
	raw := []byte(`{"event":"posted","data":{"post":"{\"message\":\"no id\"}"}}`)
	ev, _ := DecodeEvent(raw)
	if _, err := ev.Post(); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent for a post without id", err)
	}
}

func TestReactionAccessor(t *testing.T) {
	raw := []byte(`{"event":"reaction_added","data":{"reaction":"{\"post_id\":\"p1\",\"user_id\":\"u1\",\"emoji_name\":\"+1\"}"}}`)
	ev, _ := DecodeEvent(raw)
	r, err := ev.Reaction()
	if err != nil {
		t.Fatalf("Reaction: %v", err)
	}
	if r.PostID != "p1" || r.EmojiName != "+1" {
		t.Errorf("reaction = %+v", r)
	}
}

func TestStringAndBoolAccessors(t *testing.T) {
	raw := []byte(`{"event":"x","data":{"channel_id":"c1","flag":true,"num":3}}`)
	ev, _ := DecodeEvent(raw)
	if got := ev.String("channel_id"); got != "c1" {
		t.Errorf("String = %q", got)
	}
	if got := ev.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := ev.String("num"); got != "" {
		t.Errorf("String over a number = %q, want empty", got)
	}
	if !ev.Bool("flag") {
		t.Error("Bool(flag) = false")
	}
	if ev.Bool("missing") {
		t.Error("Bool(missing) = true")
	}
}

func TestNestedMissingKey(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event":"x","data":{}}`))
	var out map[string]any
	if err := ev.Nested("post", &out); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestAuthChallengeShape(t *testing.T) {
	b, err := json.Marshal(NewAuthChallenge("tok"))
	if err != nil {
		t.Fatal(err)
	}
	var frame struct {
		Seq    int64          `json:"seq"`
		Action string         `json:"action"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Action != "authentication_challenge" || frame.Seq != 1 || frame.Data["token"] != "tok" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestPostFromBot(t *testing.T) {
	p := &Post{}
	if p.FromBot() {
		t.Error("nil props should not read as bot")
	}
	p.Props = map[string]any{"from_bot": "true"}
	if !p.FromBot() {
		t.Error("from_bot=true not detected")
	}
	p.Props["from_bot"] = true // wrong type on the wire
	if p.FromBot() {
		t.Error("non-string from_bot should not read as bot")
	}
}

func TestChannelMemberMuted(t *testing.T) {
	m := &ChannelMember{}
	if m.Muted() {
		t.Error("member without notify props read as muted")
	}
	m.NotifyProps = map[string]string{"mark_unread": "mention"}
	if !m.Muted() {
		t.Error("mention-only member not read as muted")
	}
	m.NotifyProps["mark_unread"] = "all"
	if m.Muted() {
		t.Error("mark_unread=all read as muted")
	}
}
