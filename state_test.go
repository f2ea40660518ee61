// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"reflect"
	"testing"
)

func TestStatusMonotonic(t *testing.T) {
	s := newState(Config{Nick: "test"})

	if got := s.current(); got != Disconnected {
		t.Fatalf("initial status = %s, want disconnected", got)
	}

	if !s.advance(Disconnected, Connected) {
		t.Fatal("advance(Disconnected, Connected) failed on fresh state")
	}

	// A second identical transition must fail; the cell only moves
	// forward.
	if s.advance(Disconnected, Connected) {
		t.Fatal("advance(Disconnected, Connected) succeeded twice")
	}

	if !s.advance(Connected, Disconnecting) {
		t.Fatal("advance(Connected, Disconnecting) failed")
	}

	if !s.advance(Disconnecting, Disconnected) {
		t.Fatal("advance(Disconnecting, Disconnected) failed")
	}

	if s.advance(Connected, Disconnecting) {
		t.Fatal("status moved backwards after reaching terminal state")
	}

	if got := s.current(); got != Disconnected {
		t.Fatalf("terminal status = %s, want disconnected", got)
	}
}

func TestSetNickEmitsOnce(t *testing.T) {
	c := newTestClient(Config{Nick: "old"})

	if err := c.SetNick("shiny"); err != nil {
		t.Fatalf("SetNick() = %s, wanted nil", err)
	}

	if got := c.GetNick(); got != "shiny" {
		t.Errorf("GetNick() = %q, want %q", got, "shiny")
	}

	e := popSent(t, c)
	if e.Command != NICK || e.Params[0] != "shiny" {
		t.Errorf("SetNick emitted %q, want NICK shiny", e.String())
	}

	select {
	case extra := <-c.tx:
		t.Fatalf("SetNick emitted a second event: %q", extra.String())
	default:
	}
}

func TestIgnoreList(t *testing.T) {
	c := newTestClient(Config{Nick: "me"})

	fromUser := ParseEvent(":annoy!a@b PRIVMSG me :hi")
	fromChannelA := ParseEvent(":annoy!a@b PRIVMSG #a :hi")
	fromChannelB := ParseEvent(":annoy!a@b PRIVMSG #b :hi")
	fromServer := ParseEvent(":srv 001 me :Welcome")

	if c.ignoredEvent(fromUser) {
		t.Fatal("unlisted user ignored")
	}

	c.Ignore("Annoy")
	// Adding the same entry twice has the same effect as once.
	c.Ignore("annoy")

	if !c.ignoredEvent(fromUser) || !c.ignoredEvent(fromChannelA) {
		t.Fatal("globally ignored user not filtered")
	}

	if c.ignoredEvent(fromServer) {
		t.Fatal("server events must never be filtered")
	}

	c.Unignore("ANNOY")
	if c.ignoredEvent(fromUser) {
		t.Fatal("user still ignored after Unignore")
	}

	c.IgnoreIn("annoy", "#a")
	if !c.ignoredEvent(fromChannelA) {
		t.Fatal("channel-scoped ignore not filtered in that channel")
	}
	if c.ignoredEvent(fromChannelB) || c.ignoredEvent(fromUser) {
		t.Fatal("channel-scoped ignore leaked outside its channel")
	}
}

func TestChannelListEdits(t *testing.T) {
	c := newTestClient(Config{Nick: "me", Channels: []string{"#a", "#b"}})

	c.state.prependChannel("#new")
	if got := c.ChannelList(); !reflect.DeepEqual(got, []string{"#new", "#a", "#b"}) {
		t.Fatalf("ChannelList() = %v, want [#new #a #b]", got)
	}

	// Case-insensitive dedup.
	c.state.prependChannel("#NEW")
	if got := c.ChannelList(); len(got) != 3 {
		t.Fatalf("ChannelList() = %v, want 3 entries", got)
	}

	c.state.removeChannel("#A")
	if got := c.ChannelList(); !reflect.DeepEqual(got, []string{"#new", "#b"}) {
		t.Fatalf("ChannelList() after remove = %v, want [#new #b]", got)
	}

	// The returned slice is a copy; mutating it does not touch the cell.
	got := c.ChannelList()
	got[0] = "#mutated"
	if c.ChannelList()[0] != "#new" {
		t.Fatal("ChannelList() returned the backing slice")
	}
}

func TestUserStateCell(t *testing.T) {
	type botState struct{ Seen int }

	c := newTestClient(Config{Nick: "me"})

	if c.State() != nil {
		t.Fatal("fresh user state not nil")
	}

	c.SetState(&botState{Seen: 1})

	c.ModifyState(func(v interface{}) interface{} {
		s := v.(*botState)
		return &botState{Seen: s.Seen + 1}
	})

	if got := c.State().(*botState).Seen; got != 2 {
		t.Errorf("user state Seen = %d, want 2", got)
	}
}

func TestSnapshot(t *testing.T) {
	c := newTestClient(Config{Nick: "me", Channels: []string{"#a"}, Version: "v9"})
	c.SetState("opaque")

	snap := c.Snapshot()

	if snap.Status != Disconnected || snap.Nick != "me" || snap.Version != "v9" {
		t.Fatalf("Snapshot() = %#v, unexpected cell values", snap)
	}

	if !reflect.DeepEqual(snap.Channels, []string{"#a"}) {
		t.Fatalf("Snapshot().Channels = %v, want [#a]", snap.Channels)
	}

	if snap.User.(string) != "opaque" {
		t.Fatalf("Snapshot().User = %#v, want %q", snap.User, "opaque")
	}
}

func TestVersionCell(t *testing.T) {
	c := newTestClient(Config{})

	if c.Version() != defaultVersion {
		t.Fatalf("Version() = %q, want default", c.Version())
	}

	c.SetVersion("custom 1.2")
	if c.Version() != "custom 1.2" {
		t.Fatalf("Version() = %q, want %q", c.Version(), "custom 1.2")
	}
}
