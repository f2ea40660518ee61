// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"reflect"
	"testing"
)

var testsParseSource = []struct {
	name    string
	test    string
	wantSrc *Source
}{
	{name: "full", test: "nick!user@hostname.com", wantSrc: &Source{
		Name: "nick", Ident: "user", Host: "hostname.com",
	}},
	{name: "special chars", test: "^[]nick!~user@test.host---name.com", wantSrc: &Source{
		Name: "^[]nick", Ident: "~user", Host: "test.host---name.com",
	}},
	{name: "short", test: "a!b@c", wantSrc: &Source{
		Name: "a", Ident: "b", Host: "c",
	}},
	{name: "user only", test: "a!b", wantSrc: &Source{
		Name: "a", Ident: "b", Host: "",
	}},
	{name: "host only", test: "a@b", wantSrc: &Source{
		Name: "a", Ident: "", Host: "b",
	}},
	{name: "server", test: "irc.example.com", wantSrc: &Source{
		Name: "irc.example.com", Ident: "", Host: "",
	}},
}

func TestParseSource(t *testing.T) {
	for _, tt := range testsParseSource {
		got := ParseSource(tt.test)

		if !reflect.DeepEqual(got, tt.wantSrc) {
			t.Errorf("%q. ParseSource() = %#v, want %#v", tt.name, got, tt.wantSrc)
		}

		if got.String() != tt.test {
			t.Errorf("%q. Source.String() = %q, want %q", tt.name, got.String(), tt.test)
		}

		if got.Len() != len(tt.test) {
			t.Errorf("%q. Source.Len() = %d, want %d", tt.name, got.Len(), len(tt.test))
		}
	}
}

func TestSourceIsServer(t *testing.T) {
	if !ParseSource("irc.example.com").IsServer() {
		t.Error("IsServer() = false for a bare server name")
	}

	if ParseSource("nick!user@host").IsServer() {
		t.Error("IsServer() = true for a full hostmask")
	}

	if !ParseSource("nick!user@host").IsHostmask() {
		t.Error("IsHostmask() = false for a full hostmask")
	}
}
