// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package clink provides a small, concurrency-focused IRC client library
// for writing bots and interactive clients. clink maintains a single
// session per client: a reader, a writer and a dispatcher goroutine share
// a bounded outbound queue and a set of independently lockable state
// cells, and every incoming event is fanned out concurrently to the
// handlers registered for its kind.
//
// The library ships with a default handler set covering mandatory
// protocol behaviour (PING/PONG, CTCP PING/VERSION/TIME, nick
// negotiation and re-mangling on collision, channel list upkeep), each
// of which can be replaced individually.
package clink
