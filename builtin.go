// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
)

// registerBuiltins sets up the default handler set. Each handler is
// registered under a stable name, so it can be removed individually
// with Caller.RemoveBuiltin() and replaced with a user handler.
func (c *Client) registerBuiltins() {
	c.debug.Print("registering built-in handlers")

	c.Handlers.register(true, PING, "ping", HandlerFunc(handlePing))

	// Welcome: the server has accepted us, possibly under a different
	// nick than requested.
	c.Handlers.register(true, RPL_WELCOME, "welcome-nick", HandlerFunc(handleWelcomeNick))
	c.Handlers.register(true, RPL_WELCOME, "join-on-welcome", HandlerFunc(handleJoinOnWelcome))

	// Nickname negotiation failures.
	c.Handlers.register(true, ERR_ERRONEUSNICKNAME, "nick-mangler", HandlerFunc(handleNickMangle))
	c.Handlers.register(true, ERR_NICKNAMEINUSE, "nick-mangler", HandlerFunc(handleNickMangle))
	c.Handlers.register(true, ERR_NICKCOLLISION, "nick-mangler", HandlerFunc(handleNickMangle))

	// Channel list upkeep.
	c.Handlers.register(true, RPL_TOPIC, "topic-join", HandlerFunc(handleTopicJoin))
	c.Handlers.register(true, KICK, "kick-track", HandlerFunc(handleKickTrack))

	// IRCd details.
	c.Handlers.register(true, RPL_YOURHOST, "server-info", HandlerFunc(handleYourHost))
	c.Handlers.register(true, RPL_CREATED, "server-info", HandlerFunc(handleCreated))
}

// handlePing responds to ping requests from the server, echoing the
// last ping token back.
func handlePing(c *Client, e Event) {
	c.Cmd.Pong(e.Last())
}

// handleWelcomeNick stores the nick that the server gave us. 99% of the
// time, it's the one we supplied during connection, but some networks
// will rename or truncate users on connect.
func handleWelcomeNick(c *Client, e Event) {
	if len(e.Params) < 1 {
		return
	}

	nick := e.Params[0]

	c.state.mu.Lock()
	c.state.nick = nick
	if len(nick) > 0 && len(nick) < len(c.state.sentNick) {
		// The server truncated us; remember the limit for future
		// collision mangling.
		c.state.maxNickLen = len(nick)
	}
	c.state.mu.Unlock()
}

// handleJoinOnWelcome joins every configured channel once the server
// has accepted the registration, preserving the configured order.
func handleJoinOnWelcome(c *Client, e Event) {
	for _, channel := range c.ChannelList() {
		c.Send(&Event{Command: JOIN, Params: []string{channel}})
	}
}

// manglerRules is the ordered substring substitution table used when
// the requested nickname collides with an existing one. The first rule
// whose substring occurs in the nick is applied, to its first
// occurrence only. The table contains no loops: repeated application
// always eventually produces a fresh nick.
var manglerRules = [...]struct{ from, to string }{
	{"i", "1"}, {"I", "1"}, {"l", "1"}, {"L", "1"},
	{"o", "0"}, {"O", "0"}, {"A", "4"},
	{"0", "1"}, {"1", "2"}, {"2", "3"}, {"3", "4"},
	{"4", "5"}, {"5", "6"}, {"6", "7"}, {"7", "8"},
	{"8", "9"}, {"9", "-"},
}

// mangleCollision generates a replacement for a nick that is already in
// use. If no rule matches, a "1" is appended.
func mangleCollision(nick string) string {
	for _, rule := range manglerRules {
		if i := strings.Index(nick, rule.from); i >= 0 {
			return nick[:i] + rule.to + nick[i+len(rule.from):]
		}
	}

	return nick + "1"
}

// sanitizeNick generates a replacement for a nick the server deemed
// erroneous, by keeping only the alphanumeric characters. If nothing
// remains, "f" is used.
func sanitizeNick(nick string) string {
	var out strings.Builder

	for i := 0; i < len(nick); i++ {
		c := nick[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out.WriteByte(c)
		}
	}

	if out.Len() == 0 {
		return "f"
	}

	return out.String()
}

// handleNickMangle generates a new nickname when the server rejects the
// one we asked for, and re-sends NICK. Erroneous nicknames (432) are
// sanitised; collisions (433/436) go through the substitution table.
// If the server echoed back a truncated nick, the replacement is
// clamped by keeping its last N characters.
func handleNickMangle(c *Client, e Event) {
	// Responses look like ":srv 433 * badnick :reason" -- the second
	// parameter is the nick as the server saw it.
	attempted := c.GetNick()

	c.state.mu.Lock()
	if len(e.Params) >= 2 && e.Params[1] != "" && e.Params[1] != "*" {
		attempted = e.Params[1]
		if len(attempted) < len(c.state.sentNick) {
			c.state.maxNickLen = len(attempted)
		}
	}
	limit := c.state.maxNickLen
	c.state.mu.Unlock()

	var next string
	if e.Command == ERR_ERRONEUSNICKNAME {
		next = sanitizeNick(attempted)
	} else {
		next = mangleCollision(attempted)
	}

	if limit > 0 && len(next) > limit {
		// The server truncates from the front of our mangles otherwise.
		next = next[len(next)-limit:]
	}

	_ = c.SetNick(next)
}

// handleTopicJoin keeps the channel list up to date when the server
// tells us a channel topic: a topic for a channel we don't yet track is
// prepended to the list.
func handleTopicJoin(c *Client, e Event) {
	// ":srv 332 nick #channel :topic"
	if len(e.Params) < 2 {
		return
	}

	c.state.prependChannel(e.Params[1])
}

// handleKickTrack removes a channel from the channel list when we are
// the one being kicked from it. Kicks of other users are not ours to
// track.
func handleKickTrack(c *Client, e Event) {
	if len(e.Params) < 2 {
		// Needs at least channel and user.
		return
	}

	if ToRFC1459(e.Params[1]) != ToRFC1459(c.GetNick()) {
		return
	}

	c.state.removeChannel(e.Params[0])
}

// Server contains details about the IRC daemon the client is connected
// to, as reported during registration.
type Server struct {
	mu sync.RWMutex
	// host is the hostname/id of the daemon, as acquired by 002.
	host string
	// version is the software version of the daemon, as acquired by 002.
	version string
	// compiled is the reported date the daemon was compiled, as
	// acquired by 003.
	compiled time.Time
}

// Info returns the daemon host, software version, and compile date, as
// far as the server has reported them.
func (s *Server) Info() (host, version string, compiled time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.host, s.version, s.compiled
}

// handleYourHost extracts daemon details from 002 events.
func handleYourHost(c *Client, e Event) {
	const prefix = "Your host is "
	const suffix = " running version "

	text := e.Last()
	if !strings.Contains(text, prefix) || !strings.Contains(text, ",") {
		return
	}

	split := strings.SplitN(strings.TrimPrefix(text, prefix), ",", 2)
	host := split[0]
	ver := strings.Replace(split[1], suffix, "", 1)

	if len(host)+len(ver) == 0 {
		return
	}

	c.IRCd.mu.Lock()
	c.IRCd.host = host
	c.IRCd.version = ver
	c.IRCd.mu.Unlock()
}

// handleCreated extracts the daemon compile date from 003 events.
func handleCreated(c *Client, e Event) {
	split := strings.Split(e.Last(), " ")
	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

	found := -1
	for i, word := range split {
		for _, day := range days {
			if word == day || word == day+"," {
				found = i
				break
			}
		}
	}
	if found == -1 {
		return
	}

	compiled, err := dateparse.ParseAny(strings.Join(split[found:], " "))
	if err != nil {
		return
	}

	c.IRCd.mu.Lock()
	c.IRCd.compiled = compiled
	c.IRCd.mu.Unlock()
}
