// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"strings"
	"sync"
	"time"
)

// ctcpDelim is the delimiter used for CTCP formatted events/messages.
const ctcpDelim byte = 0x01 // Prefix and suffix for CTCP messages.

// CTCPEvent is the necessary information from an IRC message to handle
// a CTCP request or reply.
type CTCPEvent struct {
	// Source is the author of the CTCP event.
	Source *Source
	// Command is the type of CTCP event. E.g. PING, TIME, VERSION.
	Command string
	// Text is the raw arguments following the command.
	Text string
	// Reply is true if the CTCP event is intended to be a reply to a
	// previous CTCP (e.g, if we sent one).
	Reply bool
}

// DecodeCTCP decodes an incoming CTCP event, if it is CTCP. nil is
// returned if the incoming event does not match a valid CTCP message.
// Only PRIVMSG/NOTICE targeted directly at us qualify; channel-wide
// CTCP (e.g. ACTION) is left to regular message handlers.
func DecodeCTCP(e *Event) *CTCPEvent {
	// http://www.irchelp.org/protocol/ctcpspec.html

	if e == nil {
		return nil
	}

	// Must be targeting a user, AND trailing must have DELIM+TAG+DELIM
	// minimum (at least 3 chars).
	if len(e.Params) != 1 || len(e.Trailing) < 3 {
		return nil
	}

	if (e.Command != PRIVMSG && e.Command != NOTICE) || !IsValidNick(e.Params[0]) {
		return nil
	}

	if e.Trailing[0] != ctcpDelim || e.Trailing[len(e.Trailing)-1] != ctcpDelim {
		return nil
	}

	// Strip delimiters.
	text := e.Trailing[1 : len(e.Trailing)-1]

	s := strings.IndexByte(text, eventSpace)

	// Check to see if it only contains a tag.
	if s < 0 {
		if !validCTCPTag(text) {
			return nil
		}

		return &CTCPEvent{
			Source:  e.Source,
			Command: text,
			Reply:   e.Command == NOTICE,
		}
	}

	// Check the tag first.
	if !validCTCPTag(text[0:s]) {
		return nil
	}

	return &CTCPEvent{
		Source:  e.Source,
		Command: text[0:s],
		Text:    text[s+1:],
		Reply:   e.Command == NOTICE,
	}
}

// validCTCPTag checks that a CTCP command/tag consists of A-Z and 0-9
// only.
func validCTCPTag(tag string) bool {
	if len(tag) == 0 {
		return false
	}

	for i := 0; i < len(tag); i++ {
		if (tag[i] < 0x41 || tag[i] > 0x5A) && (tag[i] < 0x30 || tag[i] > 0x39) {
			return false
		}
	}

	return true
}

// EncodeCTCP encodes a CTCP event into a string, including delimiters.
func EncodeCTCP(ctcp *CTCPEvent) (out string) {
	if ctcp == nil {
		return ""
	}

	return EncodeCTCPRaw(ctcp.Command, ctcp.Text)
}

// EncodeCTCPRaw is much like EncodeCTCP, however accepts a raw command
// and string as input.
func EncodeCTCPRaw(cmd, text string) (out string) {
	if len(cmd) <= 0 {
		return ""
	}

	out = string(ctcpDelim) + cmd

	if len(text) > 0 {
		out += string(eventSpace) + text
	}

	return out + string(ctcpDelim)
}

// CTCP handles the storage and execution of CTCP handlers against
// incoming CTCP events.
type CTCP struct {
	// mu is the mutex that should be used when accessing handlers.
	mu sync.RWMutex
	// handlers is a map of CTCP command -> functions.
	handlers map[string]CTCPHandler
}

// CTCPHandler is a type that represents the function necessary to
// implement a CTCP handler.
type CTCPHandler func(client *Client, ctcp CTCPEvent)

// newCTCP returns a new clean CTCP handler set, with the default
// responders installed.
func newCTCP() *CTCP {
	c := &CTCP{handlers: map[string]CTCPHandler{}}
	c.addDefaultHandlers()

	return c
}

// call executes the necessary CTCP handler for the incoming CTCP
// command. Each handler is spawned concurrently, like regular event
// handlers.
func (c *CTCP) call(client *Client, event *CTCPEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Support wildcard CTCP event handling. The wildcard handler is
	// spawned before the verb handler, but both run concurrently, so
	// neither is ordered relative to the other.
	if handler, ok := c.handlers["*"]; ok {
		go func() {
			defer recoverHandlerPanic(client, nil, "ctcp:*")
			handler(client, *event)
		}()
	}

	handler, ok := c.handlers[event.Command]
	if !ok {
		return
	}

	go func() {
		defer recoverHandlerPanic(client, nil, "ctcp:"+event.Command)
		handler(client, *event)
	}()
}

// parseCMD parses a CTCP command/tag, ensuring it's valid. If not, an
// empty string is returned.
func (c *CTCP) parseCMD(cmd string) string {
	// Check if wildcard.
	if cmd == "*" {
		return "*"
	}

	cmd = strings.ToUpper(cmd)

	if !validCTCPTag(cmd) {
		return ""
	}

	return cmd
}

// Set saves the handler for execution upon a matching incoming CTCP
// event, replacing any previous (including default) handler for that
// command. If you would like to have a handler which will catch ALL
// CTCP requests, simply use "*" in place of the command.
func (c *CTCP) Set(cmd string, handler func(client *Client, ctcp CTCPEvent)) {
	if cmd = c.parseCMD(cmd); cmd == "" {
		return
	}

	c.mu.Lock()
	c.handlers[cmd] = CTCPHandler(handler)
	c.mu.Unlock()
}

// Clear removes the currently setup handler for cmd, if one is set.
// This also disables the default handler for a specific cmd.
func (c *CTCP) Clear(cmd string) {
	if cmd = c.parseCMD(cmd); cmd == "" {
		return
	}

	c.mu.Lock()
	delete(c.handlers, cmd)
	c.mu.Unlock()
}

// ClearAll removes all currently setup handlers, including the default
// ones.
func (c *CTCP) ClearAll() {
	c.mu.Lock()
	c.handlers = map[string]CTCPHandler{}
	c.mu.Unlock()
}

// addDefaultHandlers adds the default CTCP response handlers. Each can
// be replaced with Set, or disabled with Clear.
func (c *CTCP) addDefaultHandlers() {
	c.Set(CTCP_PING, handleCTCPPing)
	c.Set(CTCP_VERSION, handleCTCPVersion)
	c.Set(CTCP_TIME, handleCTCPTime)
}

// handleCTCPPing replies with a ping, echoing whatever arguments were
// originally sent.
func handleCTCPPing(client *Client, ctcp CTCPEvent) {
	if ctcp.Reply {
		return
	}
	client.Cmd.SendCTCPReply(ctcp.Source.Name, CTCP_PING, ctcp.Text)
}

// handleCTCPVersion replies with the clients configured version string.
func handleCTCPVersion(client *Client, ctcp CTCPEvent) {
	if ctcp.Reply {
		return
	}
	client.Cmd.SendCTCPReply(ctcp.Source.Name, CTCP_VERSION, client.Version())
}

// handleCTCPTime replies with the current local time, in the common
// asctime-style format (e.g. "Wed Oct 11 14:23:05 2000").
func handleCTCPTime(client *Client, ctcp CTCPEvent) {
	if ctcp.Reply {
		return
	}
	client.Cmd.SendCTCPReply(ctcp.Source.Name, CTCP_TIME, time.Now().Format(time.ANSIC))
}
