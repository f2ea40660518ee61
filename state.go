// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"
)

// Status represents the lifecycle state of a client session. It only
// ever moves forward: Disconnected -> Connected -> Disconnecting ->
// Disconnected, and the final Disconnected is terminal for the client.
type Status int32

// The session lifecycle states.
const (
	Disconnected Status = iota
	Connected
	Disconnecting
)

// String returns a human readable representation of the status.
func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// state holds the mutable session state: the status cell, the instance
// cell (nick, channels, version, ignore list) and the user cell. Each
// cell is independently lockable; reads are point-in-time snapshots and
// writes are atomic replace-or-modify. No cross-cell transactions are
// needed -- handlers only modify one cell at a time.
type state struct {
	// status is the lifecycle cell, advanced with compare-and-swap so
	// it can never move backwards.
	status int32

	// mu guards the instance cell fields below.
	mu sync.RWMutex
	// nick is the nickname as the server last confirmed (or as
	// configured, until the server has spoken).
	nick string
	// sentNick is the last nickname we sent a NICK command for, used to
	// detect server-side truncation during collision mangling.
	sentNick string
	// maxNickLen is the inferred server nick length limit; 0 means
	// unknown.
	maxNickLen int
	// channels is the ordered channel list, joined on welcome and kept
	// up to date by the builtin handlers.
	channels []string
	// version is the string served in response to CTCP VERSION.
	version string

	// ignored maps ToRFC1459(nick) -> channel; an empty channel means
	// the nick is ignored everywhere.
	ignored cmap.ConcurrentMap

	// umu guards the opaque user cell.
	umu  sync.RWMutex
	user interface{}
}

func newState(conf Config) *state {
	s := &state{ignored: cmap.New()}
	s.nick = conf.Nick
	s.sentNick = conf.Nick
	s.channels = append([]string(nil), conf.Channels...)
	s.version = conf.Version

	return s
}

// current returns the status cell value.
func (s *state) current() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// advance moves the status cell from one state to the next. It returns
// false when the cell has already moved past from, which keeps the
// lifecycle strictly monotonic even with concurrent callers.
func (s *state) advance(from, to Status) bool {
	return atomic.CompareAndSwapInt32(&s.status, int32(from), int32(to))
}

// Snapshot holds one read of each state cell. The cells are read one
// after another, each under its own lock (the status cell atomically);
// the reads are not one atomic observation across cells, so a
// concurrent change may land between them.
type Snapshot struct {
	Status   Status
	Nick     string
	Channels []string
	Version  string
	User     interface{}
}

// Status returns the current lifecycle state of the client.
func (c *Client) Status() Status {
	return c.state.current()
}

// IsConnected returns true if the client is actively connected to a
// server.
func (c *Client) IsConnected() bool {
	return c.Status() == Connected
}

// IsDisconnecting returns true if the client is shutting the session
// down.
func (c *Client) IsDisconnecting() bool {
	return c.Status() == Disconnecting
}

// IsDisconnected returns true if the client has no active session.
func (c *Client) IsDisconnected() bool {
	return c.Status() == Disconnected
}

// Snapshot reads every state cell in turn and returns the values
// together; see Snapshot for what this does not guarantee.
func (c *Client) Snapshot() Snapshot {
	snap := Snapshot{Status: c.Status(), User: c.State()}

	c.state.mu.RLock()
	snap.Nick = c.state.nick
	snap.Channels = append([]string(nil), c.state.channels...)
	snap.Version = c.state.version
	c.state.mu.RUnlock()

	return snap
}

// GetNick returns the current nickname of the active connection.
func (c *Client) GetNick() string {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	return c.state.nick
}

// SetNick both updates the nick cell and asks the server for the
// rename, emitting exactly one NICK command.
func (c *Client) SetNick(name string) error {
	c.state.mu.Lock()
	c.state.nick = name
	c.state.sentNick = name
	c.state.mu.Unlock()

	return c.Send(&Event{Command: NICK, Params: []string{name}})
}

// setNickCell updates the nick cell without emitting anything, for when
// the server tells us what our nick actually is.
func (c *Client) setNickCell(name string) {
	c.state.mu.Lock()
	c.state.nick = name
	c.state.mu.Unlock()
}

// Version returns the string served in response to CTCP VERSION.
func (c *Client) Version() string {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	return c.state.version
}

// SetVersion replaces the string served in response to CTCP VERSION.
func (c *Client) SetVersion(version string) {
	c.state.mu.Lock()
	c.state.version = version
	c.state.mu.Unlock()
}

// ChannelList returns the ordered list of channels the client considers
// itself in (or configured to join).
func (c *Client) ChannelList() []string {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	return append([]string(nil), c.state.channels...)
}

// ModifyChannels atomically reads, transforms and writes the channel
// list. fn runs under the cell lock; do not send messages from it.
func (c *Client) ModifyChannels(fn func(channels []string) []string) {
	c.state.mu.Lock()
	c.state.channels = fn(append([]string(nil), c.state.channels...))
	c.state.mu.Unlock()
}

// prependChannel adds a channel to the front of the channel list if it
// is not already present.
func (s *state) prependChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, known := range s.channels {
		if ToRFC1459(known) == ToRFC1459(name) {
			return
		}
	}

	s.channels = append([]string{name}, s.channels...)
}

// removeChannel drops a channel from the channel list, if present.
func (s *state) removeChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, known := range s.channels {
		if ToRFC1459(known) == ToRFC1459(name) {
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			return
		}
	}
}

// Ignore adds nick to the ignore list, everywhere. Events authored by
// an ignored nick are still processed by the builtin bookkeeping
// handlers, but never reach user handlers. Re-adding an already ignored
// nick is a no-op.
func (c *Client) Ignore(nick string) {
	c.state.ignored.Set(ToRFC1459(nick), "")
}

// IgnoreIn adds nick to the ignore list for a single channel only.
func (c *Client) IgnoreIn(nick, channel string) {
	c.state.ignored.Set(ToRFC1459(nick), ToRFC1459(channel))
}

// Unignore removes nick from the ignore list.
func (c *Client) Unignore(nick string) {
	c.state.ignored.Remove(ToRFC1459(nick))
}

// ignoredEvent reports whether an event should be withheld from user
// handlers, based on the ignore list and the events origin.
func (c *Client) ignoredEvent(e *Event) bool {
	if e == nil || e.IsFromServer() {
		return false
	}

	chi, ok := c.state.ignored.Get(ToRFC1459(e.Source.Name))
	if !ok {
		return false
	}

	channel := chi.(string)
	if channel == "" {
		// Ignored everywhere.
		return true
	}

	return len(e.Params) > 0 && ToRFC1459(e.Params[0]) == channel
}

// State returns the opaque user state cell value.
func (c *Client) State() interface{} {
	c.state.umu.RLock()
	defer c.state.umu.RUnlock()

	return c.state.user
}

// SetState atomically replaces the user state cell value.
func (c *Client) SetState(v interface{}) {
	c.state.umu.Lock()
	c.state.user = v
	c.state.umu.Unlock()
}

// ModifyState atomically reads, transforms and writes the user state
// cell. fn runs under the cell lock; do not send messages from it.
func (c *Client) ModifyState(fn func(v interface{}) interface{}) {
	c.state.umu.Lock()
	c.state.user = fn(c.state.user)
	c.state.umu.Unlock()
}
