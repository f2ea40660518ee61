// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"bufio"
	"errors"
	"testing"
	"time"
)

func TestConfigValid(t *testing.T) {
	conf := Config{
		Server: "irc.example.com", Port: 6667,
		Nick: "test", User: "test", Name: "Realname",
	}

	var err error
	if err = conf.isValid(); err != nil {
		t.Fatalf("valid config failed Config.isValid() with: %s", err)
	}

	conf.Server = ""
	if err = conf.isValid(); err == nil {
		t.Fatal("invalid server passed validation check")
	}
	conf.Server = "irc.example.com"

	conf.Port = 100000
	if err = conf.isValid(); err == nil {
		t.Fatal("invalid port passed validation check")
	}
	conf.Port = 6667

	conf.Nick = "invalid nick"
	if err = conf.isValid(); err == nil {
		t.Fatal("invalid nick passed validation check")
	}
	conf.Nick = "test"

	conf.User = "invalid user"
	if err = conf.isValid(); err == nil {
		t.Fatal("invalid user passed validation check")
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{Server: "dummy.int", Nick: "test", User: "test"})

	if c.Config.Port != 6667 {
		t.Errorf("Config.Port = %d, want 6667", c.Config.Port)
	}
	if c.Config.ReadTimeout != 300*time.Second {
		t.Errorf("Config.ReadTimeout = %s, want 300s", c.Config.ReadTimeout)
	}
	if c.Config.Version == "" {
		t.Error("Config.Version not defaulted")
	}
	if cap(c.tx) != queueSize {
		t.Errorf("send queue capacity = %d, want %d", cap(c.tx), queueSize)
	}
	if !c.IsDisconnected() {
		t.Errorf("fresh client status = %s, want disconnected", c.Status())
	}
}

// TestConnectRegistration covers the start of a session: NICK and USER
// go out before anything else.
func TestConnectRegistration(t *testing.T) {
	c, conn, server := genMockConn(Config{})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	events := readRegistration(t, b, conn)

	if events[0].Command != "NICK" || events[0].Params[0] != c.Config.Nick {
		t.Fatalf("invalid nick command: %#v", events[0])
	}

	if events[1].Command != "USER" || events[1].Params[0] != c.Config.User || events[1].Trailing != c.Config.Name {
		t.Fatalf("invalid user command: %#v", events[1])
	}
}

// TestPingPong covers S1: "PING :tolsun.oulu.fi" is answered with
// "PONG :tolsun.oulu.fi".
func TestPingPong(t *testing.T) {
	c, conn, server := genMockConn(Config{})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	readRegistration(t, b, conn)

	writeLine(t, conn, "PING :tolsun.oulu.fi")

	e := readEvent(t, b, conn)
	if e.String() != "PONG :tolsun.oulu.fi" {
		t.Fatalf("ping answered with %q, want %q", e.String(), "PONG :tolsun.oulu.fi")
	}
}

// TestJoinOnWelcome covers S2: on 001, the configured channels are
// joined in order.
func TestJoinOnWelcome(t *testing.T) {
	c, conn, server := genMockConn(Config{Nick: "alice", Channels: []string{"#a", "#b"}})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	readRegistration(t, b, conn)

	writeLine(t, conn, ":srv 001 alice :Welcome")

	first := readEvent(t, b, conn)
	second := readEvent(t, b, conn)

	if first.Command != "JOIN" || first.Params[0] != "#a" {
		t.Fatalf("first post-welcome event = %q, want JOIN #a", first.String())
	}
	if second.Command != "JOIN" || second.Params[0] != "#b" {
		t.Fatalf("second post-welcome event = %q, want JOIN #b", second.String())
	}
}

// TestNickCollision covers S3: a 433 triggers a mangled NICK.
func TestNickCollision(t *testing.T) {
	c, conn, server := genMockConn(Config{Nick: "alice"})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	readRegistration(t, b, conn)

	writeLine(t, conn, ":srv 433 * alice :Nickname is already in use.")

	e := readEvent(t, b, conn)
	if e.Command != "NICK" || e.Params[0] != "al1ce" {
		t.Fatalf("collision answered with %q, want NICK al1ce", e.String())
	}
}

// TestCooldownSpacing covers S5: back-to-back sends hit the wire with
// at least the configured gap between them.
func TestCooldownSpacing(t *testing.T) {
	const gap = 50 * time.Millisecond

	c, conn, server := genMockConn(Config{Cooldown: gap})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	// Registration consumes the queue head (and the first write is
	// not delayed).
	readRegistration(t, b, conn)

	const count = 4
	for i := 0; i < count; i++ {
		if err := c.Cmd.Message("#chan", "hello"); err != nil {
			t.Fatalf("Send failed: %s", err)
		}
	}

	var stamps []time.Time
	for i := 0; i < count; i++ {
		readEvent(t, b, conn)
		stamps = append(stamps, time.Now())
	}

	elapsed := stamps[len(stamps)-1].Sub(stamps[0])
	if want := time.Duration(count-1)*gap - 10*time.Millisecond; elapsed < want {
		t.Fatalf("%d writes took %s, want at least %s", count, elapsed, want)
	}
}

// TestQuitFlush covers S6: Quit enqueues a QUIT, the writer drains, the
// session closes cleanly, and the on-disconnect action observes a nil
// cause.
func TestQuitFlush(t *testing.T) {
	disconnected := make(chan error, 1)

	c, conn, server := genMockConn(Config{
		OnDisconnect: func(c *Client, err error) {
			disconnected <- err
		},
	})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	errchan := make(chan error, 1)
	go func() {
		errchan <- c.MockConnect(server)
	}()

	readRegistration(t, b, conn)

	c.Quit("bye now")

	e := readEvent(t, b, conn)
	if e.Command != "QUIT" || e.Trailing != "bye now" {
		t.Fatalf("quit sent %q, want QUIT :bye now", e.String())
	}

	select {
	case err := <-errchan:
		if err != nil {
			t.Fatalf("Connect() = %s after Quit, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect() did not return after Quit")
	}

	select {
	case err := <-disconnected:
		if err != nil {
			t.Fatalf("OnDisconnect cause = %s, want nil for a clean quit", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnDisconnect never ran")
	}

	if !c.IsDisconnected() {
		t.Fatalf("status after session end = %s, want disconnected", c.Status())
	}

	// The queue is closed: further sends fail fast.
	if err := c.Send(&Event{Command: PING, Params: []string{"x"}}); err != ErrQueueClosed {
		t.Fatalf("Send after Quit = %v, want ErrQueueClosed", err)
	}

	c.Quit("again") // no-op
}

// TestReadTimeout verifies that a silent server tears the session down
// with a TimedOutError cause.
func TestReadTimeout(t *testing.T) {
	disconnected := make(chan error, 1)

	c, conn, server := genMockConn(Config{
		ReadTimeout: 150 * time.Millisecond,
		OnDisconnect: func(c *Client, err error) {
			disconnected <- err
		},
	})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	errchan := make(chan error, 1)
	go func() {
		errchan <- c.MockConnect(server)
	}()

	readRegistration(t, b, conn)

	// Say nothing, and wait for the reader to give up.
	select {
	case err := <-errchan:
		var timeout *TimedOutError
		if !errors.As(err, &timeout) {
			t.Fatalf("Connect() = %v, want a TimedOutError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect() did not return after the read timeout")
	}

	select {
	case err := <-disconnected:
		var timeout *TimedOutError
		if !errors.As(err, &timeout) {
			t.Fatalf("OnDisconnect cause = %v, want a TimedOutError", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnDisconnect never ran")
	}
}

// TestSendBackpressure verifies that the queue holds at most queueSize
// events, and that one more producer blocks until a slot frees up.
func TestSendBackpressure(t *testing.T) {
	c := newTestClient(Config{})

	for i := 0; i < queueSize; i++ {
		if err := c.Send(&Event{Command: PING, Params: []string{"x"}}); err != nil {
			t.Fatalf("Send %d = %s, wanted nil", i, err)
		}
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- c.Send(&Event{Command: PING, Params: []string{"overflow"}})
	}()

	select {
	case err := <-blocked:
		t.Fatalf("Send did not block on a full queue (err: %v)", err)
	case <-time.After(150 * time.Millisecond):
	}

	// Free one slot; the producer must complete.
	<-c.tx

	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("unblocked Send = %s, wanted nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send still blocked after a dequeue")
	}
}

func TestOnConnectOverride(t *testing.T) {
	c, conn, server := genMockConn(Config{
		OnConnect: func(c *Client) {
			_ = c.Send(&Event{Command: NICK, Params: []string{"custom"}})
		},
	})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	go c.MockConnect(server)
	defer c.Close()

	e := readEvent(t, b, conn)
	if e.Command != "NICK" || e.Params[0] != "custom" {
		t.Fatalf("custom on-connect sent %q, want NICK custom", e.String())
	}
}

func TestConnectTwicePanics(t *testing.T) {
	c, conn, server := genMockConn(Config{})
	b := bufio.NewReader(conn)

	defer conn.Close()
	defer server.Close()

	errchan := make(chan error, 1)
	go func() {
		errchan <- c.MockConnect(server)
	}()

	readRegistration(t, b, conn)
	c.Close()

	select {
	case <-errchan:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect() did not return after Close")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("second connect did not panic; clients are single-session")
		}
	}()

	_ = c.MockConnect(server)
}

func TestSendRaw(t *testing.T) {
	c := newTestClient(Config{})

	if err := c.SendRaw("PRIVMSG #chan :hello"); err != nil {
		t.Fatalf("SendRaw() = %s, wanted nil", err)
	}

	e := popSent(t, c)
	if e.Command != "PRIVMSG" || e.Trailing != "hello" {
		t.Fatalf("SendRaw queued %q", e.String())
	}

	if err := c.SendBytes([]byte("a")); err == nil {
		t.Fatal("SendBytes accepted an unparsable line")
	}
}
