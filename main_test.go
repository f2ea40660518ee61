// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"bufio"
	"net"
	"testing"
	"time"
)

func mockEvent() *Event {
	return &Event{
		Source:   &Source{Name: "nick", Ident: "user", Host: "host.com"},
		Command:  "PRIVMSG",
		Params:   []string{"#channel"},
		Trailing: "1 2 3",
	}
}

// genMockConn returns a fresh client and both ends of a pipe: hand
// serverConn to Client.MockConnect(), and read/write the wire through
// clientConn.
func genMockConn(conf Config) (client *Client, clientConn net.Conn, serverConn net.Conn) {
	if conf.Server == "" {
		conf.Server = "dummy.int"
	}
	if conf.Port == 0 {
		conf.Port = 6667
	}
	if conf.Nick == "" {
		conf.Nick = "test"
	}
	if conf.User == "" {
		conf.User = "test"
	}
	if conf.Name == "" {
		conf.Name = "Testing123"
	}

	client = New(conf)

	conn1, conn2 := net.Pipe()

	return client, conn1, conn2
}

// readEvent reads one line from the mock server side of the pipe,
// failing the test on timeout.
func readEvent(t *testing.T, b *bufio.Reader, conn net.Conn) *Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	out, err := b.ReadString('\n')
	if err != nil {
		t.Fatalf("failed reading event from mock connection: %s", err)
	}

	e := ParseEvent(out)
	if e == nil {
		t.Fatalf("read unparsable event from mock connection: %q", out)
	}

	return e
}

// writeLine writes one raw line to the mock server side of the pipe.
func writeLine(t *testing.T, conn net.Conn, raw string) {
	t.Helper()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(raw + "\r\n")); err != nil {
		t.Fatalf("failed writing %q to mock connection: %s", raw, err)
	}
}

// readRegistration consumes the NICK/USER lines the client sends on
// connect.
func readRegistration(t *testing.T, b *bufio.Reader, conn net.Conn) (events []*Event) {
	t.Helper()

	for i := 0; i < 2; i++ {
		events = append(events, readEvent(t, b, conn))
	}

	return events
}
