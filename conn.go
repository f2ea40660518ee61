// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"
)

// Messages are delimited with CR and LF line endings, we're using the
// last one to split the stream. Both are removed during parsing of the
// message.
const delim byte = '\n'

var endline = []byte("\r\n")

// ircConn represents an IRC network protocol connection. It consists of
// a buffered reader/writer pair to manage i/o, and tracks the last
// successful write for flood cooldown.
type ircConn struct {
	io   *bufio.ReadWriter
	sock net.Conn

	mu sync.Mutex
	// lastWrite is used to keep track of when we last wrote to the
	// server.
	lastWrite time.Time
}

// Dialer is an interface implementation of net.Dialer. Use this if you
// would like to implement your own dialer which the client will use
// when connecting.
type Dialer interface {
	// Dial takes two arguments. Network, which should be similar to
	// "tcp", "tcp6", "udp", etc -- as well as address, which is the
	// hostname or ip of the network. Note that network can be ignored
	// if your transport doesn't take advantage of network types.
	Dial(network, address string) (net.Conn, error)
}

// socksDialer adapts the h12.io/socks dial function to the Dialer
// interface, for SOCKS4/SOCKS4A proxies which golang.org/x/net/proxy
// doesn't speak.
type socksDialer struct {
	dialFunc func(network, address string) (net.Conn, error)
}

func (d *socksDialer) Dial(network, address string) (net.Conn, error) {
	return d.dialFunc(network, address)
}

// proxyDialer builds a Dialer from a proxy URL, e.g.
// "socks5://127.0.0.1:1080" or "socks4://127.0.0.1:1080".
func proxyDialer(proxyURL string, forward *net.Dialer) (Dialer, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(parsed.Scheme) {
	case "socks4", "socks4a":
		return &socksDialer{dialFunc: socks.Dial(proxyURL)}, nil
	default:
		return proxy.FromURL(parsed, forward)
	}
}

// ErrCertRejected is returned (wrapped in the disconnect cause) when a
// user-supplied certificate verifier rejected the servers certificate
// chain.
type ErrCertRejected struct {
	// Reasons is the non-empty list of failures the verifier reported.
	Reasons []string
}

func (e *ErrCertRejected) Error() string {
	return "server certificate rejected: " + strings.Join(e.Reasons, "; ")
}

// tlsConfig resolves the TLS client configuration for a connection,
// taking the user-supplied config and certificate verifier into
// account.
func tlsConfig(conf Config) *tls.Config {
	tc := conf.TLSConfig
	if tc == nil {
		tc = &tls.Config{ServerName: conf.Server}
	}

	if conf.VerifyServerCert == nil {
		return tc
	}

	// Verification is delegated to the callback: crypto/tls builtin
	// verification is disabled, and the callback decides on the raw
	// chain. An empty reasons list means the chain is accepted.
	tc = tc.Clone()
	tc.InsecureSkipVerify = true
	tc.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		}

		if reasons := conf.VerifyServerCert(conf.Server, conf.Port, certs); len(reasons) > 0 {
			return &ErrCertRejected{Reasons: reasons}
		}

		return nil
	}

	return tc
}

// newConn sets up and returns a new connection to the server.
func newConn(conf Config, dialer Dialer, addr string) (*ircConn, error) {
	if err := conf.isValid(); err != nil {
		return nil, err
	}

	var conn net.Conn
	var err error

	if dialer == nil {
		netDialer := &net.Dialer{Timeout: 5 * time.Second}

		if conf.Bind != "" {
			var local *net.TCPAddr
			local, err = net.ResolveTCPAddr("tcp", conf.Bind+":0")
			if err != nil {
				return nil, err
			}

			netDialer.LocalAddr = local
		}

		dialer = netDialer

		if conf.Proxy != "" {
			if dialer, err = proxyDialer(conf.Proxy, netDialer); err != nil {
				return nil, err
			}
		}
	}

	if conn, err = dialer.Dial("tcp", addr); err != nil {
		return nil, err
	}

	if conf.SSL {
		conn = tls.Client(conn, tlsConfig(conf))
	}

	c := &ircConn{sock: conn}
	c.newReadWriter(conf)

	return c, nil
}

// newMockConn wraps an existing (commonly net.Pipe based) connection,
// for tests and custom transports.
func newMockConn(conn net.Conn) *ircConn {
	c := &ircConn{sock: conn}
	c.newReadWriter(Config{})

	return c
}

// newReadWriter builds the buffered reader/writer pair, optionally
// transcoding through the configured wire charset.
func (c *ircConn) newReadWriter(conf Config) {
	if conf.Encoding != nil {
		c.io = bufio.NewReadWriter(
			bufio.NewReader(conf.Encoding.NewDecoder().Reader(c.sock)),
			bufio.NewWriter(conf.Encoding.NewEncoder().Writer(c.sock)),
		)
		return
	}

	c.io = bufio.NewReadWriter(bufio.NewReader(c.sock), bufio.NewWriter(c.sock))
}

// Close closes the underlying socket.
func (c *ircConn) Close() error {
	return c.sock.Close()
}

// ParseEventError is returned when a raw line cannot be parsed into an
// event. A single unparsable frame is logged and dropped; it does not
// terminate the session.
type ParseEventError struct {
	Line string
}

func (e *ParseEventError) Error() string { return "unable to parse event: " + e.Line }

// TimedOutError is the disconnect cause used when no frame arrived from
// the server within the configured read timeout.
type TimedOutError struct {
	// Timeout is the configured read timeout that expired.
	Timeout time.Duration
}

func (*TimedOutError) Error() string { return "timed out waiting for data from the server" }

type decodedEvent struct {
	event *Event
	raw   string
	err   error
}

// decode pulls one frame off the wire in the background, so the reader
// can stay cancellable while blocked on the socket.
func (c *ircConn) decode() <-chan decodedEvent {
	ch := make(chan decodedEvent, 1)

	go func() {
		defer close(ch)

		line, err := c.io.ReadString(delim)
		if err != nil {
			ch <- decodedEvent{err: err}
			return
		}

		event := ParseEvent(line)
		line = strings.TrimRight(line, "\r\n")

		if event == nil {
			ch <- decodedEvent{raw: line, err: &ParseEventError{Line: line}}
			return
		}

		event.raw = line
		ch <- decodedEvent{event: event, raw: line}
	}()

	return ch
}

// encode writes one serialised frame and flushes it to the socket.
func (c *ircConn) encode(raw []byte) error {
	if _, err := c.io.Write(raw); err != nil {
		return err
	}
	if _, err := c.io.Write(endline); err != nil {
		return err
	}

	return c.io.Flush()
}

// cooldown returns how long the writer still has to sleep before the
// next write is allowed. The first write of a session is never delayed.
func (c *ircConn) cooldown(gap time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gap <= 0 || c.lastWrite.IsZero() {
		return 0
	}

	if delay := gap - time.Since(c.lastWrite); delay > 0 {
		return delay
	}

	return 0
}

// markWrite records the completion time of a write, for cooldown
// accounting.
func (c *ircConn) markWrite() {
	c.mu.Lock()
	c.lastWrite = time.Now()
	c.mu.Unlock()
}

// Connect attempts to connect to the given IRC server. It runs the
// session to completion: it returns only when the session has fully
// torn down, with the disconnect cause (nil for a clean, requested
// close). Connect will panic if called more than once -- a client holds
// exactly one session.
func (c *Client) Connect() error {
	return c.internalConnect(nil, nil)
}

// DialerConnect allows you to specify your own custom dialer which
// implements the Dialer interface.
func (c *Client) DialerConnect(dialer Dialer) error {
	return c.internalConnect(nil, dialer)
}

// MockConnect is used to implement mocking with an IRC server. Supply a
// net.Conn that will be used to spoof the server. A useful way to do
// this is to use net.Pipe(), pass one end into MockConnect(), and the
// other end into bufio.NewReader().
func (c *Client) MockConnect(conn net.Conn) error {
	return c.internalConnect(conn, nil)
}

// readLoop is the reader of the session: it pulls frames off the wire,
// logs them, and hands them to the dispatcher. It enforces the
// configured read timeout per frame.
func (c *Client) readLoop(ctx context.Context) error {
	c.debug.Print("starting readLoop")
	defer c.debug.Print("closing readLoop")

	for {
		_ = c.conn.sock.SetReadDeadline(time.Now().Add(c.Config.ReadTimeout))

		select {
		case <-ctx.Done():
			return nil
		case de := <-c.conn.decode():
			if de.err != nil {
				var perr *ParseEventError
				if errors.As(de.err, &perr) {
					// A garbled frame is not fatal.
					c.Config.Logger(FromServer, []byte(de.raw))
					c.debug.Printf("dropping frame: %s", perr)
					continue
				}

				if nerr, ok := de.err.(net.Error); ok && nerr.Timeout() {
					return &TimedOutError{Timeout: c.Config.ReadTimeout}
				}

				return de.err
			}

			c.Config.Logger(FromServer, []byte(de.raw))

			select {
			case c.rx <- de.event:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// sendLoop is the writer of the session: it drains the outbound queue
// in FIFO order, spacing consecutive writes by at least the configured
// flood cooldown.
func (c *Client) sendLoop(ctx context.Context) error {
	c.debug.Print("starting sendLoop")
	defer c.debug.Print("closing sendLoop")

	for {
		select {
		case event := <-c.tx:
			if delay := c.conn.cooldown(c.Config.Cooldown); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil
				}
			}

			raw := event.Bytes()
			c.Config.Logger(FromClient, raw)
			c.debug.Print("> ", StripRaw(event.String()))

			err := c.conn.encode(raw)
			c.conn.markWrite()

			if err != nil {
				return err
			}

			if event.Command == QUIT {
				// The session is over; everything queued behind the
				// QUIT is already rejected at the producer side.
				c.Close()
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
