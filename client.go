// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"

	"github.com/lrstanley/clink/internal/ctxgroup"
)

// queueSize is the capacity of the outbound send queue. Producers block
// once this many events are waiting to be written -- the backpressure
// mechanism against handler storms.
const queueSize = 16

// defaultVersion is served in response to CTCP VERSION unless
// Config.Version is set.
const defaultVersion = "clink v1.0.0 (github.com/lrstanley/clink)"

// Client contains all of the information necessary to run a single IRC
// client, holding exactly one session over its lifetime.
type Client struct {
	// Config represents the configuration. It is immutable after
	// construction; session-mutable values (nick, channels, version,
	// ignores) live in the state cells.
	Config Config
	// rx is a buffer of events waiting to be dispatched.
	rx chan *Event
	// tx is the bounded outbound queue, drained by the writer.
	tx chan *Event
	// state represents the mutable state cells for the session.
	state *state
	// Handlers manages internal and external event handlers.
	Handlers *Caller
	// CTCP manages internal and external CTCP verb handlers.
	CTCP *CTCP
	// Cmd contains various helper methods to interact with the server.
	Cmd *Commands
	// IRCd encapsulates IRC server daemon details.
	IRCd Server

	// mu guards conn/stop during connect and teardown.
	mu sync.RWMutex
	// stop cancels the session goroutines.
	stop context.CancelFunc
	// conn is the active connection. Owned by the session engine; no
	// other component touches the socket directly.
	conn *ircConn
	// debug is used if a writer is supplied for Client.Config.Debug.
	debug *log.Logger

	// started flips once, enforcing the single-session lifecycle.
	started int32
	// sendClosed rejects producers once the queue has been closed.
	sendClosed chan struct{}
	closeSend  sync.Once
	quitOnce   sync.Once
}

// Config contains configuration options for an IRC client.
type Config struct {
	// Server is a host/ip of the server you want to connect to. This
	// only has an effect during the dial process.
	Server string
	// ServerPass is the server password used to authenticate. This only
	// has an effect during the dial process.
	ServerPass string
	// Port is the port that will be used during server connection. This
	// only has an effect during the dial process.
	Port int
	// Nick is an rfc-valid nickname used during connection. After
	// connect, read the active value with Client.GetNick().
	Nick string
	// User is the username/ident to use on connect. Ignored if an
	// identd server is used.
	User string
	// Name is the "realname" that's used during connection.
	Name string
	// Channels are joined, in order, once the server has welcomed us.
	Channels []string
	// Version is the application version information served in response
	// to a CTCP VERSION. A default is used otherwise.
	Version string
	// Cooldown is the minimum wall-clock gap between two consecutive
	// outbound writes (flood protection). The first write of a session
	// is never delayed. Zero disables the cooldown.
	Cooldown time.Duration
	// ReadTimeout is how long the reader waits for a frame before the
	// session is torn down with a TimedOutError cause. Defaults to 300
	// seconds.
	ReadTimeout time.Duration
	// Bind is used to bind to a specific host or ip during the dial
	// process when connecting to the server. This only has an effect
	// during the dial process and will not work with DialerConnect().
	Bind string
	// SSL allows dialing via TLS. See TLSConfig to set your own TLS
	// configuration (e.g. to not force hostname checking). This only
	// has an effect during the dial process.
	SSL bool
	// TLSConfig is an optional user-supplied tls configuration, used
	// during socket creation to the server. SSL must be enabled for
	// this to be used.
	TLSConfig *tls.Config
	// VerifyServerCert, when supplied, replaces the builtin certificate
	// verification: it receives the host, port and presented chain, and
	// returns the list of reasons to reject it. An empty list means the
	// chain is accepted.
	VerifyServerCert func(host string, port int, chain []*x509.Certificate) (reasons []string)
	// Proxy is an optional proxy URL (e.g. "socks5://127.0.0.1:1080",
	// socks4 supported too) to dial through. This only has an effect
	// during the dial process and will not work with DialerConnect().
	Proxy string
	// Encoding optionally transcodes the wire to/from the given
	// charset. Unset means UTF-8 passthrough.
	Encoding encoding.Encoding
	// OnConnect, if set, replaces the default registration (PASS, NICK,
	// USER) performed as soon as the socket is up, before any user
	// traffic.
	OnConnect func(c *Client)
	// OnDisconnect runs after the session has fully torn down. err is
	// the disconnect cause; nil for a clean, requested close.
	OnDisconnect func(c *Client, err error)
	// Logger receives every raw frame with its direction. Must be safe
	// for concurrent use. Defaults to NoopLogger.
	Logger LogFunc
	// Debug is an optional, user supplied location to log the raw lines
	// sent from the server, or other useful debug logs. Defaults to
	// ioutil.Discard. For quick debugging, this could be set to
	// os.Stdout.
	Debug io.Writer
	// RecoverFunc is called when a handler panics. If unset, the panic
	// is logged to Debug and discarded. Set this to DefaultRecoverHandler
	// to print recovered panics to Debug or os.Stdout.
	RecoverFunc func(c *Client, e *HandlerError)
}

// ErrInvalidConfig is returned when the configuration passed to the
// client is invalid.
type ErrInvalidConfig struct {
	Conf Config // Conf is the configuration that was not valid.
	err  error
}

func (e ErrInvalidConfig) Error() string { return "invalid configuration: " + e.err.Error() }

// isValid checks some basic settings to ensure the config is valid.
func (conf *Config) isValid() error {
	if conf.Server == "" {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("empty server")}
	}

	if conf.Port < 1 || conf.Port > 65535 {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("port outside valid range (1-65535)")}
	}

	if !IsValidNick(conf.Nick) {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("bad nickname specified: " + conf.Nick)}
	}
	if !IsValidUser(conf.User) {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("bad user/ident specified: " + conf.User)}
	}

	return nil
}

// ErrNotConnected is returned if a method is used when the client isn't
// connected.
var ErrNotConnected = errors.New("client is not connected to server")

// ErrQueueClosed is returned by Send once the session is shutting down:
// the outbound queue no longer accepts messages.
var ErrQueueClosed = errors.New("send queue is closed")

// New creates a new IRC client with the specified config.
func New(config Config) *Client {
	if config.Port == 0 {
		config.Port = 6667
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 300 * time.Second
	}
	if config.Version == "" {
		config.Version = defaultVersion
	}
	if config.Name == "" {
		config.Name = config.User
	}
	if config.Logger == nil {
		config.Logger = NoopLogger
	}

	c := &Client{
		Config:     config,
		rx:         make(chan *Event, 25),
		tx:         make(chan *Event, queueSize),
		sendClosed: make(chan struct{}),
	}

	envDebug, _ := strconv.ParseBool(os.Getenv("CLINK_DEBUG"))
	if c.Config.Debug == nil {
		if envDebug {
			c.debug = log.New(os.Stderr, "debug:", log.Ltime|log.Lshortfile)
		} else {
			c.debug = log.New(ioutil.Discard, "", 0)
		}
	} else {
		if envDebug {
			if c.Config.Debug != os.Stdout && c.Config.Debug != os.Stderr {
				c.Config.Debug = io.MultiWriter(os.Stderr, c.Config.Debug)
			}
		}
		c.debug = log.New(c.Config.Debug, "debug:", log.Ltime|log.Lshortfile)
		c.debug.Print("initializing debugging")
	}

	c.Cmd = &Commands{c: c}
	c.Handlers = newCaller(c, c.debug)
	c.CTCP = newCTCP()
	c.state = newState(config)

	// Register the default handler set.
	c.registerBuiltins()

	return c
}

// String returns a brief description of the current client state.
func (c *Client) String() string {
	return fmt.Sprintf("<Client nick:%q handlers:%d status:%s>", c.GetNick(), c.Handlers.Len(), c.Status())
}

// TLSConnectionState returns the TLS connection state from tls.Conn{},
// which is useful to return needed TLS fingerprint info, certificates,
// verify cert expiration dates, etc. Will only return an error if the
// underlying connection wasn't established using TLS (see
// ErrConnNotTLS), or if the client isn't connected.
func (c *Client) TLSConnectionState() (*tls.ConnectionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}

	if tlsConn, ok := c.conn.sock.(*tls.Conn); ok {
		cs := tlsConn.ConnectionState()
		return &cs, nil
	}

	return nil, ErrConnNotTLS
}

// ErrConnNotTLS is returned when Client.TLSConnectionState() is called,
// and the connection to the server wasn't made with TLS.
var ErrConnNotTLS = errors.New("underlying connection is not tls")

// Server returns the string representation of host+port pair for the
// connection.
func (c *Client) Server() string {
	return net.JoinHostPort(c.Config.Server, strconv.Itoa(c.Config.Port))
}

// Send enqueues an event on the outbound queue. It blocks while the
// queue is full, and fails with ErrQueueClosed once the session is
// shutting down. The writer drains the queue in FIFO order, so events
// hit the wire in the order Send accepted them.
func (c *Client) Send(event *Event) error {
	select {
	case <-c.sendClosed:
		return ErrQueueClosed
	default:
	}

	select {
	case c.tx <- event:
		return nil
	case <-c.sendClosed:
		return ErrQueueClosed
	}
}

// SendRaw enqueues a raw string (a full IRC message, without line
// endings) on the outbound queue.
func (c *Client) SendRaw(raw string) error {
	e := ParseEvent(raw)
	if e == nil {
		return &ParseEventError{Line: raw}
	}

	return c.Send(e)
}

// SendBytes enqueues a raw byte slice (a full IRC message, without line
// endings) on the outbound queue.
func (c *Client) SendBytes(raw []byte) error {
	return c.SendRaw(string(raw))
}

// Quit initiates an orderly shutdown: a QUIT message with the given
// reason is enqueued, the queue is closed to further producers, and the
// writer flushes everything accepted up to that point before the
// session tears down. Further calls are no-ops.
func (c *Client) Quit(reason string) {
	c.quitOnce.Do(func() {
		c.state.advance(Connected, Disconnecting)

		select {
		case c.tx <- &Event{Command: QUIT, Trailing: reason}:
		case <-c.sendClosed:
		}

		c.closeSendQueue()
	})
}

// Close tears the session down immediately, without sending a QUIT.
// This should cause Connect() to return with nil. Safe to call multiple
// times.
func (c *Client) Close() {
	c.state.advance(Connected, Disconnecting)

	c.mu.RLock()
	if c.stop != nil {
		c.debug.Print("requesting client to stop")
		c.stop()
	}
	c.mu.RUnlock()
}

func (c *Client) closeSendQueue() {
	c.closeSend.Do(func() {
		close(c.sendClosed)
	})
}

// defaultOnConnect performs the standard registration sequence, used
// when Config.OnConnect is unset.
func (c *Client) defaultOnConnect() {
	if c.Config.ServerPass != "" {
		_ = c.Send(&Event{Command: PASS, Params: []string{c.Config.ServerPass}})
	}

	_ = c.Send(&Event{Command: NICK, Params: []string{c.GetNick()}})
	_ = c.Send(&Event{Command: USER, Params: []string{c.Config.User, "*", "*"}, Trailing: c.Config.Name})
}

func (c *Client) internalConnect(mock net.Conn, dialer Dialer) error {
	// A client owns exactly one session: once that session has begun
	// (or finished), the client cannot be connected again.
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		panic("use of connect more than once per client")
	}

	c.mu.Lock()
	addr := c.Server()

	if mock == nil {
		c.debug.Printf("connecting to %s... (ssl: %v)", addr, c.Config.SSL)

		conn, err := newConn(c.Config, dialer, addr)
		if err != nil {
			c.mu.Unlock()
			c.closeSendQueue()
			return err
		}

		c.conn = conn
	} else {
		c.conn = newMockConn(mock)
	}

	var ctx context.Context
	ctx, c.stop = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.state.advance(Disconnected, Connected)

	group := ctxgroup.New(ctx)
	group.Go(c.execLoop)
	group.Go(c.readLoop)
	group.Go(c.sendLoop)

	// Registration goes out before any user traffic can be enqueued.
	if c.Config.OnConnect != nil {
		c.Config.OnConnect(c)
	} else {
		c.defaultOnConnect()
	}

	// Wait for the first error, or a requested close.
	err := group.Wait()
	if err != nil {
		c.debug.Printf("received error, beginning cleanup: %v", err)
	} else {
		c.debug.Print("received request to close, beginning clean up")
	}

	c.state.advance(Connected, Disconnecting)

	// Make sure that the connection is closed if not already.
	c.mu.RLock()
	if c.stop != nil {
		c.stop()
	}
	_ = c.conn.Close()
	c.mu.RUnlock()

	c.teardown(err)

	return err
}

// teardown finishes the lifecycle: the queue rejects producers, the
// status cell reaches its terminal state, and the on-disconnect action
// observes the cause.
func (c *Client) teardown(err error) {
	c.closeSendQueue()
	c.state.advance(Disconnecting, Disconnected)

	if c.Config.OnDisconnect != nil {
		c.Config.OnDisconnect(c, err)
	}
}

// execLoop is the dispatcher of the session: it takes events off the
// inbound queue and fans each one out to its handlers. It never waits
// for handlers -- by design, a slow handler cannot stall the stream.
func (c *Client) execLoop(ctx context.Context) error {
	c.debug.Print("starting execLoop")
	defer c.debug.Print("closing execLoop")

	for {
		select {
		case <-ctx.Done():
			// We've been told to exit, however we shouldn't bail on the
			// current events in the queue that should be processed, as
			// one may want to handle an ERROR, QUIT, etc.
			c.debug.Printf("received signal to close, flushing %d events and executing", len(c.rx))
			for {
				select {
				case event := <-c.rx:
					c.RunHandlers(event)
				default:
					return nil
				}
			}
		case event := <-c.rx:
			c.RunHandlers(event)
		}
	}
}

// RunHandlers manually runs handlers for a given event. Handlers are
// spawned concurrently; this returns without waiting for them.
func (c *Client) RunHandlers(event *Event) {
	if event == nil {
		c.debug.Print("nil event")
		return
	}

	c.debug.Print("< " + StripRaw(event.String()))

	kind := event.Kind()
	ignored := c.ignoredEvent(event)

	// Literal command selector first, then the kind bucket (when it
	// isn't the same key), then the wildcard. CTCP-wrapped messages
	// are ECTCP only: they don't count as plain PRIVMSG/NOTICE.
	if kind != ECTCP {
		c.Handlers.exec(event.Command, ignored, c, event)
	}
	if kind != event.Command {
		c.Handlers.exec(kind, ignored, c, event)
	}
	c.Handlers.exec(ALL_EVENTS, ignored, c, event)

	// Check if it's a CTCP; those additionally go through the CTCP verb
	// registry. Ignored users get no CTCP responses.
	if kind == ECTCP && !ignored {
		if ctcp := DecodeCTCP(event); ctcp != nil {
			c.CTCP.call(c, ctcp)
		}
	}
}

// LeaveChannel removes a channel from the channel list, and parts from
// it if the session is active.
func (c *Client) LeaveChannel(channel string) error {
	c.state.removeChannel(channel)

	if !c.IsConnected() {
		return nil
	}

	return c.Send(&Event{Command: PART, Params: []string{channel}})
}

// DefaultRecoverHandler can be used with Config.RecoverFunc as a
// default catch-all for handler panics. This will log the error, and
// the call trace to the debug log (see Config.Debug), or os.Stdout if
// Config.Debug is unset.
func DefaultRecoverHandler(client *Client, err *HandlerError) {
	if client.Config.Debug == nil {
		fmt.Println(err.Error())
		fmt.Println(err.String())
		return
	}

	client.debug.Println(err.Error())
	client.debug.Println(err.String())
}
