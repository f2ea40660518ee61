// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
)

// Handler is the lower level implementation of a handler. See
// Caller.AddHandler().
type Handler interface {
	Execute(*Client, Event)
}

// HandlerFunc is a type that represents the function necessary to
// implement Handler.
type HandlerFunc func(client *Client, event Event)

// Execute calls the HandlerFunc with the client and event.
func (f HandlerFunc) Execute(client *Client, event Event) {
	f(client, event)
}

// filteredHandler wraps a handler with a predicate, so the handler only
// runs for events the predicate accepts.
type filteredHandler struct {
	match   func(client *Client, event Event) bool
	handler Handler
}

// Execute checks the predicate before handing off to the wrapped
// handler.
func (f *filteredHandler) Execute(client *Client, event Event) {
	if !f.match(client, event) {
		return
	}

	f.handler.Execute(client, event)
}

// nestedHandlers consists of a nested concurrent map:
//
//	( cmap.ConcurrentMap[selector]cmap.ConcurrentMap[uid]Handler )
//
// selector and uid are both strings.
type nestedHandlers struct {
	cm cmap.ConcurrentMap
}

type handlerTuple struct {
	uid     string
	handler Handler
}

func newNestedHandlers() *nestedHandlers {
	return &nestedHandlers{cm: cmap.New()}
}

func (nest *nestedHandlers) len() (total int) {
	for hs := range nest.cm.IterBuffered() {
		hndlrs := hs.Val.(cmap.ConcurrentMap)
		total += len(hndlrs.Keys())
	}
	return
}

func (nest *nestedHandlers) lenFor(selector string) (total int) {
	hs, ok := nest.cm.Get(strings.ToUpper(selector))
	if !ok {
		return 0
	}
	hndlrs := hs.(cmap.ConcurrentMap)
	return len(hndlrs.Keys())
}

func (nest *nestedHandlers) handlersFor(selector string) (handlers []handlerTuple) {
	hi, ok := nest.cm.Get(selector)
	if !ok {
		return nil
	}

	hm := hi.(cmap.ConcurrentMap)
	for h := range hm.IterBuffered() {
		handlers = append(handlers, handlerTuple{h.Key, h.Val.(Handler)})
	}

	return handlers
}

// Caller manages the internal (bookkeeping) and external (user facing)
// handlers.
type Caller struct {
	// mu is the mutex that should be used when registering/removing
	// handlers.
	mu sync.Mutex

	parent *Client

	// external/internal keys are of structure:
	//   map[SELECTOR][uid]Handler
	// Selectors are uppercased for normalization.
	external *nestedHandlers
	internal *nestedHandlers
	// debug is the clients logger used for debugging.
	debug *log.Logger
}

// newCaller creates and initializes a new handler registry.
func newCaller(parent *Client, debugOut *log.Logger) *Caller {
	return &Caller{
		external: newNestedHandlers(),
		internal: newNestedHandlers(),
		debug:    debugOut,
		parent:   parent,
	}
}

// Len returns the total amount of user-entered registered handlers.
func (c *Caller) Len() int {
	return c.external.len()
}

// Count is much like Caller.Len(), however it counts the number of
// registered handlers for a given selector.
func (c *Caller) Count(selector string) int {
	return c.external.lenFor(selector)
}

func (c *Caller) String() string {
	return fmt.Sprintf("<Caller external:%d internal:%d>", c.Len(), c.internal.len())
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// cuid generates a unique UID string for each handler for ease of
// removal.
func (c *Caller) cuid(selector string, n int) (cuid, uid string) {
	b := make([]byte, n)

	for i := range b {
		b[i] = letterBytes[rand.Int63()%int64(len(letterBytes))]
	}

	return selector + ":" + string(b), string(b)
}

// cuidToID allows easy mapping between a generated cuid and the
// external handler map.
func (c *Caller) cuidToID(input string) (selector, uid string) {
	i := strings.IndexByte(input, ':')
	if i < 0 {
		return "", ""
	}

	return input[:i], input[i+1:]
}

// exec spawns all handlers for the given selector concurrently. It does
// not wait for them: by the time the handlers run, the dispatcher is
// already on the next frame. ignored events only reach the internal
// (bookkeeping) set.
func (c *Caller) exec(selector string, ignored bool, client *Client, event *Event) {
	for _, h := range c.internal.handlersFor(selector) {
		c.spawn(selector, h, client, event)
	}

	if ignored {
		return
	}

	for _, h := range c.external.handlersFor(selector) {
		c.spawn(selector, h, client, event)
	}
}

func (c *Caller) spawn(selector string, h handlerTuple, client *Client, event *Event) {
	c.debug.Printf("(%s) exec %s => %s", client.GetNick(), selector, h.uid)

	go func() {
		defer recoverHandlerPanic(client, event, selector+":"+h.uid)
		h.handler.Execute(client, *event.Copy())
	}()
}

// ClearAll clears all external handlers currently setup within the
// client. This ignores internal handlers.
func (c *Caller) ClearAll() {
	c.external.cm.Clear()
	c.debug.Print("cleared all external handlers")
}

// Clear clears all external handlers for the given selector. This
// ignores internal handlers.
func (c *Caller) Clear(selector string) {
	c.external.cm.Remove(strings.ToUpper(selector))
	c.debug.Printf("cleared external handlers for %s", selector)
}

// Remove removes the handler with cuid from the handler stack. success
// indicates that it existed, and has been removed. If not success, it
// wasn't a registered handler.
func (c *Caller) Remove(cuid string) (success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	selector, uid := c.cuidToID(cuid)
	if len(selector) == 0 || len(uid) == 0 {
		return false
	}

	hi, ok := c.external.cm.Get(selector)
	if !ok {
		return false
	}

	hs := hi.(cmap.ConcurrentMap)
	if _, ok = hs.Get(uid); !ok {
		return false
	}

	hs.Remove(uid)
	c.debug.Printf("removed handler %s", cuid)

	return true
}

// RemoveBuiltin removes a default (builtin) handler by its name, e.g.
// "welcome-nick" or "nick-mangler", from every selector it is
// registered under. Use this before installing a replacement via Add.
func (c *Caller) RemoveBuiltin(name string) (success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hs := range c.internal.cm.IterBuffered() {
		hndlrs := hs.Val.(cmap.ConcurrentMap)
		if _, ok := hndlrs.Get(name); ok {
			hndlrs.Remove(name)
			success = true
		}
	}

	if success {
		c.debug.Printf("removed builtin handler %s", name)
	}

	return success
}

// register stores a handler in the requested tracker. Internal handlers
// are registered under a stable uid (their builtin name) so they can be
// individually replaced.
func (c *Caller) register(internal bool, selector, name string, handler Handler) (cuid string) {
	var uid string

	selector = strings.ToUpper(selector)

	if internal {
		uid = name
		cuid = selector + ":" + name
	} else {
		cuid, uid = c.cuid(selector, 20)
	}

	var (
		parent    *nestedHandlers
		chandlers cmap.ConcurrentMap
	)

	if internal {
		parent = c.internal
	} else {
		parent = c.external
	}

	ei, ok := parent.cm.Get(selector)
	if ok {
		chandlers = ei.(cmap.ConcurrentMap)
	} else {
		chandlers = cmap.New()
	}
	parent.cm.SetIfAbsent(selector, chandlers)

	chandlers.Set(uid, handler)

	c.debug.Printf("reg %q => %s [int:%t]", uid, selector, internal)

	return cuid
}

// AddHandler registers a handler (matching the handler interface) for
// the given selector. cuid is the handler uid which can be used to
// remove the handler with Caller.Remove().
func (c *Caller) AddHandler(selector string, handler Handler) (cuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.register(false, selector, "", handler)
}

// Add registers the handler function for the given selector -- an event
// kind (e.g. EPrivmsg, ENumeric) or a literal command (e.g. "001").
// Handlers run concurrently with each other and with the dispatcher.
func (c *Caller) Add(selector string, handler func(client *Client, event Event)) (cuid string) {
	return c.AddHandler(selector, HandlerFunc(handler))
}

// AddFiltered registers a handler with a predicate: the handler only
// runs for events of the given selector that the predicate accepts.
func (c *Caller) AddFiltered(selector string, match func(client *Client, event Event) bool, handler func(client *Client, event Event)) (cuid string) {
	return c.AddHandler(selector, &filteredHandler{match: match, handler: HandlerFunc(handler)})
}

// recoverHandlerPanic catches all handler panics: a failing handler is
// logged and discarded, never fatal to the session.
func recoverHandlerPanic(client *Client, event *Event, id string) {
	perr := recover()
	if perr == nil {
		return
	}

	var file, function string
	var line int

	var pcs [10]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs[:])])
	frame, _ := frames.Next()
	file = frame.File
	line = frame.Line
	function = frame.Function

	err := &HandlerError{
		Event: event.Copy(),
		ID:    id,
		File:  file,
		Line:  line,
		Func:  function,
		Panic: perr,
		Stack: debug.Stack(),
	}

	if client.Config.RecoverFunc != nil {
		client.Config.RecoverFunc(client, err)
		return
	}

	client.debug.Println(err.Error())
}

// HandlerError is the error produced when a handler panic is recovered
// from. It contains useful information like the handler identifier,
// filename, line in file where the panic occurred, the call trace, and
// the originating event.
type HandlerError struct {
	Event *Event      // Event is the event that caused the error.
	ID    string      // ID identifies the failing handler.
	File  string      // File is the file from where the panic originated.
	Line  int         // Line number where panic originated.
	Func  string      // Function name where panic originated.
	Panic interface{} // Panic is the error that was passed to panic().
	Stack []byte      // Stack is the call stack.
}

// Error returns a prettified version of HandlerError, containing ID,
// file, line, and basic error string.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("panic during handler [%s] execution in %s:%d: %s", e.ID, e.File, e.Line, e.Panic)
}

// String returns the error that panic returned, as well as the entire
// call trace of where it originated.
func (e *HandlerError) String() string {
	return fmt.Sprintf("panic: %s\n\n%s", e.Panic, string(e.Stack))
}
