// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"errors"
	"fmt"
)

// Commands holds a list of useful methods to interact with the server,
// and wrappers for common events.
type Commands struct {
	c *Client
}

// ErrInvalidTarget is returned when a command helper is handed a target
// that is neither a valid nickname nor a valid channel.
type ErrInvalidTarget struct {
	Target string
}

func (e *ErrInvalidTarget) Error() string { return "invalid target: " + e.Target }

// Nick changes the client nickname, updating both the nick cell and the
// server.
func (cmd *Commands) Nick(name string) error {
	if !IsValidNick(name) {
		return &ErrInvalidTarget{Target: name}
	}

	return cmd.c.SetNick(name)
}

// Join attempts to enter the given IRC channels.
func (cmd *Commands) Join(channels ...string) error {
	for _, channel := range channels {
		if !IsValidChannel(channel) {
			return &ErrInvalidTarget{Target: channel}
		}

		if err := cmd.c.Send(&Event{Command: JOIN, Params: []string{channel}}); err != nil {
			return err
		}
	}

	return nil
}

// JoinKey attempts to enter an IRC channel with a password.
func (cmd *Commands) JoinKey(channel, password string) error {
	if !IsValidChannel(channel) {
		return &ErrInvalidTarget{Target: channel}
	}

	return cmd.c.Send(&Event{Command: JOIN, Params: []string{channel, password}})
}

// Part leaves an IRC channel, removing it from the channel list.
func (cmd *Commands) Part(channel string) error {
	if !IsValidChannel(channel) {
		return &ErrInvalidTarget{Target: channel}
	}

	return cmd.c.LeaveChannel(channel)
}

// PartMessage leaves an IRC channel with a specified leave message.
func (cmd *Commands) PartMessage(channel, message string) error {
	if !IsValidChannel(channel) {
		return &ErrInvalidTarget{Target: channel}
	}

	cmd.c.state.removeChannel(channel)

	return cmd.c.Send(&Event{Command: PART, Params: []string{channel}, Trailing: message})
}

// Message sends a PRIVMSG to target (either channel, service, or user).
func (cmd *Commands) Message(target, message string) error {
	if !IsValidNick(target) && !IsValidChannel(target) {
		return &ErrInvalidTarget{Target: target}
	}

	return cmd.c.Send(&Event{Command: PRIVMSG, Params: []string{target}, Trailing: message})
}

// Messagef sends a formatted PRIVMSG to target (either channel,
// service, or user).
func (cmd *Commands) Messagef(target, format string, a ...interface{}) error {
	return cmd.Message(target, fmt.Sprintf(format, a...))
}

// Notice sends a NOTICE to target (either channel, service, or user).
func (cmd *Commands) Notice(target, message string) error {
	if !IsValidNick(target) && !IsValidChannel(target) {
		return &ErrInvalidTarget{Target: target}
	}

	return cmd.c.Send(&Event{Command: NOTICE, Params: []string{target}, Trailing: message})
}

// Noticef sends a formatted NOTICE to target (either channel, service,
// or user).
func (cmd *Commands) Noticef(target, format string, a ...interface{}) error {
	return cmd.Notice(target, fmt.Sprintf(format, a...))
}

// Reply sends a PRIVMSG to where the supplied event originated from: to
// the channel if it was said in one, otherwise directly back to the
// sender.
func (cmd *Commands) Reply(event Event, message string) error {
	if event.IsFromChannel() {
		return cmd.Message(event.Params[0], message)
	}

	if event.Source == nil || !IsValidNick(event.Source.Name) {
		return &ErrInvalidTarget{}
	}

	return cmd.Message(event.Source.Name, message)
}

// Replyf sends a formatted PRIVMSG to where the supplied event
// originated from.
func (cmd *Commands) Replyf(event Event, format string, a ...interface{}) error {
	return cmd.Reply(event, fmt.Sprintf(format, a...))
}

// SendCTCP sends a CTCP request to target. Note that this method uses
// PRIVMSG specifically.
func (cmd *Commands) SendCTCP(target, ctcpType, message string) error {
	out := EncodeCTCPRaw(ctcpType, message)
	if out == "" {
		return errors.New("invalid CTCP")
	}

	return cmd.Message(target, out)
}

// SendCTCPf sends a CTCP request to target using a specific format.
// Note that this method uses PRIVMSG specifically.
func (cmd *Commands) SendCTCPf(target, ctcpType, format string, a ...interface{}) error {
	return cmd.SendCTCP(target, ctcpType, fmt.Sprintf(format, a...))
}

// SendCTCPReply sends a CTCP response to target. Note that this method
// uses NOTICE specifically, as automated responses must.
func (cmd *Commands) SendCTCPReply(target, ctcpType, message string) error {
	out := EncodeCTCPRaw(ctcpType, message)
	if out == "" {
		return errors.New("invalid CTCP")
	}

	return cmd.Notice(target, out)
}

// SendCTCPReplyf sends a CTCP response to target using a specific
// format. Note that this method uses NOTICE specifically.
func (cmd *Commands) SendCTCPReplyf(target, ctcpType, format string, a ...interface{}) error {
	return cmd.SendCTCPReply(target, ctcpType, fmt.Sprintf(format, a...))
}

// Topic sets the topic of channel to message. Does not verify the
// length of the topic.
func (cmd *Commands) Topic(channel, message string) error {
	return cmd.c.Send(&Event{Command: TOPIC, Params: []string{channel}, Trailing: message})
}

// Ping sends a PING query to the server, with a specific identifier
// that the server should respond with.
func (cmd *Commands) Ping(id string) error {
	return cmd.c.Send(&Event{Command: PING, Params: []string{id}})
}

// Pong sends a PONG query to the server, with an identifier which was
// received from a previous PING query received by the client.
func (cmd *Commands) Pong(id string) error {
	return cmd.c.Send(&Event{Command: PONG, Trailing: id})
}

// Kick sends a KICK query to the server, attempting to kick nick from
// channel, with reason. If reason is blank, one will not be sent to the
// server.
func (cmd *Commands) Kick(channel, nick, reason string) error {
	if !IsValidChannel(channel) {
		return &ErrInvalidTarget{Target: channel}
	}

	if !IsValidNick(nick) {
		return &ErrInvalidTarget{Target: nick}
	}

	if reason != "" {
		return cmd.c.Send(&Event{Command: KICK, Params: []string{channel, nick}, Trailing: reason})
	}

	return cmd.c.Send(&Event{Command: KICK, Params: []string{channel, nick}})
}

// Invite sends a INVITE query to the server, to invite nick to channel.
func (cmd *Commands) Invite(channel, nick string) error {
	if !IsValidChannel(channel) {
		return &ErrInvalidTarget{Target: channel}
	}

	if !IsValidNick(nick) {
		return &ErrInvalidTarget{Target: nick}
	}

	return cmd.c.Send(&Event{Command: INVITE, Params: []string{nick, channel}})
}

// Whois sends a WHOIS query to the server, targeted at a specific user.
func (cmd *Commands) Whois(nick string) error {
	if !IsValidNick(nick) {
		return &ErrInvalidTarget{Target: nick}
	}

	return cmd.c.Send(&Event{Command: WHOIS, Params: []string{nick}})
}

// SendRaw sends a raw string back to the server, without carriage
// returns or newlines.
func (cmd *Commands) SendRaw(raw string) error {
	return cmd.c.SendRaw(raw)
}

// SendRawf sends a formatted string back to the server, without
// carriage returns or newlines.
func (cmd *Commands) SendRawf(format string, a ...interface{}) error {
	return cmd.c.SendRaw(fmt.Sprintf(format, a...))
}
