// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package clink

import (
	"bytes"
	"strings"
)

// IsValidChannel checks if channel is an RFC compliant channel or not.
//
//	channel    =  ( "#" / "+" / ( "!" channelid ) / "&" ) chanstring
//	chanstring =  any octet except NUL, BELL, CR, LF, " ", "," and ":"
//	channelid  =  5( 0x41-0x5A / digit )   ; 5( A-Z / 0-9 )
func IsValidChannel(channel string) bool {
	if len(channel) <= 1 || len(channel) > 50 {
		return false
	}

	// #, +, !<channelid>, or &
	// Including "*" in the prefix list, as this is commonly used (e.g. ZNC.)
	if bytes.IndexByte([]byte{0x21, 0x23, 0x26, 0x2A, 0x2B}, channel[0]) == -1 {
		return false
	}

	// !<channelid> -- not very commonly supported, but we'll check it anyway.
	// The ID must be 5 chars. This means min-channel size should be:
	//   1 (prefix) + 5 (id) + 1 (+, channel name)
	if channel[0] == 0x21 {
		if len(channel) < 7 {
			return false
		}

		// Check for valid ID.
		for i := 1; i < 6; i++ {
			if (channel[i] < 0x30 || channel[i] > 0x39) && (channel[i] < 0x41 || channel[i] > 0x5A) {
				return false
			}
		}
	}

	// Check for invalid octets here.
	bad := []byte{0x00, 0x07, 0x0D, 0x0A, 0x20, 0x2C, 0x3A}
	for i := 1; i < len(channel); i++ {
		if bytes.IndexByte(bad, channel[i]) != -1 {
			return false
		}
	}

	return true
}

// IsValidNick validates an IRC nickname. Note that this does not validate
// IRC nickname length.
//
//	nickname =  ( letter / special ) *( letter / digit / special / "-" )
//	letter   =  0x41-0x5A / 0x61-0x7A
//	digit    =  0x30-0x39
//	special  =  0x5B-0x60 / 0x7B-0x7D
func IsValidNick(nick string) bool {
	if len(nick) <= 0 {
		return false
	}

	// Some characters aren't allowed for the first index of a nickname.
	if nick[0] < 0x41 || nick[0] > 0x7D {
		// a-z, A-Z, and _\[]{}^|
		return false
	}

	for i := 1; i < len(nick); i++ {
		if (nick[i] < 0x41 || nick[i] > 0x7D) && (nick[i] < 0x30 || nick[i] > 0x39) && nick[i] != 0x2D {
			// a-z, A-Z, 0-9, -, and _\[]{}^|
			return false
		}
	}

	return true
}

// IsValidUser validates an IRC user/ident.
//
//	user =  1*( any octet except NUL, CR, LF, " " and "@" )
func IsValidUser(user string) bool {
	if len(user) <= 0 {
		return false
	}

	// "~" is prepended (commonly) if there was no ident server response.
	if user[0] == 0x7E {
		// Means both characters (user[0] and user[1]) should be checked.
		if len(user) < 2 {
			return false
		}

		user = user[1:]
	}

	bad := []byte{0x00, 0x0D, 0x0A, 0x20, 0x40}
	for i := 0; i < len(user); i++ {
		if bytes.IndexByte(bad, user[i]) != -1 {
			return false
		}
	}

	return true
}

// ToRFC1459 converts a string to the stripped down conversion within
// RFC 1459. This will do things like replace an "A" with an "a", "[]"
// with "{}", and so forth. Useful to compare two nicknames or channels.
func ToRFC1459(input string) string {
	var out strings.Builder
	for i := range input {
		c := input[i]
		if c >= 65 && c <= 94 {
			c += 32
		}
		out.WriteByte(c)
	}

	return out.String()
}
