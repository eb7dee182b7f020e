// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package protocol implements the vent datagram format.
//
//	[4B] kind    (uint32, little-endian)
//	[NB] payload (legacy: 4B IEEE-754 float32 LE, current: UTF-8 text)
//
// The text payload has no length prefix; its boundary is the datagram end.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	headerLength    = 4
	floatPayloadLen = 4
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrInvalidKind     = errors.New("kind out of uint32 range")
	ErrInvalidText     = errors.New("payload is not valid UTF-8")
)

// Value is a command payload: either a float32 or a string, never both.
type Value struct {
	f      float32
	s      string
	isText bool
}

func Float(f float32) Value { return Value{f: f} }
func Text(s string) Value   { return Value{s: s, isText: true} }

func (v Value) IsText() bool     { return v.isText }
func (v Value) Float32() float32 { return v.f }
func (v Value) String() string {
	if v.isText {
		return v.s
	}
	return fmt.Sprintf("%g", v.f)
}

// Command is an outbound intent.
type Command struct {
	Kind  int
	Value Value
}

// Frame is a decoded datagram before payload interpretation.
type Frame struct {
	Kind    uint32
	Payload []byte
}

// Encode serializes cmd into a datagram.
func Encode(cmd Command) ([]byte, error) {
	if cmd.Kind < 0 || uint64(cmd.Kind) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, cmd.Kind)
	}

	if !cmd.Value.isText {
		pkt := make([]byte, headerLength+floatPayloadLen)
		binary.LittleEndian.PutUint32(pkt[0:4], uint32(cmd.Kind))
		binary.LittleEndian.PutUint32(pkt[4:8], math.Float32bits(cmd.Value.f))
		return pkt, nil
	}

	if !utf8.ValidString(cmd.Value.s) {
		return nil, ErrInvalidText
	}
	pkt := make([]byte, headerLength+len(cmd.Value.s))
	binary.LittleEndian.PutUint32(pkt[0:4], uint32(cmd.Kind))
	copy(pkt[headerLength:], cmd.Value.s)
	return pkt, nil
}

// Decode splits a datagram into kind and payload. The payload aliases data.
func Decode(data []byte) (Frame, error) {
	if len(data) < headerLength {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(data))
	}
	return Frame{
		Kind:    binary.LittleEndian.Uint32(data[0:4]),
		Payload: data[headerLength:],
	}, nil
}

// Float interprets the payload as a legacy float32 bit pattern.
// Trailing bytes beyond the first four are ignored.
func (f Frame) Float() (float32, error) {
	if len(f.Payload) < floatPayloadLen {
		return 0, fmt.Errorf("%w: float payload has %d bytes", ErrMalformedPacket, len(f.Payload))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[0:4])), nil
}

// Text interprets the payload as UTF-8.
func (f Frame) Text() (string, error) {
	if !utf8.Valid(f.Payload) {
		return "", fmt.Errorf("%w: %v", ErrMalformedPacket, ErrInvalidText)
	}
	return string(f.Payload), nil
}
