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

package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version selects how payloads are interpreted. It is deployment
// configuration; the two versions do not interoperate on one port.
type Version string

const (
	VersionLegacy Version = "legacy" // float32 payloads, kind doubles as vent id
	VersionString Version = "string" // UTF-8 payloads with '.' separated fields
)

func ParseVersion(s string) (Version, error) {
	switch v := Version(strings.ToLower(strings.TrimSpace(s))); v {
	case VersionLegacy, VersionString:
		return v, nil
	default:
		return "", fmt.Errorf("unknown protocol version %q", s)
	}
}

// Kind codes of the string protocol.
const (
	KindPairing     uint32 = 1
	KindTemperature uint32 = 2
	KindPosition    uint32 = 3
)

// Highest kind treated as a per-vent reading in the legacy protocol.
const legacyMaxDirectKind uint32 = 5

const fieldSep = "."

// LegacyAddressable reports whether a vent id can receive direct readings
// under the legacy protocol, where the id travels in the kind field.
func LegacyAddressable(id int) bool {
	return id >= 0 && id <= int(legacyMaxDirectKind) && uint32(id) != KindPairing
}

// Event is an inbound datagram decoded once at the socket boundary.
type Event interface {
	isEvent()
}

type PairingComplete struct {
	ID int
}

type TemperatureReport struct {
	ID          int
	Temperature string // decimal, as reported
}

type PositionReport struct {
	ID      int
	Percent int
}

type LegacyDirectReading struct {
	ID    int
	Value float32
}

type Unknown struct {
	Kind uint32
}

func (PairingComplete) isEvent()     {}
func (TemperatureReport) isEvent()   {}
func (PositionReport) isEvent()      {}
func (LegacyDirectReading) isEvent() {}
func (Unknown) isEvent()             {}

// Temperature renders the legacy reading the way the registry stores it.
func (r LegacyDirectReading) Temperature() string {
	return strconv.FormatFloat(float64(r.Value), 'f', 1, 32)
}

// Parse decodes and classifies a datagram.
func Parse(data []byte, v Version) (Event, error) {
	frame, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Classify(frame, v)
}

// Classify interprets a frame's payload according to v.
func Classify(f Frame, v Version) (Event, error) {
	switch v {
	case VersionLegacy:
		return classifyLegacy(f)
	case VersionString:
		return classifyString(f)
	default:
		return nil, fmt.Errorf("unknown protocol version %q", v)
	}
}

func classifyLegacy(f Frame) (Event, error) {
	if f.Kind > legacyMaxDirectKind {
		return Unknown{Kind: f.Kind}, nil
	}
	value, err := f.Float()
	if err != nil {
		return nil, err
	}
	if f.Kind == KindPairing {
		id := float64(value)
		if math.IsNaN(id) || id < 0 || id > math.MaxInt32 || id != math.Trunc(id) {
			return nil, fmt.Errorf("%w: pairing id %v", ErrMalformedPacket, value)
		}
		return PairingComplete{ID: int(id)}, nil
	}
	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return nil, fmt.Errorf("%w: reading %v", ErrMalformedPacket, value)
	}
	return LegacyDirectReading{ID: int(f.Kind), Value: value}, nil
}

func classifyString(f Frame) (Event, error) {
	switch f.Kind {
	case KindPairing, KindTemperature, KindPosition:
	default:
		return Unknown{Kind: f.Kind}, nil
	}

	text, err := f.Text()
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(text), fieldSep)

	switch f.Kind {
	case KindPairing:
		// bare "<id>" or "<id>.<anything>"
		id, err := parseID(fields[0])
		if err != nil {
			return nil, err
		}
		return PairingComplete{ID: id}, nil

	case KindTemperature:
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: temperature payload %q", ErrMalformedPacket, text)
		}
		id, err := parseID(fields[0])
		if err != nil {
			return nil, err
		}
		temp, err := joinDecimal(fields[1], fields[2])
		if err != nil {
			return nil, err
		}
		return TemperatureReport{ID: id, Temperature: temp}, nil

	default: // KindPosition
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: position payload %q", ErrMalformedPacket, text)
		}
		id, err := parseID(fields[0])
		if err != nil {
			return nil, err
		}
		pct, err := strconv.Atoi(fields[1])
		if err != nil || !isDigits(fields[1]) || pct > 100 {
			return nil, fmt.Errorf("%w: position %q", ErrMalformedPacket, fields[1])
		}
		return PositionReport{ID: id, Percent: pct}, nil
	}
}

func parseID(s string) (int, error) {
	if !isDigits(s) {
		return 0, fmt.Errorf("%w: device id %q", ErrMalformedPacket, s)
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: device id %q", ErrMalformedPacket, s)
	}
	return id, nil
}

// joinDecimal validates "<int>" and "<frac>" and joins them as "<int>.<frac>".
func joinDecimal(intPart, fracPart string) (string, error) {
	if !isDigits(strings.TrimPrefix(intPart, "-")) {
		return "", fmt.Errorf("%w: integer part %q", ErrMalformedPacket, intPart)
	}
	if !isDigits(fracPart) {
		return "", fmt.Errorf("%w: fractional part %q", ErrMalformedPacket, fracPart)
	}
	return intPart + fieldSep + fracPart, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatTemperature renders a temperature payload "<id>.<int>.<frac>"
// with one decimal place.
func FormatTemperature(id int, celsius float64) string {
	return fmt.Sprintf("%d%s%s", id, fieldSep, strconv.FormatFloat(celsius, 'f', 1, 64))
}

// FormatPosition renders a position payload "<id>.<percent>".
func FormatPosition(id, percent int) string {
	return fmt.Sprintf("%d%s%d", id, fieldSep, percent)
}
