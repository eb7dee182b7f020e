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
	"errors"
	"math"
	"testing"
)

func mustEncode(t *testing.T, kind int, v Value) []byte {
	t.Helper()
	pkt, err := Encode(Command{Kind: kind, Value: v})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return pkt
}

func TestParse_StringProtocol(t *testing.T) {
	cases := []struct {
		name string
		kind int
		text string
		want Event
	}{
		{"pairing_bare_id", 1, "42", PairingComplete{ID: 42}},
		{"pairing_leading_component", 1, "42.0.0", PairingComplete{ID: 42}},
		{"pairing_trailing_newline", 1, "42\n", PairingComplete{ID: 42}},
		{"temperature", 2, "7.21.5", TemperatureReport{ID: 7, Temperature: "21.5"}},
		{"temperature_negative", 2, "7.-3.25", TemperatureReport{ID: 7, Temperature: "-3.25"}},
		{"temperature_extra_fields", 2, "7.21.5.9", TemperatureReport{ID: 7, Temperature: "21.5"}},
		{"position", 3, "7.40", PositionReport{ID: 7, Percent: 40}},
		{"position_zero", 3, "7.0", PositionReport{ID: 7, Percent: 0}},
		{"unknown_kind", 9, "whatever", Unknown{Kind: 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(mustEncode(t, tc.kind, Text(tc.text)), VersionString)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParse_StringProtocolMalformed(t *testing.T) {
	cases := []struct {
		name string
		kind int
		text string
	}{
		{"pairing_empty", 1, ""},
		{"pairing_not_number", 1, "abc"},
		{"pairing_negative", 1, "-4"},
		{"temperature_too_few_fields", 2, "7.21"},
		{"temperature_bad_id", 2, "x.21.5"},
		{"temperature_bad_int", 2, "7.twenty.5"},
		{"temperature_bad_frac", 2, "7.21.5e3"},
		{"temperature_empty_frac", 2, "7.21."},
		{"position_too_few_fields", 3, "7"},
		{"position_over_100", 3, "7.101"},
		{"position_negative", 3, "7.-1"},
		{"position_signed", 3, "7.+40"},
		{"temperature_signed_int", 2, "7.+21.5"},
		{"temperature_signed_id", 2, "+7.21.5"},
		{"temperature_bare_minus", 2, "7.-.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(mustEncode(t, tc.kind, Text(tc.text)), VersionString)
			if !errors.Is(err, ErrMalformedPacket) {
				t.Fatalf("got err %v, want ErrMalformedPacket", err)
			}
		})
	}
}

func TestParse_StringProtocolInvalidUTF8(t *testing.T) {
	pkt := []byte{2, 0, 0, 0, 0xff, 0xfe}
	if _, err := Parse(pkt, VersionString); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("got err %v, want ErrMalformedPacket", err)
	}
}

func TestParse_LegacyProtocol(t *testing.T) {
	cases := []struct {
		name    string
		kind    int
		value   float32
		want    Event
		wantErr error
	}{
		{"pairing", 1, 42, PairingComplete{ID: 42}, nil},
		{"pairing_negative", 1, -3, nil, ErrMalformedPacket},
		{"pairing_fractional", 1, 42.7, nil, ErrMalformedPacket},
		{"pairing_huge", 1, 1e30, nil, ErrMalformedPacket},
		{"pairing_nan", 1, float32(math.NaN()), nil, ErrMalformedPacket},
		{"pairing_inf", 1, float32(math.Inf(1)), nil, ErrMalformedPacket},
		{"direct_reading_vent_0", 0, 19.5, LegacyDirectReading{ID: 0, Value: 19.5}, nil},
		{"direct_reading_vent_2", 2, 22.5, LegacyDirectReading{ID: 2, Value: 22.5}, nil},
		{"direct_reading_vent_5", 5, -1, LegacyDirectReading{ID: 5, Value: -1}, nil},
		{"direct_reading_nan", 2, float32(math.NaN()), nil, ErrMalformedPacket},
		{"direct_reading_inf", 3, float32(math.Inf(-1)), nil, ErrMalformedPacket},
		{"above_direct_range", 8, 1, Unknown{Kind: 8}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(mustEncode(t, tc.kind, Float(tc.value)), VersionLegacy)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %#v, err %v, want %v", got, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParse_LegacyShortPayload(t *testing.T) {
	if _, err := Parse([]byte{2, 0, 0, 0, 1}, VersionLegacy); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("got err %v, want ErrMalformedPacket", err)
	}
}

func TestLegacyDirectReading_Temperature(t *testing.T) {
	if got := (LegacyDirectReading{Value: 22.46}).Temperature(); got != "22.5" {
		t.Fatalf("got %q, want %q", got, "22.5")
	}
}

func TestFormatPayloadsParseBack(t *testing.T) {
	ev, err := Parse(mustEncode(t, 2, Text(FormatTemperature(7, 21.5))), VersionString)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev != (TemperatureReport{ID: 7, Temperature: "21.5"}) {
		t.Fatalf("got %#v", ev)
	}

	ev, err = Parse(mustEncode(t, 3, Text(FormatPosition(7, 55))), VersionString)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev != (PositionReport{ID: 7, Percent: 55}) {
		t.Fatalf("got %#v", ev)
	}
}

func TestLegacyAddressable(t *testing.T) {
	for id, want := range map[int]bool{-1: false, 0: true, 1: false, 2: true, 5: true, 6: false, 100: false} {
		if got := LegacyAddressable(id); got != want {
			t.Errorf("LegacyAddressable(%d) = %v, want %v", id, got, want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := ParseVersion(" Legacy "); err != nil || v != VersionLegacy {
		t.Fatalf("got (%q, %v)", v, err)
	}
	if _, err := ParseVersion("v3"); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}
