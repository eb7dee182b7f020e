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
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncode_FloatLayout(t *testing.T) {
	got, err := Encode(Command{Kind: 2, Value: Float(22.5)})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// 22.5 == 0x41B40000
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xB4, 0x41}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestEncode_TextLayout(t *testing.T) {
	got, err := Encode(Command{Kind: 3, Value: Text("7.40")})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := append([]byte{0x03, 0x00, 0x00, 0x00}, []byte("7.40")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestEncode_Rejects(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want error
	}{
		{"negative_kind", Command{Kind: -1, Value: Float(0)}, ErrInvalidKind},
		{"kind_overflow", Command{Kind: math.MaxUint32 + 1, Value: Float(0)}, ErrInvalidKind},
		{"invalid_utf8", Command{Kind: 1, Value: Text(string([]byte{0xff, 0xfe}))}, ErrInvalidText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("got err %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRoundTrip_FloatBitPattern(t *testing.T) {
	values := []float32{
		0, float32(math.Copysign(0, -1)), 1, -1, 21.5, -40.25,
		math.MaxFloat32, math.SmallestNonzeroFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1)),
		math.Float32frombits(0x7fc00000), // quiet NaN
		math.Float32frombits(0x7f800001), // signalling NaN
	}
	kinds := []int{0, 1, 5, math.MaxUint32}

	for _, kind := range kinds {
		for _, v := range values {
			pkt, err := Encode(Command{Kind: kind, Value: Float(v)})
			if err != nil {
				t.Fatalf("Encode(%d, %v) error = %v", kind, v, err)
			}
			f, err := Decode(pkt)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			got, err := f.Float()
			if err != nil {
				t.Fatalf("Float() error = %v", err)
			}
			if f.Kind != uint32(kind) {
				t.Fatalf("kind: got %d, want %d", f.Kind, kind)
			}
			if math.Float32bits(got) != math.Float32bits(v) {
				t.Fatalf("bits: got %08x, want %08x", math.Float32bits(got), math.Float32bits(v))
			}
		}
	}
}

func TestRoundTrip_Text(t *testing.T) {
	values := []string{"", "0", "7.21.5", "42", "Living Room", "温度.二十", "emoji 🌬️", "a.b.c.d"}
	for _, v := range values {
		pkt, err := Encode(Command{Kind: 2, Value: Text(v)})
		if err != nil {
			t.Fatalf("Encode(%q) error = %v", v, err)
		}
		f, err := Decode(pkt)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		got, err := f.Text()
		if err != nil {
			t.Fatalf("Text() error = %v", err)
		}
		if f.Kind != 2 || got != v {
			t.Fatalf("got (%d, %q), want (2, %q)", f.Kind, got, v)
		}
	}
}

func TestDecode_ShortInputIsMalformed(t *testing.T) {
	for n := 0; n < 4; n++ {
		if _, err := Decode(make([]byte, n)); !errors.Is(err, ErrMalformedPacket) {
			t.Fatalf("len %d: got err %v, want ErrMalformedPacket", n, err)
		}
	}
	if _, err := Decode(nil); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("nil: got err %v, want ErrMalformedPacket", err)
	}
}

func TestFrameFloat_ShortPayload(t *testing.T) {
	f, err := Decode([]byte{1, 0, 0, 0, 0xAA})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, err := f.Float(); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("got err %v, want ErrMalformedPacket", err)
	}
}
