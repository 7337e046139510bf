package paircode

import (
	"bytes"
	"math/rand/v2"
	"net"
	"strings"
	"testing"
)

func TestEncodeAddrKnownVectors(t *testing.T) {
	cases := []struct {
		ip   string
		port uint16
		want string
	}{
		// all-zero payload: 56 zero bits → twelve 'A' symbols
		{"0.0.0.0", 0, "AAAA-AAAA-AAAA"},
		// all-ones address+port, checksum 6*255 mod 256 = 250
		{"255.255.255.255", 65535, "9999-9999-997A"},
	}

	for _, tc := range cases {
		code, err := EncodeAddr(net.ParseIP(tc.ip), tc.port)
		if err != nil {
			t.Fatalf("EncodeAddr(%s:%d): %v", tc.ip, tc.port, err)
		}
		if code != tc.want {
			t.Errorf("EncodeAddr(%s:%d) = %q, want %q", tc.ip, tc.port, code, tc.want)
		}
	}
}

func TestAddrRoundTrip(t *testing.T) {
	ips := []string{"0.0.0.0", "10.0.0.1", "127.0.0.1", "192.168.1.10", "172.16.254.3", "255.255.255.255"}
	ports := []uint16{0, 1, 80, 443, 9944, 32768, 65535}

	for _, ipStr := range ips {
		for _, port := range ports {
			ip := net.ParseIP(ipStr)
			code, err := EncodeAddr(ip, port)
			if err != nil {
				t.Fatalf("EncodeAddr(%s:%d): %v", ipStr, port, err)
			}

			gotIP, gotPort, ok := DecodeAddr(code)
			if !ok {
				t.Fatalf("DecodeAddr(%q) not ok", code)
			}
			if !gotIP.Equal(ip) {
				t.Errorf("DecodeAddr(%q) ip = %s, want %s", code, gotIP, ipStr)
			}
			if gotPort != port {
				t.Errorf("DecodeAddr(%q) port = %d, want %d", code, gotPort, port)
			}
		}
	}
}

func TestAddrRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		ip := net.IPv4(byte(rng.Uint32()), byte(rng.Uint32()), byte(rng.Uint32()), byte(rng.Uint32()))
		port := uint16(rng.Uint32())

		code, err := EncodeAddr(ip, port)
		if err != nil {
			t.Fatalf("EncodeAddr: %v", err)
		}
		gotIP, gotPort, ok := DecodeAddr(code)
		if !ok {
			t.Fatalf("DecodeAddr(%q) not ok", code)
		}
		if !gotIP.Equal(ip.To4()) || gotPort != port {
			t.Fatalf("round trip %s:%d → %q → %s:%d", ip, port, code, gotIP, gotPort)
		}
	}
}

func TestEncodeAddrRejectsIPv6(t *testing.T) {
	if _, err := EncodeAddr(net.ParseIP("2001:db8::1"), 80); err == nil {
		t.Error("expected error for IPv6 address")
	}
}

func TestDecodeAddrChecksumMismatch(t *testing.T) {
	// Every wrong checksum value must be rejected.
	base := []byte{192, 168, 1, 10, 0x26, 0xD8}
	good := checksum(base)

	for v := 0; v < 256; v++ {
		if byte(v) == good {
			continue
		}
		payload := append(append([]byte{}, base...), byte(v))
		if _, _, ok := DecodeAddr(Encode(payload)); ok {
			t.Fatalf("checksum %d accepted, want reject (valid is %d)", v, good)
		}
	}

	// Sanity: the correct checksum decodes.
	payload := append(append([]byte{}, base...), good)
	if _, _, ok := DecodeAddr(Encode(payload)); !ok {
		t.Fatal("valid checksum rejected")
	}
}

func TestDecodeAddrTooShort(t *testing.T) {
	short := Encode([]byte{192, 168, 1, 10, 0x26})
	if _, _, ok := DecodeAddr(short); ok {
		t.Error("expected reject for 5-byte payload")
	}
	if _, _, ok := DecodeAddr(""); ok {
		t.Error("expected reject for empty code")
	}
}

func TestDecodeStripsSeparatorsAndCase(t *testing.T) {
	code, err := EncodeAddr(net.IPv4(10, 0, 0, 2), 8080)
	if err != nil {
		t.Fatal(err)
	}

	mangled := strings.ToLower(strings.ReplaceAll(code, "-", " "))
	want, _ := Decode(code)
	got, ok := Decode(mangled)
	if !ok {
		t.Fatalf("Decode(%q) not ok", mangled)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Decode(%q) = %v, want %v", mangled, got, want)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, ok := Decode("----"); ok {
		t.Error("separator-only input should not decode")
	}
	if _, ok := Decode(""); ok {
		t.Error("empty input should not decode")
	}
}

func TestEncodeGrouping(t *testing.T) {
	code := Encode([]byte{1, 2, 3, 4, 5, 6, 7})
	for i, grp := range strings.Split(code, "-") {
		if len(grp) == 0 || len(grp) > groupSize {
			t.Errorf("group %d has length %d: %q", i, len(grp), code)
		}
		for _, r := range grp {
			if !strings.ContainsRune(Alphabet, r) {
				t.Errorf("character %q outside alphabet in %q", r, code)
			}
		}
	}
}

func TestTokenFormat(t *testing.T) {
	got := FormatToken("AB3D7FGH22K9")
	if got != "AB3D-7FGH-22K9" {
		t.Errorf("FormatToken = %q, want AB3D-7FGH-22K9", got)
	}
}

func TestTokenParse(t *testing.T) {
	cases := []struct{ in, want string }{
		{"AB3D-7FGH-22K9", "AB3D7FGH22K9"},
		{"ab3d-7fgh-22k9", "AB3D7FGH22K9"},
		{" ab3d 7fgh 22k9 ", "AB3D7FGH22K9"},
		{"AB3D7FGH22K9", "AB3D7FGH22K9"},
	}
	for _, tc := range cases {
		if got := ParseToken(tc.in); got != tc.want {
			t.Errorf("ParseToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token := "X7Q2M9RTULWZ"
	if got := ParseToken(FormatToken(token)); got != token {
		t.Errorf("round trip = %q, want %q", got, token)
	}
}
