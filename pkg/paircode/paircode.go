// Package paircode implements the compact human-typeable code used to hand
// connection secrets between devices during pairing.
//
// Two payload modes share one display format:
//
//   - Address mode packs an IPv4 address, a port and a checksum byte through
//     a base-32 alphabet (5 bits per symbol). Used when devices connect
//     directly over the LAN.
//   - Token mode wraps an opaque relay session token. The relay validates
//     the token server-side, so no checksum is carried.
//
// Codes are displayed uppercase in hyphen-joined groups of four, e.g.
// AB3D-7FGH-22K9. The alphabet excludes visually ambiguous characters
// (no I, O, 0, 1).
package paircode

import (
	"fmt"
	"net"
	"strings"
)

// Alphabet is the 32-symbol encoding alphabet, 5 bits per symbol.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// groupSize is the number of characters per hyphen-separated display group.
const groupSize = 4

// addrPayloadLen is the decoded length of an address-mode payload:
// 4 IPv4 octets + 2 port bytes + 1 checksum byte.
const addrPayloadLen = 7

// Encode packs payload bytes into the grouped display code.
// Bits are consumed MSB-first; a final partial group is left-shifted to
// fill its 5 bits.
func Encode(payload []byte) string {
	var acc uint32
	nbits := 0
	out := make([]byte, 0, (len(payload)*8+4)/5)

	for _, b := range payload {
		acc = acc<<8 | uint32(b)
		nbits += 8
		for nbits >= 5 {
			out = append(out, Alphabet[(acc>>(nbits-5))&31])
			nbits -= 5
		}
	}
	if nbits > 0 {
		out = append(out, Alphabet[(acc<<(5-nbits))&31])
	}

	return group(string(out))
}

// Decode reverses Encode. Non-alphabet characters (hyphens, spaces) are
// stripped and lowercase input is accepted. Trailing bits that do not fill
// a byte are padding and are dropped. Returns false when the code carries
// no decodable payload.
func Decode(code string) ([]byte, bool) {
	var acc uint32
	nbits := 0
	var out []byte

	for _, r := range strings.ToUpper(code) {
		idx := strings.IndexRune(Alphabet, r)
		if idx < 0 {
			continue
		}
		acc = acc<<5 | uint32(idx)
		nbits += 5
		if nbits >= 8 {
			out = append(out, byte(acc>>(nbits-8)))
			nbits -= 8
		}
	}

	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// EncodeAddr builds an address-mode code from an IPv4 address and port.
// The payload is the 4 octets, the port big-endian, and a checksum byte
// equal to the sum of the preceding 6 bytes mod 256.
func EncodeAddr(ip net.IP, port uint16) (string, error) {
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("pairing codes require an IPv4 address, got %s", ip)
	}

	payload := make([]byte, addrPayloadLen)
	copy(payload, v4)
	payload[4] = byte(port >> 8)
	payload[5] = byte(port)
	payload[6] = checksum(payload[:6])

	return Encode(payload), nil
}

// DecodeAddr parses an address-mode code back into address and port.
// Returns false on short payloads or checksum mismatch.
func DecodeAddr(code string) (net.IP, uint16, bool) {
	payload, ok := Decode(code)
	if !ok || len(payload) < addrPayloadLen {
		return nil, 0, false
	}
	if checksum(payload[:6]) != payload[6] {
		return nil, 0, false
	}

	ip := net.IPv4(payload[0], payload[1], payload[2], payload[3]).To4()
	port := uint16(payload[4])<<8 | uint16(payload[5])
	return ip, port, true
}

// FormatToken renders an opaque session token in the shared display format.
func FormatToken(token string) string {
	return group(strings.ToUpper(token))
}

// ParseToken recovers the token from a displayed code: separators are
// stripped and the result is uppercased. The relay validates the token, so
// no integrity check happens here.
func ParseToken(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// group joins runs of four characters with hyphens.
func group(s string) string {
	if len(s) <= groupSize {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/groupSize)
	for i, r := range s {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}
