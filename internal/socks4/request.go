package socks4

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// Version is the SOCKS protocol version byte sent in every request.
	Version = 0x04

	// CmdConnect asks the proxy to establish a TCP/IP stream connection.
	CmdConnect = 0x01
)

// hostnameMarker is the deliberately invalid 0.0.0.1 address that tells a
// SOCKS4a proxy to resolve the hostname appended after the user id.
var hostnameMarker = [4]byte{0x00, 0x00, 0x00, 0x01}

// ParseIPv4Literal reports whether host is a dotted quad and returns its
// octets.
//
// The check is lenient: host must split on "." into exactly four segments,
// each a number in [0,256). A segment may be empty (read as 0), padded with
// whitespace, prefixed with 0x, 0o or 0b, or written in decimal with a
// fraction or exponent, which is truncated. So "1..3.4" is 1.0.3.4 and
// "0x7f.0.0.1" is 127.0.0.1. A hostname made of four numeric labels cannot be
// told apart from an address and is encoded as one.
func ParseIPv4Literal(host string) ([4]byte, bool) {
	var ip [4]byte

	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return ip, false
	}
	for i, p := range parts {
		n, ok := parseOctet(p)
		if !ok {
			return ip, false
		}
		ip[i] = n
	}
	return ip, true
}

func parseOctet(s string) (byte, bool) {
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
	if s == "" {
		return 0, true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 8)
			if err != nil {
				return 0, false
			}
			return byte(n), true
		}
	}

	// Only unsigned base prefixes are numbers; ParseFloat would also take
	// "+0x1p0". Inf and NaN fail the range check.
	if strings.ContainsAny(s, "xX") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f >= 0 && f < 256) {
		return 0, false
	}
	return byte(f), true
}

// AppendRequest appends a CONNECT request for host:port to b.
//
// Dotted-quad hosts are sent as SOCKS4 (four octets and an empty user id).
// Anything else is sent as SOCKS4a: the 0.0.0.1 marker, an empty user id,
// then the hostname and a NUL terminator.
func AppendRequest(b []byte, host string, port uint16) []byte {
	b = append(b, Version, CmdConnect)
	b = binary.BigEndian.AppendUint16(b, port)

	if ip, ok := ParseIPv4Literal(host); ok {
		b = append(b, ip[:]...)
		return append(b, 0x00)
	}

	b = append(b, hostnameMarker[:]...)
	b = append(b, 0x00)
	b = appendHostname(b, host)
	return append(b, 0x00)
}

// appendHostname writes one byte per character: the low byte of the
// character's first UTF-16 code unit. Bytes that are not valid UTF-8 are
// copied unchanged.
func appendHostname(b []byte, host string) []byte {
	for i := 0; i < len(host); {
		r, size := utf8.DecodeRuneInString(host[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			b = append(b, host[i])
		case r > 0xffff:
			hi, _ := utf16.EncodeRune(r)
			b = append(b, byte(hi))
		default:
			b = append(b, byte(r))
		}
		i += size
	}
	return b
}

// ParsePort parses a decimal port number in the range 0-65535.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}
