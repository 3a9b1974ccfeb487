package socks4

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
)

// maxFieldLen bounds the user id and hostname fields of a request.
const maxFieldLen = 255

var errFieldTooLong = errors.New("field too long")

// Request is a parsed client request.
type Request struct {
	Cmd    byte
	Port   uint16
	IP     net.IP
	UserID string
	// Host is set for SOCKS4a requests.
	Host string
}

// Address returns the requested destination as host:port.
func (r *Request) Address() string {
	host := r.Host
	if host == "" {
		host = r.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(r.Port)))
}

// ServerReadRequest reads a SOCKS4 or SOCKS4a request from br.
func ServerReadRequest(br *bufio.Reader) (*Request, error) {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("unsupported version %#02x", hdr[0])
	}

	req := &Request{
		Cmd:  hdr[1],
		Port: binary.BigEndian.Uint16(hdr[2:4]),
		IP:   net.IPv4(hdr[4], hdr[5], hdr[6], hdr[7]).To4(),
	}

	userID, err := readNulString(br)
	if err != nil {
		return nil, fmt.Errorf("read user id: %w", err)
	}
	req.UserID = userID

	// 0.0.0.x with x != 0 marks a SOCKS4a request.
	if hdr[4] == 0 && hdr[5] == 0 && hdr[6] == 0 && hdr[7] != 0 {
		host, err := readNulString(br)
		if err != nil {
			return nil, fmt.Errorf("read hostname: %w", err)
		}
		req.Host = host
	}
	return req, nil
}

// WriteReply writes a canonical reply with the given status and a zero bound
// address.
func WriteReply(w io.Writer, status byte) error {
	reply := [ReplyLen]byte{0x00, status}
	if _, err := w.Write(reply[:]); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func readNulString(br *bufio.Reader) (string, error) {
	var b []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0x00 {
			return string(b), nil
		}
		if len(b) == maxFieldLen {
			return "", errFieldTooLong
		}
		b = append(b, c)
	}
}
