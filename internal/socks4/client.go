package socks4

import (
	"errors"
	"fmt"
	"io"
)

// ClientConnect sends a CONNECT request for host:port over rw and waits for
// the proxy's decision.
//
// The reply may arrive in any number of reads. ErrProtocolViolation and
// ErrRequestRejected report the proxy's answer; any other error comes from
// the transport.
func ClientConnect(rw io.ReadWriter, host string, port uint16) error {
	if _, err := rw.Write(AppendRequest(make([]byte, 0, 16+len(host)), host, port)); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return ReadReply(rw)
}

// ReadReply reads from r until the reply decision is reached.
func ReadReply(r io.Reader) error {
	var d ReplyDecoder
	chunk := make([]byte, ReplyLen)

	for {
		n, err := r.Read(chunk[:d.Remaining()])
		if n > 0 {
			if done, derr := d.Feed(chunk[:n]); done {
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read reply: %w", err)
		}
	}
}
