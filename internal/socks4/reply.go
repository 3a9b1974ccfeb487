package socks4

import (
	"errors"
	"fmt"
)

// ReplyLen is the size of a canonical SOCKS4 reply: a null byte, a status
// byte, the bound port and the bound IPv4 address.
const ReplyLen = 8

// Reply status codes.
const (
	StatusGranted        = 0x5a
	StatusRejected       = 0x5b
	StatusNoIdentd       = 0x5c
	StatusIdentdMismatch = 0x5d
)

// The decision needs the null byte and the status byte.
const decisionLen = 2

var (
	// ErrProtocolViolation is returned when the first reply byte is not null.
	ErrProtocolViolation = errors.New("expected null byte")

	// ErrRequestRejected is returned when the proxy answers with any status
	// other than StatusGranted.
	ErrRequestRejected = errors.New("request rejected")
)

// ReplyDecoder accumulates a proxy reply across reads and decides whether the
// tunnel was granted.
//
// Every Feed appends to the buffer and re-inspects it from the start. Once a
// decision has been reached the buffer is frozen and further input is
// ignored. Only the first two bytes take part in the decision; the bound
// address and port are never inspected.
type ReplyDecoder struct {
	buf  []byte
	done bool
	err  error
}

// Feed appends p and reports whether the decision has been reached. The error
// is nil when the proxy granted the request.
func (d *ReplyDecoder) Feed(p []byte) (bool, error) {
	if d.done {
		return true, d.err
	}

	d.buf = append(d.buf, p...)

	if len(d.buf) > 0 && d.buf[0] != 0x00 {
		d.done, d.err = true, ErrProtocolViolation
		return true, d.err
	}
	if len(d.buf) < decisionLen {
		return false, nil
	}

	d.done = true
	if status := d.buf[1]; status != StatusGranted {
		d.err = fmt.Errorf("%w: status %#02x", ErrRequestRejected, status)
	}
	return true, d.err
}

// Done reports whether a decision has been reached.
func (d *ReplyDecoder) Done() bool {
	return d.done
}

// Buffered returns the reply bytes accumulated so far.
func (d *ReplyDecoder) Buffered() []byte {
	return d.buf
}

// Remaining returns how many more bytes may still belong to the reply.
//
// Reads sized by Remaining never consume bytes past the canonical reply, so
// nothing the destination sends after the handshake is swallowed.
func (d *ReplyDecoder) Remaining() int {
	if n := ReplyLen - len(d.buf); n > 0 {
		return n
	}
	return 0
}
