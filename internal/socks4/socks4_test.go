package socks4

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"

	"golang.org/x/sync/errgroup"
)

func TestAppendRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
		port uint16
		want []byte
	}{
		{
			name: "ipv4",
			host: "1.2.3.4",
			port: 1234,
			want: []byte{0x04, 0x01, 0x04, 0xd2, 0x01, 0x02, 0x03, 0x04, 0x00},
		},
		{
			name: "hostname",
			host: "foobar.com",
			port: 80,
			want: append([]byte{0x04, 0x01, 0x00, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00}, append([]byte("foobar.com"), 0x00)...),
		},
		{
			name: "https hostname",
			host: "foobar.com",
			port: 443,
			want: append([]byte{0x04, 0x01, 0x01, 0xbb, 0x00, 0x00, 0x00, 0x01, 0x00}, append([]byte("foobar.com"), 0x00)...),
		},
		{
			name: "numeric labels encode as address",
			host: "10.0.0.255",
			port: 65535,
			want: []byte{0x04, 0x01, 0xff, 0xff, 0x0a, 0x00, 0x00, 0xff, 0x00},
		},
		{
			name: "empty segment encodes as zero",
			host: "1..3.4",
			port: 80,
			want: []byte{0x04, 0x01, 0x00, 0x50, 0x01, 0x00, 0x03, 0x04, 0x00},
		},
		{
			name: "hex segment",
			host: "0x7f.0.0.1",
			port: 80,
			want: []byte{0x04, 0x01, 0x00, 0x50, 0x7f, 0x00, 0x00, 0x01, 0x00},
		},
		{
			name: "latin1 hostname",
			host: "caf\u00e9.de",
			port: 80,
			want: append([]byte{0x04, 0x01, 0x00, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00}, 'c', 'a', 'f', 0xe9, '.', 'd', 'e', 0x00),
		},
		{
			name: "astral hostname uses high surrogate",
			host: "a\U0001F600",
			port: 80,
			want: []byte{0x04, 0x01, 0x00, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00, 'a', 0x3d, 0x00},
		},
		{
			name: "invalid utf-8 copied",
			host: "a\xff\xfeb",
			port: 80,
			want: []byte{0x04, 0x01, 0x00, 0x50, 0x00, 0x00, 0x00, 0x01, 0x00, 'a', 0xff, 0xfe, 'b', 0x00},
		},
		{
			name: "octet out of range",
			host: "1.2.3.256",
			port: 0,
			want: append([]byte{0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}, append([]byte("1.2.3.256"), 0x00)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := AppendRequest(nil, tt.host, tt.port)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("got % x want % x", got, tt.want)
			}
		})
	}
}

func TestParseIPv4Literal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host   string
		want   [4]byte
		wantOK bool
	}{
		{host: "1.2.3.4", want: [4]byte{1, 2, 3, 4}, wantOK: true},
		{host: "0.0.0.0", wantOK: true},
		{host: "255.255.255.255", want: [4]byte{255, 255, 255, 255}, wantOK: true},
		{host: "010.001.0.1", want: [4]byte{10, 1, 0, 1}, wantOK: true},
		{host: "1.2.3"},
		{host: "1.2.3.4.5"},
		{host: "1.2.3.-1"},
		{host: "1..3.4", want: [4]byte{1, 0, 3, 4}, wantOK: true},
		{host: "1.2.3.", want: [4]byte{1, 2, 3, 0}, wantOK: true},
		{host: "...", wantOK: true},
		{host: "0x7f.0.0.1", want: [4]byte{127, 0, 0, 1}, wantOK: true},
		{host: "0X7F.0o10.0b11.1", want: [4]byte{127, 8, 3, 1}, wantOK: true},
		{host: " 1.2 .3.4", want: [4]byte{1, 2, 3, 4}, wantOK: true},
		{host: "1e2.2.3.4", want: [4]byte{100, 2, 3, 4}, wantOK: true},
		{host: "1.2.3.255.9"},
		{host: "0x100.0.0.1"},
		{host: "+0x1p0.0.0.1"},
		{host: "0x.0.0.1"},
		{host: "inf.0.0.1"},
		{host: "1_0.0.0.1"},
		{host: "a.b.c.d"},
		{host: "example.com"},
		{host: ""},
		{host: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseIPv4Literal(tt.host)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"0", "80", "65535"} {
		if _, err := ParsePort(s); err != nil {
			t.Fatalf("ParsePort(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "-1", "65536", "http", "8O"} {
		if _, err := ParsePort(s); err == nil {
			t.Fatalf("ParsePort(%q): expected error", s)
		}
	}
}

// chunkings returns reply split into one chunk, one byte per chunk, and every
// two-way split.
func chunkings(reply []byte) [][][]byte {
	out := [][][]byte{{reply}}

	var bytewise [][]byte
	for i := range reply {
		bytewise = append(bytewise, reply[i:i+1])
	}
	out = append(out, bytewise)

	for i := 1; i < len(reply); i++ {
		out = append(out, [][]byte{reply[:i], reply[i:]})
	}
	return out
}

func decide(chunks [][]byte) (bool, error) {
	var d ReplyDecoder
	for _, c := range chunks {
		if done, err := d.Feed(c); done {
			return true, err
		}
	}
	return false, nil
}

func TestReplyDecoderChunking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   []byte
		wantErr error
	}{
		{name: "granted", reply: []byte{0x00, 0x5a, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{name: "granted short", reply: []byte{0x00, 0x5a}},
		{name: "granted trailing", reply: []byte{0x00, 0x5a, 0x01, 0xbb, 0x7f, 0x00, 0x00, 0x01, 'H', 'T'}},
		{name: "rejected", reply: []byte{0x00, 0x5b}, wantErr: ErrRequestRejected},
		{name: "no identd", reply: []byte{0x00, 0x5c, 0x00, 0x00}, wantErr: ErrRequestRejected},
		{name: "identd mismatch", reply: []byte{0x00, 0x5d, 0, 0, 0, 0, 0, 0}, wantErr: ErrRequestRejected},
		{name: "socks5 style", reply: []byte{0x00, 0x00}, wantErr: ErrRequestRejected},
		{name: "violation", reply: []byte{0x01}, wantErr: ErrProtocolViolation},
		{name: "violation granted", reply: []byte{0x04, 0x5a}, wantErr: ErrProtocolViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for _, chunks := range chunkings(tt.reply) {
				done, err := decide(chunks)
				if !done {
					t.Fatalf("no decision for chunks %q", chunks)
				}
				if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil) != (err == nil) {
					t.Fatalf("chunks %q: err=%v want %v", chunks, err, tt.wantErr)
				}
			}
		})
	}
}

func TestReplyDecoderFrozenAfterDecision(t *testing.T) {
	t.Parallel()

	var d ReplyDecoder
	if done, _ := d.Feed([]byte{0x00}); done {
		t.Fatal("decided on one byte")
	}
	if d.Remaining() != ReplyLen-1 {
		t.Fatalf("remaining=%d", d.Remaining())
	}
	if done, err := d.Feed([]byte{0x5a}); !done || err != nil {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if done, err := d.Feed([]byte{0x01}); !done || err != nil {
		t.Fatalf("after decision: done=%v err=%v", done, err)
	}
	if !bytes.Equal(d.Buffered(), []byte{0x00, 0x5a}) {
		t.Fatalf("buffer changed after decision: % x", d.Buffered())
	}
}

func TestReadReplyOneByteAtATime(t *testing.T) {
	t.Parallel()

	r := iotest.OneByteReader(bytes.NewReader([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}))
	if err := ReadReply(r); err != nil {
		t.Fatal(err)
	}

	r = iotest.OneByteReader(bytes.NewReader([]byte{0x00, 0x5b}))
	if err := ReadReply(r); !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadReplyDoesNotOverread(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0, 'h', 'i'})
	if err := ReadReply(r); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "hi" {
		t.Fatalf("got %q left on the wire", rest)
	}
}

func TestReadReplyTruncated(t *testing.T) {
	t.Parallel()

	err := ReadReply(bytes.NewReader([]byte{0x00}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v", err)
	}
}

func TestClientConnectToServer(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     uint16
		status   byte
		wantAddr string
		wantErr  error
	}{
		{name: "socks4", host: "1.2.3.4", port: 1234, status: StatusGranted, wantAddr: "1.2.3.4:1234"},
		{name: "socks4a", host: "foobar.com", port: 80, status: StatusGranted, wantAddr: "foobar.com:80"},
		{name: "rejected", host: "foobar.com", port: 443, status: StatusRejected, wantAddr: "foobar.com:443", wantErr: ErrRequestRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				req, err := ServerReadRequest(bufio.NewReader(serverConn))
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return errors.New("unexpected command")
				}
				if req.Address() != tt.wantAddr {
					return errors.New("unexpected address " + req.Address())
				}
				return WriteReply(serverConn, tt.status)
			})

			err := ClientConnect(clientConn, tt.host, tt.port)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil) != (err == nil) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestServerReadRequestLongHostname(t *testing.T) {
	t.Parallel()

	req := AppendRequest(nil, strings.Repeat("a", maxFieldLen+1), 80)
	if _, err := ServerReadRequest(bufio.NewReader(bytes.NewReader(req))); !errors.Is(err, errFieldTooLong) {
		t.Fatalf("err=%v", err)
	}
}
