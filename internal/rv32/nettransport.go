package rv32

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// UnixNetTransport implements NetTransport over a length-prefixed stream
// on a Unix domain socket: each frame is a 4-byte little-endian length
// followed by that many payload bytes, in the style of the teacher's
// binary IPC framing (there, a fixed type+length header precedes the
// payload; here there is only ever one frame kind, so the header is just
// the length).
type UnixNetTransport struct {
	conn net.Conn
	w    *bufio.Writer

	mu    sync.Mutex
	inbox [][]byte
}

// DialUnixNetTransport connects to a listening Unix socket at path and
// starts a background reader that decodes frames into an inbox the
// machine drains once per tick via Recv.
func DialUnixNetTransport(ctx context.Context, path string) (*UnixNetTransport, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("rv32: dial net transport: %w", err)
	}
	t := &UnixNetTransport{conn: conn, w: bufio.NewWriter(conn)}
	go t.readLoop(ctx)
	return t, nil
}

func (t *UnixNetTransport) readLoop(ctx context.Context) {
	r := bufio.NewReader(t.conn)
	for {
		if ctx.Err() != nil {
			return
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > 4096 {
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			return
		}
		t.mu.Lock()
		t.inbox = append(t.inbox, frame)
		t.mu.Unlock()
	}
}

// Send writes one length-prefixed frame to the socket.
func (t *UnixNetTransport) Send(frame []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := t.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	return t.w.Flush()
}

// Recv returns the oldest undelivered inbound frame, if any, without
// blocking.
func (t *UnixNetTransport) Recv() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return nil, false
	}
	frame := t.inbox[0]
	t.inbox = t.inbox[1:]
	return frame, true
}

func (t *UnixNetTransport) Close() error {
	return t.conn.Close()
}
