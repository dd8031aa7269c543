package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrShortWrite is returned when a Conn's Write implementation reports a
// non-error, non-positive byte count — a condition write_all() in the C
// source treats as fatal rather than retryable.
var ErrShortWrite = errors.New("protocol: write returned non-positive byte count")

// monotonic is the reference point timestamps are measured against,
// standing in for CLOCK_MONOTONIC in protocol.c's proto_send_packet.
var monotonic = time.Now()

// stamp returns the current (seconds, nanoseconds) pair relative to
// process start, in host byte order, ready for Send to convert to wire
// order.
func stamp() (uint32, uint32) {
	d := time.Since(monotonic)
	return uint32(d / time.Second), uint32(d % time.Second)
}

// Send writes hdr (with freshly stamped timestamps) followed by payload
// (if hdr.Size > 0) to conn, converting Size and both timestamp fields to
// network byte order. hdr is taken by value so the caller's copy is never
// mutated with the stamped timestamps.
func Send(conn net.Conn, hdr Header, payload []byte) error {
	hdr.TimestampSec, hdr.TimestampNsec = stamp()
	hdr.Size = uint16(len(payload))

	var buf [HeaderSize]byte
	buf[0] = byte(hdr.Type)
	binary.BigEndian.PutUint16(buf[1:3], hdr.Size)
	buf[3] = hdr.Param1
	buf[4] = hdr.Param2
	buf[5] = hdr.Param3
	binary.BigEndian.PutUint32(buf[6:10], hdr.TimestampSec)
	binary.BigEndian.PutUint32(buf[10:14], hdr.TimestampNsec)
	// buf[14:16] reserved/padding, left zero.

	if err := writeAll(conn, buf[:]); err != nil {
		return fmt.Errorf("protocol: send header: %w", err)
	}
	if hdr.Size > 0 && len(payload) > 0 {
		if err := writeAll(conn, payload); err != nil {
			return fmt.Errorf("protocol: send payload: %w", err)
		}
	}
	return nil
}

// Recv reads exactly one frame from conn: the fixed header, converted to
// host byte order, and its payload if Size > 0. EOF or any other read
// failure mid-frame is returned as an error; a clean EOF before any byte
// of the header is read is also returned as an error, since the server's
// service loop treats both as "the connection is gone" (spec.md §7).
func Recv(conn net.Conn) (Header, []byte, error) {
	var buf [HeaderSize]byte
	if err := readAll(conn, buf[:]); err != nil {
		return Header{}, nil, fmt.Errorf("protocol: recv header: %w", err)
	}

	hdr := Header{
		Type:          FrameType(buf[0]),
		Size:          binary.BigEndian.Uint16(buf[1:3]),
		Param1:        buf[3],
		Param2:        buf[4],
		Param3:        buf[5],
		TimestampSec:  binary.BigEndian.Uint32(buf[6:10]),
		TimestampNsec: binary.BigEndian.Uint32(buf[10:14]),
	}

	if hdr.Size == 0 {
		return hdr, nil, nil
	}

	payload := make([]byte, hdr.Size)
	if err := readAll(conn, payload); err != nil {
		return Header{}, nil, fmt.Errorf("protocol: recv payload: %w", err)
	}
	return hdr, payload, nil
}

// writeAll loops on short writes, the Go analogue of write_all() in
// protocol.c: net.Conn.Write already blocks until the full buffer is
// written or an error occurs, but this mirrors the source's explicit
// retry loop and converts a non-positive, non-error return into
// ErrShortWrite rather than looping forever.
func writeAll(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

// readAll reads exactly len(buf) bytes from conn. Unlike read_all() in
// protocol.c, there is no EINTR to retry here: the laser-hit notification
// that could interrupt a blocking read in the C server is delivered over
// a channel in this implementation (SPEC_FULL.md §4.1), observed by a
// select in the service loop rather than by resuming an interrupted
// syscall, so Recv itself never needs to special-case a retryable error.
func readAll(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return err
}
