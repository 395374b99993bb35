package fastcgi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sync"
)

// conn serializes writes of FastCGI records onto a single underlying
// connection. A FastCGI connection is used by one request at a time, and
// the driver runs each request's writes and reads in sequence on one
// goroutine (see driver.go), so the mutex here only keeps writeRecord and
// Close from interleaving; it does not serialize requests, and reads
// (streamReader) never take it.
type conn struct {
	mutex sync.Mutex
	rwc   io.ReadWriteCloser

	buf bytes.Buffer // reused across writeRecord calls to avoid allocating
	h   header
}

func newConn(rwc io.ReadWriteCloser) *conn {
	return &conn{rwc: rwc}
}

func (c *conn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.rwc.Close()
}

// writeRecord writes and sends a single record.
func (c *conn) writeRecord(t recType, reqID uint16, b []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.buf.Reset()

	c.h.init(t, reqID, len(b))

	if err := binary.Write(&c.buf, binary.BigEndian, c.h); err != nil {
		return err
	}

	if _, err := c.buf.Write(b); err != nil {
		return err
	}

	if _, err := c.buf.Write(pad[:c.h.PaddingLength]); err != nil {
		return err
	}

	_, err := c.rwc.Write(c.buf.Bytes())

	return err
}

func (c *conn) writeBeginRequest(reqID uint16, role uint16, flags uint8) error {
	b := [8]byte{
		byte(role >> 8),
		byte(role),
		flags & flagKeepConn,
	}

	return c.writeRecord(typeBeginRequest, reqID, b[:])
}

func (c *conn) writeEndRequest(reqID uint16, appStatus int, protocolStatus uint8) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b, uint32(appStatus))
	b[4] = protocolStatus

	return c.writeRecord(typeEndRequest, reqID, b)
}

func (c *conn) writeAbortRequest(reqID uint16) error {
	return c.writeRecord(typeAbortRequest, reqID, nil)
}

// writePairs writes a NAME=VALUE block (FCGI_PARAMS, FCGI_GET_VALUES or
// FCGI_GET_VALUES_RESULT), followed by the empty record that marks the end
// of the stream.
func (c *conn) writePairs(t recType, reqID uint16, pairs []nameValuePair) error {
	w := newStreamWriter(c, t, reqID)
	b := make([]byte, 8)

	for _, p := range pairs {
		n := encodeSize(b, uint32(len(p.name)))
		n += encodeSize(b[n:], uint32(len(p.value)))

		if _, err := w.Write(b[:n]); err != nil {
			return err
		}
		if _, err := w.WriteString(p.name); err != nil {
			return err
		}
		if _, err := w.WriteString(p.value); err != nil {
			return err
		}
	}

	return w.Close()
}

// writeGetValues issues an FCGI_GET_VALUES query. Used only by the probe
// subcommand; the request/response driver never needs it.
func (c *conn) writeGetValues(names ...string) error {
	pairs := make([]nameValuePair, len(names))
	for i, n := range names {
		pairs[i] = nameValuePair{name: n}
	}

	return c.writePairs(typeGetValues, 0, pairs)
}

// nameValuePair is a single FastCGI NAME=VALUE entry. Kept ordered (unlike a
// map) so FCGI_GET_VALUES queries have deterministic wire output.
type nameValuePair struct {
	name  string
	value string
}

// bufWriter wraps bufio.Writer but also closes the underlying stream once
// flushed, so callers can treat "done writing" as a single Close call.
type bufWriter struct {
	closer io.Closer
	*bufio.Writer
}

func (w *bufWriter) Close() error {
	if err := w.Writer.Flush(); err != nil {
		_ = w.closer.Close()
		return err
	}

	return w.closer.Close()
}

// streamWriter splits a stream into discrete records of at most maxWrite
// content bytes, and closing it sends the empty record that terminates the
// FastCGI stream (FCGI_STDIN, FCGI_PARAMS, FCGI_DATA all use this framing).
type streamWriter struct {
	c     *conn
	t     recType
	reqID uint16
}

func newStreamWriter(c *conn, t recType, reqID uint16) *bufWriter {
	s := &streamWriter{c: c, t: t, reqID: reqID}
	w := bufio.NewWriterSize(s, maxWrite)

	return &bufWriter{s, w}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	nn := 0

	for len(p) > 0 {
		n := len(p)
		if n > maxWrite {
			n = maxWrite
		}

		if err := w.c.writeRecord(w.t, w.reqID, p[:n]); err != nil {
			return nn, err
		}

		nn += n
		p = p[n:]
	}

	return nn, nil
}

func (w *streamWriter) Close() error {
	return w.c.writeRecord(w.t, w.reqID, nil)
}
