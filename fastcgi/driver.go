package fastcgi

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fcgiserver/cgiheader"
	"fcgiserver/httpserver"
)

// Connection is a persistent link to a FastCGI application server. It
// implements httpserver.Handler: registering one with a Router turns every
// matching request into a Responder role exchange over this socket.
//
// Only one request is ever in flight on the connection at a time — mu is
// held for the full request/response cycle, not just individual writes, so
// a second goroutine's Serve call simply waits its turn rather than racing
// stdout bytes between two in-flight requests.
type Connection struct {
	mu sync.Mutex

	conn   *conn
	reader *streamReader

	requestCounter uint32 // atomically incremented; wraps mod 65536

	webroot string
	log     logrus.FieldLogger
}

// Dial opens a Connection to a FastCGI application server listening at
// addr ("host:port"). webroot is used to compute PATH_TRANSLATED.
func Dial(addr, webroot string, log logrus.FieldLogger) (*Connection, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "fastcgi: dial upstream")
	}

	return &Connection{
		conn:    newConn(nc),
		reader:  newStreamReader(nc),
		webroot: webroot,
		log:     log,
	}, nil
}

// Close shuts down the upstream socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// nextRequestID returns the next request id, drawn from the full 16-bit
// wire space (see DESIGN.md on why this doesn't reduce modulo 256 like the
// code it's grounded on).
func (c *Connection) nextRequestID() uint16 {
	return uint16(atomic.AddUint32(&c.requestCounter, 1))
}

// Serve implements httpserver.Handler.
func (c *Connection) Serve(req *httpserver.Request, res *httpserver.FreshResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.serveLocked(req, res); err != nil {
		c.log.Warnf("fastcgi: %v", err)
	}
}

func (c *Connection) serveLocked(req *httpserver.Request, res *httpserver.FreshResponse) error {
	reqID := c.nextRequestID()

	if err := c.conn.writeBeginRequest(reqID, RoleResponder, flagKeepConn); err != nil {
		return errors.Wrap(err, "sending BEGIN_REQUEST")
	}

	if err := c.conn.writePairs(typeParams, reqID, buildParams(req, c.webroot)); err != nil {
		return errors.Wrap(err, "sending PARAMS")
	}

	if err := c.forwardBody(reqID, req); err != nil {
		return errors.Wrap(err, "forwarding request body")
	}

	return c.readResponse(reqID, res)
}

// forwardBody streams the request body upstream as FCGI_STDIN records,
// 4KiB at a time, ending the stream with the empty terminator record.
func (c *Connection) forwardBody(reqID uint16, req *httpserver.Request) error {
	w := newStreamWriter(c.conn, typeStdin, reqID)

	buf := make([]byte, 4096)
	for {
		n, err := req.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}

		if err != nil {
			// A client that sent no body (the common GET case) never
			// produces more bytes or an EOF of its own; it just sits there
			// until the connection-wide socket deadline (httpserver.Server)
			// elapses. Treat that timeout the same as EOF: the body is done,
			// not the exchange has failed. Any other error is a real
			// failure and aborts the request.
			if err == io.EOF || isTimeout(err) {
				break
			}
			return err
		}

		if n == 0 {
			break
		}
	}

	return w.Close()
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// readResponse reads upstream records until the CGI document header block
// is complete, commits headers and residual body bytes to res, then
// streams the remainder of the body to the client.
func (c *Connection) readResponse(reqID uint16, res *httpserver.FreshResponse) error {
	var headerBuf []byte
	var lastLen = -1

	for {
		rec, err := c.reader.next()
		if err != nil {
			httpserver.Error500(res)
			return errors.Wrap(errUpstreamDisappeared, err.Error())
		}

		if rec.h.ID != reqID {
			httpserver.Error500(res)
			return errors.Wrapf(errProtocolViolation, "record for request %d, expected %d", rec.h.ID, reqID)
		}

		switch rec.h.Type {
		case typeStdout:
			headerBuf = append(headerBuf, rec.content()...)

			headers, consumed, perr := cgiheader.Parse(headerBuf)
			if perr == cgiheader.ErrIncomplete {
				if len(headerBuf) == lastLen {
					httpserver.Error500(res)
					return errors.Wrap(errUpstreamDisappeared, "no progress reading response headers")
				}
				lastLen = len(headerBuf)
				continue
			}
			if perr != nil {
				httpserver.Error500(res)
				return errors.Wrap(perr, "parsing responder headers")
			}

			applyDocumentHeaders(res, headers)

			streaming, serr := res.Start()
			if serr != nil {
				return serr
			}

			if _, werr := streaming.Write(headerBuf[consumed:]); werr != nil {
				streaming.Close()
				return werr
			}

			return c.streamBody(reqID, streaming)

		case typeStderr:
			c.log.Warnf("fastcgi: responder stderr: %s", rec.content())

		default:
			httpserver.Error500(res)
			return errors.Wrapf(errProtocolViolation, "unexpected record type %s while reading headers", rec.h.Type)
		}
	}
}

// streamBody relays FCGI_STDOUT bytes to the client until EndRequest, then
// closes the chunked stream.
func (c *Connection) streamBody(reqID uint16, out *httpserver.StreamingResponse) error {
	defer out.Close()

	for {
		rec, err := c.reader.next()
		if err != nil {
			return errors.Wrap(errUpstreamDisappeared, err.Error())
		}

		if rec.h.ID != reqID {
			return errors.Wrapf(errProtocolViolation, "record for request %d, expected %d", rec.h.ID, reqID)
		}

		switch rec.h.Type {
		case typeStdout:
			if _, werr := out.Write(rec.content()); werr != nil {
				return werr
			}

		case typeStderr:
			c.log.Warnf("fastcgi: responder stderr: %s", rec.content())

		case typeEndRequest:
			appStatus, protoStatus := parseEndRequest(rec.content())
			if protoStatus != statusRequestComplete {
				c.log.Warnf("fastcgi: responder protocol_status=%d, expected REQUEST_COMPLETE", protoStatus)
			}
			if appStatus != 0 {
				c.log.Warnf("fastcgi: responder exited with app_status=%d", appStatus)
			}
			return nil

		default:
			return errors.Wrapf(errProtocolViolation, "unexpected record type %s while streaming body", rec.h.Type)
		}
	}
}

func parseEndRequest(content []byte) (appStatus int32, protocolStatus uint8) {
	if len(content) < 5 {
		return 0, statusRequestComplete
	}

	return int32(binary.BigEndian.Uint32(content)), content[4]
}

// applyDocumentHeaders copies a parsed CGI header block onto a fresh
// response: Content-Type always, Status if the responder sent one, and
// every other header verbatim.
func applyDocumentHeaders(res *httpserver.FreshResponse, doc cgiheader.DocumentHeaders) {
	res.Headers().InsertString(doc.ContentType.Name, doc.ContentType.Content)

	if doc.Status != nil {
		res.SetStatus(doc.Status.Code, doc.Status.ReasonPhrase)
	}

	for _, h := range doc.Headers {
		res.Headers().InsertString(h.Name, h.Content)
	}
}

// buildParams assembles the CGI/1.1 meta-variable set for req, per
// spec.md §4.5.
func buildParams(req *httpserver.Request, webroot string) []nameValuePair {
	rawURI := req.RawURI()
	path, query := splitQuery(rawURI)

	host, _ := req.Headers().GetString("Host")

	pairs := []nameValuePair{
		{name: "GATEWAY_INTERFACE", value: "CGI/1.1"},
		{name: "PATH_INFO", value: rawURI},
		{name: "PATH_TRANSLATED", value: translatedPath(webroot, path)},
		{name: "QUERY_STRING", value: query},
		{name: "REMOTE_ADDR", value: remoteIP(req.RemoteAddr)},
		{name: "REMOTE_HOST", value: remoteIP(req.RemoteAddr)},
		{name: "REQUEST_METHOD", value: req.Method()},
		{name: "SCRIPT_NAME", value: ""},
		{name: "SERVER_NAME", value: host},
		{name: "SERVER_PORT", value: strconv.Itoa(int(req.LocalPort))},
		{name: "SERVER_PROTOCOL", value: "HTTP/1.1"},
		{name: "SERVER_SOFTWARE", value: "fcgiserver"},
	}

	req.Headers().Each(func(name string, value []byte) {
		pairs = append(pairs, nameValuePair{
			name:  "HTTP_" + headerEnvName(name),
			value: string(value),
		})
	})

	return pairs
}

// splitQuery splits a raw request-target into its path and query-string
// components (the substring from '?' onward, or empty).
func splitQuery(rawURI string) (path, query string) {
	if i := strings.IndexByte(rawURI, '?'); i >= 0 {
		return rawURI[:i], rawURI[i:]
	}

	return rawURI, ""
}

// translatedPath joins webroot with path, having stripped path's leading
// '/', per spec.md's PATH_TRANSLATED definition.
func translatedPath(webroot, path string) string {
	return webroot + "/" + strings.TrimPrefix(path, "/")
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}

// headerEnvName uppercases a header name and replaces '-' with '_', as
// FastCGI's HTTP_* metavariables require.
func headerEnvName(name string) string {
	b := []byte(strings.ToUpper(name))
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}

	return string(b)
}
